/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gohymnbook/internal/backend"
	"gohymnbook/internal/bundle"
	"gohymnbook/internal/config"
	"gohymnbook/internal/crash"
	"gohymnbook/internal/domain"
	"gohymnbook/internal/export"
	applog "gohymnbook/internal/log"
	"gohymnbook/internal/storage"
	"gohymnbook/internal/telemetry"
	"gohymnbook/internal/version"
)

func usage() {
	fmt.Println("GoHymnbook — songbook renderer")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gohymnbook version|-v|--version             Show version")
	fmt.Println("  gohymnbook init <dir> <name>                Create a new songbook at <dir> with name <name>")
	fmt.Println("  gohymnbook open <path>                      Open a book (dir or .yaml) and print a summary")
	fmt.Println("  gohymnbook validate <path>                  Check the manifest against the schema and domain rules")
	fmt.Println("  gohymnbook render <path> [out.pdf]          Render the book to PDF (default: <path>.pdf)")
	fmt.Println("  gohymnbook epub <path> [out.epub]           Export the book as a reflowable EPUB")
	fmt.Println("  gohymnbook proof <path> [dir]               Write per-hymn SVG layout proofs")
	fmt.Println("  gohymnbook png <path> [dir]                 Write per-hymn PNG proof sheets")
	fmt.Println("  gohymnbook hymn add|remove|renumber ...     Edit the hymn list of a book")
	fmt.Println("  gohymnbook stats <path>                     Report repeat bar coverage per hymn")
	fmt.Println("  gohymnbook index <path>                     Rebuild the embedded search index")
	fmt.Println("  gohymnbook search <path> <query>            Full-text search over the book")
	fmt.Println("  gohymnbook history <path>                   List recent export runs")
	fmt.Println("  gohymnbook bundle <path> [out.ghbundle]     Pack the book and its assets into a bundle")
	fmt.Println("  gohymnbook unbundle <file> <dir>            Unpack a bundle into a directory")
	fmt.Println("  gohymnbook config                           Print the effective configuration")
	fmt.Println("  gohymnbook library list|publish|pull ...    Talk to a shared library server")
}

func main() {
	// initialize structured logging using environment defaults
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	var bh *storage.BookHandle
	defer func() { crash.Recover(bh) }()

	telemetry.InitDefault()
	telemetry.Event("app_start", nil)

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	if len(args) < 2 {
		usage()
		return
	}

	switch args[1] {
	case "version", "--version", "-v":
		fmt.Println("GoHymnbook — songbook renderer")
		fmt.Println(version.String())

	case "init":
		if len(args) < 4 {
			fmt.Println("init requires <dir> and <name>")
			usage()
			os.Exit(2)
		}
		abs, _ := filepath.Abs(args[2])
		name := args[3]
		l.Info("init book", slog.String("root", abs), slog.String("name", name))
		b := domain.Book{Name: name, Hymns: []domain.Hymn{}}
		h, err := storage.InitBook(abs, b)
		if err != nil {
			fail(l, "init failed", err)
		}
		bh = h
		fmt.Println("Created songbook at", abs)

	case "open":
		h := mustOpen(l, args, 2)
		bh = h
		fmt.Printf("Opened book: %s\n", h.Book.Name)
		fmt.Printf("Hymns: %d\n", len(h.Book.Hymns))
		fmt.Println("Root:", h.Root)

	case "validate":
		if len(args) < 3 {
			fmt.Println("validate requires <path>")
			os.Exit(2)
		}
		h := mustOpen(l, args, 2)
		bh = h
		if err := storage.ValidateManifestFile(h.ManifestPath); err != nil {
			fail(l, "schema validation failed", err)
		}
		if err := h.Book.Validate(); err != nil {
			fail(l, "book validation failed", err)
		}
		fmt.Println("OK:", h.ManifestPath)

	case "render":
		h := mustOpen(l, args, 2)
		bh = h
		out := outputPath(args, 3, args[2], ".pdf", h)
		cfg, _, _ := config.Load()
		l.Info("render pdf", slog.String("out", out))
		if err := export.ExportBookPDF(h, out, export.PDFOptions{Render: cfg.Render}); err != nil {
			fail(l, "render failed", err)
		}
		telemetry.RenderCompleted("pdf", len(h.Book.Hymns), 0)
		fmt.Println("Wrote", out)

	case "epub":
		h := mustOpen(l, args, 2)
		bh = h
		out := outputPath(args, 3, args[2], ".epub", h)
		l.Info("export epub", slog.String("out", out))
		if err := export.ExportBookEPUB(h, out, export.EPUBOptions{}); err != nil {
			fail(l, "epub export failed", err)
		}
		telemetry.RenderCompleted("epub", len(h.Book.Hymns), 0)
		fmt.Println("Wrote", out)

	case "proof":
		h := mustOpen(l, args, 2)
		bh = h
		dir := optArg(args, 3, "")
		cfg, _, _ := config.Load()
		if err := export.ExportHymnSVGs(h, dir, export.SVGOptions{Render: cfg.Render}); err != nil {
			fail(l, "svg proofs failed", err)
		}
		fmt.Println("Wrote SVG proofs")

	case "png":
		h := mustOpen(l, args, 2)
		bh = h
		dir := optArg(args, 3, "")
		cfg, _, _ := config.Load()
		if err := export.ExportHymnPNGs(h, dir, export.PNGOptions{Render: cfg.Render}); err != nil {
			fail(l, "png proofs failed", err)
		}
		fmt.Println("Wrote PNG proofs")

	case "hymn":
		runHymn(l, args[2:], &bh)

	case "stats":
		h := mustOpen(l, args, 2)
		bh = h
		for _, st := range storage.ComputeRepeatCoverage(h.Book) {
			fmt.Printf("%02d. %-30s %3d line(s) (%d blank)  %2d bar(s)  depth %d  %d repeated",
				st.Number, st.Title, st.Lines, st.BlankLines, st.Bars, st.MaxLevel, st.RepeatedLines)
			if st.OutOfRange > 0 {
				fmt.Printf("  [%d past end]", st.OutOfRange)
			}
			fmt.Println()
		}
		fmt.Printf("Deepest nesting: %d\n", storage.MaxNestingLevel(h.Book))

	case "index":
		h := mustOpen(l, args, 2)
		bh = h
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := storage.RebuildIndex(ctx, h.Root, h.Book); err != nil {
			fail(l, "index rebuild failed", err)
		}
		fmt.Println("Index rebuilt at", storage.IndexPath(h.Root))

	case "search":
		if len(args) < 4 {
			fmt.Println("search requires <path> and <query>")
			os.Exit(2)
		}
		h := mustOpen(l, args, 2)
		bh = h
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := storage.BuildIndexIfEmpty(ctx, h.Root, h.Book); err != nil {
			fail(l, "index build failed", err)
		}
		res, err := storage.Search(ctx, h.Root, storage.SearchQuery{Text: strings.Join(args[3:], " ")})
		if err != nil {
			fail(l, "search failed", err)
		}
		for _, r := range res {
			if r.HymnNo > 0 {
				fmt.Printf("hymn %d\t%s\t%s\n", r.HymnNo, r.Type, r.Snippet)
			} else {
				fmt.Printf("book\t%s\t%s\n", r.Type, r.Snippet)
			}
		}
		fmt.Printf("%d match(es)\n", len(res))

	case "history":
		h := mustOpen(l, args, 2)
		bh = h
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		recs, err := storage.ListRenders(ctx, h, 20)
		if err != nil {
			fail(l, "history failed", err)
		}
		for _, r := range recs {
			fmt.Printf("%s  %-5s %6d page(s)  %8d byte(s)  %s\n", r.TS.Format("2006-01-02 15:04"), r.Format, r.Pages, r.Bytes, r.Output)
		}
		if len(recs) == 0 {
			fmt.Println("No exports recorded yet.")
		}

	case "bundle":
		h := mustOpen(l, args, 2)
		bh = h
		out := outputPath(args, 3, args[2], bundle.Ext, h)
		if err := bundle.ExportBook(h, out); err != nil {
			fail(l, "bundle failed", err)
		}
		fmt.Println("Wrote", out)

	case "unbundle":
		if len(args) < 4 {
			fmt.Println("unbundle requires <file> and <dir>")
			os.Exit(2)
		}
		n, err := bundle.Import(args[2], args[3])
		if err != nil {
			fail(l, "unbundle failed", err)
		}
		fmt.Printf("Unpacked %d file(s) into %s\n", n, args[3])

	case "config":
		cfg, _, err := config.Load()
		if err != nil {
			fail(l, "config load failed", err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fail(l, "config encode failed", err)
		}
		if p, err := config.ConfigPath(); err == nil {
			fmt.Println("# config file:", p)
		}
		fmt.Print(string(out))

	case "library":
		runLibrary(l, args[2:], &bh)

	default:
		usage()
		os.Exit(2)
	}
}

func runHymn(l *slog.Logger, args []string, bhp **storage.BookHandle) {
	if len(args) < 2 {
		fmt.Println("hymn requires a subcommand: add <path> <title> [lyrics-file] | remove <path> <number> | renumber <path>")
		os.Exit(2)
	}
	h, err := storage.Open(mustAbs(args[1]))
	if err != nil {
		fail(l, "open failed", err)
	}
	*bhp = h

	switch args[0] {
	case "add":
		if len(args) < 3 {
			fmt.Println("hymn add requires <path> and <title>")
			os.Exit(2)
		}
		text := "(lyrics pending)"
		if len(args) > 3 {
			data, err := os.ReadFile(args[3])
			if err != nil {
				fail(l, "read lyrics failed", err)
			}
			text = strings.TrimRight(string(data), "\n")
		}
		added, err := storage.AddHymn(h, domain.Hymn{Title: args[2], Text: text})
		if err != nil {
			fail(l, "add hymn failed", err)
		}
		if err := storage.Save(h); err != nil {
			fail(l, "save failed", err)
		}
		fmt.Printf("Added hymn %d: %s\n", added.Number, added.Title)

	case "remove":
		if len(args) < 3 {
			fmt.Println("hymn remove requires <path> and <number>")
			os.Exit(2)
		}
		var n int
		if _, err := fmt.Sscanf(args[2], "%d", &n); err != nil {
			fail(l, "invalid hymn number", err)
		}
		if err := storage.RemoveHymn(h, n); err != nil {
			fail(l, "remove hymn failed", err)
		}
		if err := storage.Save(h); err != nil {
			fail(l, "save failed", err)
		}
		fmt.Printf("Removed hymn %d\n", n)

	case "renumber":
		changed, err := storage.NormalizeNumbers(h)
		if err != nil {
			fail(l, "renumber failed", err)
		}
		if err := storage.Save(h); err != nil {
			fail(l, "save failed", err)
		}
		fmt.Printf("Renumbered %d hymn(s)\n", changed)

	default:
		fmt.Println("unknown hymn subcommand:", args[0])
		os.Exit(2)
	}
}

func runLibrary(l *slog.Logger, args []string, bhp **storage.BookHandle) {
	if len(args) < 1 {
		fmt.Println("library requires a subcommand: list | publish <path> | pull <id> [out.yaml]")
		os.Exit(2)
	}
	cfg, token, err := config.Load()
	if err != nil {
		fail(l, "config load failed", err)
	}
	cli := backend.NewFromConfig(cfg.Library, token)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Library.TimeoutMs)*time.Millisecond)
	defer cancel()

	switch args[0] {
	case "list":
		books, err := cli.ListBooks(ctx)
		if err != nil {
			fail(l, "library list failed", err)
		}
		for _, b := range books {
			fmt.Printf("%d\t%s\tv%d\t%d hymn(s)\towner=%s\n", b.ID, b.Name, b.Version, b.Hymns, b.Owner)
		}
		if len(books) == 0 {
			fmt.Println("No books published.")
		}

	case "publish":
		if len(args) < 2 {
			fmt.Println("library publish requires <path>")
			os.Exit(2)
		}
		h, err := storage.Open(mustAbs(args[1]))
		if err != nil {
			fail(l, "open failed", err)
		}
		*bhp = h
		manifest, err := os.ReadFile(h.ManifestPath)
		if err != nil {
			fail(l, "read manifest failed", err)
		}
		res, err := cli.Publish(ctx, manifest, "")
		if err != nil {
			fail(l, "publish failed", err)
		}
		telemetry.Published(fmt.Sprintf("%d", res.ID))
		fmt.Printf("Published book id=%d version=%d\n", res.ID, res.Version)

	case "index":
		if len(args) < 2 {
			fmt.Println("library index requires <id>")
			os.Exit(2)
		}
		var id int64
		if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil {
			fail(l, "invalid book id", err)
		}
		env, err := cli.GetIndexSnapshot(ctx, id)
		if err != nil {
			fail(l, "index snapshot failed", err)
		}
		fmt.Printf("book %d snapshot version %d created %s\n", env.BookID, env.Version, env.CreatedAt)

	case "pull":
		if len(args) < 2 {
			fmt.Println("library pull requires <id> [out.yaml]")
			os.Exit(2)
		}
		var id int64
		if _, err := fmt.Sscanf(args[1], "%d", &id); err != nil {
			fail(l, "invalid book id", err)
		}
		data, err := cli.PullManifest(ctx, id)
		if err != nil {
			fail(l, "pull failed", err)
		}
		out := optArg(args, 2, fmt.Sprintf("book-%d.yaml", id))
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fail(l, "write manifest failed", err)
		}
		fmt.Println("Wrote", out)

	default:
		fmt.Println("unknown library subcommand:", args[0])
		os.Exit(2)
	}
}

func mustOpen(l *slog.Logger, args []string, idx int) *storage.BookHandle {
	if len(args) <= idx {
		fmt.Println("missing <path> argument")
		usage()
		os.Exit(2)
	}
	abs := mustAbs(args[idx])
	l.Info("open book", slog.String("path", abs))
	h, err := storage.Open(abs)
	if err != nil {
		fail(l, "open failed", err)
	}
	return h
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// outputPath resolves an explicit output argument, falling back to the input
// path with its extension swapped (book dirs land in their exports folder).
func outputPath(args []string, idx int, in, ext string, bh *storage.BookHandle) string {
	if len(args) > idx {
		return args[idx]
	}
	abs := mustAbs(in)
	if st, err := os.Stat(abs); err == nil && st.IsDir() {
		base := filepath.Base(abs)
		return filepath.Join(bh.ExportsDir(), base+ext)
	}
	return strings.TrimSuffix(abs, filepath.Ext(abs)) + ext
}

func optArg(args []string, idx int, def string) string {
	if len(args) > idx {
		return args[idx]
	}
	return def
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}
