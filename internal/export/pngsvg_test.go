/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gohymnbook/internal/domain"
	"gohymnbook/internal/storage"
)

func TestExportHymnSVGs(t *testing.T) {
	root := t.TempDir()
	bh, err := storage.InitBook(root, sampleBook())
	if err != nil {
		t.Fatalf("init book: %v", err)
	}
	if err := ExportHymnSVGs(bh, "svg", SVGOptions{}); err != nil {
		t.Fatalf("export: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, "exports", "svg", "hymn-01.svg"))
	if err != nil {
		t.Fatalf("read svg: %v", err)
	}
	s := string(data)
	for _, want := range []string{"<svg", "</svg>", "<line", `text-anchor="middle"`, "Estrela do Mar"} {
		if !strings.Contains(s, want) {
			t.Fatalf("svg missing %q", want)
		}
	}
	for n := 2; n <= 4; n++ {
		p := filepath.Join(root, "exports", "svg", fmt.Sprintf("hymn-%02d.svg", n))
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("stat hymn %d: %v", n, err)
		}
	}
}

func TestExportHymnSVGs_Selection(t *testing.T) {
	root := t.TempDir()
	bh, err := storage.InitBook(root, sampleBook())
	if err != nil {
		t.Fatalf("init book: %v", err)
	}
	if err := ExportHymnSVGs(bh, "svg", SVGOptions{Hymns: []int{3}}); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "exports", "svg", "hymn-03.svg")); err != nil {
		t.Fatalf("selected hymn missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "exports", "svg", "hymn-01.svg")); !os.IsNotExist(err) {
		t.Fatalf("unselected hymn was exported: %v", err)
	}
}

func TestExportHymnPNGs(t *testing.T) {
	root := t.TempDir()
	bh, err := storage.InitBook(root, sampleBook())
	if err != nil {
		t.Fatalf("init book: %v", err)
	}
	if err := ExportHymnPNGs(bh, "png", PNGOptions{DPI: 144}); err != nil {
		t.Fatalf("export: %v", err)
	}

	out := filepath.Join(root, "exports", "png", "hymn-01.png")
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open png: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// 288x432pt pocket page at 144 dpi.
	if cfg.Width != 576 {
		t.Fatalf("expected width 576, got %d", cfg.Width)
	}
	if cfg.Height != 864 {
		t.Fatalf("expected height 864, got %d", cfg.Height)
	}

	// The render populates the proof cache under the page pixel key.
	blob, err := storage.GetProof(context.Background(), root, 1, storage.ProofKindPNG, 576, 864)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if blob == nil {
		t.Fatalf("proof cache not populated")
	}
	file, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !bytes.Equal(blob, file) {
		t.Fatalf("cached proof differs from exported file")
	}
}

func TestExportHymnPNGs_UsesProofCache(t *testing.T) {
	root := t.TempDir()
	bh, err := storage.InitBook(root, sampleBook())
	if err != nil {
		t.Fatalf("init book: %v", err)
	}
	ctx := context.Background()
	primed := []byte("primed proof blob")
	if err := storage.PutProof(ctx, root, 1, storage.ProofKindPNG, 576, 864, primed); err != nil {
		t.Fatalf("put proof: %v", err)
	}

	// Default exports serve the cached blob untouched.
	if err := ExportHymnPNGs(bh, "png", PNGOptions{DPI: 144}); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := filepath.Join(root, "exports", "png", "hymn-01.png")
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, primed) {
		t.Fatalf("expected the cached blob, got %d bytes", len(got))
	}

	// Fresh re-renders and replaces the stale entry.
	if err := ExportHymnPNGs(bh, "png", PNGOptions{DPI: 144, Fresh: true}); err != nil {
		t.Fatalf("fresh export: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		t.Fatalf("fresh export is not a png: %v", err)
	}
	blob, err := storage.GetProof(ctx, root, 1, storage.ProofKindPNG, 576, 864)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if bytes.Equal(blob, primed) {
		t.Fatalf("fresh export did not refresh the cache")
	}
}

func TestExportHymnSVGs_FitShrinksAboveFloor(t *testing.T) {
	root := t.TempDir()
	// The widest line is 34 glyphs. At the fallback advance of 7px scaled
	// from the face's 13px height that is 238*s/13 points wide, against a
	// pocket budget of 288-2*36-14 = 202: over at the default 14, under
	// from 11 down. A size-blind measure would drive this to the floor.
	book := domain.Book{
		Name: "Estrela Dalva",
		Hymns: []domain.Hymn{
			{
				Number:      1,
				Title:       "Montanha",
				Text:        "Eu subi na montanha para ver o mar\nE a estrela me guiou",
				Repetitions: "1-2",
			},
		},
	}
	bh, err := storage.InitBook(root, book)
	if err != nil {
		t.Fatalf("init book: %v", err)
	}
	if err := ExportHymnSVGs(bh, "svg", SVGOptions{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(root, "exports", "svg", "hymn-01.svg"))
	if err != nil {
		t.Fatalf("read svg: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `font-size="11"`) {
		t.Fatalf("expected lyrics fitted at 11, got:\n%s", s)
	}
	if strings.Contains(s, `font-size="6"`) {
		t.Fatalf("fit collapsed to the floor:\n%s", s)
	}
}
