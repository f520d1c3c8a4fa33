/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gohymnbook/internal/domain"
	"gohymnbook/internal/layout"
	"gohymnbook/internal/storage"
)

// EPUBOptions controls EPUB export behavior. Metadata fields fall back to
// the book manifest; Language defaults to pt-BR, the language of the hymn
// books this format carries.
//
//nolint:revive // clarity
type EPUBOptions struct {
	Hymns       []int // hymn numbers; empty means all
	Title       string
	Author      string
	Language    string
	Publisher   string
	Description string
}

// ExportBookEPUB writes the whole songbook as a reflowable EPUB 3 package:
// a cover document from the book metadata, then one XHTML per hymn. Repeat
// ranges render as nested left-border divs so the structure survives
// reflow. A hymn whose repeat annotation does not parse is skipped and
// reported in the returned error.
func ExportBookEPUB(bh *storage.BookHandle, outPath string, opt EPUBOptions) error {
	if bh == nil {
		return fmt.Errorf("book handle is nil")
	}
	book := bh.Book
	if len(book.Hymns) == 0 {
		return fmt.Errorf("book has no hymns")
	}
	hymns := selectHymns(book.Hymns, opt.Hymns)
	if len(hymns) == 0 {
		return fmt.Errorf("no hymns matched the selection")
	}

	if opt.Language == "" {
		opt.Language = "pt-BR"
	}
	if opt.Title == "" {
		opt.Title = book.Name
	}
	if opt.Author == "" {
		opt.Author = book.Owner
	}

	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(bh.Root, "exports", outPath)
	}
	if !strings.HasSuffix(strings.ToLower(outPath), ".epub") {
		outPath += ".epub"
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create epub: %w", err)
	}
	defer func() { _ = f.Close() }()
	zw := zip.NewWriter(f)

	// 1) mimetype first, uncompressed
	if err := addStoredZipFile(zw, "mimetype", []byte("application/epub+zip")); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write mimetype: %w", err)
	}

	// 2) META-INF/container.xml
	containerXML := "" +
		"<?xml version=\"1.0\" encoding=\"utf-8\"?>\n" +
		"<container version=\"1.0\" xmlns=\"urn:oasis:names:tc:opendocument:xmlns:container\">\n" +
		"  <rootfiles>\n" +
		"    <rootfile full-path=\"OEBPS/content.opf\" media-type=\"application/oebps-package+xml\"/>\n" +
		"  </rootfiles>\n" +
		"</container>\n"
	if err := addZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write container.xml: %w", err)
	}

	// 3) Stylesheet
	css := "body { font-family: \"DejaVu Sans\", sans-serif; margin: 1em; }\n" +
		".title { text-align: center; border-bottom: 1px solid #000; padding-bottom: 0.1em; }\n" +
		".details { text-align: right; font-size: 0.8em; }\n" +
		".lyrics { margin-top: 0.5em; }\n" +
		".line { white-space: pre-wrap; }\n" +
		".line.gap { min-height: 1em; }\n" +
		".repeat { border-left: 1.5px solid #000; padding-left: 0.5em; margin: 0.1em 0; }\n" +
		".symbols { text-align: center; margin-top: 1.2em; }\n" +
		".received { text-align: right; font-size: 0.8em; margin-top: 1.4em; }\n" +
		".cover { text-align: center; margin-top: 4em; }\n" +
		".cover p { font-size: 1.6em; margin: 0.8em 0; }\n" +
		".cover img { max-width: 100%; }\n"
	if err := addZipFile(zw, "OEBPS/styles/book.css", []byte(css)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write css: %w", err)
	}

	// 4) Cover image when the book has one
	coverImg := ""
	coverMedia := ""
	if p := bh.CoverPath(); p != "" && isRasterImage(p) && fileExists(p) {
		data, rerr := os.ReadFile(p)
		if rerr == nil {
			ext := strings.ToLower(filepath.Ext(p))
			coverImg = "images/cover" + ext
			coverMedia = imageMediaType(ext)
			if err := addZipFile(zw, "OEBPS/"+coverImg, data); err != nil {
				_ = zw.Close()
				return fmt.Errorf("zip add cover image: %w", err)
			}
		}
	}

	// 5) Cover document
	if err := addZipFile(zw, "OEBPS/cover.xhtml", buildCoverXHTML(book, coverImg)); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write cover.xhtml: %w", err)
	}

	pad := 2
	for _, h := range hymns {
		if w := len(fmt.Sprintf("%d", h.Number)); w > pad {
			pad = w
		}
	}

	// 6) One XHTML per hymn; a bad repeat annotation skips only that hymn.
	navBuf := &bytes.Buffer{}
	navBuf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	navBuf.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\" xmlns:epub=\"http://www.idpf.org/2007/ops\">\n<head><title>Table of Contents</title></head>\n<body>\n")
	navBuf.WriteString("<nav epub:type=\"toc\" id=\"toc\"><ol>\n")
	navBuf.WriteString("<li><a href=\"cover.xhtml\">Cover</a></li>\n")

	type spineItem struct {
		id   string
		href string
	}
	var items []spineItem
	var skipped []int
	var firstErr error
	for i, h := range hymns {
		idx := i + 1
		data, err := buildHymnXHTML(h, idx)
		if err != nil {
			skipped = append(skipped, h.Number)
			if firstErr == nil {
				firstErr = fmt.Errorf("hymn %d (%s): %w", h.Number, h.Title, err)
			}
			continue
		}
		href := fmt.Sprintf("hymn-%0*d.xhtml", pad, h.Number)
		if err := addZipFile(zw, "OEBPS/"+href, data); err != nil {
			_ = zw.Close()
			return fmt.Errorf("write hymn xhtml: %w", err)
		}
		items = append(items, spineItem{id: fmt.Sprintf("hymn-%0*d", pad, h.Number), href: href})
		label := fmt.Sprintf("%02d. %s (%02d)", idx, h.Title, h.Number)
		navBuf.WriteString(fmt.Sprintf("<li><a href=\"%s\">%s</a></li>\n", href, escText(label)))
	}
	navBuf.WriteString("</ol></nav>\n</body>\n</html>\n")
	if err := addZipFile(zw, "OEBPS/nav.xhtml", navBuf.Bytes()); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write nav.xhtml: %w", err)
	}

	// 7) content.opf
	mod := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	uid := fmt.Sprintf("urn:uuid:%d", time.Now().UnixNano())

	manifest := &bytes.Buffer{}
	manifest.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	manifest.WriteString("<package version=\"3.0\" unique-identifier=\"pub-id\" xmlns=\"http://www.idpf.org/2007/opf\">\n")
	manifest.WriteString("  <metadata xmlns:dc=\"http://purl.org/dc/elements/1.1/\" xmlns:opf=\"http://www.idpf.org/2007/opf\">\n")
	manifest.WriteString(fmt.Sprintf("    <dc:identifier id=\"pub-id\">%s</dc:identifier>\n", uid))
	manifest.WriteString(fmt.Sprintf("    <dc:title>%s</dc:title>\n", xmlEsc(opt.Title)))
	manifest.WriteString(fmt.Sprintf("    <dc:language>%s</dc:language>\n", xmlEsc(opt.Language)))
	if strings.TrimSpace(opt.Author) != "" {
		manifest.WriteString(fmt.Sprintf("    <dc:creator>%s</dc:creator>\n", xmlEsc(opt.Author)))
	}
	if strings.TrimSpace(opt.Publisher) != "" {
		manifest.WriteString(fmt.Sprintf("    <dc:publisher>%s</dc:publisher>\n", xmlEsc(opt.Publisher)))
	}
	if strings.TrimSpace(opt.Description) != "" {
		manifest.WriteString(fmt.Sprintf("    <dc:description>%s</dc:description>\n", xmlEsc(opt.Description)))
	}
	manifest.WriteString(fmt.Sprintf("    <meta property=\"dcterms:modified\">%s</meta>\n", mod))
	manifest.WriteString("  </metadata>\n")
	manifest.WriteString("  <manifest>\n")
	manifest.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	manifest.WriteString("    <item id=\"css\" href=\"styles/book.css\" media-type=\"text/css\"/>\n")
	if coverImg != "" {
		manifest.WriteString(fmt.Sprintf("    <item id=\"cover-img\" href=\"%s\" media-type=\"%s\" properties=\"cover-image\"/>\n", coverImg, coverMedia))
	}
	manifest.WriteString("    <item id=\"cover\" href=\"cover.xhtml\" media-type=\"application/xhtml+xml\"/>\n")
	for _, it := range items {
		manifest.WriteString(fmt.Sprintf("    <item id=\"%s\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", it.id, it.href))
	}
	manifest.WriteString("  </manifest>\n")
	manifest.WriteString("  <spine page-progression-direction=\"ltr\">\n")
	manifest.WriteString("    <itemref idref=\"cover\"/>\n")
	for _, it := range items {
		manifest.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", it.id))
	}
	manifest.WriteString("  </spine>\n")
	manifest.WriteString("</package>\n")
	if err := addZipFile(zw, "OEBPS/content.opf", manifest.Bytes()); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write content.opf: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip: %w", err)
	}
	recordRender(bh, "epub", outPath, len(items)+1)

	if len(skipped) > 0 {
		return fmt.Errorf("skipped hymns %v: %w", skipped, firstErr)
	}
	return nil
}

func buildCoverXHTML(book domain.Book, coverImg string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	buf.WriteString("<html xmlns=\"http://www.w3.org/1999/xhtml\">\n<head>\n<meta charset=\"utf-8\"/>\n<title>Cover</title>\n")
	buf.WriteString("<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/book.css\"/>\n</head>\n<body>\n<div class=\"cover\">\n")
	if coverImg != "" {
		buf.WriteString(fmt.Sprintf("<img src=\"%s\" alt=\"Cover\"/>\n", xmlEsc(coverImg)))
	}
	for _, text := range []string{book.IntroName, book.Name, book.Owner} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		buf.WriteString("<p>" + strings.ReplaceAll(escText(text), "\n", "<br/>") + "</p>\n")
	}
	buf.WriteString("</div>\n</body>\n</html>\n")
	return buf.Bytes()
}

func buildHymnXHTML(h domain.Hymn, idx int) ([]byte, error) {
	ranges, err := layout.ParseRanges(h.Repetitions)
	if err != nil {
		return nil, fmt.Errorf("repeats: %w", err)
	}
	bars := layout.AssignLevels(ranges)
	lines := strings.Split(strings.TrimSpace(h.Text), "\n")
	depths := lineDepths(lines, bars)

	buf := &bytes.Buffer{}
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(buf, format, args...)
	}

	title := fmt.Sprintf("%02d. %s (%02d)", idx, h.Title, h.Number)
	wf("<?xml version=\"1.0\" encoding=\"utf-8\"?>\n")
	wf("<html xmlns=\"http://www.w3.org/1999/xhtml\">\n<head>\n<meta charset=\"utf-8\"/>\n<title>%s</title>\n", escText(title))
	wf("<link rel=\"stylesheet\" type=\"text/css\" href=\"styles/book.css\"/>\n</head>\n<body>\n")
	wf("<h2 class=\"title\">%s</h2>\n", escText(title))
	if parts := detailParts(h); len(parts) > 0 {
		wf("<p class=\"details\">%s</p>\n", escText(strings.Join(parts, " - ")))
	}

	wf("<div class=\"lyrics\">\n")
	i := 0
	for i < len(lines) {
		d := depths[i]
		j := i
		for j < len(lines) && depths[j] == d {
			j++
		}
		for k := 0; k < d; k++ {
			wf("<div class=\"repeat\">\n")
		}
		for _, ln := range lines[i:j] {
			if strings.TrimSpace(ln) == "" {
				wf("<div class=\"line gap\">&#160;</div>\n")
			} else {
				wf("<div class=\"line\">%s</div>\n", escText(ln))
			}
		}
		for k := 0; k < d; k++ {
			wf("</div>\n")
		}
		i = j
	}
	wf("</div>\n")

	sym, _ := closingSymbol(idx)
	wf("<p class=\"symbols\">%s</p>\n", escText(sym))
	if h.ReceivedAt != nil {
		wf("<p class=\"received\">%s</p>\n", escText(h.ReceivedAt.Format("(02/01/2006)")))
	}
	wf("</body>\n</html>\n")

	if werr != nil {
		return nil, fmt.Errorf("build xhtml: %w", werr)
	}
	return buf.Bytes(), nil
}

// lineDepths maps each physical lyric line to the number of repeat bars
// covering it. Bar bounds address logical (non-blank) lines; blank lines
// take the shallower of their neighbors so a bar spanning a stanza gap
// stays unbroken.
func lineDepths(lines []string, bars []layout.Bar) []int {
	depths := make([]int, len(lines))
	logicalIdx := make([]int, len(lines))
	logical := 0
	for i, ln := range lines {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		logical++
		logicalIdx[i] = logical
		for _, b := range bars {
			if b.Start <= logical && logical <= b.End {
				depths[i]++
			}
		}
	}
	for i := range lines {
		if logicalIdx[i] != 0 {
			continue
		}
		prev, next := 0, 0
		for p := i - 1; p >= 0; p-- {
			if logicalIdx[p] != 0 {
				prev = depths[p]
				break
			}
		}
		for n := i + 1; n < len(lines); n++ {
			if logicalIdx[n] != 0 {
				next = depths[n]
				break
			}
		}
		if prev < next {
			depths[i] = prev
		} else {
			depths[i] = next
		}
	}
	return depths
}

func imageMediaType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	}
	return "application/octet-stream"
}

// addStoredZipFile writes an entry with STORE method (no compression), required for EPUB mimetype.
func addStoredZipFile(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Store}
	hdr.Modified = time.Now()
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func addZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func xmlEsc(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, '&', 'a', 'm', 'p', ';')
		case '<':
			out = append(out, '&', 'l', 't', ';')
		case '>':
			out = append(out, '&', 'g', 't', ';')
		case '"':
			out = append(out, '&', 'q', 'u', 'o', 't', ';')
		case '\'':
			out = append(out, '&', 'a', 'p', 'o', 's', ';')
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
