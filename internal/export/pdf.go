/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"gohymnbook/internal/config"
	"gohymnbook/internal/domain"
	"gohymnbook/internal/layout"
	applog "gohymnbook/internal/log"
	"gohymnbook/internal/storage"
	"gohymnbook/internal/textlayout"
)

// PDFOptions controls PDF export behavior.
// Units are points (pt) unless otherwise noted.
//
// Coordinates:
// - Page origin is top-left.
// - Repeat bar segments arrive in text-local coordinates with y running
//   downward from the body origin, so a segment y maps to originY - y.
//
// Fonts:
// - A TTF from the render config or the book's fonts/ directory is embedded
//   via AddUTF8Font; without one, built-in Helvetica keeps text vector at the
//   cost of the closing symbols.
//
//nolint:revive // keep options grouped and explicit for clarity
type PDFOptions struct {
	Render       config.RenderConfig // zero fields fall back to the app defaults
	Hymns        []int               // hymn numbers to render; empty means all
	NoBackground bool                // skip the cover image underlay
}

// ExportBookPDF renders the whole songbook to a single multi-page PDF at
// outPath: a cover page, then one page-break-separated block per hymn with
// title, details, repeat bars, stanzas, closing symbol and received date.
// A hymn whose repeat annotation does not parse is skipped and reported in
// the returned error; the remaining hymns still render.
func ExportBookPDF(bh *storage.BookHandle, outPath string, opt PDFOptions) error {
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

	rc := resolveRender(opt.Render)
	preset, err := PresetByName(rc.Preset)
	if err != nil {
		return err
	}
	pageW, pageH := preset.Width, preset.Height
	margin, topMargin := preset.Margin, preset.TopMargin
	bottom := pageH - margin

	titleSt, _ := textlayout.GetStyle("Title")
	detailSt, _ := textlayout.GetStyle("Details")
	bodySt, _ := textlayout.GetStyle("Body")
	recvSt, _ := textlayout.GetStyle("ReceivedAt")
	pageSt, _ := textlayout.GetStyle("PageNumber")
	coverSt, _ := textlayout.GetStyle("Cover")

	titleSize := sizeFor(titleSt, rc.TitleSizePt)
	detailSize := sizeFor(detailSt, rc.DetailSizePt)
	pageNumSize := sizeFor(pageSt, rc.PageNumberPt)

	// Points map 1:1 from the layout model to the PDF.
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	pdf.SetTitle(book.Name, true)
	if book.Owner != "" {
		pdf.SetAuthor(book.Owner, true)
	}
	pdf.SetAutoPageBreak(false, 0)

	fontName := registerBodyFont(pdf, bh, rc)
	pdf.SetFont(fontName, "", float64(rc.BodySizePt))

	// Background image under the content of every page, washed out by a
	// half-transparent white sheet.
	bgPath := ""
	var bgW, bgH float64
	if !opt.NoBackground {
		if p := bh.CoverPath(); p != "" && isRasterImage(p) && fileExists(p) {
			if info := pdf.RegisterImageOptions(p, gofpdf.ImageOptions{}); info != nil {
				bgPath = p
				bgW, bgH = info.Extent()
			}
		}
	}
	pdf.SetHeaderFunc(func() {
		if bgPath == "" || bgW <= 0 || bgH <= 0 {
			return
		}
		aspect := bgW / bgH
		var w, h float64
		if aspect > 1 {
			w = pageW
			h = w / aspect
		} else {
			h = pageH
			w = h * aspect
		}
		pdf.ImageOptions(bgPath, (pageW-w)/2, (pageH-h)/2, w, h, false, gofpdf.ImageOptions{}, 0, "")
		pdf.SetAlpha(0.5, "Normal")
		pdf.SetFillColor(255, 255, 255)
		pdf.Rect(0, 0, pageW, pageH, "F")
		pdf.SetAlpha(1, "Normal")
	})

	// Page numbers skip the cover: the first hymn page prints 1.
	pdf.SetFooterFunc(func() {
		n := pdf.PageNo() - 1
		if n <= 0 {
			return
		}
		pdf.SetFont(fontName, "", pageNumSize)
		s := fmt.Sprintf("%d", n)
		pdf.Text(pageW-margin-pdf.GetStringWidth(s), pageH-margin, s)
	})

	// Cover page.
	pdf.AddPage()
	y := topMargin + 70
	for _, block := range []struct {
		text  string
		after float64
	}{
		{book.IntroName, 34},
		{book.Name, 34},
		{book.Owner, 24},
	} {
		if strings.TrimSpace(block.text) == "" {
			continue
		}
		pdf.SetFont(fontName, "", coverSt.SizePt)
		for _, line := range strings.Split(block.text, "\n") {
			drawStyled(pdf, coverSt, margin, pageW-margin, y+coverSt.SizePt, line)
			y += coverSt.Leading(coverSt.SizePt)
		}
		y += block.after
	}

	measurer := pdfMeasurer{pdf: pdf, font: fontName}
	metrics := rc.Metrics()
	maxWidth := pageW - 2*margin - rc.BarGutterPt

	var skipped []int
	var firstErr error
	for i, h := range hymns {
		idx := i + 1
		res, err := layout.Plan(measurer, metrics, layout.Request{
			Text:        h.Text,
			Repeats:     h.Repetitions,
			DefaultSize: rc.BodySizePt,
			MinSize:     rc.MinBodySizePt,
			MaxWidth:    maxWidth,
		})
		if err != nil {
			skipped = append(skipped, h.Number)
			if firstErr == nil {
				firstErr = fmt.Errorf("hymn %d (%s): %w", h.Number, h.Title, err)
			}
			continue
		}

		pdf.AddPage()
		y := topMargin

		// Title with a full-width rule under it.
		title := fmt.Sprintf("%02d. %s (%02d)", idx, h.Title, h.Number)
		pdf.SetFont(fontName, "", titleSize)
		drawStyled(pdf, titleSt, margin, pageW-margin, y+titleSize, title)
		y += titleSt.Leading(titleSize)
		pdf.SetLineWidth(1)
		pdf.Line(margin, y, pageW-margin, y)
		y += 1 + 2

		// Details line; its spacing tracks the fitted body size.
		factor := res.Factor
		if parts := detailParts(h); len(parts) > 0 {
			s := strings.Join(parts, " - ")
			pdf.SetFont(fontName, "", detailSize)
			drawStyled(pdf, detailSt, margin, pageW-margin, y+detailSize, s)
			y += detailSt.Leading(detailSize) + detailSt.SpaceAfter*factor
		} else {
			y += detailSt.Leading(detailSize)*factor + 8
		}

		// Repeat bars hang left of the body, measured from its origin.
		originY := y
		for _, seg := range res.Segments {
			x := margin + seg.X
			pdf.SetLineWidth(seg.Thickness)
			pdf.Line(x, originY-seg.YStart, x, originY-seg.YEnd)
		}

		// Stanzas at the fitted size.
		bodySize := float64(res.FontSize)
		leading := bodySt.Leading(bodySize)
		pdf.SetFont(fontName, "", bodySize)
		for _, stanza := range h.Stanzas() {
			for _, line := range strings.Split(stanza, "\n") {
				if y+leading > bottom {
					pdf.AddPage()
					y = topMargin
				}
				pdf.Text(margin, y+bodySize, line)
				y += leading
			}
			y += bodySt.SpaceAfter
		}

		// Closing symbol, then the received date when the hymn has one.
		sym, symSt := closingSymbol(idx)
		y += symSt.SpaceBefore
		if y+symSt.Leading(symSt.SizePt) > bottom {
			pdf.AddPage()
			y = topMargin
		}
		pdf.SetFont(fontName, "", symSt.SizePt)
		drawStyled(pdf, symSt, margin, pageW-margin, y+symSt.SizePt, sym)
		y += symSt.Leading(symSt.SizePt) + symSt.SpaceAfter

		if h.ReceivedAt != nil {
			y += recvSt.SpaceBefore
			if y+recvSt.Leading(detailSize) > bottom {
				pdf.AddPage()
				y = topMargin
			}
			pdf.SetFont(fontName, "", detailSize)
			drawStyled(pdf, recvSt, margin, pageW-margin, y+detailSize, h.ReceivedAt.Format("(02/01/2006)"))
		}
	}

	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(bh.Root, "exports", outPath)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	pages := pdf.PageCount()
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	recordRender(bh, "pdf", outPath, pages)

	if len(skipped) > 0 {
		return fmt.Errorf("skipped hymns %v: %w", skipped, firstErr)
	}
	return nil
}

// pdfMeasurer fits lyrics with the same font metrics the page is drawn
// with, so the fitted size matches the output exactly.
type pdfMeasurer struct {
	pdf  *gofpdf.Fpdf
	font string
}

func (m pdfMeasurer) TextWidth(s string, sizePt float64) float64 {
	m.pdf.SetFont(m.font, "", sizePt)
	return m.pdf.GetStringWidth(s)
}

// registerBodyFont embeds the configured TTF, or the first TTF found in the
// book's fonts/ directory, and returns the family name to render with.
// Without a usable font file the built-in Helvetica is used.
func registerBodyFont(pdf *gofpdf.Fpdf, bh *storage.BookHandle, rc config.RenderConfig) string {
	path := rc.FontFile
	if path != "" && !filepath.IsAbs(path) {
		if p := filepath.Join(bh.FontsDir(), path); fileExists(p) {
			path = p
		}
	}
	if path == "" {
		path = firstTTF(bh.FontsDir())
	}
	if path == "" || !fileExists(path) {
		return "Helvetica"
	}
	family := rc.FontFamily
	if family == "" {
		family = "dejavu"
	}
	pdf.AddUTF8Font(family, "", path)
	return family
}

func firstTTF(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".ttf") {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// drawStyled draws a single text line with the style's alignment between
// left and right, baseline at y. The caller sets the font beforehand.
func drawStyled(pdf *gofpdf.Fpdf, st textlayout.ParagraphStyle, left, right, y float64, s string) {
	var x float64
	switch st.Align {
	case textlayout.AlignCenter:
		x = left + (right-left-pdf.GetStringWidth(s))/2
	case textlayout.AlignRight:
		x = right - pdf.GetStringWidth(s)
	default:
		x = left
	}
	pdf.Text(x, y, s)
}

func sizeFor(st textlayout.ParagraphStyle, overridePt int) float64 {
	if overridePt > 0 {
		return float64(overridePt)
	}
	return st.SizePt
}

// resolveRender fills zero fields from the application defaults so option
// structs can be partially populated.
func resolveRender(rc config.RenderConfig) config.RenderConfig {
	def := config.Defaults().Render
	if rc.Preset == "" {
		rc.Preset = def.Preset
	}
	if rc.FontFamily == "" {
		rc.FontFamily = def.FontFamily
	}
	if rc.BodySizePt <= 0 {
		rc.BodySizePt = def.BodySizePt
	}
	if rc.MinBodySizePt <= 0 {
		rc.MinBodySizePt = def.MinBodySizePt
	}
	if rc.TitleSizePt <= 0 {
		rc.TitleSizePt = def.TitleSizePt
	}
	if rc.DetailSizePt <= 0 {
		rc.DetailSizePt = def.DetailSizePt
	}
	if rc.PageNumberPt <= 0 {
		rc.PageNumberPt = def.PageNumberPt
	}
	if rc.BarGutterPt <= 0 {
		rc.BarGutterPt = def.BarGutterPt
	}
	return rc
}

// selectHymns keeps book order; unknown numbers are ignored.
func selectHymns(all []domain.Hymn, numbers []int) []domain.Hymn {
	if len(numbers) == 0 {
		return all
	}
	want := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		want[n] = true
	}
	out := make([]domain.Hymn, 0, len(numbers))
	for _, h := range all {
		if want[h.Number] {
			out = append(out, h)
		}
	}
	return out
}

// detailParts assembles the right-aligned line above the lyrics.
func detailParts(h domain.Hymn) []string {
	var parts []string
	if h.OfferedTo != "" {
		parts = append(parts, "Ofertado a "+h.OfferedTo)
	}
	if h.ExtraInstructions != "" {
		parts = append(parts, h.ExtraInstructions)
	}
	if h.Style != "" {
		parts = append(parts, h.Style)
	}
	return parts
}

// closingSymbol picks the glyphs printed under a hymn: the Star of David,
// except every third hymn closes with sun, moon and star.
func closingSymbol(idx int) (string, textlayout.ParagraphStyle) {
	if idx%3 == 0 {
		st, _ := textlayout.GetStyle("Finale")
		return "☀ ☾ ★", st
	}
	st, _ := textlayout.GetStyle("Symbols")
	return "✡", st
}

func isRasterImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// recordRender notes the export in the book's render history. History is a
// convenience, so failures only warn.
func recordRender(bh *storage.BookHandle, format, outPath string, pages int) {
	var size int64
	if st, err := os.Stat(outPath); err == nil {
		size = st.Size()
	}
	rec := storage.RenderRecord{Format: format, Output: outPath, Pages: pages, Bytes: size}
	if err := storage.RecordRender(context.Background(), bh, rec); err != nil {
		applog.WithComponent("export").Warn("record render history failed", slog.String("format", format), slog.Any("err", err))
	}
}
