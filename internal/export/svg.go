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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gohymnbook/internal/config"
	"gohymnbook/internal/domain"
	"gohymnbook/internal/layout"
	"gohymnbook/internal/storage"
	"gohymnbook/internal/textlayout"
)

// SVGOptions controls SVG proof export.
// The coordinate system is points, exposed 1:1 through the viewBox; fonts
// are a family hint only, nothing is embedded.
type SVGOptions struct {
	Render config.RenderConfig
	Hymns  []int // hymn numbers; empty means all
}

// ExportHymnSVGs writes one SVG per hymn for quick visual inspection of the
// layout geometry: title, details, repeat bar strokes and the lyric lines at
// the fitted size. There is no pagination; the canvas grows downward when a
// hymn runs past the page height. Files are named hymn-<number>.svg under
// outDir or the book's exports folder.
func ExportHymnSVGs(bh *storage.BookHandle, outDir string, opt SVGOptions) error {
	if bh == nil {
		return fmt.Errorf("book handle is nil")
	}
	if len(bh.Book.Hymns) == 0 {
		return fmt.Errorf("book has no hymns")
	}
	hymns := selectHymns(bh.Book.Hymns, opt.Hymns)
	if len(hymns) == 0 {
		return fmt.Errorf("no hymns matched the selection")
	}

	rc := resolveRender(opt.Render)
	preset, err := PresetByName(rc.Preset)
	if err != nil {
		return err
	}
	measurer, err := textlayout.NewBookMeasurer(bh.FontsDir(), rc.FontFamily)
	if err != nil {
		return err
	}

	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(bh.Root, "exports", outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}

	var skipped []int
	var firstErr error
	for i, h := range hymns {
		data, err := renderHymnSVG(h, i+1, rc, preset, measurer)
		if err != nil {
			skipped = append(skipped, h.Number)
			if firstErr == nil {
				firstErr = fmt.Errorf("hymn %d (%s): %w", h.Number, h.Title, err)
			}
			continue
		}
		name := filepath.Join(outDir, fmt.Sprintf("hymn-%02d.svg", h.Number))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("write svg: %w", err)
		}
	}
	if len(skipped) > 0 {
		return fmt.Errorf("skipped hymns %v: %w", skipped, firstErr)
	}
	return nil
}

func renderHymnSVG(h domain.Hymn, idx int, rc config.RenderConfig, preset PagePreset, measurer layout.Measurer) ([]byte, error) {
	res, err := layout.Plan(measurer, rc.Metrics(), layout.Request{
		Text:        h.Text,
		Repeats:     h.Repetitions,
		DefaultSize: rc.BodySizePt,
		MinSize:     rc.MinBodySizePt,
		MaxWidth:    preset.Width - 2*preset.Margin - rc.BarGutterPt,
	})
	if err != nil {
		return nil, err
	}

	titleSt, _ := textlayout.GetStyle("Title")
	detailSt, _ := textlayout.GetStyle("Details")
	bodySt, _ := textlayout.GetStyle("Body")
	recvSt, _ := textlayout.GetStyle("ReceivedAt")

	titleSize := sizeFor(titleSt, rc.TitleSizePt)
	detailSize := sizeFor(detailSt, rc.DetailSizePt)
	bodySize := float64(res.FontSize)
	leading := bodySt.Leading(bodySize)

	pageW := preset.Width
	margin := preset.Margin
	font := escAttr(svgFontFamily(rc.FontFamily))

	var body bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&body, format, args...)
	}

	y := preset.TopMargin

	title := fmt.Sprintf("%02d. %s (%02d)", idx, h.Title, h.Number)
	wf("  <text x=\"%g\" y=\"%g\" text-anchor=\"middle\" font-family=\"%s\" font-size=\"%g\">%s</text>\n",
		pageW/2, y+titleSize, font, titleSize, escText(title))
	y += titleSt.Leading(titleSize)
	wf("  <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"#000\" stroke-width=\"1\"/>\n",
		margin, y, pageW-margin, y)
	y += 1 + 2

	factor := res.Factor
	if parts := detailParts(h); len(parts) > 0 {
		wf("  <text x=\"%g\" y=\"%g\" text-anchor=\"end\" font-family=\"%s\" font-size=\"%g\">%s</text>\n",
			pageW-margin, y+detailSize, font, detailSize, escText(strings.Join(parts, " - ")))
		y += detailSt.Leading(detailSize) + detailSt.SpaceAfter*factor
	} else {
		y += detailSt.Leading(detailSize)*factor + 8
	}

	originY := y
	for _, seg := range res.Segments {
		x := margin + seg.X
		wf("  <line x1=\"%g\" y1=\"%g\" x2=\"%g\" y2=\"%g\" stroke=\"#000\" stroke-width=\"%g\"/>\n",
			x, originY-seg.YStart, x, originY-seg.YEnd, seg.Thickness)
	}

	for _, stanza := range h.Stanzas() {
		for _, line := range strings.Split(stanza, "\n") {
			wf("  <text x=\"%g\" y=\"%g\" font-family=\"%s\" font-size=\"%g\">%s</text>\n",
				margin, y+bodySize, font, bodySize, escText(line))
			y += leading
		}
		y += bodySt.SpaceAfter
	}

	sym, symSt := closingSymbol(idx)
	y += symSt.SpaceBefore
	wf("  <text x=\"%g\" y=\"%g\" text-anchor=\"middle\" font-family=\"%s\" font-size=\"%g\">%s</text>\n",
		pageW/2, y+symSt.SizePt, font, symSt.SizePt, escText(sym))
	y += symSt.Leading(symSt.SizePt) + symSt.SpaceAfter

	if h.ReceivedAt != nil {
		y += recvSt.SpaceBefore
		wf("  <text x=\"%g\" y=\"%g\" text-anchor=\"end\" font-family=\"%s\" font-size=\"%g\">%s</text>\n",
			pageW-margin, y+detailSize, font, detailSize, escText(h.ReceivedAt.Format("(02/01/2006)")))
		y += recvSt.Leading(detailSize)
	}

	pageH := preset.Height
	if need := y + preset.Margin; need > pageH {
		pageH = need
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&buf, "<svg xmlns=\"http://www.w3.org/2000/svg\" version=\"1.1\" width=\"%gpx\" height=\"%gpx\" viewBox=\"0 0 %g %g\">\n",
		pageW, pageH, pageW, pageH)
	fmt.Fprintf(&buf, "  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"#ffffff\"/>\n", pageW, pageH)
	buf.Write(body.Bytes())
	fmt.Fprintf(&buf, "</svg>\n")

	if werr != nil {
		return nil, fmt.Errorf("build svg: %w", werr)
	}
	return buf.Bytes(), nil
}

func svgFontFamily(family string) string {
	if family == "" || strings.EqualFold(family, "dejavu") {
		return "DejaVu Sans, sans-serif"
	}
	return family + ", sans-serif"
}

func escAttr(s string) string {
	// naive escaping sufficient for our simple usage
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '"':
			out = append(out, '&', 'q', 'u', 'o', 't', ';')
		case '\n':
			out = append(out, ' ')
		case '\r':
			// skip
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}

func escText(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch ch {
		case '&':
			out = append(out, '&', 'a', 'm', 'p', ';')
		case '<':
			out = append(out, '&', 'l', 't', ';')
		case '>':
			out = append(out, '&', 'g', 't', ';')
		default:
			out = append(out, ch)
		}
	}
	return string(out)
}
