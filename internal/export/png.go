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
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"gohymnbook/internal/config"
	"gohymnbook/internal/domain"
	"gohymnbook/internal/layout"
	"gohymnbook/internal/storage"
	"gohymnbook/internal/textlayout"
)

// PNGOptions controls raster proof export.
// - DPI: output pixel density; <= 0 means 144 (2x at 72pt/in)
// - Fresh: bypass and refresh the proof cache. Cached proofs are keyed by
//   page geometry only, so pass Fresh after editing lyrics.
//
//nolint:revive // keep fields explicit for clarity
type PNGOptions struct {
	Render config.RenderConfig
	DPI    int
	Hymns  []int // hymn numbers; empty means all
	Fresh  bool
}

// ExportHymnPNGs writes one PNG proof sheet per hymn: the text blocks drawn
// with a fixed proof face and the repeat bars as filled rules, everything
// positioned by the same layout pipeline the PDF uses. Files are named
// hymn-<number>.png under outDir or the book's exports folder. Rendered
// proofs land in the book's proof cache so repeat runs are cheap.
func ExportHymnPNGs(bh *storage.BookHandle, outDir string, opt PNGOptions) error {
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
	dpi := opt.DPI
	if dpi <= 0 {
		dpi = 144
	}
	scale := float64(dpi) / 72.0
	pixW := int(math.Round(preset.Width * scale))
	pixH := int(math.Round(preset.Height * scale))

	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(bh.Root, "exports", outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}

	ctx := context.Background()
	var skipped []int
	var firstErr error
	for i, h := range hymns {
		idx := i + 1
		gen := func(context.Context) ([]byte, error) {
			return renderHymnPNG(h, idx, rc, preset, dpi, measurer)
		}

		var data []byte
		if opt.Fresh {
			data, err = gen(ctx)
			if err == nil {
				// Refresh the cache; a cache failure never fails the export.
				_ = storage.PutProof(ctx, bh.Root, h.Number, storage.ProofKindPNG, pixW, pixH, data)
			}
		} else {
			data, err = storage.GetOrCreateProof(ctx, bh.Root, h.Number, storage.ProofKindPNG, pixW, pixH, gen)
		}
		if err != nil {
			skipped = append(skipped, h.Number)
			if firstErr == nil {
				firstErr = fmt.Errorf("hymn %d (%s): %w", h.Number, h.Title, err)
			}
			continue
		}

		name := filepath.Join(outDir, fmt.Sprintf("hymn-%02d.png", h.Number))
		if err := os.WriteFile(name, data, 0o644); err != nil {
			return fmt.Errorf("write png: %w", err)
		}
	}
	if len(skipped) > 0 {
		return fmt.Errorf("skipped hymns %v: %w", skipped, firstErr)
	}
	return nil
}

func renderHymnPNG(h domain.Hymn, idx int, rc config.RenderConfig, preset PagePreset, dpi int, measurer layout.Measurer) ([]byte, error) {
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
	factor := res.Factor
	sym, symSt := closingSymbol(idx)

	// The canvas grows downward when the hymn outruns the page height.
	pageH := preset.Height
	if need := hymnProofHeight(h, rc, preset, res, symSt) + margin; need > pageH {
		pageH = need
	}

	scale := float64(dpi) / 72.0
	pixW := int(math.Round(pageW * scale))
	pixH := int(math.Round(pageH * scale))
	px := func(v float64) int { return int(math.Round(v * scale)) }

	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)

	black := color.RGBA{0, 0, 0, 255}
	d := &font.Drawer{Dst: img, Src: image.NewUniform(black), Face: basicfont.Face7x13}

	// Text alignment works in pixels against the proof face's advance.
	drawText := func(align textlayout.Alignment, baseline float64, s string) {
		w := (d.MeasureString(s) >> 6).Ceil()
		var x int
		switch align {
		case textlayout.AlignCenter:
			x = (pixW - w) / 2
		case textlayout.AlignRight:
			x = px(pageW-margin) - w
		default:
			x = px(margin)
		}
		d.Dot = fixed.P(x, px(baseline))
		d.DrawString(s)
	}
	rule := func(x0, y0, x1, y1 float64) {
		fillRect(img, px(x0), px(y0), px(x1)-1, px(y1)-1, black)
	}

	y := preset.TopMargin

	title := fmt.Sprintf("%02d. %s (%02d)", idx, h.Title, h.Number)
	drawText(titleSt.Align, y+titleSize, title)
	y += titleSt.Leading(titleSize)
	rule(margin, y, pageW-margin, y+1)
	y += 1 + 2

	if parts := detailParts(h); len(parts) > 0 {
		drawText(detailSt.Align, y+detailSize, strings.Join(parts, " - "))
		y += detailSt.Leading(detailSize) + detailSt.SpaceAfter*factor
	} else {
		y += detailSt.Leading(detailSize)*factor + 8
	}

	originY := y
	for _, seg := range res.Segments {
		x := margin + seg.X
		wid := px(seg.Thickness)
		if wid < 1 {
			wid = 1
		}
		x0 := px(x)
		fillRect(img, x0, px(originY-seg.YStart), x0+wid-1, px(originY-seg.YEnd), black)
	}

	for _, stanza := range h.Stanzas() {
		for _, line := range strings.Split(stanza, "\n") {
			drawText(bodySt.Align, y+bodySize, line)
			y += leading
		}
		y += bodySt.SpaceAfter
	}

	y += symSt.SpaceBefore
	drawText(symSt.Align, y+symSt.SizePt, sym)
	y += symSt.Leading(symSt.SizePt) + symSt.SpaceAfter

	if h.ReceivedAt != nil {
		y += recvSt.SpaceBefore
		drawText(recvSt.Align, y+detailSize, h.ReceivedAt.Format("(02/01/2006)"))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// hymnProofHeight walks the block flow without drawing and returns the y
// the cursor ends at. Kept in lockstep with renderHymnPNG.
func hymnProofHeight(h domain.Hymn, rc config.RenderConfig, preset PagePreset, res layout.Result, symSt textlayout.ParagraphStyle) float64 {
	titleSt, _ := textlayout.GetStyle("Title")
	detailSt, _ := textlayout.GetStyle("Details")
	bodySt, _ := textlayout.GetStyle("Body")
	recvSt, _ := textlayout.GetStyle("ReceivedAt")

	titleSize := sizeFor(titleSt, rc.TitleSizePt)
	detailSize := sizeFor(detailSt, rc.DetailSizePt)
	bodySize := float64(res.FontSize)
	leading := bodySt.Leading(bodySize)

	y := preset.TopMargin
	y += titleSt.Leading(titleSize) + 1 + 2
	if len(detailParts(h)) > 0 {
		y += detailSt.Leading(detailSize) + detailSt.SpaceAfter*res.Factor
	} else {
		y += detailSt.Leading(detailSize)*res.Factor + 8
	}
	for _, stanza := range h.Stanzas() {
		y += float64(len(strings.Split(stanza, "\n"))) * leading
		y += bodySt.SpaceAfter
	}
	y += symSt.SpaceBefore + symSt.Leading(symSt.SizePt) + symSt.SpaceAfter
	if h.ReceivedAt != nil {
		y += recvSt.SpaceBefore + recvSt.Leading(detailSize)
	}
	return y
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
