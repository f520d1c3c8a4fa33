/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0
 */

package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"gohymnbook/internal/config"
	"gohymnbook/internal/storage"
)

// PagePreset is a named page format. All values are points. TopMargin is
// separate because the hymn block starts higher on the page than the side
// and bottom margins would suggest.
type PagePreset struct {
	Name      string
	Width     float64
	Height    float64
	Margin    float64
	TopMargin float64
}

var pagePresets = map[string]PagePreset{
	// 4x6in pocket book, the format the printed songbooks use.
	"pocket":      {Name: "pocket", Width: 288, Height: 432, Margin: 36, TopMargin: 20},
	"a5":          {Name: "a5", Width: 419.53, Height: 595.28, Margin: 42.52, TopMargin: 24},
	"a4":          {Name: "a4", Width: 595.28, Height: 841.89, Margin: 56.69, TopMargin: 28},
	"letter":      {Name: "letter", Width: 612, Height: 792, Margin: 54, TopMargin: 28},
	"half-letter": {Name: "half-letter", Width: 396, Height: 612, Margin: 40, TopMargin: 20},
}

// PresetByName resolves a page preset. The empty name selects pocket.
func PresetByName(name string) (PagePreset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "pocket"
	}
	p, ok := pagePresets[key]
	if !ok {
		return PagePreset{}, fmt.Errorf("unknown page preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames lists the available presets in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(pagePresets))
	for name := range pagePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BatchOptions controls batch export across multiple formats.
//
// Path semantics:
//   - If OutDir is empty or relative, it is created under <book>/exports/.
//   - PDF/EPUB single-file outputs are named <slug>.pdf/.epub in OutDir.
//   - PNG/SVG per-hymn proofs go to png/ or svg/ subfolders inside OutDir.
type BatchOptions struct {
	Formats []string // allowed: pdf, epub, png, svg; empty means pdf
	Render  config.RenderConfig
	Hymns   []int // hymn numbers; empty means all
	DPI     int   // raster proof override
	OutDir  string
}

// ExportBook runs the requested exporters over one book.
func ExportBook(bh *storage.BookHandle, opt BatchOptions) error {
	if bh == nil {
		return fmt.Errorf("book handle is nil")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = []string{"pdf"}
	}
	for i := range formats {
		formats[i] = strings.ToLower(strings.TrimSpace(formats[i]))
	}

	baseOut := opt.OutDir
	if !filepath.IsAbs(baseOut) {
		baseOut = filepath.Join(bh.Root, "exports", baseOut)
	}
	slug := slugify(bh.Book.Name)

	for _, f := range formats {
		switch f {
		case "pdf":
			out := filepath.Join(baseOut, slug+".pdf")
			po := PDFOptions{Render: opt.Render, Hymns: opt.Hymns}
			if err := ExportBookPDF(bh, out, po); err != nil {
				return fmt.Errorf("pdf: %w", err)
			}
		case "epub":
			out := filepath.Join(baseOut, slug+".epub")
			eo := EPUBOptions{Hymns: opt.Hymns}
			if err := ExportBookEPUB(bh, out, eo); err != nil {
				return fmt.Errorf("epub: %w", err)
			}
		case "png":
			outDir := filepath.Join(baseOut, "png")
			po := PNGOptions{Render: opt.Render, Hymns: opt.Hymns, DPI: opt.DPI}
			if err := ExportHymnPNGs(bh, outDir, po); err != nil {
				return fmt.Errorf("png: %w", err)
			}
		case "svg":
			outDir := filepath.Join(baseOut, "svg")
			so := SVGOptions{Render: opt.Render, Hymns: opt.Hymns}
			if err := ExportHymnSVGs(bh, outDir, so); err != nil {
				return fmt.Errorf("svg: %w", err)
			}
		default:
			return fmt.Errorf("unknown format: %s", f)
		}
	}
	return nil
}

// slugify reduces a book name to a safe file stem.
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return "book"
	}
	return s
}
