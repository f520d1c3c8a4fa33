/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// Abstractions for deterministic text measurement. Lyric lines arrive
// pre-broken, so there is no line breaking here; the job is to measure a
// given line at a given size, behind an interface that can be implemented
// with different font engines.

import (
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// FontSpec describes a requested font.
type FontSpec struct {
	Family string // logical family name
	SizePt float32
	Weight int // 100..900
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float32
}

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
type BasicProvider struct{}

func (BasicProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	m := f.Metrics()
	return f, Metrics{
		Ascent:  float32(m.Ascent.Round()),
		Descent: float32(m.Descent.Round()),
		LineGap: float32(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// MeasureLine measures a single pre-broken line: its advance width and the
// face's line height.
func MeasureLine(provider Provider, spec FontSpec, s string) (w, h float32) {
	if provider == nil {
		provider = BasicProvider{}
	}
	face, met := provider.Resolve(spec)
	d := &font.Drawer{Face: face}
	return advance(d, s), met.Ascent + met.Descent
}

func advance(d *font.Drawer, s string) float32 {
	return float32(d.MeasureString(s) >> 6) // fixed.Int26_6 to px
}

// FaceMeasurer adapts a Provider to the width callback the bar layout
// engine fits lyrics with. Each call resolves the face at the requested
// size, so the font fitter can probe shrinking sizes. Bitmap fallback
// faces are fixed-size; their advance is scaled linearly to sizePt so
// that shrinking still narrows the measured line.
type FaceMeasurer struct {
	Provider Provider
	Family   string
	Weight   int
	Italic   bool
}

func (fm FaceMeasurer) TextWidth(s string, sizePt float64) float64 {
	p := fm.Provider
	if p == nil {
		p = BasicProvider{}
	}
	face, _ := p.Resolve(FontSpec{Family: fm.Family, SizePt: float32(sizePt), Weight: fm.Weight, Italic: fm.Italic})
	d := &font.Drawer{Face: face}
	w := float64(advance(d, s))
	if bf, ok := face.(*basicfont.Face); ok && sizePt > 0 && bf.Height > 0 {
		w *= sizePt / float64(bf.Height)
	}
	return w
}
