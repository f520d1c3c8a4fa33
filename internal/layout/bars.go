/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

// Segment is one vertical repeat bar in text-local coordinates. X is the
// horizontal offset left of the text (more negative for deeper nesting),
// YStart/YEnd run downward from the text origin with YStart above YEnd.
// Thickness is the stroke width in points, independent of the font size.
type Segment struct {
	X         float64
	YStart    float64
	YEnd      float64
	Thickness float64
}

// Metrics holds the spacing constants that position repeat bars relative to
// the rendered text. Every field except TopPad and Thickness is multiplied
// by the resize factor (fitted size / default size) so the bars track the
// text when a song had to shrink to fit the page width.
type Metrics struct {
	TopPad       float64 // fixed share of the offset from the origin to the first line
	TopPadScaled float64 // size-dependent share of that offset
	LineHeight   float64 // vertical room one lyric line occupies
	LineGap      float64 // additional distance between consecutive lines
	BlankHeight  float64 // vertical room one blank line occupies
	LevelStep    float64 // horizontal distance between adjacent nesting levels
	Thickness    float64 // stroke width of a bar
}

// DefaultMetrics returns the production spacing for a 14 pt body.
func DefaultMetrics() Metrics {
	return Metrics{
		TopPad:       -8,
		TopPadScaled: -4,
		LineHeight:   7,
		LineGap:      9,
		BlankHeight:  8.5,
		LevelStep:    6,
		Thickness:    0.7,
	}
}

// Layout converts annotated ranges into positioned segments for one song.
// Range bounds are 1-based logical line numbers; blank lines shift the bars
// down without consuming logical numbers. A range end past the last lyric
// line truncates at the text's end (see CountBlankLines). Segments come out
// in input order.
func (m Metrics) Layout(bars []Bar, text string, fittedSize, defaultSize int) []Segment {
	if len(bars) == 0 {
		return nil
	}
	factor := 1.0
	if defaultSize > 0 {
		factor = float64(fittedSize) / float64(defaultSize)
	}

	top := m.TopPad + m.TopPadScaled*factor
	lineH := m.LineHeight * factor
	lineGap := m.LineGap * factor
	blankH := m.BlankHeight * factor
	levelStep := m.LevelStep * factor

	lines := SplitLines(text)
	segs := make([]Segment, 0, len(bars))
	for _, b := range bars {
		start := b.Start - 1
		end := b.End - 1

		blanksBefore := CountBlankLines(lines, 0, start)
		blanksThroughEnd := CountBlankLines(lines, 0, end)

		yStart := top - (float64(start)*lineH + float64(start)*lineGap) - float64(blanksBefore)*blankH
		yEnd := top - (float64(end+1)*lineH + float64(end)*lineGap) - float64(blanksThroughEnd)*blankH
		x := -(float64(b.Level) * levelStep)

		segs = append(segs, Segment{X: x, YStart: yStart, YEnd: yEnd, Thickness: m.Thickness})
	}
	return segs
}
