/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "strings"

// Measurer reports the rendered width of a string at a font size, in the
// same unit as the maximum width passed to FitFontSize (points for PDF).
// The PDF exporter implements it on the embedded font's width tables; the
// text engine provides an x/image-backed implementation for proofs and tests.
type Measurer interface {
	TextWidth(s string, sizePt float64) float64
}

// FitFontSize returns the largest integer size, at most defaultSize and at
// least floor, at which every line of text fits within maxWidth. The running
// size only ever shrinks while scanning lines, so the result is governed by
// the widest line. Lines are measured raw, without trimming. If even the
// floor size overflows, the floor is returned and the text may run wide;
// that is accepted degraded output, not an error.
func FitFontSize(m Measurer, text string, defaultSize, floor int, maxWidth float64) int {
	size := defaultSize
	for _, line := range strings.Split(text, "\n") {
		for size > floor && m.TextWidth(line, float64(size)) > maxWidth {
			size--
		}
	}
	return size
}
