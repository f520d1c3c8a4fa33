/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "fmt"

// Request carries one song's layout input: the lyric text, the optional
// repeat annotation, and the sizing envelope derived by the caller from
// page width, margins and the bar gutter.
type Request struct {
	Text        string
	Repeats     string // comma-separated "start-end" tokens; empty means none
	DefaultSize int
	MinSize     int
	MaxWidth    float64
}

// Result is one song's computed layout: the fitted font size, the resize
// factor the renderers apply to size-dependent spacing, and the repeat-bar
// segments in annotation order.
type Result struct {
	FontSize int
	Factor   float64
	Segments []Segment
}

// Plan runs the full per-song pipeline: parse the repeat annotation, fit the
// font, assign nesting levels with a song-scoped allocator, and map the
// annotated ranges to segments. Parsing is the only way Plan fails; callers
// rendering a batch should report the song and carry on with the rest.
func Plan(m Measurer, metrics Metrics, req Request) (Result, error) {
	ranges, err := ParseRanges(req.Repeats)
	if err != nil {
		return Result{}, fmt.Errorf("repeats: %w", err)
	}

	fitted := FitFontSize(m, req.Text, req.DefaultSize, req.MinSize, req.MaxWidth)
	factor := 1.0
	if req.DefaultSize > 0 {
		factor = float64(fitted) / float64(req.DefaultSize)
	}

	res := Result{FontSize: fitted, Factor: factor}
	if len(ranges) == 0 {
		return res, nil
	}
	res.Segments = metrics.Layout(AssignLevels(ranges), req.Text, fitted, req.DefaultSize)
	return res, nil
}
