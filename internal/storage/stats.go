/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"strings"

	"gohymnbook/internal/domain"
	"gohymnbook/internal/layout"
)

// HymnRepeatStats summarizes repeat bar usage for one hymn.
// Lines counts all lyric lines including blanks. RepeatedLines counts
// distinct lines covered by at least one bar. OutOfRange counts bars whose
// end lies past the last line; the renderer tolerates those, but they
// usually point at a stale annotation worth flagging.
type HymnRepeatStats struct {
	Number        int
	Title         string
	Lines         int
	BlankLines    int
	Bars          int
	MaxLevel      int
	RepeatedLines int
	OutOfRange    int
}

// ComputeRepeatCoverage walks the book and reports per-hymn repeat bar usage.
// Hymns with unparsable repetitions report zero bars; Validate catches those.
func ComputeRepeatCoverage(b domain.Book) []HymnRepeatStats {
	out := make([]HymnRepeatStats, 0, len(b.Hymns))
	for i := range b.Hymns {
		h := &b.Hymns[i]
		st := HymnRepeatStats{Number: h.Number, Title: h.Title}
		lines := layout.SplitLines(h.Text)
		st.Lines = len(lines)
		for _, ln := range lines {
			if strings.TrimSpace(ln) == "" {
				st.BlankLines++
			}
		}
		if ranges, err := layout.ParseRanges(h.Repetitions); err == nil && len(ranges) > 0 {
			bars := layout.AssignLevels(ranges)
			st.Bars = len(bars)
			covered := make(map[int]struct{})
			for _, bar := range bars {
				if bar.Level > st.MaxLevel {
					st.MaxLevel = bar.Level
				}
				if bar.End > st.Lines {
					st.OutOfRange++
				}
				for n := bar.Start; n <= bar.End && n <= st.Lines; n++ {
					covered[n] = struct{}{}
				}
			}
			st.RepeatedLines = len(covered)
		}
		out = append(out, st)
	}
	return out
}

// MaxNestingLevel returns the deepest bar level used anywhere in the book.
func MaxNestingLevel(b domain.Book) int {
	max := 0
	for _, st := range ComputeRepeatCoverage(b) {
		if st.MaxLevel > max {
			max = st.MaxLevel
		}
	}
	return max
}
