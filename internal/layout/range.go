/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout computes repeat-bar geometry for songbook pages: nesting
// levels for possibly overlapping line ranges, a blank-line-aware mapping
// from lyric lines to vertical offsets, and a shrink-to-fit font size.
// All coordinates are local to a song's text block (origin at its top-left,
// y decreasing down the page, x decreasing to the left of the text); the
// rendering backends translate them into page space.
package layout

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is an inclusive span of logical (non-blank) lyric lines, 1-based.
type Range struct {
	Start int
	End   int
}

// Bar is a Range with its assigned nesting level. Level 1 sits closest to
// the text; higher levels are pushed further out.
type Bar struct {
	Range
	Level int
}

// ParseRanges parses a repeat annotation such as "1-4,2-3" into ranges.
// Each token must be "<start>-<end>" with positive integers and start <= end.
// An empty or all-whitespace input yields no ranges and no error. A malformed
// token fails the whole parse; the error names the token so the caller can
// report which annotation of a song is broken rather than dropping it.
func ParseRanges(s string) ([]Range, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	tokens := strings.Split(s, ",")
	out := make([]Range, 0, len(tokens))
	for _, tok := range tokens {
		r, err := parseRangeToken(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func parseRangeToken(tok string) (Range, error) {
	lo, hi, ok := strings.Cut(tok, "-")
	if !ok {
		return Range{}, fmt.Errorf("range %q: missing '-'", tok)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("range %q: bad start: %w", tok, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("range %q: bad end: %w", tok, err)
	}
	if start < 1 {
		return Range{}, fmt.Errorf("range %q: start must be >= 1", tok)
	}
	if start > end {
		return Range{}, fmt.Errorf("range %q: start after end", tok)
	}
	return Range{Start: start, End: end}, nil
}
