/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "strings"

// CountBlankLines counts whitespace-only lines between physical line start
// and the physical position of logical line end. It walks lines from start
// and stops once end+1 non-blank lines have been seen or the text runs out.
// A window end past the last logical line is not an error: the walk stops at
// the final physical line and the count covers what was reached, so a repeat
// range pointing beyond the lyric truncates instead of failing.
func CountBlankLines(lines []string, start, end int) int {
	blanks := 0
	nonBlank := 0
	for i := start; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			blanks++
			continue
		}
		nonBlank++
		if nonBlank > end {
			break
		}
	}
	return blanks
}

// SplitLines splits lyric text into physical lines. Callers split once and
// reuse the slice across the per-range blank counts.
func SplitLines(text string) []string {
	return strings.Split(text, "\n")
}
