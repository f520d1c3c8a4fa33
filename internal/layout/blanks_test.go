/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "testing"

func TestCountBlankLines_NoBlanks(t *testing.T) {
	lines := SplitLines("a\nb\nc")
	if got := CountBlankLines(lines, 0, 2); got != 0 {
		t.Fatalf("expected 0 blanks, got %d", got)
	}
}

func TestCountBlankLines_SingleGap(t *testing.T) {
	lines := SplitLines("a\n\nb")
	if got := CountBlankLines(lines, 0, 1); got != 1 {
		t.Fatalf("expected 1 blank between the two lines, got %d", got)
	}
}

func TestCountBlankLines_StopsAfterWindow(t *testing.T) {
	// The blank after "b" sits beyond the second non-blank line and must
	// not be counted.
	lines := SplitLines("a\n\nb\n\nc")
	if got := CountBlankLines(lines, 0, 1); got != 1 {
		t.Fatalf("expected 1 blank, got %d", got)
	}
	if got := CountBlankLines(lines, 0, 2); got != 2 {
		t.Fatalf("expected 2 blanks through third line, got %d", got)
	}
}

func TestCountBlankLines_LeadingBlank(t *testing.T) {
	lines := SplitLines("\na\nb")
	if got := CountBlankLines(lines, 0, 0); got != 1 {
		t.Fatalf("expected leading blank to count, got %d", got)
	}
}

func TestCountBlankLines_WhitespaceOnlyCountsAsBlank(t *testing.T) {
	lines := []string{"a", "   ", "\t", "b"}
	if got := CountBlankLines(lines, 0, 1); got != 2 {
		t.Fatalf("expected 2 blanks, got %d", got)
	}
}

func TestCountBlankLines_EndBeyondText(t *testing.T) {
	// When the window reaches past the last line the walk just runs out;
	// trailing blanks before exhaustion still count.
	lines := SplitLines("a\n\nb\n\n")
	if got := CountBlankLines(lines, 0, 7); got != 3 {
		t.Fatalf("expected 3 blanks on truncated walk, got %d", got)
	}
}

func TestCountBlankLines_StartPastEndOfText(t *testing.T) {
	lines := SplitLines("a\nb")
	if got := CountBlankLines(lines, 5, 7); got != 0 {
		t.Fatalf("expected 0 blanks when start is past the text, got %d", got)
	}
}

func TestSplitLines_KeepsEmptySegments(t *testing.T) {
	lines := SplitLines("a\n\nb")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[1] != "" {
		t.Fatalf("expected middle line to be empty, got %q", lines[1])
	}
}
