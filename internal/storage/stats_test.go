/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"testing"

	"gohymnbook/internal/domain"
)

func TestComputeRepeatCoverage(t *testing.T) {
	book := domain.Book{
		Name: "Coverage",
		Hymns: []domain.Hymn{
			{Number: 1, Title: "Disjoint", Text: "a\nb\nc\nd", Repetitions: "1-2,3-4"},
			{Number: 2, Title: "Nested", Text: "a\nb\nc", Repetitions: "1-2,2-3"},
			{Number: 3, Title: "Past End", Text: "a\nb", Repetitions: "1-5"},
			{Number: 4, Title: "Blanks", Text: "a\n\nb"},
			{Number: 5, Title: "Bad", Text: "a", Repetitions: "zz"},
		},
	}

	cov := ComputeRepeatCoverage(book)
	if len(cov) != 5 {
		t.Fatalf("expected 5 coverage entries, got %d", len(cov))
	}

	if c := cov[0]; c.Bars != 2 || c.MaxLevel != 1 || c.RepeatedLines != 4 || c.OutOfRange != 0 {
		t.Fatalf("unexpected disjoint coverage: %+v", c)
	}
	if c := cov[1]; c.Bars != 2 || c.MaxLevel != 2 || c.RepeatedLines != 3 {
		t.Fatalf("unexpected nested coverage: %+v", c)
	}
	if c := cov[2]; c.OutOfRange != 1 || c.RepeatedLines != 2 {
		t.Fatalf("unexpected past-end coverage: %+v", c)
	}
	if c := cov[3]; c.Lines != 3 || c.BlankLines != 1 || c.Bars != 0 {
		t.Fatalf("unexpected blank coverage: %+v", c)
	}
	if c := cov[4]; c.Bars != 0 || c.MaxLevel != 0 {
		t.Fatalf("unparsable repetitions should report zero bars: %+v", c)
	}
}

func TestMaxNestingLevel(t *testing.T) {
	book := domain.Book{
		Name: "Nesting",
		Hymns: []domain.Hymn{
			{Number: 1, Title: "Flat", Text: "a\nb", Repetitions: "1-2"},
			{Number: 2, Title: "Deep", Text: "a\nb\nc\nd\ne", Repetitions: "1-2,3-4,1-4,2-3,3-5"},
		},
	}
	if got := MaxNestingLevel(book); got != 4 {
		t.Fatalf("expected max nesting 4, got %d", got)
	}
	if got := MaxNestingLevel(domain.Book{}); got != 0 {
		t.Fatalf("expected 0 for empty book, got %d", got)
	}
}
