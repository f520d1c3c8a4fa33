/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"strings"
	"testing"
)

func TestPlan_NoRepeatsNoSegments(t *testing.T) {
	res, err := Plan(flatMeasurer{}, DefaultMetrics(), Request{
		Text:        "a\nb\nc",
		Repeats:     "",
		DefaultSize: 14,
		MinSize:     6,
		MaxWidth:    200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FontSize != 14 {
		t.Fatalf("expected font size 14, got %d", res.FontSize)
	}
	if !almostEqual(res.Factor, 1) {
		t.Fatalf("expected factor 1, got %g", res.Factor)
	}
	if len(res.Segments) != 0 {
		t.Fatalf("expected no segments, got %d", len(res.Segments))
	}
}

func TestPlan_EndToEnd(t *testing.T) {
	res, err := Plan(flatMeasurer{}, DefaultMetrics(), Request{
		Text:        "a\nb\nc",
		Repeats:     "1-2,2-3",
		DefaultSize: 14,
		MinSize:     6,
		MaxWidth:    200,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(res.Segments))
	}
	// The overlapping second bar lands on level 2, one step further out.
	if !almostEqual(res.Segments[0].X, -6) {
		t.Fatalf("expected first bar at x -6, got %g", res.Segments[0].X)
	}
	if !almostEqual(res.Segments[1].X, -12) {
		t.Fatalf("expected second bar at x -12, got %g", res.Segments[1].X)
	}
}

func TestPlan_FactorTracksShrink(t *testing.T) {
	// Ten runes measure 5*size, so 35 forces the fitter down to 7pt and
	// the factor to exactly one half.
	res, err := Plan(flatMeasurer{}, DefaultMetrics(), Request{
		Text:        "aaaaaaaaaa",
		Repeats:     "1-1",
		DefaultSize: 14,
		MinSize:     6,
		MaxWidth:    35,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FontSize != 7 {
		t.Fatalf("expected font size 7, got %d", res.FontSize)
	}
	if !almostEqual(res.Factor, 0.5) {
		t.Fatalf("expected factor 0.5, got %g", res.Factor)
	}
	if len(res.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(res.Segments))
	}
	if !almostEqual(res.Segments[0].X, -3) {
		t.Fatalf("expected half step x -3, got %g", res.Segments[0].X)
	}
}

func TestPlan_BadRepeatsNamesToken(t *testing.T) {
	_, err := Plan(flatMeasurer{}, DefaultMetrics(), Request{
		Text:        "a\nb",
		Repeats:     "1-2,x-3",
		DefaultSize: 14,
		MinSize:     6,
		MaxWidth:    200,
	})
	if err == nil {
		t.Fatalf("expected error, got none")
	}
	if !strings.Contains(err.Error(), "repeats") || !strings.Contains(err.Error(), "x-3") {
		t.Fatalf("expected error to mention repeats and the bad token, got %q", err.Error())
	}
}

func TestPlan_ReversedRangeFails(t *testing.T) {
	_, err := Plan(flatMeasurer{}, DefaultMetrics(), Request{
		Text:        "a\nb\nc",
		Repeats:     "3-1",
		DefaultSize: 14,
		MinSize:     6,
		MaxWidth:    200,
	})
	if err == nil {
		t.Fatalf("expected error for reversed range, got none")
	}
}
