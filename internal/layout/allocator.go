/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

// Allocator assigns nesting levels to repeat ranges as they arrive.
// The rule is greedy and online: a range gets 1 + the highest level already
// recorded on any line it covers, and then stamps that level onto every line
// in the range. Processing order changes the result, and a level once taken
// on a line is never handed out again there. Downstream visual nesting
// depends on both properties; this must not become a first-fit coloring.
//
// State is scoped to one song. Sharing an Allocator across songs leaks
// levels between them; create a fresh value (or call Reset) per song.
type Allocator struct {
	levels map[int]int // line number -> level currently occupying it
}

// NewAllocator returns an empty allocator for one song's ranges.
func NewAllocator() *Allocator {
	return &Allocator{levels: make(map[int]int)}
}

// Assign allocates the level for r and records it for every covered line.
func (a *Allocator) Assign(r Range) int {
	if a.levels == nil {
		a.levels = make(map[int]int)
	}
	maxLevel := 0
	for i := r.Start; i <= r.End; i++ {
		if lv, ok := a.levels[i]; ok && lv > maxLevel {
			maxLevel = lv
		}
	}
	level := maxLevel + 1
	for i := r.Start; i <= r.End; i++ {
		a.levels[i] = level
	}
	return level
}

// Reset clears all recorded levels so the allocator can serve another song.
func (a *Allocator) Reset() {
	a.levels = make(map[int]int)
}

// AssignLevels annotates ranges in order using a fresh allocator.
func AssignLevels(ranges []Range) []Bar {
	a := NewAllocator()
	bars := make([]Bar, 0, len(ranges))
	for _, r := range ranges {
		bars = append(bars, Bar{Range: r, Level: a.Assign(r)})
	}
	return bars
}
