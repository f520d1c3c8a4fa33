/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

// ParagraphStyle is a reusable preset for one block of a hymn page. Sizes
// and spacing are in points. Body leading follows the fitted size at render
// time, so its Leading here is the delta added on top of the size.

// Alignment of a paragraph within the text column.
type Alignment int

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
)

type ParagraphStyle struct {
	Name         string
	SizePt       float64
	LeadingPt    float64 // line advance; 0 means SizePt plus LeadingDelta
	LeadingDelta float64
	Align        Alignment
	SpaceBefore  float64
	SpaceAfter   float64
}

// Leading returns the effective line advance for the given rendered size.
func (s ParagraphStyle) Leading(sizePt float64) float64 {
	if s.LeadingPt > 0 {
		return s.LeadingPt
	}
	return sizePt + s.LeadingDelta
}

var builtinStyles = map[string]ParagraphStyle{
	// The songbook page blocks, top to bottom.
	"Title": {
		Name:      "Title",
		SizePt:    14,
		LeadingPt: 20,
		Align:     AlignCenter,
	},
	"Details": {
		Name:       "Details",
		SizePt:     10,
		LeadingPt:  12,
		Align:      AlignRight,
		SpaceAfter: 8,
	},
	"Body": {
		Name:         "Body",
		SizePt:       14,
		LeadingDelta: 2,
		Align:        AlignLeft,
		SpaceAfter:   8.64, // 0.12in between stanzas
	},
	"Symbols": {
		Name:       "Symbols",
		SizePt:     14,
		LeadingPt:  16,
		Align:      AlignCenter,
		SpaceAfter: 14.4, // 0.2in
	},
	"Finale": {
		Name:        "Finale",
		SizePt:      14,
		LeadingPt:   16,
		Align:       AlignCenter,
		SpaceBefore: 21.6, // 0.3in
		SpaceAfter:  14.4,
	},
	"ReceivedAt": {
		Name:        "ReceivedAt",
		SizePt:      10,
		LeadingPt:   12,
		Align:       AlignRight,
		SpaceBefore: 20,
	},
	"PageNumber": {
		Name:      "PageNumber",
		SizePt:    12,
		LeadingPt: 14,
		Align:     AlignRight,
	},
	"Cover": {
		Name:      "Cover",
		SizePt:    24,
		LeadingPt: 28,
		Align:     AlignCenter,
	},
}

// GetStyle returns a builtin style preset by name. The second return value is false if
// the style is not found.
func GetStyle(name string) (ParagraphStyle, bool) { s, ok := builtinStyles[name]; return s, ok }

// ListStyles lists the names of the builtin styles in stable order.
func ListStyles() []string {
	return []string{"Title", "Details", "Body", "Symbols", "Finale", "ReceivedAt", "PageNumber", "Cover"}
}
