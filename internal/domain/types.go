/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model structures for songbooks. The YAML
// field names follow the published hymn book data format, so existing book
// files load unchanged.

import (
	"fmt"
	"strings"
	"time"

	"gohymnbook/internal/layout"
)

// Manifest is the on-disk form of a book file: the book sits under the
// hymn_book key.
type Manifest struct {
	Book Book `yaml:"hymn_book" json:"hymnBook"`
}

// Book represents one printed songbook and its metadata.
type Book struct {
	IntroName      string `yaml:"intro_name,omitempty" json:"introName,omitempty"`
	Name           string `yaml:"name" json:"name"`
	Owner          string `yaml:"owner,omitempty" json:"owner,omitempty"`
	CoverImagePath string `yaml:"cover_image_path,omitempty" json:"coverImagePath,omitempty"`
	Hymns          []Hymn `yaml:"hymns" json:"hymns"`
}

// Hymn is a single song: lyrics plus the metadata printed around them.
// ReceivedAt stays a pointer; books often carry hymns without a date.
type Hymn struct {
	Number            int        `yaml:"number" json:"number"`
	Title             string     `yaml:"title" json:"title"`
	Style             string     `yaml:"style,omitempty" json:"style,omitempty"`
	OfferedTo         string     `yaml:"offered_to,omitempty" json:"offeredTo,omitempty"`
	ExtraInstructions string     `yaml:"extra_instructions,omitempty" json:"extraInstructions,omitempty"`
	Text              string     `yaml:"text" json:"text"`
	Repetitions       string     `yaml:"repetitions,omitempty" json:"repetitions,omitempty"`
	ReceivedAt        *time.Time `yaml:"received_at,omitempty" json:"receivedAt,omitempty"`
}

// Validate checks the book for the problems that break rendering outright.
func (b *Book) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("book has no name")
	}
	if len(b.Hymns) == 0 {
		return fmt.Errorf("book %q has no hymns", b.Name)
	}
	for i := range b.Hymns {
		if err := b.Hymns[i].Validate(); err != nil {
			return fmt.Errorf("hymn %d of %d: %w", i+1, len(b.Hymns), err)
		}
	}
	return nil
}

// Validate checks a single hymn.
func (h *Hymn) Validate() error {
	if h.Number < 1 {
		return fmt.Errorf("number %d: must be >= 1", h.Number)
	}
	if strings.TrimSpace(h.Title) == "" {
		return fmt.Errorf("number %d: missing title", h.Number)
	}
	if strings.TrimSpace(h.Text) == "" {
		return fmt.Errorf("number %d (%s): missing text", h.Number, h.Title)
	}
	if h.Repetitions != "" {
		if _, err := layout.ParseRanges(h.Repetitions); err != nil {
			return fmt.Errorf("number %d (%s): repetitions: %w", h.Number, h.Title, err)
		}
	}
	return nil
}

// Stanzas splits the lyrics into stanza blocks on blank lines. The text is
// trimmed first so stray leading or trailing newlines do not produce empty
// stanzas.
func (h *Hymn) Stanzas() []string {
	return strings.Split(strings.TrimSpace(h.Text), "\n\n")
}
