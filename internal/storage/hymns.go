/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"fmt"
	"sort"

	"gohymnbook/internal/domain"
)

// FindHymn returns a pointer to the hymn with the given number, or an error.
func FindHymn(bh *BookHandle, number int) (*domain.Hymn, error) {
	if bh == nil {
		return nil, fmt.Errorf("book handle is nil")
	}
	for i := range bh.Book.Hymns {
		if bh.Book.Hymns[i].Number == number {
			return &bh.Book.Hymns[i], nil
		}
	}
	return nil, fmt.Errorf("hymn %d not found", number)
}

// NextHymnNumber returns the lowest number greater than every hymn in the book.
// An empty book starts at 1.
func NextHymnNumber(b *domain.Book) int {
	maxN := 0
	for _, h := range b.Hymns {
		if h.Number > maxN {
			maxN = h.Number
		}
	}
	return maxN + 1
}

// AddHymn appends a hymn to the book. A zero Number is replaced with the next
// free number; an explicit Number must be unique. Hymns are kept sorted by
// number for deterministic serialization. Returns the stored hymn.
func AddHymn(bh *BookHandle, h domain.Hymn) (domain.Hymn, error) {
	if bh == nil {
		return domain.Hymn{}, fmt.Errorf("book handle is nil")
	}
	if h.Number == 0 {
		h.Number = NextHymnNumber(&bh.Book)
	}
	if h.Number < 0 {
		return domain.Hymn{}, fmt.Errorf("hymn number must be >= 1")
	}
	for _, other := range bh.Book.Hymns {
		if other.Number == h.Number {
			return domain.Hymn{}, fmt.Errorf("hymn number %d already exists", h.Number)
		}
	}
	if err := h.Validate(); err != nil {
		return domain.Hymn{}, err
	}
	bh.Book.Hymns = append(bh.Book.Hymns, h)
	sort.Slice(bh.Book.Hymns, func(i, j int) bool { return bh.Book.Hymns[i].Number < bh.Book.Hymns[j].Number })
	return h, nil
}

// RemoveHymn deletes the hymn with the given number from the book.
func RemoveHymn(bh *BookHandle, number int) error {
	if bh == nil {
		return fmt.Errorf("book handle is nil")
	}
	for i := range bh.Book.Hymns {
		if bh.Book.Hymns[i].Number == number {
			bh.Book.Hymns = append(bh.Book.Hymns[:i], bh.Book.Hymns[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("hymn %d not found", number)
}

// UpdateHymnMeta updates title, style and dedication of a hymn. Empty title
// keeps the current one; style and offeredTo are set as given.
func UpdateHymnMeta(bh *BookHandle, number int, title, style, offeredTo string) error {
	h, err := FindHymn(bh, number)
	if err != nil {
		return err
	}
	if title != "" {
		h.Title = title
	}
	h.Style = style
	h.OfferedTo = offeredTo
	return nil
}

// NormalizeNumbers renumbers all hymns 1..n in their current sorted order,
// closing any gaps. Returns the count of hymns whose number changed.
func NormalizeNumbers(bh *BookHandle) (int, error) {
	if bh == nil {
		return 0, fmt.Errorf("book handle is nil")
	}
	sort.Slice(bh.Book.Hymns, func(i, j int) bool { return bh.Book.Hymns[i].Number < bh.Book.Hymns[j].Number })
	changed := 0
	for i := range bh.Book.Hymns {
		want := i + 1
		if bh.Book.Hymns[i].Number != want {
			bh.Book.Hymns[i].Number = want
			changed++
		}
	}
	return changed, nil
}
