/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestRenderHistoryCRUD(t *testing.T) {
	root := t.TempDir()
	bh := &BookHandle{Root: root, ManifestPath: filepath.Join(root, ManifestFileName)}
	ctx := context.Background()
	// Ensure DB exists
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex error: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("db.Close error: %v", err)
	}
	first := RenderRecord{Format: "pdf", Output: "exports/book.pdf", Pages: 12, Bytes: 34567, TS: time.Now()}
	if err := RecordRender(ctx, bh, first); err != nil {
		t.Fatalf("RecordRender: %v", err)
	}
	got, err := LatestRender(ctx, bh, "pdf")
	if err != nil || got == nil {
		t.Fatalf("LatestRender: %v got=%v", err, got)
	}
	if got.Output != first.Output || got.Pages != 12 {
		t.Fatalf("unexpected latest render: %+v", got)
	}
	// Unknown format yields nil without error
	none, err := LatestRender(ctx, bh, "epub")
	if err != nil || none != nil {
		t.Fatalf("expected nil for unknown format, got %+v err=%v", none, err)
	}
	// Add more renders
	for i := 0; i < 5; i++ {
		rec := RenderRecord{Format: "pdf", Output: "exports/book.pdf", Pages: 12 + i, Bytes: 100, TS: time.Now().Add(time.Duration(i+1) * time.Millisecond)}
		if err := RecordRender(ctx, bh, rec); err != nil {
			t.Fatalf("RecordRender %d: %v", i, err)
		}
	}
	list, err := ListRenders(ctx, bh, 10)
	if err != nil || len(list) != 6 {
		t.Fatalf("ListRenders got %d err %v", len(list), err)
	}
	// Prune keep last 3
	n, err := PruneRenders(ctx, bh, 3)
	if err != nil {
		t.Fatalf("PruneRenders: %v", err)
	}
	if n <= 0 {
		t.Fatalf("expected deletions > 0, got %d", n)
	}
	list, err = ListRenders(ctx, bh, 10)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListRenders after prune got %d err %v", len(list), err)
	}
}

func TestRenderHistorySurvivesRebuild(t *testing.T) {
	root := t.TempDir()
	book := testBook("History Keeper")
	bh, err := InitBook(root, book)
	if err != nil {
		t.Fatalf("InitBook: %v", err)
	}
	ctx := context.Background()
	if err := RecordRender(ctx, bh, RenderRecord{Format: "pdf", Output: "exports/x.pdf", Pages: 3, Bytes: 9}); err != nil {
		t.Fatalf("RecordRender: %v", err)
	}
	if err := RebuildIndex(ctx, root, book); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	list, err := ListRenders(ctx, bh, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected render history to survive rebuild, got %d err %v", len(list), err)
	}
}
