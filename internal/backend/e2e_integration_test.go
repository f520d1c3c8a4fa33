/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"gohymnbook/internal/domain"
	"gohymnbook/internal/storage"
)

func TestE2E_BackendSchemaAndSearch(t *testing.T) {
	db := openPGForTest(t)
	defer func() { _ = db.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Publish a book through the same ingest path the HTTP handler uses.
	book := domain.Book{
		Name:  "E2E Book",
		Owner: "Tester",
		Hymns: []domain.Hymn{
			{Number: 1, Title: "First Light", Text: "Sunrise over the city"},
		},
	}
	manifest, err := yaml.Marshal(domain.Manifest{Book: book})
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	bid, ver, err := ingestBook(ctx, db, "e2e-book", manifest)
	if err != nil {
		t.Fatalf("ingest book: %v", err)
	}
	if ver < 1 {
		t.Fatalf("expected version >= 1, got %d", ver)
	}

	// Re-publishing the same stable id must bump the version, not add a row.
	bid2, ver2, err := ingestBook(ctx, db, "e2e-book", manifest)
	if err != nil {
		t.Fatalf("re-ingest book: %v", err)
	}
	if bid2 != bid {
		t.Fatalf("expected same book id on re-publish, got %d and %d", bid, bid2)
	}
	if ver2 != ver+1 {
		t.Fatalf("expected version bump %d -> %d, got %d", ver, ver+1, ver2)
	}

	// Store and fetch the latest index snapshot like the server route does.
	snap := map[string]any{"ok": true, "version": 1}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO index_snapshots(book_id, version, snapshot) VALUES($1,$2,$3)`, bid, 1, string(b)); err != nil {
		t.Fatalf("insert snapshot: %v", err)
	}
	var sver int64
	var raw string
	if err := db.QueryRowContext(ctx, `SELECT version, snapshot FROM index_snapshots WHERE book_id=$1 ORDER BY version DESC, id DESC LIMIT 1`, bid).Scan(&sver, &raw); err != nil {
		t.Fatalf("select snapshot: %v", err)
	}
	if sver != 1 || raw == "" {
		t.Fatalf("unexpected snapshot ver=%d raw_empty=%v", sver, raw == "")
	}

	// Search the published lyrics end-to-end through SearchPG.
	res, err := SearchPG(ctx, db, bid, storage.SearchQuery{Text: "Sunrise"})
	if err != nil {
		t.Fatalf("searchpg: %v", err)
	}
	if len(res) != 1 || res[0].Path != "hymn:1:text" {
		t.Fatalf("expected hymn:1:text result, got %+v", res)
	}
}
