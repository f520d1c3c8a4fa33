/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gohymnbook/internal/domain"
	applog "gohymnbook/internal/log"
	"gohymnbook/internal/version"
	"log/slog"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName stores all per-book ephemeral/index data under the book root.
	IndexDirName  = ".ghb"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema for the embedded index.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2
)

// IndexPath returns the full path to the book's embedded index database file.
func IndexPath(bookRoot string) string {
	return filepath.Join(bookRoot, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures that the per-book SQLite index exists at .ghb/index.sqlite,
// opens the database, enables WAL mode, and ensures the meta/version tables exist.
// The returned *sql.DB is ready for use. Callers may close it when no longer needed.
func InitOrOpenIndex(bookRoot string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", bookRoot),
	)
	if strings.TrimSpace(bookRoot) == "" {
		return nil, errors.New("book root is required")
	}
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Join(bookRoot, IndexDirName), 0o755); err != nil {
		l.Error("create .ghb dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create .ghb dir: %w", err)
	}

	path := IndexPath(bookRoot)
	// Use a URI with shared cache and set busy timeout. Convert to forward slashes for SQLite URI.
	uriPath := filepath.ToSlash(path)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", uriPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Set reasonable connection pool limits for embedded usage.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Ensure WAL mode is active.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}

	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	// Ensure core index schema exists (documents, FTS, assets, renders)
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	// Run migrations to bring DB schema up to date
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Info("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	// Seed or update single-row version info
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Insert new row with current schemaVersion for a fresh DB
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// Update app and timestamp only; keep existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade; just continue
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// Add filter indexes for style and dedication lookups
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_documents_style ON documents(style);`,
				`CREATE INDEX IF NOT EXISTS idx_documents_offered ON documents(offered_to);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
			// Best-effort FTS optimize (outside the tx)
			if _, err := db.ExecContext(ctx, `INSERT INTO fts_documents(fts_documents) VALUES('optimize')`); err != nil {
				// best-effort optimize; ignore errors
			}
		default:
			// Unknown future step; break
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates core index tables and FTS structures if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		// Core documents table: one row per searchable text block of the book
		// (titles, lyrics, dedications, instructions, book metadata).
		`CREATE TABLE IF NOT EXISTS documents (
			doc_id     INTEGER PRIMARY KEY,
			type       TEXT    NOT NULL,
			path       TEXT    NOT NULL,
			hymn_no    INTEGER,
			style      TEXT,
			offered_to TEXT,
			text       TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_hymn ON documents(hymn_no);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_style ON documents(style);`,
		`CREATE INDEX IF NOT EXISTS idx_documents_offered ON documents(offered_to);`,

		// External-content FTS5 index over documents, kept in sync via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
			text,
			content='documents',
			content_rowid='doc_id',
			tokenize = 'unicode61'
		);`,

		// Assets catalog (cover images, fonts)
		`CREATE TABLE IF NOT EXISTS assets (
			hash TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			type TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_assets_path ON assets(path);`,

		// Render history (one row per successful export)
		`CREATE TABLE IF NOT EXISTS renders (
			id     INTEGER PRIMARY KEY,
			ts     TEXT    NOT NULL,
			format TEXT    NOT NULL,
			output TEXT    NOT NULL,
			pages  INTEGER NOT NULL,
			bytes  INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_renders_ts ON renders(ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	// Triggers for contentless FTS synchronization with documents.text
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE OF text ON documents BEGIN
			INSERT INTO fts_documents(fts_documents, rowid, text) VALUES ('delete', old.doc_id, old.text);
			INSERT INTO fts_documents(rowid, text) VALUES (new.doc_id, new.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks for corruption or missing schema and rebuilds the index if needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, bookRoot string, book domain.Book) (bool, error) {
	path := IndexPath(bookRoot)
	// Try to open DB; if fails, attempt backup+delete+rebuild
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		backupIndexFile(path)
		_ = os.Remove(path)
		if rbErr := RebuildIndex(ctx, bookRoot, book); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	defer db.Close()
	needs := false
	// quick_check for corruption
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	// Probe core table
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM documents LIMIT 1;`); err != nil {
			needs = true
		}
	}
	if !needs {
		return false, nil
	}
	// Backup and remove existing DB file
	backupIndexFile(path)
	_ = os.Remove(path)
	if err := RebuildIndex(ctx, bookRoot, book); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the current index file into a timestamped backup in .ghb/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

// BuildIndexIfEmpty ensures the DB exists and, if the documents table is
// empty, populates it from the given book.
func BuildIndexIfEmpty(ctx context.Context, bookRoot string, book domain.Book) error {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	var cnt int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents;").Scan(&cnt); err != nil {
		return fmt.Errorf("check documents count: %w", err)
	}
	if cnt > 0 {
		return nil // already built
	}
	return rebuildDocumentsFromBook(ctx, db, bookRoot, book)
}

// UpdateIndex updates the embedded index with changes from the book manifest.
// Minimal safe implementation: replace the documents content from the provided manifest.
func UpdateIndex(ctx context.Context, bookRoot string, book domain.Book) error {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	return rebuildDocumentsFromBook(ctx, db, bookRoot, book)
}

// RebuildIndex drops and recreates core index tables and rebuilds content from the manifest.
// It preserves meta/version tables. This is a safe operation; the index is derived from book.yaml and assets.
func RebuildIndex(ctx context.Context, bookRoot string, book domain.Book) error {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Render history is not derived from the manifest, so it survives rebuilds.
	drops := []string{
		"DROP TABLE IF EXISTS assets;",
		"DROP TRIGGER IF EXISTS documents_ai;",
		"DROP TRIGGER IF EXISTS documents_ad;",
		"DROP TRIGGER IF EXISTS documents_au;",
		"DROP TABLE IF EXISTS fts_documents;",
		"DROP TABLE IF EXISTS documents;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("drop commit: %w", err)
	}
	// Recreate schema and populate
	if err := ensureIndexSchema(ctx, db); err != nil {
		return err
	}
	return rebuildDocumentsFromBook(ctx, db, bookRoot, book)
}

// IndexRow is one searchable document derived from a book manifest. The
// embedded sqlite index and the library server ingest share this derivation
// so searches stay comparable across both backends. HymnNo is 0 and Style and
// OfferedTo are empty for book-level rows.
type IndexRow struct {
	Type      string
	Path      string
	HymnNo    int
	Style     string
	OfferedTo string
	Text      string
}

// IndexRows derives the searchable document rows for a book.
func IndexRows(book domain.Book) []IndexRow {
	rows := make([]IndexRow, 0, 4*len(book.Hymns)+4)
	// Book-level metadata
	if s := strings.TrimSpace(book.Name); s != "" {
		rows = append(rows, IndexRow{Type: "book_name", Path: "book:name", Text: s})
	}
	if s := strings.TrimSpace(book.IntroName); s != "" {
		rows = append(rows, IndexRow{Type: "book_intro", Path: "book:intro", Text: s})
	}
	if s := strings.TrimSpace(book.Owner); s != "" {
		rows = append(rows, IndexRow{Type: "book_owner", Path: "book:owner", Text: s})
	}
	// Per-hymn text blocks; style and dedication ride along as filter columns.
	for i := range book.Hymns {
		h := &book.Hymns[i]
		st := strings.TrimSpace(h.Style)
		of := strings.TrimSpace(h.OfferedTo)
		if s := strings.TrimSpace(h.Title); s != "" {
			rows = append(rows, IndexRow{Type: "title", Path: fmt.Sprintf("hymn:%d:title", h.Number), HymnNo: h.Number, Style: st, OfferedTo: of, Text: s})
		}
		if s := strings.TrimSpace(h.Text); s != "" {
			rows = append(rows, IndexRow{Type: "lyrics", Path: fmt.Sprintf("hymn:%d:text", h.Number), HymnNo: h.Number, Style: st, OfferedTo: of, Text: s})
		}
		if of != "" {
			rows = append(rows, IndexRow{Type: "dedication", Path: fmt.Sprintf("hymn:%d:dedication", h.Number), HymnNo: h.Number, Style: st, OfferedTo: of, Text: of})
		}
		if s := strings.TrimSpace(h.ExtraInstructions); s != "" {
			rows = append(rows, IndexRow{Type: "instructions", Path: fmt.Sprintf("hymn:%d:instructions", h.Number), HymnNo: h.Number, Style: st, OfferedTo: of, Text: s})
		}
	}
	return rows
}

// rebuildDocumentsFromBook replaces the documents table content from the given
// book and refreshes the asset catalog.
func rebuildDocumentsFromBook(ctx context.Context, db *sql.DB, bookRoot string, book domain.Book) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear documents: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO documents(type, path, hymn_no, style, offered_to, text) VALUES(?,?,?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range IndexRows(book) {
		no := sql.NullInt64{Int64: int64(r.HymnNo), Valid: r.HymnNo > 0}
		st := sql.NullString{String: r.Style, Valid: r.Style != ""}
		of := sql.NullString{String: r.OfferedTo, Valid: r.OfferedTo != ""}
		if _, err := ins.ExecContext(ctx, r.Type, r.Path, no, st, of, r.Text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert document: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return catalogAssets(ctx, db, bookRoot)
}

// catalogAssets refreshes the assets table from the book's assets/ and
// fonts/ directories. Files are keyed by content hash so renames keep their
// identity.
func catalogAssets(ctx context.Context, db *sql.DB, bookRoot string) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM assets;"); err != nil {
		return fmt.Errorf("clear assets: %w", err)
	}
	for _, sub := range []string{"assets", "fonts"} {
		dir := filepath.Join(bookRoot, sub)
		ents, err := os.ReadDir(dir)
		if err != nil {
			continue // subdir is optional
		}
		for _, e := range ents {
			if e.IsDir() {
				continue
			}
			p := filepath.Join(dir, e.Name())
			h, err := hashFile(p)
			if err != nil {
				continue
			}
			rel := filepath.ToSlash(filepath.Join(sub, e.Name()))
			if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO assets(hash, path, type) VALUES(?,?,?);", h, rel, assetType(e.Name())); err != nil {
				return fmt.Errorf("insert asset: %w", err)
			}
		}
	}
	return nil
}

func assetType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf":
		return "font"
	case ".png", ".jpg", ".jpeg", ".gif":
		return "image"
	default:
		return "file"
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
