/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ProofKind is a type discriminator for proofs table rows.
// - png: raster proof image for one hymn page
// - svg: vector proof markup for one hymn page
const (
	ProofKindPNG = "png"
	ProofKindSVG = "svg"
)

// EnsureProofsMigrated guarantees the proofs table exists with the columns
// needed for caching variants and LRU tracking. Safe to call multiple times.
func EnsureProofsMigrated(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS proofs (
		id          INTEGER PRIMARY KEY,
		hymn_no     INTEGER NOT NULL,
		kind        TEXT    NOT NULL DEFAULT 'png',
		w           INTEGER NOT NULL DEFAULT 0,
		h           INTEGER NOT NULL DEFAULT 0,
		blob        BLOB,
		size        INTEGER NOT NULL DEFAULT 0,
		updated_at  TEXT    NOT NULL,
		last_access TEXT
	);`); err != nil {
		return fmt.Errorf("ensure proofs table: %w", err)
	}
	// Backfill columns missing from databases created by older versions.
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(proofs);`)
	if err != nil {
		return fmt.Errorf("table_info proofs: %w", err)
	}
	defer rows.Close()
	cols := map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		cols[name] = true
	}
	if rows.Err() != nil {
		return rows.Err()
	}
	if !cols["size"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE proofs ADD COLUMN size INTEGER DEFAULT 0`); err != nil {
			return fmt.Errorf("add size: %w", err)
		}
	}
	if !cols["last_access"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE proofs ADD COLUMN last_access TEXT`); err != nil {
			return fmt.Errorf("add last_access: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS ux_proofs_variant ON proofs(hymn_no, kind, w, h)`); err != nil {
		return fmt.Errorf("create variant index: %w", err)
	}
	// Helpful index for LRU eviction by access time
	_, _ = db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_proofs_access ON proofs(last_access)`)
	return nil
}

// GetProof returns the cached blob for a hymn proof and updates last_access.
// A nil slice with nil error means cache miss.
func GetProof(ctx context.Context, bookRoot string, hymnNo int, kind string, w, h int) ([]byte, error) {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := EnsureProofsMigrated(ctx, db); err != nil {
		return nil, err
	}
	var blob []byte
	err = db.QueryRowContext(ctx, `SELECT blob FROM proofs WHERE hymn_no=? AND kind=? AND w=? AND h=?`, hymnNo, kind, w, h).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query proof: %w", err)
	}
	// touch
	now := time.Now().UTC().Format(time.RFC3339)
	_, _ = db.ExecContext(ctx, `UPDATE proofs SET last_access=? WHERE hymn_no=? AND kind=? AND w=? AND h=?`, now, hymnNo, kind, w, h)
	return blob, nil
}

// PutProof upserts a proof blob and enforces the cache size cap via LRU eviction.
func PutProof(ctx context.Context, bookRoot string, hymnNo int, kind string, w, h int, blob []byte) error {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := EnsureProofsMigrated(ctx, db); err != nil {
		return err
	}
	if kind != ProofKindPNG && kind != ProofKindSVG {
		return fmt.Errorf("invalid kind: %s", kind)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `INSERT INTO proofs(hymn_no,kind,w,h,blob,size,updated_at,last_access)
		VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT(hymn_no,kind,w,h) DO UPDATE SET blob=excluded.blob, size=excluded.size, updated_at=excluded.updated_at, last_access=excluded.last_access`,
		hymnNo, kind, w, h, blob, len(blob), now, now)
	if err != nil {
		return fmt.Errorf("upsert proof: %w", err)
	}
	capBytes := MaxProofsBytesFromEnv()
	if capBytes > 0 {
		if err := EvictProofsToFit(ctx, db, capBytes); err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateProof fetches a cached proof or generates and stores it using the provided generator.
func GetOrCreateProof(ctx context.Context, bookRoot string, hymnNo int, kind string, w, h int, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := GetProof(ctx, bookRoot, hymnNo, kind, w, h); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}
	if gen == nil {
		return nil, nil
	}
	data, err := gen(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	if err := PutProof(ctx, bookRoot, hymnNo, kind, w, h, data); err != nil {
		return nil, err
	}
	return data, nil
}

// EvictProofsToFit deletes least-recently-used rows until total size <= capBytes.
func EvictProofsToFit(ctx context.Context, db *sql.DB, capBytes int64) error {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM proofs`).Scan(&total); err != nil {
		return fmt.Errorf("sum proofs size: %w", err)
	}
	if total <= capBytes {
		return nil
	}
	// Victims ordered by last_access asc (oldest first), NULLs first
	rows, err := db.QueryContext(ctx, `SELECT id, size FROM proofs ORDER BY
		CASE WHEN last_access IS NULL THEN 0 ELSE 1 END ASC, last_access ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	toDelete := make([]int64, 0, 32)
	cur := total
	for rows.Next() {
		var id, sz int64
		if err := rows.Scan(&id, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		toDelete = append(toDelete, id)
		cur -= sz
		if cur <= capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Close the cursor before attempting to write
	if err := rows.Close(); err != nil {
		return err
	}
	if len(toDelete) == 0 {
		return nil
	}
	sqlBase := `DELETE FROM proofs WHERE id IN (` + placeholders(len(toDelete)) + `)`
	args := make([]any, len(toDelete))
	for i, v := range toDelete {
		args[i] = v
	}
	if _, err := db.ExecContext(ctx, sqlBase, args...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// TotalProofBytes returns total bytes tracked by proofs.size
func TotalProofBytes(ctx context.Context, bookRoot string) (int64, error) {
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM proofs`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// MaxProofsBytesFromEnv reads GHB_PROOFS_MAX_BYTES, defaulting to 64MB if unset.
func MaxProofsBytesFromEnv() int64 {
	v := os.Getenv("GHB_PROOFS_MAX_BYTES")
	if v == "" {
		return 64 * 1024 * 1024 // 64MB
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 64 * 1024 * 1024
	}
	return n
}
