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
	"database/sql"
	"errors"
	"time"
)

// language=SQL
// dialect=SQLite
const insertRenderSQL = `INSERT INTO renders(ts, format, output, pages, bytes) VALUES (?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestRenderSQL = `SELECT id, ts, format, output, pages, bytes FROM renders WHERE format = ? ORDER BY ts DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listRendersSQL = `SELECT id, ts, format, output, pages, bytes FROM renders ORDER BY ts DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneRendersSQL = `DELETE FROM renders WHERE id NOT IN (
	SELECT id FROM renders ORDER BY ts DESC LIMIT ?
)`

// RenderRecord is one row of the book's render history.
type RenderRecord struct {
	ID     int64
	TS     time.Time
	Format string
	Output string
	Pages  int
	Bytes  int64
}

// RecordRender persists one export run with its timestamp.
// It opens the book's index database if needed and inserts the record.
func RecordRender(ctx context.Context, bh *BookHandle, rec RenderRecord) error {
	if bh == nil {
		return errors.New("nil BookHandle")
	}
	// Open or init index DB
	db, err := InitOrOpenIndex(bh.Root)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	ts := rec.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = db.ExecContext(ctx, insertRenderSQL, ts.UTC().Format(time.RFC3339Nano), rec.Format, rec.Output, rec.Pages, rec.Bytes)
	return err
}

// LatestRender returns the most recent render for a format or nil if none.
func LatestRender(ctx context.Context, bh *BookHandle, format string) (*RenderRecord, error) {
	if bh == nil {
		return nil, errors.New("nil BookHandle")
	}
	db, err := InitOrOpenIndex(bh.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	var rec RenderRecord
	var tsStr string
	err = db.QueryRowContext(ctx, selectLatestRenderSQL, format).Scan(&rec.ID, &tsStr, &rec.Format, &rec.Output, &rec.Pages, &rec.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
	return &rec, nil
}

// ListRenders returns up to limit most recent renders across all formats.
func ListRenders(ctx context.Context, bh *BookHandle, limit int) ([]RenderRecord, error) {
	if bh == nil {
		return nil, errors.New("nil BookHandle")
	}
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenIndex(bh.Root)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listRendersSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []RenderRecord
	for rows.Next() {
		var rec RenderRecord
		var tsStr string
		if err := rows.Scan(&rec.ID, &tsStr, &rec.Format, &rec.Output, &rec.Pages, &rec.Bytes); err != nil {
			return nil, err
		}
		rec.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneRenders keeps at most keepLast history rows and deletes older ones.
func PruneRenders(ctx context.Context, bh *BookHandle, keepLast int) (int64, error) {
	if bh == nil {
		return 0, errors.New("nil BookHandle")
	}
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenIndex(bh.Root)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	// Delete history rows not in the newest keepLast set
	res, err := db.ExecContext(ctx, pruneRendersSQL, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
