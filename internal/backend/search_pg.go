/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gohymnbook/internal/storage"
)

// SearchPG executes a search over the Postgres book_documents table using
// tsvector and the same filters as the embedded sqlite index, mapped to
// storage.SearchResult to ease parity checks.
func SearchPG(ctx context.Context, db *sql.DB, bookID int64, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		b.WriteString("SELECT d.id AS doc_id, d.doc_type AS type, d.path, COALESCE(d.hymn_no,0) AS hymn_no, ")
		b.WriteString("COALESCE(ts_headline('simple', d.raw_text, plainto_tsquery('simple', $1), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=10'), '') AS snippet ")
		b.WriteString("FROM book_documents d WHERE d.book_id = $2 AND d.search_vector @@ plainto_tsquery('simple', $1) ")
		args = append(args, q.Text, bookID)
	} else {
		b.WriteString("SELECT d.id AS doc_id, d.doc_type AS type, d.path, COALESCE(d.hymn_no,0) AS hymn_no, '' AS snippet ")
		b.WriteString("FROM book_documents d WHERE d.book_id = $1 ")
		args = append(args, bookID)
	}

	// Helper to add parameter and return placeholder like $n
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	// Types filter
	if len(q.Types) > 0 {
		b.WriteString(" AND d.doc_type = ANY (" + place(q.Types) + ") ")
	}
	// Hymn number range
	if q.HymnFrom > 0 && q.HymnTo > 0 && q.HymnTo >= q.HymnFrom {
		b.WriteString(" AND d.hymn_no BETWEEN " + place(q.HymnFrom) + " AND " + place(q.HymnTo) + " ")
	} else if q.HymnFrom > 0 {
		b.WriteString(" AND d.hymn_no >= " + place(q.HymnFrom) + " ")
	} else if q.HymnTo > 0 {
		b.WriteString(" AND d.hymn_no <= " + place(q.HymnTo) + " ")
	}
	// Styles filter on the style column, case-insensitive
	if len(q.Styles) > 0 {
		var ss []string
		for _, s := range q.Styles {
			if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
				ss = append(ss, t)
			}
		}
		if len(ss) > 0 {
			b.WriteString(" AND d.style IS NOT NULL AND lower(d.style) = ANY (" + place(ss) + ") ")
		}
	}
	// Dedication filter: prefer the offered_to column when populated, else fallback to text contains
	if s := strings.TrimSpace(q.OfferedTo); s != "" {
		ss := "%" + strings.ToLower(s) + "%"
		b.WriteString(" AND ( (d.offered_to IS NOT NULL AND lower(d.offered_to) LIKE " + place(ss) + ") OR lower(d.raw_text) LIKE " + place(ss) + " ) ")
	}
	// Order and pagination
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY d.hymn_no NULLS LAST, d.id ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.DocID, &r.Type, &r.Path, &r.HymnNo, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
