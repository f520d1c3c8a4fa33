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
	"strings"
)

// SearchQuery describes the in-app search request.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Filters are optional. Styles match the hymn style field case-insensitively.
// Types can restrict to kinds like: title, lyrics, dedication, instructions, book_name.
// HymnFrom/To are inclusive hymn numbers; 0 means unset.
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text      string
	Styles    []string
	OfferedTo string
	Types     []string
	HymnFrom  int
	HymnTo    int
	Limit     int
	Offset    int
}

// SearchResult represents a single match row.
// Snippet is an optional highlighted excerpt using [ ] markers when FTS text is used.
// HymnNo is 0 for book-level rows.
type SearchResult struct {
	DocID   int64
	Type    string
	Path    string
	HymnNo  int
	Snippet string
}

// Search performs full-text search with optional filters over the embedded index.
// When q.Text is empty, it falls back to a non-FTS scan over documents with filters applied.
func Search(ctx context.Context, bookRoot string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(bookRoot) == "" {
		return nil, errors.New("book root is required")
	}
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	// Build dynamic SQL
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT d.doc_id, d.type, d.path, COALESCE(d.hymn_no,0), snippet(fts_documents, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_documents JOIN documents d ON fts_documents.rowid = d.doc_id\n")
		sb.WriteString("WHERE fts_documents MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT d.doc_id, d.type, d.path, COALESCE(d.hymn_no,0), ''\n")
		sb.WriteString("FROM documents d\nWHERE 1=1\n")
	}
	// Filters
	// Types filter (IN list)
	if len(q.Types) > 0 {
		sb.WriteString(" AND d.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	// Hymn number range
	if q.HymnFrom > 0 && q.HymnTo > 0 && q.HymnTo >= q.HymnFrom {
		sb.WriteString(" AND d.hymn_no BETWEEN ? AND ?\n")
		args = append(args, q.HymnFrom, q.HymnTo)
	} else if q.HymnFrom > 0 {
		sb.WriteString(" AND d.hymn_no >= ?\n")
		args = append(args, q.HymnFrom)
	} else if q.HymnTo > 0 {
		sb.WriteString(" AND d.hymn_no <= ?\n")
		args = append(args, q.HymnTo)
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
			sb.WriteString(" AND d.style IS NOT NULL AND lower(d.style) IN (" + placeholders(len(ss)) + ")\n")
			for _, s := range ss {
				args = append(args, s)
			}
		}
	}
	// Dedication filter: prefer the offered_to column when populated, else fallback to text contains
	if s := strings.TrimSpace(q.OfferedTo); s != "" {
		ss := strings.ToLower(s)
		sb.WriteString(" AND ( (d.offered_to IS NOT NULL AND lower(d.offered_to) LIKE ?) OR lower(d.text) LIKE ? )\n")
		args = append(args, likeContains(ss), likeContains(ss))
	}
	// Order and pagination
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY d.hymn_no NULLS LAST, d.doc_id\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var hymn sql.NullInt64
		var sn sql.NullString
		if err := rows.Scan(&r.DocID, &r.Type, &r.Path, &hymn, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if hymn.Valid {
			r.HymnNo = int(hymn.Int64)
		}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LookupHymn returns all indexed rows for one hymn number in document order.
func LookupHymn(ctx context.Context, bookRoot string, number int) ([]SearchResult, error) {
	if number <= 0 {
		return nil, errors.New("hymn number must be >= 1")
	}
	db, err := InitOrOpenIndex(bookRoot)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	q := `SELECT d.doc_id, d.type, d.path, COALESCE(d.hymn_no,0), d.text
		FROM documents d
		WHERE d.hymn_no = ?
		ORDER BY d.doc_id`
	rows, err := db.QueryContext(ctx, q, number)
	if err != nil {
		return nil, fmt.Errorf("lookup query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var hymn sql.NullInt64
		var txt sql.NullString
		if err := rows.Scan(&r.DocID, &r.Type, &r.Path, &hymn, &txt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if hymn.Valid {
			r.HymnNo = int(hymn.Int64)
		}
		if txt.Valid {
			r.Snippet = txt.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
