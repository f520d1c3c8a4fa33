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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gohymnbook/internal/domain"
	applog "gohymnbook/internal/log"
)

const (
	ManifestFileName = "book.yaml"
	BackupsDirName   = "backups"
)

// Standard subfolders of a songbook directory.
var standardSubDirs = []string{
	"assets",
	"fonts",
	"exports",
	BackupsDirName,
}

// BookHandle keeps track of the book state loaded/saved from disk.
// Root is the book directory containing book.yaml and subfolders. When a
// bare .yaml file was opened, Root is that file's directory.
type BookHandle struct {
	Root         string
	ManifestPath string
	Book         domain.Book
}

// InitBook creates a new book directory at root (creating it if it doesn't exist),
// scaffolds the standard subfolders, and writes the given manifest transactionally.
func InitBook(root string, book domain.Book) (*BookHandle, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create book root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create subdir %s: %w", d, err)
		}
	}

	bh := &BookHandle{
		Root:         root,
		ManifestPath: filepath.Join(root, ManifestFileName),
		Book:         book,
	}
	if err := Save(bh); err != nil {
		return nil, err
	}
	// Build the derived search index right away. The index can always be
	// rebuilt from book.yaml, so a failure here does not fail book creation.
	if err := BuildIndexIfEmpty(context.Background(), root, bh.Book); err != nil {
		applog.WithComponent("storage").Warn("initial index build failed", slog.Any("err", err))
	}
	return bh, nil
}

// Open loads a book from the given path. The path may be a book directory
// (containing book.yaml) or a bare .yaml/.yml file, which is how published
// books circulate. If the current manifest cannot be read or parsed, the
// latest backup is attempted.
func Open(path string) (*BookHandle, error) {
	root := path
	mpath := filepath.Join(path, ManifestFileName)
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		if isYAMLPath(path) {
			root = filepath.Dir(path)
			mpath = path
		} else {
			return nil, fmt.Errorf("open %s: not a book directory or yaml file", path)
		}
	}
	b, err := os.ReadFile(mpath)
	if err != nil {
		book, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("open manifest: %w; backup attempt: %v", err, berr)
		}
		return &BookHandle{Root: root, ManifestPath: mpath, Book: *book}, nil
	}
	book, uerr := DecodeManifest(b)
	if uerr != nil {
		bbook, berr := openFromLatestBackup(root)
		if berr != nil {
			return nil, fmt.Errorf("parse manifest: %w; backup attempt: %v", uerr, berr)
		}
		return &BookHandle{Root: root, ManifestPath: mpath, Book: *bbook}, nil
	}
	return &BookHandle{Root: root, ManifestPath: mpath, Book: *book}, nil
}

// Save writes the current BookHandle.Book to disk with transactional semantics
// and a timestamped backup of the previous manifest (if present).
func Save(bh *BookHandle) error {
	if bh == nil {
		return errors.New("nil BookHandle")
	}
	if bh.Root == "" || bh.ManifestPath == "" {
		return errors.New("invalid BookHandle: missing paths")
	}
	data, err := yaml.Marshal(domain.Manifest{Book: bh.Book})
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	// Ensure backups dir exists
	bdir := filepath.Join(bh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}

	// If a current manifest exists, copy it to a timestamped backup before replacing
	if _, statErr := os.Stat(bh.ManifestPath); statErr == nil {
		stamp := time.Now().Format("20060102-150405")
		bname := fmt.Sprintf("%s.%s.bak", filepath.Base(bh.ManifestPath), stamp)
		bpath := filepath.Join(bdir, bname)
		if cerr := copyFile(bh.ManifestPath, bpath); cerr != nil {
			return fmt.Errorf("backup current manifest: %w", cerr)
		}
	}

	// Transactional write: to temp file in same directory, then rename over target
	dir := filepath.Dir(bh.ManifestPath)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(bh.ManifestPath), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, data); werr != nil {
		return fmt.Errorf("write temp manifest: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(bh.ManifestPath); err == nil {
		_ = os.Remove(bh.ManifestPath)
	}
	if rerr := os.Rename(temp, bh.ManifestPath); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace manifest: %w", rerr)
	}
	return nil
}

// SaveAs writes the manifest to a new root folder, scaffolding structure if needed, and updates the handle.
func SaveAs(bh *BookHandle, newRoot string) error {
	if bh == nil {
		return errors.New("nil BookHandle")
	}
	if newRoot == "" {
		return errors.New("new root is empty")
	}
	if err := os.MkdirAll(newRoot, 0o755); err != nil {
		return fmt.Errorf("create new root: %w", err)
	}
	for _, d := range standardSubDirs {
		if err := os.MkdirAll(filepath.Join(newRoot, d), 0o755); err != nil {
			return fmt.Errorf("create subdir %s: %w", d, err)
		}
	}
	bh.Root = newRoot
	bh.ManifestPath = filepath.Join(newRoot, ManifestFileName)
	return Save(bh)
}

// CoverPath resolves the book's cover image relative to the manifest
// location, which is how published books reference it. Empty when the book
// has no cover.
func (bh *BookHandle) CoverPath() string {
	p := bh.Book.CoverImagePath
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(bh.ManifestPath), p)
}

// FontsDir returns the book's font directory.
func (bh *BookHandle) FontsDir() string { return filepath.Join(bh.Root, "fonts") }

// ExportsDir returns the book's export directory.
func (bh *BookHandle) ExportsDir() string { return filepath.Join(bh.Root, "exports") }

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// DecodeManifest accepts both the wrapped form (hymn_book key) and a bare
// book document.
func DecodeManifest(data []byte) (*domain.Book, error) {
	var m domain.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Book.Name != "" || len(m.Book.Hymns) > 0 {
		return &m.Book, nil
	}
	var b domain.Book
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	if b.Name == "" && len(b.Hymns) == 0 {
		return nil, errors.New("no hymn_book document found")
	}
	return &b, nil
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	return nil
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	if err := df.Sync(); err != nil {
		return err
	}
	return nil
}

// AutosaveCrashSnapshot writes the in-memory book to a crash-stamped file
// under backups/ and returns the path. book.yaml itself is left untouched so
// a bad in-memory state cannot clobber the last good manifest.
func AutosaveCrashSnapshot(bh *BookHandle) (string, error) {
	if bh == nil {
		return "", errors.New("nil BookHandle")
	}
	data, err := yaml.Marshal(domain.Manifest{Book: bh.Book})
	if err != nil {
		return "", fmt.Errorf("marshal book: %w", err)
	}
	bdir := filepath.Join(bh.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(bdir, fmt.Sprintf("crash-%s.yaml", stamp))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// openFromLatestBackup tries to open the latest timestamped backup.
func openFromLatestBackup(root string) (*domain.Book, error) {
	bdir := filepath.Join(root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var candidates []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasSuffix(name, ".bak") && (strings.Contains(name, ".yaml.") || strings.Contains(name, ".yml.")) {
			candidates = append(candidates, filepath.Join(bdir, name))
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("no backups found")
	}
	sort.Strings(candidates) // timestamp in name yields lexicographic order
	latest := candidates[len(candidates)-1]
	b, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("read latest backup: %w", err)
	}
	book, err := DecodeManifest(b)
	if err != nil {
		return nil, fmt.Errorf("parse latest backup: %w", err)
	}
	return book, nil
}
