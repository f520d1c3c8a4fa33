/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */

// Package bundle packs a songbook into a single shareable .ghbundle archive
// (a zip holding book.yaml, the cover image and the book's fonts) and unpacks
// such archives into a project directory without clobbering existing files.
package bundle

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gohymnbook/internal/domain"
	applog "gohymnbook/internal/log"
	"gohymnbook/internal/storage"
	"gohymnbook/internal/version"
)

// ManifestName is the bundle descriptor entry at the archive root.
const ManifestName = "bundle.manifest.json"

// Ext is the canonical bundle file extension.
const Ext = ".ghbundle"

// Manifest describes a bundle for quick inspection without unpacking it.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	App           string    `json:"app"`
	Version       string    `json:"version"`
	BookName      string    `json:"book_name"`
	Hymns         int       `json:"hymns"`
	CreatedAt     time.Time `json:"created_at"`
	Files         []string  `json:"files"`
}

// fileEntry is one payload file scheduled for the archive. Exactly one of
// srcPath and data is set.
type fileEntry struct {
	name    string
	srcPath string
	data    []byte
}

// ExportBook writes the book manifest, its cover image and everything under
// <root>/fonts into a .ghbundle archive at destPath. The extension is forced.
// A cover that lives outside the book root is copied into assets/ and the
// bundled manifest is re-pointed at the copy so the archive stays portable.
func ExportBook(bh *storage.BookHandle, destPath string) error {
	if bh == nil {
		return errors.New("book handle is nil")
	}
	if strings.TrimSpace(destPath) == "" {
		return errors.New("destPath is required")
	}
	l := applog.WithOperation(applog.WithComponent("bundle"), "export").With(slog.String("book", bh.Root))
	if !strings.EqualFold(filepath.Ext(destPath), Ext) {
		destPath += Ext
	}

	book := bh.Book
	entries := make([]fileEntry, 0, 8)

	if cover := bh.CoverPath(); cover != "" {
		if _, err := os.Stat(cover); err == nil {
			rel, rerr := filepath.Rel(bh.Root, cover)
			if rerr != nil || strings.HasPrefix(rel, "..") {
				rel = filepath.Join("assets", filepath.Base(cover))
			}
			book.CoverImagePath = filepath.ToSlash(rel)
			entries = append(entries, fileEntry{name: filepath.ToSlash(rel), srcPath: cover})
		} else {
			l.Warn("cover image missing, bundling without it", slog.String("path", cover))
		}
	}

	fontsDir := filepath.Join(bh.Root, "fonts")
	if _, err := os.Stat(fontsDir); err == nil {
		err := filepath.Walk(fontsDir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(bh.Root, p)
			if err != nil {
				return err
			}
			entries = append(entries, fileEntry{name: filepath.ToSlash(rel), srcPath: p})
			return nil
		})
		if err != nil {
			return fmt.Errorf("collect fonts: %w", err)
		}
	}

	manifestYAML, err := yaml.Marshal(domain.Manifest{Book: book})
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	entries = append([]fileEntry{{name: storage.ManifestFileName, data: manifestYAML}}, entries...)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	desc, err := json.MarshalIndent(Manifest{
		FormatVersion: 1,
		App:           "gohymnbook",
		Version:       version.Version,
		BookName:      book.Name,
		Hymns:         len(book.Hymns),
		CreatedAt:     time.Now().UTC(),
		Files:         names,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("ensure bundle dir: %w", err)
	}
	// On Windows, remove destination if present before create
	_ = os.Remove(destPath)
	zf, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create bundle: %w", err)
	}
	defer func() { _ = zf.Close() }()
	zw := zip.NewWriter(zf)

	w, err := zw.Create(ManifestName)
	if err != nil {
		return fmt.Errorf("add bundle manifest: %w", err)
	}
	if _, err := w.Write(desc); err != nil {
		return fmt.Errorf("write bundle manifest: %w", err)
	}
	for _, e := range entries {
		fw, err := zw.Create(e.name)
		if err != nil {
			return fmt.Errorf("add %s: %w", e.name, err)
		}
		if e.data != nil {
			if _, err := fw.Write(e.data); err != nil {
				return fmt.Errorf("write %s: %w", e.name, err)
			}
			continue
		}
		f, err := os.Open(e.srcPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", e.srcPath, err)
		}
		if _, err := io.Copy(fw, f); err != nil {
			_ = f.Close()
			return fmt.Errorf("write %s: %w", e.name, err)
		}
		_ = f.Close()
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish bundle: %w", err)
	}
	l.Info("bundle exported", slog.Int("files", len(entries)), slog.String("bundle", destPath))
	return nil
}

// Import unpacks a bundle into destRoot. Only book.yaml and files under
// assets/ or fonts/ are accepted; entries that would escape destRoot or that
// already exist on disk are skipped. Returns the count of files written.
func Import(packPath string, destRoot string) (int, error) {
	if strings.TrimSpace(packPath) == "" {
		return 0, errors.New("packPath is required")
	}
	if strings.TrimSpace(destRoot) == "" {
		return 0, errors.New("destRoot is required")
	}
	l := applog.WithOperation(applog.WithComponent("bundle"), "import").With(slog.String("dest", destRoot))
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return 0, fmt.Errorf("ensure dest dir: %w", err)
	}

	r, err := zip.OpenReader(packPath)
	if err != nil {
		return 0, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = r.Close() }()

	installed := 0
	for _, f := range r.File {
		name := path.Clean(f.Name)
		if name == ManifestName {
			continue
		}
		if !allowedEntry(name) {
			l.Warn("skip foreign entry", slog.String("name", f.Name))
			continue
		}
		targetPath := filepath.Join(destRoot, filepath.FromSlash(name))
		if _, err := os.Stat(targetPath); err == nil {
			l.Warn("skip existing file", slog.String("path", targetPath))
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return installed, err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return installed, err
		}
		rc, err := f.Open()
		if err != nil {
			return installed, err
		}
		out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			_ = rc.Close()
			return installed, err
		}
		if _, err := io.Copy(out, rc); err != nil {
			_ = out.Close()
			_ = rc.Close()
			return installed, err
		}
		_ = out.Close()
		_ = rc.Close()
		installed++
	}
	l.Info("bundle imported", slog.Int("files", installed))
	return installed, nil
}

// ReadManifest returns the bundle descriptor without unpacking the payload.
func ReadManifest(packPath string) (*Manifest, error) {
	r, err := zip.OpenReader(packPath)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = r.Close() }()
	for _, f := range r.File {
		if path.Clean(f.Name) != ManifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open bundle manifest: %w", err)
		}
		defer func() { _ = rc.Close() }()
		b, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read bundle manifest: %w", err)
		}
		var m Manifest
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("parse bundle manifest: %w", err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("%s: not a songbook bundle (missing %s)", packPath, ManifestName)
}

// allowedEntry restricts unpacking to the book manifest and its asset trees.
// Absolute names and parent traversals never pass.
func allowedEntry(name string) bool {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return false
	}
	if name == storage.ManifestFileName {
		return true
	}
	return strings.HasPrefix(name, "assets/") || strings.HasPrefix(name, "fonts/")
}
