package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"gohymnbook/internal/domain"
)

func testBook(name string) domain.Book {
	return domain.Book{
		Name:  name,
		Owner: "Padrinho",
		Hymns: []domain.Hymn{{
			Number:      1,
			Title:       "Estrela",
			Text:        "Linha um\nLinha dois\nLinha tres\nLinha quatro",
			Repetitions: "1-2,3-4",
		}},
	}
}

func readManifest(t *testing.T, path string) domain.Book {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m domain.Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	return m.Book
}

func TestInitBookCreatesStructureAndManifest(t *testing.T) {
	root := t.TempDir()
	book := testBook("Test Book")

	bh, err := InitBook(root, book)
	if err != nil {
		t.Fatalf("InitBook error: %v", err)
	}
	if bh == nil {
		t.Fatalf("InitBook returned nil handle")
	}

	if bh.ManifestPath == "" {
		t.Fatalf("ManifestPath not set")
	}
	got := readManifest(t, bh.ManifestPath)
	if got.Name != book.Name {
		t.Fatalf("manifest name mismatch: got %q want %q", got.Name, book.Name)
	}
	if len(got.Hymns) != 1 || got.Hymns[0].Title != "Estrela" {
		t.Fatalf("manifest hymns mismatch: %+v", got.Hymns)
	}

	// Standard subdirs should exist
	wantDirs := []string{"assets", "fonts", "exports", BackupsDirName}
	for _, d := range wantDirs {
		p := filepath.Join(root, d)
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Fatalf("expected directory %s to exist", p)
		}
	}

	// Index should have been built right away
	if _, err := os.Stat(IndexPath(root)); err != nil {
		t.Fatalf("expected index at %s: %v", IndexPath(root), err)
	}
}

func TestSaveCreatesTimestampedBackup(t *testing.T) {
	root := t.TempDir()
	bh, err := InitBook(root, testBook("Backup Test"))
	if err != nil {
		t.Fatalf("InitBook error: %v", err)
	}

	// Change something and save again to force a backup
	bh.Book.Owner = "changed"
	if err := Save(bh); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Expect at least one .bak file under backups
	ents, err := os.ReadDir(filepath.Join(root, BackupsDirName))
	if err != nil {
		t.Fatalf("read backups dir: %v", err)
	}
	var bakCount int
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ManifestFileName+".") && strings.HasSuffix(name, ".bak") {
			bakCount++
		}
	}
	if bakCount == 0 {
		t.Fatalf("expected at least one backup file, found 0")
	}
}

func TestOpenFallsBackToLatestBackupOnCorruption(t *testing.T) {
	root := t.TempDir()
	book := testBook("Open From Backup")
	bh, err := InitBook(root, book)
	if err != nil {
		t.Fatalf("InitBook error: %v", err)
	}

	// Force a backup to exist by saving
	bh.Book.Owner = "touch"
	if err := Save(bh); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	// Corrupt the manifest
	if err := os.WriteFile(bh.ManifestPath, []byte(":: this is not yaml {"), 0o644); err != nil {
		t.Fatalf("corrupt manifest: %v", err)
	}

	// Now opening should succeed via latest backup
	opened, err := Open(root)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if opened.Book.Name != book.Name {
		t.Fatalf("opened book name mismatch: got %q want %q", opened.Book.Name, book.Name)
	}
}

func TestOpenAcceptsBareYAMLFile(t *testing.T) {
	dir := t.TempDir()
	book := testBook("Bare File")
	data, err := yaml.Marshal(domain.Manifest{Book: book})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(dir, "estrela.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	bh, err := Open(path)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if bh.Book.Name != "Bare File" {
		t.Fatalf("unexpected book name %q", bh.Book.Name)
	}
	if bh.Root != dir {
		t.Fatalf("expected root %q, got %q", dir, bh.Root)
	}
}

func TestSaveAsMovesHandle(t *testing.T) {
	root := t.TempDir()
	bh, err := InitBook(root, testBook("Orig"))
	if err != nil {
		t.Fatalf("InitBook: %v", err)
	}

	bh.Book.Name = "Renamed"
	newRoot := filepath.Join(root, "newbook")
	if err := SaveAs(bh, newRoot); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	if bh.Root != newRoot || bh.ManifestPath != filepath.Join(newRoot, ManifestFileName) {
		t.Fatalf("BookHandle paths not updated: %+v", bh)
	}

	got := readManifest(t, bh.ManifestPath)
	if got.Name != "Renamed" {
		t.Fatalf("unexpected book name in new manifest: %q", got.Name)
	}
}

func TestCoverPathResolution(t *testing.T) {
	root := t.TempDir()
	book := testBook("Cover")
	book.CoverImagePath = "assets/cover.png"
	bh, err := InitBook(root, book)
	if err != nil {
		t.Fatalf("InitBook: %v", err)
	}
	want := filepath.Join(root, "assets", "cover.png")
	if got := bh.CoverPath(); got != want {
		t.Fatalf("relative cover: got %q want %q", got, want)
	}

	abs := filepath.Join(root, "elsewhere.png")
	bh.Book.CoverImagePath = abs
	if got := bh.CoverPath(); got != abs {
		t.Fatalf("absolute cover: got %q want %q", got, abs)
	}

	bh.Book.CoverImagePath = ""
	if got := bh.CoverPath(); got != "" {
		t.Fatalf("empty cover should stay empty, got %q", got)
	}
}

func TestAutosaveCrashSnapshotWritesFile(t *testing.T) {
	root := t.TempDir()
	book := testBook("Crash Snapshot")
	bh, err := InitBook(root, book)
	if err != nil {
		t.Fatalf("InitBook error: %v", err)
	}

	path, err := AutosaveCrashSnapshot(bh)
	if err != nil {
		t.Fatalf("AutosaveCrashSnapshot error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot file does not exist: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var got domain.Manifest
	if err := yaml.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if got.Book.Name != book.Name {
		t.Fatalf("snapshot content mismatch: got %q want %q", got.Book.Name, book.Name)
	}
}
