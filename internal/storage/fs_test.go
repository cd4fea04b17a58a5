package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempDir(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempDir(t)
	content := []byte("\x89PNG\r\n\x1a\nfake")
	if err := s.Write("frame.png", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("frame.png")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
	if !s.Exists("frame.png") {
		t.Error("Exists = false after write")
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempDir(t)
	if err := s.Write("a/b/c.png", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Exists("a/b/c.png") {
		t.Error("file missing")
	}
	if s.Exists("a/b") {
		t.Error("Exists should be false for directories")
	}
}

func TestDelete(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("del.png", []byte("bye"))
	if err := s.Delete("del.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.png"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestList_OnlyPNG(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("a.png", []byte("a"))
	_ = s.Write("sub/b.PNG", []byte("b"))
	_ = s.Write("a.json", []byte("{}"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.Checksum == "" {
			t.Errorf("%s has no checksum", it.Path)
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempDir(t)
	for _, p := range []string{"../../etc/passwd", "../outside.png", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if s.Exists(p) {
			t.Errorf("Exists(%q) should be false", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempDir(t)
	_ = s.Write("atomic.png", []byte("original"))
	if err := s.Write("atomic.png", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.png")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".framegrab-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "framegrab-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestIsPNGName(t *testing.T) {
	cases := map[string]bool{"a.png": true, "A.PNG": true, "a.png.json": false, "png": false}
	for name, want := range cases {
		if got := IsPNGName(name); got != want {
			t.Errorf("IsPNGName(%q) = %v", name, got)
		}
	}
}
