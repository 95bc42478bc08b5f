package storage

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestOffloadFlat verifies matching files are copied under data/ and the
// local originals removed.
func TestOffloadFlat(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.mp4"))
	writeFile(t, filepath.Join(src, "b.mp4"))
	writeFile(t, filepath.Join(src, "raw.ts"))
	writeFile(t, filepath.Join(src, "nested", "c.mp4")) // flat mode ignores subdirs

	moved, err := NewOffloader(testLogger()).Offload(src, dst, "mp4", false)
	if err != nil {
		t.Fatalf("Offload failed: %v", err)
	}

	if moved != 2 {
		t.Errorf("expected 2 files moved, got %d", moved)
	}
	for _, name := range []string{"a.mp4", "b.mp4"} {
		if _, err := os.Stat(filepath.Join(dst, "data", name)); err != nil {
			t.Errorf("expected %s on external volume", name)
		}
		if _, err := os.Stat(filepath.Join(src, name)); !os.IsNotExist(err) {
			t.Errorf("expected local %s removed", name)
		}
	}
	if _, err := os.Stat(filepath.Join(src, "raw.ts")); err != nil {
		t.Error("non-matching extension must stay local")
	}
	if _, err := os.Stat(filepath.Join(src, "nested", "c.mp4")); err != nil {
		t.Error("flat offload must not touch subdirectories")
	}
}

// TestOffloadRecursive verifies subdirectory structure is reproduced on the
// destination.
func TestOffloadRecursive(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.mp4"))
	writeFile(t, filepath.Join(src, "day1", "b.mp4"))

	moved, err := NewOffloader(testLogger()).Offload(src, dst, "mp4", true)
	if err != nil {
		t.Fatalf("Offload failed: %v", err)
	}

	if moved != 2 {
		t.Errorf("expected 2 files moved, got %d", moved)
	}
	if _, err := os.Stat(filepath.Join(dst, "data", "day1", "b.mp4")); err != nil {
		t.Error("expected nested file under data/day1 on external volume")
	}
}

// TestOffloadKeepsSourceOnCopyFailure verifies the copy-then-delete
// invariant: a source file is never deleted unless its copy succeeded.
func TestOffloadKeepsSourceOnCopyFailure(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.mp4"))

	// Occupy the data directory path with a file so every copy fails.
	if err := os.WriteFile(filepath.Join(dst, "data"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	moved, err := NewOffloader(testLogger()).Offload(src, dst, "mp4", false)
	if err == nil {
		t.Fatal("expected error from failed copies")
	}

	if moved != 0 {
		t.Errorf("expected 0 files moved, got %d", moved)
	}
	if _, err := os.Stat(filepath.Join(src, "a.mp4")); err != nil {
		t.Error("source must survive a failed copy")
	}
}

// TestOffloadContinuesPastFailedFile verifies one file's failure does not
// stop the remaining files from offloading.
func TestOffloadContinuesPastFailedFile(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "keep", "a.mp4"))
	writeFile(t, filepath.Join(src, "b.mp4"))

	// Block only the nested destination path.
	if err := os.MkdirAll(filepath.Join(dst, "data"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dst, "data", "keep"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	moved, err := NewOffloader(testLogger()).Offload(src, dst, "mp4", true)
	if err == nil {
		t.Fatal("expected error for the blocked file")
	}

	if moved != 1 {
		t.Errorf("expected 1 file moved despite failure, got %d", moved)
	}
	if _, err := os.Stat(filepath.Join(src, "keep", "a.mp4")); err != nil {
		t.Error("blocked file's source must survive")
	}
	if _, err := os.Stat(filepath.Join(src, "b.mp4")); !os.IsNotExist(err) {
		t.Error("unblocked file should have moved")
	}
}

// TestOffloadEmptyDir verifies an empty source is a no-op.
func TestOffloadEmptyDir(t *testing.T) {
	moved, err := NewOffloader(testLogger()).Offload(t.TempDir(), t.TempDir(), "mp4", false)
	if err != nil {
		t.Fatalf("Offload failed: %v", err)
	}
	if moved != 0 {
		t.Errorf("expected 0 files moved, got %d", moved)
	}
}
