package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Offloader moves finished recordings to the external volume. Sources are
// deleted only after their copy is confirmed; the two volumes are separate
// filesystems, so no atomic rename is available.
type Offloader struct {
	log *slog.Logger
}

// NewOffloader creates an Offloader.
func NewOffloader(log *slog.Logger) *Offloader {
	return &Offloader{log: log}
}

// Offload copies every file under srcDir matching ext into dstDir/data and
// removes the local original after each successful copy. With recursive set,
// subdirectories are walked and their structure reproduced under the
// destination. A file whose copy fails is kept locally and logged; remaining
// files still offload. Returns the number of files moved and any per-file
// errors joined.
func (o *Offloader) Offload(srcDir, dstDir, ext string, recursive bool) (int, error) {
	sources, err := enumerate(srcDir, ext, recursive)
	if err != nil {
		return 0, err
	}

	dataDir := filepath.Join(dstDir, "data")
	moved := 0
	var errs []error

	for _, src := range sources {
		rel, err := filepath.Rel(srcDir, src)
		if err != nil {
			rel = filepath.Base(src)
		}
		dst := filepath.Join(dataDir, rel)

		if err := copyFile(src, dst); err != nil {
			o.log.Warn("offload copy failed, keeping local file", "src", src, "error", err)
			errs = append(errs, err)
			continue
		}

		if err := os.Remove(src); err != nil {
			o.log.Warn("failed to remove offloaded file", "src", src, "error", err)
			errs = append(errs, err)
			continue
		}

		moved++
	}

	return moved, errors.Join(errs...)
}

func enumerate(dir, ext string, recursive bool) ([]string, error) {
	if !recursive {
		matches, err := filepath.Glob(filepath.Join(dir, "*."+ext))
		if err != nil {
			return nil, fmt.Errorf("failed to list %s files: %w", ext, err)
		}
		return matches, nil
	}

	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, "."+ext) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return matches, nil
}

// copyFile copies src to dst byte for byte, creating parent directories.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create destination dir: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush destination: %w", err)
	}

	return nil
}
