package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/annahadji/beepi/internal/config"
)

// Driver abstracts the capture device. Implementations own one external
// capture process (or one process per segment) and the filesystem locations
// its output lands in.
type Driver interface {
	// Start brings up the capture device, including any warmup period.
	// Must be called once before the first Begin.
	Start(ctx context.Context) error
	// Begin instructs the device to start writing a segment with the given
	// filename, and returns the path the finished file will land at.
	Begin(ctx context.Context, filename string) (string, error)
	// End instructs the device to stop writing the current segment.
	End() error
	// Cleanup removes any backend-side duplicate of a finished segment,
	// identified by its bare filename. Called once the segment is
	// converted and its original deleted.
	Cleanup(filename string) error
	// Stop tears down the capture device unconditionally. Safe to call
	// whether or not Start succeeded, and after an error mid-run.
	Stop() error
	// Ext returns the raw segment filename extension, without the dot.
	Ext() string
}

// New builds the capture driver selected by the configuration.
func New(cfg config.CameraConfig, log *slog.Logger) (Driver, error) {
	switch cfg.Backend {
	case config.BackendSignalFile:
		return NewSignalFile(cfg, log), nil
	case config.BackendSequence:
		return NewSequence(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", cfg.Backend)
	}
}
