package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/annahadji/beepi/internal/config"
)

// Sequence spawns one capture process per segment (raspivid style). Begin
// starts a process writing directly to the output path and End interrupts
// it. Unlike raspivid's stock modes, the white balance list includes the
// nonstandard "greyworld" mode, which corrects the colour cast introduced by
// removing the sensor's IR filter.
type Sequence struct {
	cfg config.CameraConfig
	log *slog.Logger

	current *exec.Cmd
}

// NewSequence creates the sequence backend.
func NewSequence(cfg config.CameraConfig, log *slog.Logger) *Sequence {
	return &Sequence{cfg: cfg, log: log}
}

// Start creates the output directory. The camera itself is only held open
// for the duration of each segment.
func (d *Sequence) Start(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return nil
}

// segmentArgs builds the capture argv for one segment written to path.
func segmentArgs(cfg config.CameraConfig, path string) []string {
	args := []string{
		"-o", path,
		"-t", "0", // run until signalled
		"-w", strconv.Itoa(cfg.Width),
		"-h", strconv.Itoa(cfg.Height),
		"-fps", strconv.Itoa(cfg.FPS),
		"-md", strconv.Itoa(cfg.Mode),
		"-awb", cfg.WhiteBalance,
		"-ISO", strconv.Itoa(cfg.ISO),
	}
	if cfg.HFlipped() {
		args = append(args, "-hf")
	}
	if cfg.VFlipped() {
		args = append(args, "-vf")
	}
	return args
}

// Begin spawns the capture process for one segment.
func (d *Sequence) Begin(ctx context.Context, filename string) (string, error) {
	if d.current != nil {
		return "", fmt.Errorf("segment already in progress")
	}

	path := filepath.Join(d.cfg.DataDir, filename)
	cmd := exec.CommandContext(ctx, d.cfg.Binary, segmentArgs(d.cfg, path)...)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start segment capture: %w", err)
	}
	d.current = cmd
	return path, nil
}

// End interrupts the segment's capture process and waits for it to flush.
func (d *Sequence) End() error {
	if d.current == nil {
		return fmt.Errorf("no segment in progress")
	}
	cmd := d.current
	d.current = nil

	if err := cmd.Process.Signal(syscall.SIGINT); err != nil {
		return fmt.Errorf("failed to interrupt segment capture: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		// raspivid exits non-zero on SIGINT; the recorder verifies the
		// output file rather than trusting the exit status.
	case <-time.After(5 * time.Second):
		d.log.Warn("segment capture did not exit, killing", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill segment capture: %w", err)
		}
		<-done
	}
	return nil
}

// Cleanup is a no-op; raspivid writes each segment exactly once.
func (d *Sequence) Cleanup(string) error { return nil }

// Stop ends any in-flight segment.
func (d *Sequence) Stop() error {
	if d.current == nil {
		return nil
	}
	return d.End()
}

// Ext returns "h264"; raspivid writes raw H.264 elementary streams.
func (d *Sequence) Ext() string { return "h264" }
