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

// SignalFile drives a long-lived capture process (picam style) through hook
// files: writing "filename=<name>" to the start hook begins a segment, and
// touching the stop hook ends it. The process itself runs for the whole
// session and muxes audio from an ALSA device into each segment.
type SignalFile struct {
	cfg   config.CameraConfig
	log   *slog.Logger
	sleep func(time.Duration)

	cmd       *exec.Cmd
	startHook string
	stopHook  string
}

// NewSignalFile creates the signal-file backend. The capture process is not
// launched until Start.
func NewSignalFile(cfg config.CameraConfig, log *slog.Logger) *SignalFile {
	return &SignalFile{
		cfg:       cfg,
		log:       log,
		sleep:     time.Sleep,
		startHook: filepath.Join(cfg.WorkDir, "hooks", "start_record"),
		stopHook:  filepath.Join(cfg.WorkDir, "hooks", "stop_record"),
	}
}

// Start launches the capture process and waits out the camera warmup.
// An empty binary skips the launch, for deployments where the capture
// process is managed externally (e.g. a systemd unit).
func (d *SignalFile) Start(ctx context.Context) error {
	for _, dir := range []string{filepath.Dir(d.startHook), d.cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create capture dir %s: %w", dir, err)
		}
	}

	if d.cfg.Binary != "" {
		cmd := exec.CommandContext(ctx, d.cfg.Binary, d.args()...)
		cmd.Dir = d.cfg.WorkDir
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start capture process: %w", err)
		}
		d.cmd = cmd
		d.log.Info("capture process started",
			"binary", d.cfg.Binary,
			"pid", cmd.Process.Pid,
		)
	} else {
		d.log.Info("no capture binary configured, assuming externally managed process")
	}

	d.sleep(time.Duration(d.cfg.WarmupS) * time.Second)
	return nil
}

func (d *SignalFile) args() []string {
	args := []string{
		"--alsadev", d.cfg.AudioDevice,
		"--width", strconv.Itoa(d.cfg.Width),
		"--height", strconv.Itoa(d.cfg.Height),
		"--fps", strconv.Itoa(d.cfg.FPS),
		"--mode", strconv.Itoa(d.cfg.Mode),
		"--wb", d.cfg.WhiteBalance,
		"--iso", strconv.Itoa(d.cfg.ISO),
	}
	if d.cfg.HFlipped() {
		args = append(args, "--hflip")
	}
	if d.cfg.VFlipped() {
		args = append(args, "--vflip")
	}
	return args
}

// Begin writes the desired segment filename to the start hook.
func (d *SignalFile) Begin(ctx context.Context, filename string) (string, error) {
	content := fmt.Sprintf("filename=%s", filename)
	if err := os.WriteFile(d.startHook, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write start hook: %w", err)
	}
	return filepath.Join(d.cfg.DataDir, filename), nil
}

// End touches the stop hook.
func (d *SignalFile) End() error {
	f, err := os.OpenFile(d.stopHook, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to touch stop hook: %w", err)
	}
	f.Close()
	now := time.Now()
	if err := os.Chtimes(d.stopHook, now, now); err != nil {
		return fmt.Errorf("failed to touch stop hook: %w", err)
	}
	return nil
}

// Cleanup removes the segment's duplicate under the rec directory. picam
// writes segment bytes there and links them into the archive, so deleting
// the archive copy alone reclaims no space.
func (d *SignalFile) Cleanup(filename string) error {
	err := os.Remove(filepath.Join(d.cfg.RecDir, filename))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove rec copy: %w", err)
	}
	return nil
}

// Stop terminates the capture process. The process gets a SIGTERM and a
// short grace period before being killed.
func (d *SignalFile) Stop() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}

	if err := d.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		d.log.Warn("failed to signal capture process", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		d.log.Warn("capture process did not exit, killing", "pid", d.cmd.Process.Pid)
		if err := d.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill capture process: %w", err)
		}
		<-done
	}

	d.log.Info("capture process stopped")
	d.cmd = nil
	return nil
}

// Ext returns "ts"; picam writes MPEG-TS segments.
func (d *SignalFile) Ext() string { return "ts" }
