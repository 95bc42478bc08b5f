// Package convert invokes ffmpeg to turn raw segments into delivery files.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner runs an external command to completion. It exists so tests can
// stand in for ffmpeg.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Result reports the outcome of one conversion.
type Result struct {
	Output    string
	Converted bool
}

// Converter converts raw video files to mp4 using stream copy, which keeps
// conversion cheap on the device. A non-zero ffmpeg exit is fatal; an output
// file missing despite exit 0 is only logged, and the original is kept.
type Converter struct {
	runner Runner
	ffmpeg string
	log    *slog.Logger
}

// New creates a Converter that shells out to ffmpeg on the PATH.
func New(log *slog.Logger) *Converter {
	return &Converter{
		runner: execRunner{},
		ffmpeg: "ffmpeg",
		log:    log,
	}
}

// NewWithRunner creates a Converter with a custom command runner.
func NewWithRunner(runner Runner, log *slog.Logger) *Converter {
	return &Converter{
		runner: runner,
		ffmpeg: "ffmpeg",
		log:    log,
	}
}

// OutputPath returns the mp4 path a conversion of input will produce.
func OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".mp4"
}

// Convert converts one raw video file to mp4. fps forces an explicit frame
// rate (needed for raw H.264, which carries no timing); zero lets ffmpeg
// infer it. The original is deleted only after the output is confirmed to
// exist on disk.
func (c *Converter) Convert(ctx context.Context, input string, fps int, removeOriginal bool) (Result, error) {
	output := OutputPath(input)

	args := []string{}
	if fps > 0 {
		args = append(args, "-framerate", strconv.Itoa(fps))
	}
	args = append(args,
		"-i", input,
		"-c:v", "copy",
		"-c:a", "copy",
		"-bsf:a", "aac_adtstoasc",
		output,
	)

	if err := c.runner.Run(ctx, c.ffmpeg, args...); err != nil {
		return Result{}, fmt.Errorf("ffmpeg failed converting %s: %w", input, err)
	}

	if _, err := os.Stat(output); err != nil {
		c.log.Warn("conversion produced no output", "output", output)
		return Result{Output: output, Converted: false}, nil
	}

	c.log.Info("converted to mp4", "input", input, "output", output)

	if removeOriginal {
		if err := os.Remove(input); err != nil {
			return Result{}, fmt.Errorf("failed to remove original %s: %w", input, err)
		}
		c.log.Info("deleted original", "path", input)
	}

	return Result{Output: output, Converted: true}, nil
}

// Greyscale converts every raw file with the given extension under dir to
// greyscale, saved alongside with a "gry-" prefix. Same failure semantics
// as Convert. Returns the number of files converted.
func (c *Converter) Greyscale(ctx context.Context, dir, ext string, removeOriginal bool) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*."+ext))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s files: %w", ext, err)
	}

	converted := 0
	for _, file := range files {
		output := filepath.Join(filepath.Dir(file), "gry-"+filepath.Base(file))

		if err := c.runner.Run(ctx, c.ffmpeg, "-i", file, "-vf", "format=gray", output); err != nil {
			return converted, fmt.Errorf("ffmpeg failed converting %s: %w", file, err)
		}

		if _, err := os.Stat(output); err != nil {
			c.log.Warn("conversion produced no output", "output", output)
			continue
		}

		c.log.Info("converted to greyscale", "input", file, "output", output)
		converted++

		if removeOriginal {
			if err := os.Remove(file); err != nil {
				return converted, fmt.Errorf("failed to remove original %s: %w", file, err)
			}
			c.log.Info("deleted original", "path", file)
		}
	}

	return converted, nil
}
