package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner stands in for ffmpeg. Unless failing or silent, it writes the
// output file (the last argument) like a successful conversion would.
type fakeRunner struct {
	fail   bool // non-zero exit
	silent bool // exit 0 but produce no output file
	calls  [][]string
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) error {
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.fail {
		return fmt.Errorf("exit status 1")
	}
	if r.silent {
		return nil
	}
	return os.WriteFile(args[len(args)-1], []byte("mp4"), 0o644)
}

func writeRaw(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestConvertSuccessRemovesOriginal verifies the original is deleted only
// after the output is confirmed present.
func TestConvertSuccessRemovesOriginal(t *testing.T) {
	dir := t.TempDir()
	input := writeRaw(t, dir, "240517-213045-sid0-iter0-test.ts")
	runner := &fakeRunner{}
	conv := NewWithRunner(runner, testLogger())

	res, err := conv.Convert(context.Background(), input, 0, true)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	if !res.Converted {
		t.Error("expected conversion reported successful")
	}
	if res.Output != OutputPath(input) {
		t.Errorf("unexpected output path %q", res.Output)
	}
	if _, err := os.Stat(res.Output); err != nil {
		t.Error("expected output file to exist")
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Error("expected original removed after confirmed conversion")
	}
}

// TestConvertFilterFailureIsFatal verifies a non-zero ffmpeg exit propagates
// and never deletes the original.
func TestConvertFilterFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	input := writeRaw(t, dir, "segment.ts")
	runner := &fakeRunner{fail: true}
	conv := NewWithRunner(runner, testLogger())

	_, err := conv.Convert(context.Background(), input, 0, true)
	if err == nil {
		t.Fatal("expected error from failed filter process")
	}
	if _, err := os.Stat(input); err != nil {
		t.Error("original must survive a failed conversion")
	}
}

// TestConvertMissingOutputIsSoftFailure verifies exit 0 with no output file
// is logged, keeps the original, and raises no error.
func TestConvertMissingOutputIsSoftFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeRaw(t, dir, "segment.ts")
	runner := &fakeRunner{silent: true}
	conv := NewWithRunner(runner, testLogger())

	res, err := conv.Convert(context.Background(), input, 0, true)
	if err != nil {
		t.Fatalf("soft failure should not raise, got %v", err)
	}
	if res.Converted {
		t.Error("expected conversion reported unsuccessful")
	}
	if _, err := os.Stat(input); err != nil {
		t.Error("original must survive a soft failure")
	}
}

// TestConvertArgs verifies the stream-copy argument template and the
// optional frame-rate override.
func TestConvertArgs(t *testing.T) {
	dir := t.TempDir()
	input := writeRaw(t, dir, "segment.h264")
	runner := &fakeRunner{}
	conv := NewWithRunner(runner, testLogger())

	if _, err := conv.Convert(context.Background(), input, 60, false); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	argv := strings.Join(runner.calls[0], " ")
	for _, want := range []string{
		"ffmpeg",
		"-framerate 60",
		"-i " + input,
		"-c:v copy",
		"-c:a copy",
		"-bsf:a aac_adtstoasc",
	} {
		if !strings.Contains(argv, want) {
			t.Errorf("argv %q missing %q", argv, want)
		}
	}
	if !strings.HasSuffix(runner.calls[0][len(runner.calls[0])-1], ".mp4") {
		t.Error("expected mp4 output as final argument")
	}

	// Without an fps override, -framerate is omitted entirely.
	runner.calls = nil
	input2 := writeRaw(t, dir, "segment2.h264")
	if _, err := conv.Convert(context.Background(), input2, 0, false); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if strings.Contains(strings.Join(runner.calls[0], " "), "-framerate") {
		t.Error("expected no -framerate flag when fps is zero")
	}
}

// TestGreyscale verifies directory-wide greyscale conversion semantics.
func TestGreyscale(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "a.h264")
	writeRaw(t, dir, "b.h264")
	writeRaw(t, dir, "ignored.ts")
	runner := &fakeRunner{}
	conv := NewWithRunner(runner, testLogger())

	n, err := conv.Greyscale(context.Background(), dir, "h264", true)
	if err != nil {
		t.Fatalf("Greyscale failed: %v", err)
	}

	if n != 2 {
		t.Errorf("expected 2 conversions, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(dir, "gry-a.h264")); err != nil {
		t.Error("expected greyscale output gry-a.h264")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.h264")); !os.IsNotExist(err) {
		t.Error("expected original a.h264 removed")
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored.ts")); err != nil {
		t.Error("files with other extensions must be untouched")
	}
	if !strings.Contains(strings.Join(runner.calls[0], " "), "format=gray") {
		t.Error("expected format=gray video filter")
	}
}

// TestGreyscaleFilterFailureIsFatal mirrors Convert's fatal semantics.
func TestGreyscaleFilterFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "a.h264")
	runner := &fakeRunner{fail: true}
	conv := NewWithRunner(runner, testLogger())

	if _, err := conv.Greyscale(context.Background(), dir, "h264", true); err == nil {
		t.Fatal("expected error from failed filter process")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.h264")); err != nil {
		t.Error("original must survive a failed conversion")
	}
}
