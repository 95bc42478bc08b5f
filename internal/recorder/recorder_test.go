package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDriver writes segment files on End unless told to drop them.
type fakeDriver struct {
	dir     string
	dropped map[int]bool // segment indices whose files go missing
	begun   []string
	ended   int
	pending string
	ext     string
}

func newFakeDriver(dir string) *fakeDriver {
	return &fakeDriver{dir: dir, dropped: make(map[int]bool), ext: "ts"}
}

func (d *fakeDriver) Start(ctx context.Context) error { return nil }
func (d *fakeDriver) Stop() error                     { return nil }
func (d *fakeDriver) Cleanup(string) error            { return nil }
func (d *fakeDriver) Ext() string                     { return d.ext }

func (d *fakeDriver) Begin(ctx context.Context, filename string) (string, error) {
	d.begun = append(d.begun, filename)
	d.pending = filepath.Join(d.dir, filename)
	return d.pending, nil
}

func (d *fakeDriver) End() error {
	segment := d.ended
	d.ended++
	if d.dropped[segment] {
		return nil // hardware hiccup: no file appears
	}
	return os.WriteFile(d.pending, []byte("video"), 0o644)
}

// TestRecordAllSegmentsSucceed verifies the happy path.
func TestRecordAllSegmentsSucceed(t *testing.T) {
	driver := newFakeDriver(t.TempDir())
	var slept []time.Duration
	rec := NewWithClock(driver, testLogger(),
		func(d time.Duration) { slept = append(slept, d) },
		time.Now,
	)

	results := rec.Record(context.Background(), 3, 2*time.Second, "iter0-test-60fps-640x480")

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, res := range results {
		if !res.Succeeded {
			t.Errorf("segment %d should have succeeded", i)
		}
	}
	// Each segment sleeps its duration plus the settle pause.
	if len(slept) != 6 {
		t.Fatalf("expected 6 sleeps, got %d", len(slept))
	}
	if slept[0] != 2*time.Second {
		t.Errorf("expected first sleep of 2s, got %v", slept[0])
	}
}

// TestRecordMissingFileDoesNotAbort verifies a failed segment is recorded
// as such and the remaining segments still run.
func TestRecordMissingFileDoesNotAbort(t *testing.T) {
	driver := newFakeDriver(t.TempDir())
	driver.dropped[1] = true
	rec := NewWithClock(driver, testLogger(), func(time.Duration) {}, time.Now)

	results := rec.Record(context.Background(), 3, time.Second, "iter0-test-60fps-640x480")

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Succeeded || results[1].Succeeded || !results[2].Succeeded {
		t.Errorf("expected only segment 1 to fail: %+v", results)
	}
	if driver.ended != 3 {
		t.Errorf("expected all 3 segments driven, got %d", driver.ended)
	}
}

// TestSegmentNameEmbedsIdentity verifies names carry the timestamp, segment
// index and prefix, and cannot collide within a session.
func TestSegmentNameEmbedsIdentity(t *testing.T) {
	now := time.Date(2024, 5, 17, 21, 30, 45, 0, time.UTC)
	prefix := "iter2-test-60fps-640x480"

	name := SegmentName(now, 3, prefix, "ts")

	if name != "240517-213045-sid3-iter2-test-60fps-640x480.ts" {
		t.Errorf("unexpected segment name %q", name)
	}
	for _, want := range []string{"sid3", "iter2", "test"} {
		if !strings.Contains(name, want) {
			t.Errorf("name %q missing %q", name, want)
		}
	}

	// Distinct segment indices at the same instant still differ.
	seen := make(map[string]bool)
	for segment := 0; segment < 5; segment++ {
		n := SegmentName(now, segment, prefix, "ts")
		if seen[n] {
			t.Fatalf("duplicate segment name %q", n)
		}
		seen[n] = true
	}

	// Distinct iterations differ through the prefix.
	other := SegmentName(now, 3, "iter3-test-60fps-640x480", "ts")
	if other == name {
		t.Error("names from different iterations should differ")
	}
}

// TestRecordNamesAreSequential verifies segment indices count up in order.
func TestRecordNamesAreSequential(t *testing.T) {
	driver := newFakeDriver(t.TempDir())
	rec := NewWithClock(driver, testLogger(), func(time.Duration) {}, time.Now)

	rec.Record(context.Background(), 4, time.Second, "iter0-test-60fps-640x480")

	for i, name := range driver.begun {
		if !strings.Contains(name, fmt.Sprintf("-sid%d-", i)) {
			t.Errorf("segment %d name %q missing its index", i, name)
		}
	}
}
