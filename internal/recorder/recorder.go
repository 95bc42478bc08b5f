// Package recorder drives the capture device through fixed-length segments.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/annahadji/beepi/internal/capture"
)

// settlePause separates consecutive segments so the device finishes
// flushing one file before the next begins.
const settlePause = 1 * time.Second

// SegmentResult reports the outcome of one recorded segment.
type SegmentResult struct {
	Path      string
	Succeeded bool
}

// Recorder records batches of segments through a capture.Driver. Pacing is a
// plain blocking sleep for the segment duration; the sleep and clock are
// injectable so tests run instantly.
type Recorder struct {
	driver capture.Driver
	log    *slog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// New creates a Recorder using the real clock.
func New(driver capture.Driver, log *slog.Logger) *Recorder {
	return NewWithClock(driver, log, time.Sleep, time.Now)
}

// NewWithClock creates a Recorder with an injected sleep and clock.
func NewWithClock(driver capture.Driver, log *slog.Logger, sleep func(time.Duration), now func() time.Time) *Recorder {
	return &Recorder{
		driver: driver,
		log:    log,
		sleep:  sleep,
		now:    now,
	}
}

// SegmentName builds the filename for one segment. The timestamp, segment
// index and prefix together make collisions structurally impossible within
// a session.
func SegmentName(now time.Time, segment int, prefix, ext string) string {
	return fmt.Sprintf("%s-sid%d-%s.%s", now.Format("060102-150405"), segment, prefix, ext)
}

// Record records count segments of the given duration in order. A segment
// whose output file is missing after stop is logged and reported failed;
// remaining segments still run. No segment is retried.
func (r *Recorder) Record(ctx context.Context, count int, duration time.Duration, prefix string) []SegmentResult {
	results := make([]SegmentResult, 0, count)

	for segment := 0; segment < count; segment++ {
		name := SegmentName(r.now(), segment, prefix, r.driver.Ext())

		path, err := r.driver.Begin(ctx, name)
		if err != nil {
			r.log.Warn("error starting segment", "segment", name, "error", err)
			results = append(results, SegmentResult{Path: path, Succeeded: false})
			continue
		}

		r.sleep(duration)

		if err := r.driver.End(); err != nil {
			r.log.Warn("error stopping segment", "segment", name, "error", err)
		}

		if _, err := os.Stat(path); err == nil {
			r.log.Info("video saved", "path", path)
			results = append(results, SegmentResult{Path: path, Succeeded: true})
		} else {
			r.log.Warn("error recording video", "path", path)
			results = append(results, SegmentResult{Path: path, Succeeded: false})
		}

		r.sleep(settlePause)
	}

	return results
}
