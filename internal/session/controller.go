// Package session orchestrates the capture-convert-offload loop.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annahadji/beepi/internal/capture"
	"github.com/annahadji/beepi/internal/config"
	"github.com/annahadji/beepi/internal/convert"
	"github.com/annahadji/beepi/internal/lights"
	"github.com/annahadji/beepi/internal/recorder"
	"github.com/annahadji/beepi/internal/storage"
)

// State is the controller's position in the iteration cycle.
type State string

const (
	StateIdle            State = "idle"
	StateIlluminationOn  State = "illumination_on"
	StateRecording       State = "recording"
	StateConverting      State = "converting"
	StateIlluminationOff State = "illumination_off"
	StateStorageCheck    State = "storage_check"
	StateOffload         State = "offload"
	StateTerminated      State = "terminated"
)

// Termination reasons reported in logs and the session_ended event.
const (
	ReasonCompleted    = "completed"
	ReasonCancelled    = "cancelled"
	ReasonLocalSpace   = "local_space_below_margin"
	ReasonExternalFull = "external_volume_full"
)

// Deps are the controller's collaborators. Emitter may be nil.
type Deps struct {
	Driver    capture.Driver
	Lights    lights.Controller
	Converter *convert.Converter
	Monitor   *storage.Monitor
	Offloader *storage.Offloader
	Emitter   Emitter
}

// Controller runs one recording session: for each iteration it wraps the
// segment batch in illumination toggles, converts the raw segments, checks
// storage pressure and offloads to the external volume when the local
// write threshold is crossed. It is the single writer of session state;
// everything below it either returns results or fails fatally through it.
type Controller struct {
	cfg  *config.Config
	deps Deps
	rec  *recorder.Recorder
	log  *slog.Logger

	id string

	mu           sync.RWMutex
	state        State
	iteration    int
	iterations   int
	externalFull bool // sticky: never cleared for the rest of the run
	started      time.Time
	lastLocal    storage.Snapshot
}

// New creates a Controller. The configuration must already be validated.
func New(cfg *config.Config, deps Deps, log *slog.Logger) *Controller {
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		rec:   recorder.New(deps.Driver, log),
		log:   log,
		id:    uuid.New().String(),
		state: StateIdle,
	}
}

// Iterations computes how many iterations reach the target session length.
func Iterations(sessionS, segmentS, segmentsPerIteration int) int {
	n := int(math.Ceil(float64(sessionS) / float64(segmentsPerIteration*segmentS)))
	if n < 1 {
		return 1
	}
	return n
}

// Run executes the session and blocks until it terminates. The capture
// device is stopped unconditionally on the way out, whatever the exit path.
// A conversion failure propagates as an error; policy terminations
// (storage pressure, cancellation) return nil.
func (c *Controller) Run(ctx context.Context) error {
	n := Iterations(c.cfg.SessionLengthS, c.cfg.SegmentLengthS, c.cfg.SegmentsPerIteration)

	c.mu.Lock()
	c.iterations = n
	c.started = time.Now()
	c.mu.Unlock()

	c.log.Info("session starting",
		"session_id", c.id,
		"experiment", c.cfg.ExperimentName,
		"segment_length_s", c.cfg.SegmentLengthS,
		"session_length_s", c.cfg.SessionLengthS,
		"iterations", n,
		"ir", c.cfg.IR,
		"backend", c.cfg.Camera.Backend,
	)

	if err := c.deps.Driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start capture driver: %w", err)
	}
	defer func() {
		if err := c.deps.Driver.Stop(); err != nil {
			c.log.Warn("failed to stop capture driver", "error", err)
		}
	}()

	if c.cfg.IR {
		if err := c.deps.Lights.Reset(); err != nil {
			return fmt.Errorf("failed to reset illumination: %w", err)
		}
		c.log.Info("filming with ir, illumination reset")
	}

	c.emit(Event{Type: EventSessionStarted, Iterations: n})

	reason := ReasonCompleted
	for iter := 0; iter < n; iter++ {
		// Cancellation is honored between iterations only; a segment in
		// progress always runs to completion.
		if ctx.Err() != nil {
			reason = ReasonCancelled
			break
		}

		stop, err := c.iterate(ctx, iter, n)
		if err != nil {
			c.setState(StateTerminated)
			c.emit(Event{Type: EventSessionEnded, Iteration: iter + 1, Reason: err.Error()})
			return err
		}
		if stop != "" {
			reason = stop
			break
		}
	}

	c.setState(StateTerminated)
	c.emit(Event{Type: EventSessionEnded, Reason: reason})
	c.log.Info("session terminated", "reason", reason)
	return nil
}

// iterate runs one full iteration. A non-empty stop reason ends the session
// cleanly; an error aborts it.
func (c *Controller) iterate(ctx context.Context, iter, total int) (stop string, err error) {
	c.mu.Lock()
	c.iteration = iter + 1
	c.mu.Unlock()

	c.log.Info("recording loop", "iteration", iter+1, "iterations", total)
	c.emit(Event{Type: EventIterationStarted, Iteration: iter + 1, Iterations: total})

	if c.cfg.IR {
		c.setState(StateIlluminationOn)
		if err := c.deps.Lights.SetOn(lights.IRAll); err != nil {
			return "", fmt.Errorf("failed to switch ir leds on: %w", err)
		}
		on, err := c.deps.Lights.State(lights.IRAll)
		if err != nil {
			return "", fmt.Errorf("failed to read ir led state: %w", err)
		}
		c.log.Info("ir leds on", "state", fmt.Sprintf("%04b", on))
	}

	c.setState(StateRecording)
	prefix := fmt.Sprintf("iter%d-%s-%dfps-%dx%d",
		iter, c.cfg.ExperimentName, c.cfg.Camera.FPS, c.cfg.Camera.Width, c.cfg.Camera.Height)
	results := c.rec.Record(ctx, c.cfg.SegmentsPerIteration, c.cfg.SegmentLength(), prefix)

	c.setState(StateConverting)
	// Raw H.264 carries no timing info, so the sequence backend's segments
	// need an explicit frame rate. MPEG-TS segments let ffmpeg infer it.
	fps := 0
	if c.cfg.Camera.Backend == config.BackendSequence {
		fps = c.cfg.Camera.FPS
	}
	for _, res := range results {
		if !res.Succeeded {
			continue
		}
		out, err := c.deps.Converter.Convert(ctx, res.Path, fps, true)
		if err != nil {
			return "", err
		}
		if !out.Converted {
			continue
		}
		// The signal-file device keeps its own copy of the segment bytes;
		// removing it is what actually reclaims local space.
		if err := c.deps.Driver.Cleanup(filepath.Base(res.Path)); err != nil {
			c.log.Warn("failed to remove recording copy", "segment", filepath.Base(res.Path), "error", err)
		}
	}

	if c.cfg.IR {
		c.setState(StateIlluminationOff)
		if err := c.deps.Lights.Reset(); err != nil {
			return "", fmt.Errorf("failed to reset illumination: %w", err)
		}
		on, err := c.deps.Lights.State(lights.IRAll)
		if err != nil {
			return "", fmt.Errorf("failed to read ir led state: %w", err)
		}
		c.log.Info("illumination reset", "state", fmt.Sprintf("%04b", on))
	}

	return c.checkStorage(iter)
}

// checkStorage applies the storage policy for one iteration: offload when
// local usage crosses the write threshold, terminate when the external
// volume cannot take the data or local spare space falls below the margin.
func (c *Controller) checkStorage(iter int) (stop string, err error) {
	c.setState(StateStorageCheck)

	local, err := c.deps.Monitor.Snapshot(c.cfg.Camera.DataDir)
	if err != nil {
		return "", fmt.Errorf("failed to read local storage: %w", err)
	}
	c.log.Info("filesystem usage",
		"used_gb", fmt.Sprintf("%.1f", local.UsedGB()),
		"total_gb", fmt.Sprintf("%.1f", local.TotalGB()),
	)

	if local.UsedExceeds(c.cfg.Storage.OffloadAfterGB) && !c.externalSpaceGone() {
		external, err := c.deps.Monitor.Snapshot(c.cfg.Storage.ExternalPath)
		if err != nil {
			return "", fmt.Errorf("failed to read external storage: %w", err)
		}
		c.log.Info("external usage",
			"used_gb", fmt.Sprintf("%.1f", external.UsedGB()),
			"total_gb", fmt.Sprintf("%.1f", external.TotalGB()),
		)

		if !external.HasHeadroomFor(local.UsedGB()) {
			// Sticky for the rest of the run, even if space frees up later.
			c.mu.Lock()
			c.externalFull = true
			c.mu.Unlock()
			c.log.Info("external space would be exceeded, write cancelled", "iteration", iter+1)
			return ReasonExternalFull, nil
		}

		c.setState(StateOffload)
		moved, err := c.deps.Offloader.Offload(
			c.cfg.Camera.DataDir, c.cfg.Storage.ExternalPath, "mp4", c.cfg.Storage.RecursiveOffload)
		if err != nil {
			// Files that failed to copy stay local; the spare-margin check
			// below catches the pressure they leave behind.
			c.log.Warn("offload incomplete", "moved", moved, "error", err)
		}
		c.emit(Event{Type: EventOffload, Iteration: iter + 1, FilesMoved: moved})

		local, err = c.deps.Monitor.Snapshot(c.cfg.Camera.DataDir)
		if err != nil {
			return "", fmt.Errorf("failed to re-read local storage: %w", err)
		}
		c.log.Info("files moved", "count", moved, "used_gb", fmt.Sprintf("%.1f", local.UsedGB()))
	}

	c.mu.Lock()
	c.lastLocal = local
	c.mu.Unlock()

	if local.SpareBelow(c.cfg.Storage.SpareMarginGB) {
		c.log.Info("terminating due to space",
			"iteration", iter+1,
			"spare_gb", fmt.Sprintf("%.1f", local.SpareGB()),
			"margin_gb", c.cfg.Storage.SpareMarginGB,
		)
		return ReasonLocalSpace, nil
	}

	return "", nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) externalSpaceGone() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.externalFull
}

func (c *Controller) emit(e Event) {
	if c.deps.Emitter == nil {
		return
	}
	e.SessionID = c.id
	e.Experiment = c.cfg.ExperimentName
	e.Timestamp = time.Now()
	c.deps.Emitter.Emit(e)
}

// Status is a read-only snapshot of the controller for the health endpoint.
type Status struct {
	SessionID    string  `json:"session_id"`
	Experiment   string  `json:"experiment"`
	State        State   `json:"state"`
	Iteration    int     `json:"iteration"`
	Iterations   int     `json:"iterations"`
	ExternalFull bool    `json:"external_full"`
	UptimeS      int64   `json:"uptime_s"`
	LocalUsedGB  float64 `json:"local_used_gb"`
	LocalSpareGB float64 `json:"local_spare_gb"`
}

// Status returns the controller's current status.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var uptime int64
	if !c.started.IsZero() {
		uptime = int64(time.Since(c.started).Seconds())
	}

	return Status{
		SessionID:    c.id,
		Experiment:   c.cfg.ExperimentName,
		State:        c.state,
		Iteration:    c.iteration,
		Iterations:   c.iterations,
		ExternalFull: c.externalFull,
		UptimeS:      uptime,
		LocalUsedGB:  c.lastLocal.UsedGB(),
		LocalSpareGB: c.lastLocal.SpareGB(),
	}
}
