// Package controller owns the run lifecycle: one background worker at a
// time, a race-free status state machine, and the wiring that relays step
// updates and log writes into the transport.
package controller

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lei/pipehost/internal/command"
	"github.com/lei/pipehost/internal/models"
	"github.com/lei/pipehost/internal/pipeline"
	"github.com/lei/pipehost/internal/progress"
	"github.com/lei/pipehost/internal/results"
	"github.com/lei/pipehost/internal/runlog"
	"github.com/lei/pipehost/internal/transport"
	"github.com/lei/pipehost/pkg/logger"
)

var (
	// ErrBusy indicates a run or action is already in progress
	ErrBusy = errors.New("a run is already in progress")
	// ErrUnknownAction indicates no handler is registered for the action
	ErrUnknownAction = errors.New("unknown action")
)

// Config holds controller tuning.
type Config struct {
	// WorkDir is the default working directory for runs. Empty means the
	// process working directory.
	WorkDir string
	// MaxDownloadBytes caps inline result encoding. Zero applies the
	// package default (50 MiB).
	MaxDownloadBytes int64
	// DefaultParams are merged under the parameters of every run request.
	DefaultParams pipeline.Params
}

// Controller orchestrates background runs of one pipeline. The foreground
// session never blocks on the worker: Start spawns and returns, Cancel
// signals and returns, Poll answers with whatever is buffered.
type Controller struct {
	pipe    pipeline.Pipeline
	hub     *transport.Hub
	applog  *logger.Logger
	sink    *runlog.Sink
	tracker *progress.Tracker
	cfg     Config

	mu         sync.Mutex
	status     models.RunStatus
	message    string
	runID      string
	startedAt  *time.Time
	finishedAt *time.Time

	cancelled atomic.Bool
	runCancel context.CancelFunc

	handleMu sync.Mutex
	handle   *command.Handle

	archivePath  string
	downloadable *results.Downloadable
}

// New creates a controller for the given pipeline. Log writes are pushed
// through the hub as they happen; step declarations come from the pipeline
// when it implements StepDeclarer.
func New(pipe pipeline.Pipeline, hub *transport.Hub, applog *logger.Logger, cfg Config) *Controller {
	var steps []string
	if sd, ok := pipe.(pipeline.StepDeclarer); ok {
		steps = sd.Steps()
	}

	c := &Controller{
		pipe:    pipe,
		hub:     hub,
		applog:  applog,
		sink:    runlog.NewSink(),
		tracker: progress.New(steps...),
		cfg:     cfg,
		status:  models.StatusIdle,
	}

	c.sink.SetOnWrite(func(text string) {
		hub.Broadcast(transport.LogPush{
			Type:    transport.TypeLogBatch,
			Content: text,
			Status:  c.Status(),
		})
	})
	c.tracker.SetOnUpdate(func(t *progress.Tracker) {
		hub.Broadcast(transport.ProgressUpdate{
			Type:     transport.TypeProgress,
			Progress: t.Snapshot(),
		})
	})

	return c
}

// Status returns the authoritative run status.
func (c *Controller) Status() models.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot returns the full observable run state.
func (c *Controller) Snapshot() models.RunSnapshot {
	c.mu.Lock()
	snap := models.RunSnapshot{
		Run: models.Run{
			RunID:      c.runID,
			Status:     c.status,
			Message:    c.message,
			StartedAt:  c.startedAt,
			FinishedAt: c.finishedAt,
		},
	}
	dl := c.downloadable
	c.mu.Unlock()

	snap.Progress = c.tracker.Snapshot()
	if dl != nil {
		snap.Result = &models.ResultInfo{Name: dl.Filename, Data: dl.DataURI}
	}
	return snap
}

// DownloadPath returns the last materialized archive path, for the
// host-native download fallback. Empty when no archive exists.
func (c *Controller) DownloadPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.archivePath
}

// Poll answers the catch-up query: the log suffix from offset, the new
// total length, and the current status.
func (c *Controller) Poll(offset int) transport.LogBatch {
	content, newOffset := c.sink.ReadFrom(offset)
	return transport.LogBatch{
		Type:      transport.TypeLogBatch,
		Content:   content,
		NewOffset: newOffset,
		Status:    c.Status(),
	}
}

// Start begins a background run. A start while one is active is ignored:
// no second worker is spawned and ErrBusy is returned so the caller can
// report it.
func (c *Controller) Start(params pipeline.Params) (models.Run, error) {
	if len(c.cfg.DefaultParams) > 0 {
		merged := make(pipeline.Params, len(c.cfg.DefaultParams)+len(params))
		for k, v := range c.cfg.DefaultParams {
			merged[k] = v
		}
		for k, v := range params {
			merged[k] = v
		}
		params = merged
	}

	c.mu.Lock()
	if c.status == models.StatusRunning {
		run := models.Run{RunID: c.runID, Status: c.status, Message: c.message, StartedAt: c.startedAt}
		c.mu.Unlock()
		return run, ErrBusy
	}

	c.sink.Clear()
	c.archivePath = ""
	c.downloadable = nil
	c.cancelled.Store(false)

	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel

	now := time.Now()
	c.runID = uuid.NewString()
	c.startedAt = &now
	c.finishedAt = nil
	c.status = models.StatusRunning
	c.message = "Pipeline running..."
	run := models.Run{RunID: c.runID, Status: c.status, Message: c.message, StartedAt: c.startedAt}
	c.mu.Unlock()

	// Reset after the state flip so the pushed snapshot shows all-pending
	// under the new run.
	c.tracker.Reset()
	c.broadcastStatus()

	c.applog.Info("run started", "run_id", run.RunID, "pipeline", c.pipe.Meta().Name)
	go c.worker(ctx, params)

	return run, nil
}

// Cancel requests termination of the active run: it flips the cancellation
// flag, terminates the active process if any, and records the aborted state
// immediately. The worker converges to the same terminal state on its own;
// this is a request, not a wait.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.status != models.StatusRunning {
		c.mu.Unlock()
		return
	}
	c.cancelled.Store(true)
	cancel := c.runCancel
	c.status = models.StatusAborted
	c.message = "Terminated by user"
	runID := c.runID
	c.mu.Unlock()

	c.sink.Append("\n❯ Terminating pipeline...\n")
	if cancel != nil {
		cancel()
	}
	c.terminateHandle()
	c.broadcastStatus()
	c.applog.Info("run cancel requested", "run_id", runID)
}

// RunAction starts a one-off named operation on a background worker. It
// follows the run pattern (single worker, streamed logs, terminal
// notification) but touches neither the step tracker nor result bundling.
func (c *Controller) RunAction(name string) error {
	ap, ok := c.pipe.(pipeline.ActionProvider)
	var fn pipeline.ActionFunc
	if ok {
		fn = ap.Actions()[name]
	}
	if fn == nil {
		c.applog.Warn("no handler for action", "action", name)
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	c.mu.Lock()
	if c.status == models.StatusRunning {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sink.Clear()
	ctx, cancel := context.WithCancel(context.Background())
	c.runCancel = cancel
	c.cancelled.Store(false)
	c.status = models.StatusRunning
	c.message = "Executing action: " + name
	c.mu.Unlock()
	c.broadcastStatus()

	go c.actionWorker(ctx, name, fn)
	return nil
}

func (c *Controller) worker(ctx context.Context, params pipeline.Params) {
	log := runlog.NewLogger(c.sink)
	pipeline.Bind(c.pipe, c.tracker, c.setHandle)

	defer func() {
		if r := recover(); r != nil {
			c.sink.Append(fmt.Sprintf("\n✘ Critical Exception: %v\n%s\n", r, debug.Stack()))
			c.finishRun(models.StatusError, fmt.Sprintf("Error: %v", r))
		}
	}()

	log.Stage("Starting Pipeline")
	err := c.pipe.Run(ctx, params, log)

	switch {
	case c.cancelled.Load() || ctx.Err() != nil:
		log.Warning("Pipeline was terminated.")
		c.finishRun(models.StatusAborted, "Terminated by user")
	case err == nil:
		log.Success("Completed successfully!")
		c.finishRun(models.StatusFinished, "Completed successfully")
		c.prepareResult(params, log)
	default:
		log.Errorf("Pipeline failed: %v", err)
		c.finishRun(models.StatusError, "Failed")
	}
}

func (c *Controller) actionWorker(ctx context.Context, name string, fn pipeline.ActionFunc) {
	log := runlog.NewLogger(c.sink)

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Action error: %v", r)
			c.finishRun(models.StatusError, fmt.Sprintf("Error: %v", r))
		}
	}()

	log.Stage("Executing action: " + name)
	err := fn(ctx, log)

	switch {
	case c.cancelled.Load() || ctx.Err() != nil:
		log.Warning("Action was terminated.")
		c.finishRun(models.StatusAborted, "Terminated by user")
	case err == nil:
		c.finishRun(models.StatusIdle, "")
	default:
		log.Errorf("Action error: %v", err)
		c.finishRun(models.StatusError, "Failed")
	}
}

// finishRun records the terminal state and emits the guaranteed last-word
// notification carrying the full log buffer. Idempotent with a concurrent
// Cancel: both writers agree on aborted.
func (c *Controller) finishRun(status models.RunStatus, message string) {
	c.mu.Lock()
	if c.cancelled.Load() && status != models.StatusFinished {
		status = models.StatusAborted
		message = "Terminated by user"
	}
	c.status = status
	c.message = message
	now := time.Now()
	c.finishedAt = &now
	runID := c.runID
	c.mu.Unlock()

	c.broadcastStatus()
	c.hub.Broadcast(transport.RunFinished{
		Type:   transport.TypeRunFinished,
		Status: status,
		Logs:   c.sink.String(),
	})
	c.applog.Info("run finished", "run_id", runID, "status", status)
}

// prepareResult packages declared outputs after a successful run. Failures
// here are logged and degrade to "no downloadable"; the run stays finished.
func (c *Controller) prepareResult(params pipeline.Params, log *runlog.Logger) {
	rp, ok := c.pipe.(pipeline.ResultProvider)
	if !ok {
		return
	}
	bundle := rp.ResultBundle(params)
	if bundle == nil {
		return
	}
	if bundle.BaseDir == "" && c.cfg.WorkDir != "" {
		bundle.BaseDir = c.cfg.WorkDir
	}

	path, err := bundle.Materialize("")
	if err != nil {
		log.Errorf("Error preparing download: %v", err)
		return
	}
	if path == "" {
		return
	}

	c.mu.Lock()
	c.archivePath = path
	c.mu.Unlock()

	dl, err := results.EncodeDownloadable(path, log, c.cfg.MaxDownloadBytes)
	if err != nil {
		log.Errorf("Error preparing download: %v", err)
		return
	}
	if dl == nil {
		// over the ceiling; warning already in the run log
		return
	}

	c.mu.Lock()
	c.downloadable = dl
	c.mu.Unlock()

	c.hub.Broadcast(transport.ResultReady{
		Type: transport.TypeResultReady,
		Name: dl.Filename,
		Data: dl.DataURI,
	})
	c.applog.Info("result packaged", "archive", path)
}

func (c *Controller) broadcastStatus() {
	c.mu.Lock()
	msg := transport.StatusUpdate{
		Type:    transport.TypeStatus,
		Status:  c.status,
		Message: c.message,
	}
	c.mu.Unlock()
	c.hub.Broadcast(msg)
}

func (c *Controller) setHandle(h *command.Handle) {
	c.handleMu.Lock()
	c.handle = h
	c.handleMu.Unlock()
}

func (c *Controller) terminateHandle() {
	c.handleMu.Lock()
	h := c.handle
	c.handleMu.Unlock()
	if h != nil && h.Alive() {
		h.Terminate()
	}
}
