// Package pipeline defines the contract between the run controller and a
// user-supplied pipeline body.
package pipeline

import (
	"context"

	"github.com/lei/pipehost/internal/command"
	"github.com/lei/pipehost/internal/progress"
	"github.com/lei/pipehost/internal/results"
	"github.com/lei/pipehost/internal/runlog"
)

// Params carries the opaque name→value parameter mapping from the session.
// The core passes it through without validation.
type Params map[string]any

// String returns the string value for key, or def when absent or not a string.
func (p Params) String(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Bool returns the bool value for key, or def when absent or not a bool.
func (p Params) Bool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// Int returns the integer value for key, or def. JSON numbers arrive as
// float64 and are accepted.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// Meta describes a pipeline for the session surface.
type Meta struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// Pipeline is a user-supplied unit of work. Run returns nil on success; it
// is expected to check ctx for cancellation at reasonable intervals and to
// route subprocess execution through RunCommand so cancellation composes.
type Pipeline interface {
	Meta() Meta
	Run(ctx context.Context, params Params, log *runlog.Logger) error
}

// ResultProvider is implemented by pipelines that declare output files for
// packaging after a successful run.
type ResultProvider interface {
	ResultBundle(params Params) *results.Bundle
}

// LayoutProvider is implemented by pipelines that ship a UI-tree schema.
// The schema is opaque to the core and served verbatim.
type LayoutProvider interface {
	Layout() map[string]any
}

// ActionFunc is a one-off named operation outside the main run.
type ActionFunc func(ctx context.Context, log *runlog.Logger) error

// ActionProvider exposes the action registry, built explicitly at
// construction time. A name missing from the map is a dispatch error, not a
// silent no-op.
type ActionProvider interface {
	Actions() map[string]ActionFunc
}

// StepDeclarer is implemented by pipelines that pre-declare their steps so
// the session sees the full plan before the run starts.
type StepDeclarer interface {
	Steps() []string
}

// Binder is satisfied by pipelines embedding Base; the controller uses it to
// wire the run's tracker and process-handle registration before each run.
type Binder interface {
	bindRuntime(tr *progress.Tracker, register func(*command.Handle))
}

// Bind wires the run's tracker and handle registration into a pipeline that
// embeds Base. Pipelines without Base are left alone.
func Bind(p Pipeline, tr *progress.Tracker, register func(*command.Handle)) bool {
	b, ok := p.(Binder)
	if !ok {
		return false
	}
	b.bindRuntime(tr, register)
	return true
}

// Base is an embeddable helper carrying the per-run wiring. Pipelines that
// embed it get progress tracking and cancellation-composed command execution
// without touching the controller directly.
type Base struct {
	progress *progress.Tracker
	register func(*command.Handle)
}

func (b *Base) bindRuntime(tr *progress.Tracker, register func(*command.Handle)) {
	b.progress = tr
	b.register = register
}

// Progress returns the run's step tracker. Outside a controller (tests,
// direct invocation) a standalone tracker is created on first use.
func (b *Base) Progress() *progress.Tracker {
	if b.progress == nil {
		b.progress = progress.New()
	}
	return b.progress
}

// RunCommand executes a subprocess with the run's cancellation wiring: the
// spawned handle is registered with the controller so a cancel request can
// terminate it immediately.
func (b *Base) RunCommand(ctx context.Context, spec command.Spec, log *runlog.Logger) int {
	if b.register != nil {
		return command.Run(ctx, spec, log, command.WithOnStart(b.register))
	}
	return command.Run(ctx, spec, log)
}
