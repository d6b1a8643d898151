package models

import "time"

// RunStatus represents the state of the pipeline run lifecycle
type RunStatus string

const (
	StatusIdle     RunStatus = "idle"
	StatusRunning  RunStatus = "running"
	StatusFinished RunStatus = "finished"
	StatusError    RunStatus = "error"
	StatusAborted  RunStatus = "aborted"
)

// Terminal reports whether the status is an end-of-run state
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusAborted:
		return true
	}
	return false
}

// Run represents one execution of the pipeline body
type Run struct {
	RunID      string     `json:"run_id"`
	Status     RunStatus  `json:"status"`
	Message    string     `json:"message,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepSnapshot is the wire representation of one progress step
type StepSnapshot struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Duration string `json:"duration"`
}

// ProgressSnapshot is the wire representation of the whole step tracker
type ProgressSnapshot struct {
	Steps     []StepSnapshot `json:"steps"`
	Current   string         `json:"current,omitempty"`
	Percent   float64        `json:"percent"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
}

// ResultInfo describes the packaged result of a finished run
type ResultInfo struct {
	Name string `json:"name"`
	Data string `json:"data"` // base64 data URI
}

// RunSnapshot is the full observable state served to the session
type RunSnapshot struct {
	Run      Run              `json:"run"`
	Progress ProgressSnapshot `json:"progress"`
	Result   *ResultInfo      `json:"result,omitempty"`
}
