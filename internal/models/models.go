package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkerState is the lifecycle of the upload lane.
type WorkerState string

const (
	WorkerIdle     WorkerState = "idle" // created, not started
	WorkerRunning  WorkerState = "running"
	WorkerDraining WorkerState = "draining"
	WorkerStopped  WorkerState = "stopped"
)

// CoordinatorState is the state of the rotation coordinator.
type CoordinatorState string

const (
	CoordinatorIdle        CoordinatorState = "idle"
	CoordinatorRollingOver CoordinatorState = "rolling_over"
)

// Segment is a closed log file produced by a rollover.
type Segment struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
}

// Artifact is the compressed form of a segment and where it goes.
type Artifact struct {
	Path string `json:"path"`
	Key  string `json:"key"`
}

// UploadTask is one queued compress-and-upload of a segment.
type UploadTask struct {
	ID         uuid.UUID `json:"id"`
	Segment    string    `json:"segment"`
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UploadResult is reported for every executed task.
type UploadResult struct {
	Task     UploadTask    `json:"task"`
	Artifact Artifact      `json:"artifact"`
	Skipped  bool          `json:"skipped"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}
