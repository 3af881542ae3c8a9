// Package history keeps an on-disk ledger of deployments so a savepoint path
// survives a failed resubmit.
package history

import (
	"time"

	"github.com/google/uuid"
)

// State is the progress of a recorded deployment.
type State string

const (
	StatePending     State = "pending"
	StateSavepointed State = "savepointed"
	StateSucceeded   State = "succeeded"
	StateFailed      State = "failed"
)

// Record is one deployment attempt.
type Record struct {
	ID            string    `json:"id" yaml:"id"`
	State         State     `json:"state" yaml:"state"`
	Mode          string    `json:"mode" yaml:"mode"`
	JarPath       string    `json:"jarPath" yaml:"jarPath"`
	PreviousJobID string    `json:"previousJobId,omitempty" yaml:"previousJobId,omitempty"`
	TargetDir     string    `json:"targetDir,omitempty" yaml:"targetDir,omitempty"`
	SavepointPath string    `json:"savepointPath,omitempty" yaml:"savepointPath,omitempty"`
	JarID         string    `json:"jarId,omitempty" yaml:"jarId,omitempty"`
	JobID         string    `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// NewRecord starts a pending record with a fresh id.
func NewRecord(mode, jarPath string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.NewString(),
		State:     StatePending,
		Mode:      mode,
		JarPath:   jarPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the record reached a terminal state.
func (r *Record) Finished() bool {
	return r.State == StateSucceeded || r.State == StateFailed
}
