package deploy

import (
	"strings"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/jobmanager"
)

// Mode is how a deployment reaches the cluster.
type Mode string

const (
	// ModeFresh uploads and runs a jar with no prior state.
	ModeFresh Mode = "fresh"
	// ModeStateful savepoints and cancels the running job, then resumes from
	// the savepoint.
	ModeStateful Mode = "stateful"
)

// Intent describes one deployment request.
type Intent struct {
	JarPath               string `json:"jarPath"`
	JobID                 string `json:"jobId,omitempty"`
	TargetDir             string `json:"targetDir,omitempty"`
	AllowNonRestoredState bool   `json:"allowNonRestoredState,omitempty"`
	Parallelism           int    `json:"parallelism,omitempty"` // 0 = unset
	EntryClass            string `json:"entryClass,omitempty"`
	ProgramArgs           string `json:"programArgs,omitempty"`
}

// Mode is stateful only when both the running job and the savepoint
// directory are named.
func (i Intent) Mode() Mode {
	if i.JobID != "" && i.TargetDir != "" {
		return ModeStateful
	}
	return ModeFresh
}

// Validate checks the fields that can be rejected before any remote call.
func (i Intent) Validate() error {
	if strings.TrimSpace(i.JarPath) == "" {
		return apperrors.Validation("jarPath", "jar path is required")
	}
	if i.Parallelism < 0 {
		return apperrors.Validation("parallelism", "parallelism must not be negative")
	}
	return nil
}

// restoreParams are the run options used to resume from savepointPath.
// allowNonRestoredState is always sent; other unset values are left out.
func (i Intent) restoreParams(savepointPath string) *jobmanager.RunParams {
	params := i.runOptions()
	if params == nil {
		params = &jobmanager.RunParams{}
	}
	params.AllowNonRestoredState = ptr(i.AllowNonRestoredState)
	params.SavepointPath = ptr(savepointPath)
	return params
}

// runOptions returns the explicit run options, or nil when none are set so
// the run request carries no body.
func (i Intent) runOptions() *jobmanager.RunParams {
	var params jobmanager.RunParams
	set := false
	if i.Parallelism > 0 {
		params.Parallelism = ptr(i.Parallelism)
		set = true
	}
	if i.EntryClass != "" {
		params.EntryClass = ptr(i.EntryClass)
		set = true
	}
	if i.ProgramArgs != "" {
		params.ProgramArg = ptr(i.ProgramArgs)
		set = true
	}
	if !set {
		return nil
	}
	return &params
}

func ptr[T any](v T) *T {
	return &v
}
