// Package deploy sequences job manager calls into deployment transactions:
// fresh deploys, savepoint-then-resume redeploys, savepoints and cancellation.
package deploy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/artifactsource"
	"flinkctl/internal/history"
	"flinkctl/internal/jobmanager"
	"flinkctl/internal/poll"
	"flinkctl/pkg/cloudevent"
)

// CloudEvent types emitted after each deployment.
const (
	EventDeploymentSucceeded = "deployment.succeeded"
	EventDeploymentFailed    = "deployment.failed"
)

// JobManager is the subset of the job manager API the deployer drives.
type JobManager interface {
	UploadJar(ctx context.Context, jarPath string) (string, error)
	RunJar(ctx context.Context, jarID string, params *jobmanager.RunParams) (*jobmanager.RunResponse, error)
	TriggerSavepoint(ctx context.Context, jobID, targetDir string, cancelJob bool) (string, error)
	SavepointStatus(ctx context.Context, jobID, requestID string) (*jobmanager.SavepointInfo, error)
	JobInfo(ctx context.Context, jobID string) (*jobmanager.JobDetails, error)
	CancelJob(ctx context.Context, jobID string) error
}

// ArtifactResolver turns a jar reference into a local file.
type ArtifactResolver interface {
	Resolve(ctx context.Context, ref string) (*artifactsource.Artifact, error)
}

// HistoryStore persists deployment records.
type HistoryStore interface {
	Save(rec *history.Record) error
}

// Notifier receives an event after each deployment.
type Notifier interface {
	Notify(event *cloudevent.CloudEvent) error
}

// MetricsRecorder is an optional interface for recording deployment metrics.
type MetricsRecorder interface {
	RecordDeploymentStarted(ctx context.Context, mode string)
	RecordDeployment(ctx context.Context, mode string, success bool, durationSeconds float64)
	RecordSavepoint(ctx context.Context, success bool, durationSeconds float64)
}

// Options wires optional collaborators. Nil fields disable the feature.
type Options struct {
	Resolver ArtifactResolver // default: local paths and globs only
	History  HistoryStore
	Notifier Notifier
	Metrics  MetricsRecorder
	Logger   *zap.Logger

	Poll poll.Config

	// Deadline bounds one whole Submit. 0 = none.
	Deadline time.Duration

	// Source is the CloudEvent source attribute (default: "flinkctl").
	Source string
}

// Deployer orchestrates deployments against one job manager.
type Deployer struct {
	jm       JobManager
	resolver ArtifactResolver
	history  HistoryStore
	notifier Notifier
	metrics  MetricsRecorder
	logger   *zap.Logger
	poll     poll.Config
	deadline time.Duration
	source   string
}

// New creates a deployer.
func New(jm JobManager, opts Options) *Deployer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = artifactsource.NewResolver(artifactsource.Options{Logger: logger})
	}
	source := opts.Source
	if source == "" {
		source = "flinkctl"
	}
	return &Deployer{
		jm:       jm,
		resolver: resolver,
		history:  opts.History,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("component", "deploy")),
		poll:     opts.Poll,
		deadline: opts.Deadline,
		source:   source,
	}
}

// Result describes a finished deployment. JobID is empty when a stateful
// redeploy obtained no savepoint path and nothing was resubmitted.
type Result struct {
	ID            string `json:"id,omitempty" yaml:"id,omitempty"`
	Mode          Mode   `json:"mode" yaml:"mode"`
	JarID         string `json:"jarId,omitempty" yaml:"jarId,omitempty"`
	JobID         string `json:"jobId,omitempty" yaml:"jobId,omitempty"`
	SavepointPath string `json:"savepointPath,omitempty" yaml:"savepointPath,omitempty"`
	PreviousJobID string `json:"previousJobId,omitempty" yaml:"previousJobId,omitempty"`
}

// Submit deploys intent.JarPath. With both JobID and TargetDir set, the
// running job is savepointed and cancelled first and the new job resumes from
// that savepoint; otherwise the jar is uploaded and run fresh.
//
// The artifact is resolved before any remote mutation, so a missing jar never
// cancels the running job.
func (d *Deployer) Submit(ctx context.Context, intent Intent) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if d.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.deadline)
		defer cancel()
	}

	mode := intent.Mode()
	logger := d.logger.With(zap.String("mode", string(mode)), zap.String("jarPath", intent.JarPath))
	if intent.JobID != "" {
		logger = logger.With(zap.String("jobId", intent.JobID))
	}

	rec := history.NewRecord(string(mode), intent.JarPath)
	rec.PreviousJobID = intent.JobID
	rec.TargetDir = intent.TargetDir
	d.save(rec)

	res := &Result{ID: rec.ID, Mode: mode, PreviousJobID: intent.JobID}

	start := time.Now()
	if d.metrics != nil {
		d.metrics.RecordDeploymentStarted(ctx, string(mode))
	}
	logger.Info("Submitting job to cluster")

	err := d.submit(ctx, logger, intent, rec, res)

	if d.metrics != nil {
		d.metrics.RecordDeployment(ctx, string(mode), err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		rec.State = history.StateFailed
		rec.Error = err.Error()
		d.save(rec)
		d.notify(EventDeploymentFailed, res, err)
		logger.Error("Deployment failed", zap.Error(err))
		return nil, err
	}

	if res.JobID != "" {
		rec.State = history.StateSucceeded
		d.save(rec)
	}
	d.notify(EventDeploymentSucceeded, res, nil)
	logger.Info("Deployment finished", zap.String("newJobId", res.JobID), zap.String("jarId", res.JarID))
	return res, nil
}

func (d *Deployer) submit(ctx context.Context, logger *zap.Logger, intent Intent, rec *history.Record, res *Result) error {
	artifact, err := d.resolver.Resolve(ctx, intent.JarPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := artifact.Close(); cerr != nil {
			logger.Warn("Failed to clean up artifact", zap.Error(cerr))
		}
	}()

	var params *jobmanager.RunParams
	if intent.Mode() == ModeStateful {
		logger.Info("Triggering savepoint before redeploy", zap.String("targetDir", intent.TargetDir))
		path, err := d.savepoint(ctx, intent.JobID, intent.TargetDir, true)
		if err != nil {
			return err
		}

		res.SavepointPath = path
		rec.SavepointPath = path
		rec.State = history.StateSavepointed
		d.save(rec)

		if path == "" {
			logger.Warn("Savepoint completed without a location, job was not resubmitted")
			return nil
		}
		params = intent.restoreParams(path)
	} else {
		params = intent.runOptions()
	}

	jarID, err := d.jm.UploadJar(ctx, artifact.Path)
	if err != nil {
		return err
	}
	res.JarID = jarID
	rec.JarID = jarID

	run, err := d.jm.RunJar(ctx, jarID, params)
	if err != nil {
		return err
	}
	res.JobID = run.JobID
	rec.JobID = run.JobID
	return nil
}

// CancelJobWithSavepoint savepoints jobID into targetDir, stops it and returns
// the savepoint path.
func (d *Deployer) CancelJobWithSavepoint(ctx context.Context, jobID, targetDir string) (string, error) {
	if err := requireSavepointArgs(jobID, targetDir); err != nil {
		return "", err
	}
	return d.savepoint(ctx, jobID, targetDir, true)
}

// TriggerSavepoint savepoints jobID into targetDir and leaves it running.
func (d *Deployer) TriggerSavepoint(ctx context.Context, jobID, targetDir string) (string, error) {
	if err := requireSavepointArgs(jobID, targetDir); err != nil {
		return "", err
	}
	return d.savepoint(ctx, jobID, targetDir, false)
}

// CancelJob cancels jobID and waits until it stops running. It returns the
// state the job reached; FAILED is reported as apperrors.ErrJobFailed.
func (d *Deployer) CancelJob(ctx context.Context, jobID string) (string, error) {
	if jobID == "" {
		return "", apperrors.Validation("jobId", "job id is required")
	}
	logger := d.logger.With(zap.String("jobId", jobID))

	if err := d.jm.CancelJob(ctx, jobID); err != nil {
		return "", err
	}

	state, err := d.awaitTermination(ctx, jobID)
	if err != nil {
		logger.Warn("Cancel did not complete", zap.Error(err))
		return "", err
	}
	if state == jobmanager.Failed {
		return string(state), apperrors.JobFailed(jobID, string(state))
	}

	logger.Info("Job cancelled", zap.String("state", string(state)))
	return string(state), nil
}

func (d *Deployer) savepoint(ctx context.Context, jobID, targetDir string, cancelJob bool) (string, error) {
	requestID, err := d.jm.TriggerSavepoint(ctx, jobID, targetDir, cancelJob)
	if err != nil {
		return "", err
	}

	start := time.Now()
	path, err := d.awaitSavepoint(ctx, jobID, requestID)
	if d.metrics != nil && !errors.Is(err, context.Canceled) {
		d.metrics.RecordSavepoint(ctx, err == nil, time.Since(start).Seconds())
	}
	return path, err
}

func requireSavepointArgs(jobID, targetDir string) error {
	if jobID == "" {
		return apperrors.Validation("jobId", "job id is required")
	}
	if targetDir == "" {
		return apperrors.Validation("targetDir", "target directory is required")
	}
	return nil
}

func (d *Deployer) save(rec *history.Record) {
	if d.history == nil {
		return
	}
	if err := d.history.Save(rec); err != nil {
		d.logger.Warn("Failed to write deployment record", zap.String("deploymentId", rec.ID), zap.Error(err))
	}
}

func (d *Deployer) notify(eventType string, res *Result, cause error) {
	if d.notifier == nil {
		return
	}
	data := map[string]any{
		"deploymentId": res.ID,
		"mode":         string(res.Mode),
	}
	for k, v := range map[string]string{
		"jarId":         res.JarID,
		"jobId":         res.JobID,
		"previousJobId": res.PreviousJobID,
		"savepointPath": res.SavepointPath,
	} {
		if v != "" {
			data[k] = v
		}
	}
	if cause != nil {
		data["error"] = cause.Error()
	}

	subject := res.JobID
	if subject == "" {
		subject = res.PreviousJobID
	}
	if err := d.notifier.Notify(cloudevent.New(eventType, d.source, subject, data)); err != nil {
		d.logger.Warn("Failed to queue notification", zap.String("type", eventType), zap.Error(err))
	}
}
