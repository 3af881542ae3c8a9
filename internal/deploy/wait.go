package deploy

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
	"flinkctl/internal/jobmanager"
	"flinkctl/internal/poll"
)

// awaitSavepoint polls a savepoint request until it leaves IN_PROGRESS. A
// failure cause ends polling with apperrors.ErrSavepointFailed.
func (d *Deployer) awaitSavepoint(ctx context.Context, jobID, requestID string) (string, error) {
	logger := d.logger.With(zap.String("jobId", jobID), zap.String("requestId", requestID))

	return poll.Until(ctx, d.poll, fmt.Sprintf("savepoint for job=<%s>", jobID),
		func(ctx context.Context, attempt int) (string, bool, error) {
			info, err := d.jm.SavepointStatus(ctx, jobID, requestID)
			if err != nil {
				return "", false, err
			}
			if info.Status.ID == jobmanager.SavepointInProgress {
				logger.Debug("Savepoint still in progress", zap.Int("attempt", attempt))
				return "", false, nil
			}
			if fc := info.Operation.FailureCause; fc != nil {
				logger.Warn("Savepoint failed")
				return "", false, apperrors.SavepointFailed(jobID, fc.StackTrace)
			}
			logger.Info("Savepoint completed", zap.String("savepointPath", info.Operation.Location))
			return info.Operation.Location, true, nil
		})
}

// awaitTermination polls a job until it is no longer RUNNING and returns the
// state it reached.
func (d *Deployer) awaitTermination(ctx context.Context, jobID string) (jobmanager.JobState, error) {
	logger := d.logger.With(zap.String("jobId", jobID))

	return poll.Until(ctx, d.poll, fmt.Sprintf("cancellation of job=<%s>", jobID),
		func(ctx context.Context, attempt int) (jobmanager.JobState, bool, error) {
			info, err := d.jm.JobInfo(ctx, jobID)
			if err != nil {
				return "", false, err
			}
			if info.State == jobmanager.Running {
				logger.Debug("Job is still running", zap.Int("attempt", attempt))
				return "", false, nil
			}
			return info.State, true, nil
		})
}
