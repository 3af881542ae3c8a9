package jobmanager

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
)

// TriggerSavepoint starts an asynchronous savepoint into targetDir and returns
// its request id. With cancelJob the job stops once the savepoint completes.
// A rejected trigger is reported as apperrors.ErrJobIDNotFound.
func (c *Client) TriggerSavepoint(ctx context.Context, jobID, targetDir string, cancelJob bool) (string, error) {
	logger := c.logger.With(zap.String("jobId", jobID), zap.String("targetDir", targetDir))
	logger.Info("Triggering savepoint", zap.Bool("cancelJob", cancelJob))

	var out triggerResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "/jobs/{jobId}/savepoints/",
		path:   "/jobs/" + url.PathEscape(jobID) + "/savepoints/",
		body:   savepointRequest{TargetDirectory: targetDir, CancelJob: cancelJob},
	}, &out)
	if err != nil {
		if rce, ok := asRemote(err); ok {
			return "", apperrors.JobIDNotFound(jobID, rce.Reason(), err)
		}
		return "", err
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("savepoint trigger for job %s: response has no request-id", jobID)
	}

	logger.Info("Triggered savepoint", zap.String("requestId", out.RequestID))
	return out.RequestID, nil
}

// SavepointStatus returns the current state of a savepoint request.
func (c *Client) SavepointStatus(ctx context.Context, jobID, requestID string) (*SavepointInfo, error) {
	var out SavepointInfo
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/jobs/{jobId}/savepoints/{requestId}",
		path:   "/jobs/" + url.PathEscape(jobID) + "/savepoints/" + url.PathEscape(requestID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
