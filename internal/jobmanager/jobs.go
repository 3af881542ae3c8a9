package jobmanager

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
)

// ListJobs returns every job known to the job manager.
func (c *Client) ListJobs(ctx context.Context) (*JobList, error) {
	var out JobList
	if err := c.do(ctx, request{method: http.MethodGet, route: "/jobs", path: "/jobs"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobInfo returns the details of one job.
func (c *Client) JobInfo(ctx context.Context, jobID string) (*JobDetails, error) {
	var out JobDetails
	err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "/jobs/{jobId}",
		path:   "/jobs/" + url.PathEscape(jobID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelJob requests cancellation without a savepoint. It returns once the
// request is accepted; the job stops asynchronously.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	c.logger.Info("Cancelling job", zap.String("jobId", jobID))

	err := c.do(ctx, request{
		method: http.MethodPatch,
		route:  "/jobs/{jobId}",
		path:   "/jobs/" + url.PathEscape(jobID),
		query:  url.Values{"mode": {"cancel"}},
	}, nil)
	if err != nil {
		if rce, ok := asRemote(err); ok {
			return apperrors.JobIDNotFound(jobID, rce.Reason(), err)
		}
		return err
	}
	return nil
}

// Overview returns the cluster overview.
func (c *Client) Overview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.do(ctx, request{method: http.MethodGet, route: "/overview", path: "/overview"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
