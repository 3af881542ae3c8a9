package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
)

// jarFormField is the multipart field the upload endpoint reads.
const jarFormField = "jarfile"

// ListJars returns the uploaded jars.
func (c *Client) ListJars(ctx context.Context) (*JarList, error) {
	var out JarList
	if err := c.do(ctx, request{method: http.MethodGet, route: "/jars", path: "/jars"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteJar removes an uploaded jar.
func (c *Client) DeleteJar(ctx context.Context, jarID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		route:  "/jars/{jarId}",
		path:   "/jars/" + url.PathEscape(jarID),
	}, nil)
}

// UploadJar uploads the file at jarPath and returns the server-assigned jar id.
// A rejected upload is reported as apperrors.ErrInvalidArtifact.
func (c *Client) UploadJar(ctx context.Context, jarPath string) (string, error) {
	f, err := os.Open(jarPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	logger := c.logger.With(zap.String("jarPath", jarPath))

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile(jarFormField, filepath.Base(jarPath))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var out uploadResponse
	err = c.do(ctx, request{
		method:      http.MethodPost,
		route:       "/jars/upload",
		path:        "/jars/upload",
		raw:         pr,
		contentType: mw.FormDataContentType(),
	}, &out)
	// Unblocks the writer goroutine if the request ended early.
	pr.CloseWithError(errors.New("upload finished"))
	if err != nil {
		logger.Warn("Unable to upload jar to cluster", zap.Error(err))
		if _, ok := asRemote(err); ok {
			return "", apperrors.InvalidArtifact(jarPath, err)
		}
		return "", err
	}
	if out.Filename == "" {
		return "", fmt.Errorf("upload of %s: response has no filename", jarPath)
	}

	jarID := path.Base(out.Filename)
	logger.Info("Uploaded jar to cluster", zap.String("jarId", jarID))
	return jarID, nil
}

// RunJar starts a job from an uploaded jar. Nil params sends no request body.
// A rejected run is reported as apperrors.ErrJobStartFailed.
func (c *Client) RunJar(ctx context.Context, jarID string, params *RunParams) (*RunResponse, error) {
	req := request{
		method: http.MethodPost,
		route:  "/jars/{jarId}/run",
		path:   "/jars/" + url.PathEscape(jarID) + "/run",
	}
	if params != nil {
		req.body = params
	}

	c.logger.Info("Starting job for uploaded jar", zap.String("jarId", jarID))

	var out RunResponse
	if err := c.do(ctx, req, &out); err != nil {
		if rce, ok := asRemote(err); ok {
			return nil, apperrors.JobStartFailed(jarID, rce.Reason(), err)
		}
		return nil, err
	}
	return &out, nil
}
