package jobmanager

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flinkctl/internal/apperrors"
)

// newTestClient points a client at srv.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return New(Config{Address: host, Port: port, Timeout: 5 * time.Second}, nil, nil)
}

func writeJar(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("PK\x03\x04fake"), 0o600))
	return p
}

type recordedCall struct {
	route  string
	status int
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) RecordRemoteCall(_ context.Context, route string, status int, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{route, status})
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	c := New(Config{}, nil, nil)
	assert.Equal(t, "http://localhost:8081", c.BaseURL())
	assert.Equal(t, 30*time.Second, c.http.Timeout)
	assert.Nil(t, c.limiter)

	limited := New(Config{Address: "jm", Port: 9000, RateLimit: 5}, nil, nil)
	assert.Equal(t, "http://jm:9000", limited.BaseURL())
	require.NotNil(t, limited.limiter)
	assert.Equal(t, 1, limited.limiter.Burst())
}

func TestDo_RemoteCallError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":["boom"]}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).ListJobs(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrRemoteCall)
	var rce *RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, http.MethodGet, rce.Method)
	assert.Equal(t, "/jobs", rce.Path)
	assert.Equal(t, http.StatusInternalServerError, rce.StatusCode)
	assert.Equal(t, `{"errors":["boom"]}`, rce.Reason())
}

func TestDo_NetworkErrorIsNotClassified(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.JobInfo(context.Background(), "j1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrRemoteCall)
	assert.NotErrorIs(t, err, apperrors.ErrJobIDNotFound)
}

func TestDo_RecordsRouteTemplate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(JobDetails{ID: "abc", State: Running})
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	c := newTestClient(t, srv)
	c.metrics = rec

	_, err := c.JobInfo(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, rec.calls, 1)
	assert.Equal(t, recordedCall{"/jobs/{jobId}", http.StatusOK}, rec.calls[0])
}

func TestRemoteCallError_Reason(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Bad Request", (&RemoteCallError{StatusCode: 400}).Reason())
	assert.Equal(t, "POST /jars/upload: HTTP 400", (&RemoteCallError{Method: "POST", Path: "/jars/upload", StatusCode: 400}).Error())
}

func TestUploadJar(t *testing.T) {
	t.Parallel()
	var gotName string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jars/upload", r.URL.Path)
		f, hdr, err := r.FormFile("jarfile")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		gotName = hdr.Filename
		gotBody, _ = io.ReadAll(f)
		_, _ = io.WriteString(w, `{"filename":"/tmp/flink-web-1/flink-web-upload/7c3e_app.jar","status":"success"}`)
	}))
	defer srv.Close()

	jarPath := writeJar(t, "app.jar")
	jarID, err := newTestClient(t, srv).UploadJar(context.Background(), jarPath)

	require.NoError(t, err)
	assert.Equal(t, "7c3e_app.jar", jarID)
	assert.Equal(t, "app.jar", gotName)
	assert.Equal(t, []byte("PK\x03\x04fake"), gotBody)
}

func TestUploadJar_RejectedIsInvalidArtifact(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "not a jar", http.StatusBadRequest)
	}))
	defer srv.Close()

	jarPath := writeJar(t, "broken.jar")
	_, err := newTestClient(t, srv).UploadJar(context.Background(), jarPath)

	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)
	assert.Contains(t, err.Error(), jarPath)

	var rce *RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, http.StatusBadRequest, rce.StatusCode)
}

func TestUploadJar_MissingFile(t *testing.T) {
	t.Parallel()
	c := New(Config{}, nil, nil)

	_, err := c.UploadJar(context.Background(), filepath.Join(t.TempDir(), "missing.jar"))

	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidArtifact)
}

func TestRunJar(t *testing.T) {
	t.Parallel()
	allow := true
	parallelism := 4
	savepoint := "/sp/1"

	tests := []struct {
		name     string
		params   *RunParams
		wantBody string
	}{
		{"no params sends no body", nil, ""},
		{
			"unset params are omitted",
			&RunParams{AllowNonRestoredState: &allow, Parallelism: &parallelism, SavepointPath: &savepoint},
			`{"allowNonRestoredState":true,"parallelism":4,"savepointPath":"/sp/1"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var gotBody []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/jars/app.jar/run", r.URL.Path)
				gotBody, _ = io.ReadAll(r.Body)
				_, _ = io.WriteString(w, `{"jobid":"job-42"}`)
			}))
			defer srv.Close()

			resp, err := newTestClient(t, srv).RunJar(context.Background(), "app.jar", tt.params)

			require.NoError(t, err)
			assert.Equal(t, "job-42", resp.JobID)
			if tt.wantBody == "" {
				assert.Empty(t, gotBody)
			} else {
				assert.JSONEq(t, tt.wantBody, string(gotBody))
			}
		})
	}
}

func TestRunJar_RejectedIsJobStartFailed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ClassNotFoundException", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).RunJar(context.Background(), "app.jar", nil)

	assert.ErrorIs(t, err, apperrors.ErrJobStartFailed)
	assert.ErrorIs(t, err, apperrors.ErrRemoteCall)
	assert.Contains(t, err.Error(), "ClassNotFoundException")
}

func TestTriggerSavepoint(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/jobs/j1/savepoints/", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"target-directory": "s3://sp", "cancel-job": true}, body)
		_, _ = io.WriteString(w, `{"request-id":"r-1"}`)
	}))
	defer srv.Close()

	reqID, err := newTestClient(t, srv).TriggerSavepoint(context.Background(), "j1", "s3://sp", true)

	require.NoError(t, err)
	assert.Equal(t, "r-1", reqID)
}

func TestTriggerSavepoint_RejectedIsJobIDNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).TriggerSavepoint(context.Background(), "nope", "/sp", false)

	assert.ErrorIs(t, err, apperrors.ErrJobIDNotFound)
	assert.Contains(t, err.Error(), "job not found")
}

func TestSavepointStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		body         string
		wantStatus   SavepointStatus
		wantLocation string
		wantFailure  string
	}{
		{"in progress", `{"status":{"id":"IN_PROGRESS"}}`, SavepointInProgress, "", ""},
		{"completed", `{"status":{"id":"COMPLETED"},"operation":{"location":"/sp/1"}}`, SavepointCompleted, "/sp/1", ""},
		{
			"failed",
			`{"status":{"id":"COMPLETED"},"operation":{"failure-cause":{"class":"java.lang.Exception","stack-trace":"boom"}}}`,
			SavepointCompleted, "", "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/jobs/j1/savepoints/r-1", r.URL.Path)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			info, err := newTestClient(t, srv).SavepointStatus(context.Background(), "j1", "r-1")

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, info.Status.ID)
			assert.Equal(t, tt.wantLocation, info.Operation.Location)
			if tt.wantFailure == "" {
				assert.Nil(t, info.Operation.FailureCause)
			} else {
				require.NotNil(t, info.Operation.FailureCause)
				assert.Equal(t, tt.wantFailure, info.Operation.FailureCause.StackTrace)
			}
		})
	}
}

func TestCancelJob(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/jobs/j1", r.URL.Path)
		assert.Equal(t, "cancel", r.URL.Query().Get("mode"))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv).CancelJob(context.Background(), "j1"))
}

func TestCancelJob_RejectedIsJobIDNotFound(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown job", http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(t, srv).CancelJob(context.Background(), "j1")

	assert.ErrorIs(t, err, apperrors.ErrJobIDNotFound)
	assert.Equal(t, "could not find job=<j1>: unknown job", err.Error())
}

func TestJarsAndJobs(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /jars", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"address":"http://jm:8081","files":[{"id":"a_app.jar","name":"app.jar","uploaded":1700000000000,"entry":[{"name":"com.example.Main"}]}]}`)
	})
	mux.HandleFunc("DELETE /jars/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a_app.jar", r.PathValue("id"))
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("GET /jobs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jobs":[{"id":"j1","status":"RUNNING"},{"id":"j2","status":"CANCELED"}]}`)
	})
	mux.HandleFunc("GET /overview", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"taskmanagers":2,"slots-total":8,"slots-available":3,"jobs-running":1,"flink-version":"1.18.1"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	jars, err := c.ListJars(ctx)
	require.NoError(t, err)
	require.Len(t, jars.Files, 1)
	assert.Equal(t, "com.example.Main", jars.Files[0].Entry[0].Name)

	require.NoError(t, c.DeleteJar(ctx, "a_app.jar"))

	jobs, err := c.ListJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []JobSummary{{"j1", Running}, {"j2", Canceled}}, jobs.Jobs)

	ov, err := c.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ov.TaskManagers)
	assert.Equal(t, "1.18.1", ov.FlinkVersion)
}

func TestRateLimitHonorsContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jobs":[]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.limiter = New(Config{RateLimit: 0.001, Burst: 1}, nil, nil).limiter

	_, err := c.ListJobs(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.ListJobs(ctx)
	assert.Error(t, err)
}
