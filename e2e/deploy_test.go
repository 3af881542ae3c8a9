//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flinkctl/internal/api"
	"flinkctl/internal/deploy"
	"flinkctl/internal/health"
	"flinkctl/internal/jobmanager"
	"flinkctl/internal/poll"
)

// The suite needs a live job manager:
//
//	FLINK_E2E_ADDRESS        host:port of the REST endpoint
//	FLINK_E2E_JAR            a streaming job jar that keeps running
//	FLINK_E2E_SAVEPOINT_DIR  savepoint directory reachable by the cluster
func clusterClient(t *testing.T) *jobmanager.Client {
	t.Helper()
	addr := os.Getenv("FLINK_E2E_ADDRESS")
	if addr == "" {
		t.Skip("FLINK_E2E_ADDRESS not set")
	}
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return jobmanager.New(jobmanager.Config{Address: host, Port: port}, nil, nil)
}

func requireEnv(t *testing.T, key string) string {
	t.Helper()
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}
	return v
}

func newDeployer(jm *jobmanager.Client) *deploy.Deployer {
	return deploy.New(jm, deploy.Options{
		Poll:     poll.Config{MaxRetries: 60, Interval: time.Second},
		Deadline: 5 * time.Minute,
	})
}

func waitRunning(t *testing.T, jm *jobmanager.Client, jobID string) {
	t.Helper()
	_, err := poll.Until(context.Background(), poll.Config{MaxRetries: 60, Interval: time.Second},
		"job "+jobID+" running", func(ctx context.Context, _ int) (struct{}, bool, error) {
			job, err := jm.JobInfo(ctx, jobID)
			if err != nil {
				return struct{}{}, false, err
			}
			return struct{}{}, job.State == jobmanager.Running, nil
		})
	require.NoError(t, err)
}

func TestOverview(t *testing.T) {
	jm := clusterClient(t)

	overview, err := jm.Overview(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, overview.FlinkVersion)
}

func TestFreshThenStatefulRedeploy(t *testing.T) {
	jm := clusterClient(t)
	jar := requireEnv(t, "FLINK_E2E_JAR")
	savepointDir := requireEnv(t, "FLINK_E2E_SAVEPOINT_DIR")
	ctx := context.Background()
	d := newDeployer(jm)

	first, err := d.Submit(ctx, deploy.Intent{JarPath: jar})
	require.NoError(t, err)
	require.NotEmpty(t, first.JobID)
	waitRunning(t, jm, first.JobID)

	second, err := d.Submit(ctx, deploy.Intent{JarPath: jar, JobID: first.JobID, TargetDir: savepointDir})
	require.NoError(t, err)
	assert.Equal(t, deploy.ModeStateful, second.Mode)
	assert.NotEmpty(t, second.SavepointPath)
	require.NotEmpty(t, second.JobID)
	waitRunning(t, jm, second.JobID)

	old, err := jm.JobInfo(ctx, first.JobID)
	require.NoError(t, err)
	assert.NotEqual(t, jobmanager.Running, old.State)

	state, err := d.CancelJob(ctx, second.JobID)
	require.NoError(t, err)
	assert.Equal(t, string(jobmanager.Canceled), state)

	for _, id := range []string{first.JarID, second.JarID} {
		assert.NoError(t, jm.DeleteJar(ctx, id))
	}
}

func TestServeAPI(t *testing.T) {
	jm := clusterClient(t)
	jar := requireEnv(t, "FLINK_E2E_JAR")

	router := api.NewRouter(api.RouterConfig{
		Handler: api.NewHandler(newDeployer(jm), jm, health.NewChecker(jm), nil),
		APIKey:  "e2e-key",
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := json.Marshal(deploy.Intent{JarPath: jar})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/deployments", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer e2e-key")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res deploy.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	waitRunning(t, jm, res.JobID)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/v1/jobs/"+res.JobID+"/cancel", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer e2e-key")
	cancelResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusOK, cancelResp.StatusCode)

	assert.NoError(t, jm.DeleteJar(context.Background(), res.JarID))
}
