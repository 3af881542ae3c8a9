// Package session finds the job manager endpoint of a named session running
// on a YARN resource manager.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"flinkctl/internal/apperrors"
)

const (
	appsPath     = "/ws/v1/cluster/apps"
	stateRunning = "RUNNING"
)

// Endpoint is the RPC address of a session's application master.
type Endpoint struct {
	Host string `json:"host" yaml:"host"`
	Port string `json:"port" yaml:"port"`
}

// App is one application reported by the resource manager.
type App struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	State        string `json:"state"`
	AMRPCAddress string `json:"amRPCAddress"`
}

type appsResponse struct {
	Apps *struct {
		App []App `json:"app"`
	} `json:"apps"`
}

// Finder queries resource managers for running sessions.
type Finder struct {
	client *http.Client
	logger *zap.Logger
}

// NewFinder creates a finder. A zero timeout uses 30s.
func NewFinder(timeout time.Duration, logger *zap.Logger) *Finder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Finder{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(zap.String("component", "session")),
	}
}

// FindEndpoint returns the endpoint of the single RUNNING app called name.
// No match is apperrors.ErrSessionNotFound; several are apperrors.ErrAmbiguousSession.
func (f *Finder) FindEndpoint(ctx context.Context, rmAddress string, rmPort int, name string) (Endpoint, error) {
	if strings.TrimSpace(name) == "" {
		return Endpoint{}, apperrors.Validation("sessionName", "session name is required")
	}
	if strings.TrimSpace(rmAddress) == "" {
		return Endpoint{}, apperrors.Validation("rmAddress", "resource manager address is required")
	}

	apps, err := f.listApps(ctx, rmAddress, rmPort)
	if err != nil {
		return Endpoint{}, err
	}

	app, err := selectRunning(apps, name)
	if err != nil {
		return Endpoint{}, err
	}

	ep, err := parseRPCAddress(app.AMRPCAddress)
	if err != nil {
		return Endpoint{}, fmt.Errorf("app %s: %w", app.ID, err)
	}

	f.logger.Info("Found session",
		zap.String("session", name),
		zap.String("appId", app.ID),
		zap.String("host", ep.Host),
		zap.String("port", ep.Port),
	)
	return ep, nil
}

func (f *Finder) listApps(ctx context.Context, rmAddress string, rmPort int) ([]App, error) {
	target := "http://" + net.JoinHostPort(rmAddress, strconv.Itoa(rmPort)) + appsPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", appsPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("GET %s: HTTP %d: %s: %w",
			appsPath, resp.StatusCode, strings.TrimSpace(string(body)), apperrors.ErrRemoteCall)
	}

	var out appsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode apps: %w", err)
	}
	if out.Apps == nil {
		return nil, nil
	}
	return out.Apps.App, nil
}

func selectRunning(apps []App, name string) (App, error) {
	var matches []App
	for _, app := range apps {
		if app.State == stateRunning && app.Name == name {
			matches = append(matches, app)
		}
	}

	switch len(matches) {
	case 0:
		return App{}, apperrors.SessionNotFound(name)
	case 1:
		return matches[0], nil
	default:
		return App{}, apperrors.AmbiguousSession(name, len(matches))
	}
}

func parseRPCAddress(addr string) (Endpoint, error) {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return Endpoint{}, fmt.Errorf("malformed amRPCAddress %q: %w", addr, err)
	}
	if host == "" || port == "" {
		return Endpoint{}, fmt.Errorf("malformed amRPCAddress %q: host and port are required", addr)
	}
	return Endpoint{Host: host, Port: port}, nil
}
