package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"flinkctl/internal/artifactsource"
	"flinkctl/internal/config"
	"flinkctl/internal/deploy"
	"flinkctl/internal/history"
	"flinkctl/internal/jobmanager"
	"flinkctl/internal/notify"
	"flinkctl/internal/poll"
	"flinkctl/internal/session"
	"flinkctl/pkg/backoff"
)

// recorders carries the optional metrics sinks. Serve mode fills them from
// one *observability.Metrics; CLI invocations leave them nil.
type recorders struct {
	remote jobmanager.MetricsRecorder
	deploy deploy.MetricsRecorder
	notify notify.MetricsRecorder
}

// components are the collaborators one invocation wires from config.
type components struct {
	jm       *jobmanager.Client
	deployer *deploy.Deployer
	history  *history.Store // nil when history is disabled
	notifier *notify.Notifier
}

// close drains the notifier so queued events are delivered before exit.
func (c *components) close(ctx context.Context, logger *zap.Logger) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := c.notifier.Close(ctx); err != nil {
		logger.Warn("Notifier shutdown error", zap.Error(err))
	}
	stats := c.notifier.Stats()
	logger.Debug("Notifier stats",
		zap.Int64("delivered", stats.Delivered),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
	)
}

func (a *app) jobManager(m recorders) *jobmanager.Client {
	return jobmanager.New(jobManagerConfig(a.cfg.JobManager), a.logger, m.remote)
}

func jobManagerConfig(c config.JobManagerConfig) jobmanager.Config {
	return jobmanager.Config{
		Address:   c.Address,
		Port:      c.Port,
		Timeout:   c.Timeout,
		RateLimit: c.RateLimit,
		Burst:     c.Burst,
	}
}

func pollConfig(c config.PollConfig) poll.Config {
	return poll.Config{
		MaxRetries: c.MaxRetries,
		Interval:   c.RetrySleep,
		Backoff:    backoff.Parse(c.Backoff, c.RetrySleep, c.MaxSleep),
	}
}

func s3Config(c config.S3Config) artifactsource.S3Config {
	return artifactsource.S3Config{
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		Profile:         c.Profile,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		ForcePathStyle:  c.ForcePathStyle,
	}
}

func (a *app) historyStore() (*history.Store, error) {
	if !a.cfg.History.Enabled {
		return nil, nil
	}
	root := a.cfg.History.Dir
	if root == "" {
		var err error
		if root, err = history.DefaultRoot(); err != nil {
			return nil, err
		}
	}
	return history.NewStore(root), nil
}

func (a *app) sessionFinder() *session.Finder {
	return session.NewFinder(a.cfg.JobManager.Timeout, a.logger)
}

// components wires the job manager client, the deployer and its optional
// history and notifier. The caller must close the result.
func (a *app) components(m recorders) (*components, error) {
	c := &components{jm: a.jobManager(m)}

	store, err := a.historyStore()
	if err != nil {
		return nil, err
	}
	c.history = store

	if a.cfg.Notify.URL != "" {
		n, err := notify.New(notify.Config{
			URL:        a.cfg.Notify.URL,
			SigningKey: config.GetSecretFile(a.cfg.Notify.SigningKeyFile),
			Timeout:    a.cfg.Notify.Timeout,
			BufferSize: a.cfg.Notify.Buffer,
			Workers:    a.cfg.Notify.Workers,
		}, a.logger, m.notify)
		if err != nil {
			return nil, err
		}
		c.notifier = n
	}

	opts := deploy.Options{
		Resolver: artifactsource.NewResolver(artifactsource.Options{
			S3:     s3Config(a.cfg.S3),
			Logger: a.logger,
		}),
		Metrics:  m.deploy,
		Logger:   a.logger,
		Poll:     pollConfig(a.cfg.Poll),
		Deadline: a.cfg.Deploy.Deadline,
	}
	// Interface fields stay nil unless the concrete value exists.
	if c.history != nil {
		opts.History = c.history
	}
	if c.notifier != nil {
		opts.Notifier = c.notifier
	}
	c.deployer = deploy.New(c.jm, opts)
	return c, nil
}
