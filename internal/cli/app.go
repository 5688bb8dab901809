package cli

import (
	"context"
	"io"
	"log/slog"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/bronze/s3mirror"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/metrics"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// app holds what commands share: flags of the root and the lazily built
// collaborators.
type app struct {
	out      io.Writer
	logLevel string

	settings config.Settings
	log      *slog.Logger
	db       *gorm.DB
}

// setup loads and validates settings, installs the logger and opens the pool.
func (a *app) setup(ctx context.Context) error {
	s, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		s.LogLevel = a.logLevel
	}
	if err := s.Validate(); err != nil {
		return err
	}
	a.settings = s
	a.log = logging.Setup(s.LogLevel)
	a.log.Debug("settings loaded", "settings", s.String())

	a.db, err = db.Open(ctx, s.DatabaseURL, a.log)
	return err
}

// runtime wires the job runtime over the opened pool.
func (a *app) runtime(ctx context.Context) (*connector.Runtime, error) {
	s := a.settings
	client := httpclient.New(httpclient.Options{
		Timeout:           s.RequestTimeout,
		MaxRetries:        s.HTTPMaxRetries,
		Backoff:           s.HTTPBackoff,
		RequestsPerSecond: s.HTTPRequestsPerSecond,
		UserAgent:         appName + "/" + s.PipelineVersion,
	}, a.log)

	var mirror bronze.Mirror
	if s.BronzeS3Bucket != "" {
		m, err := s3mirror.New(ctx, s3mirror.Config{
			Bucket:    s.BronzeS3Bucket,
			Region:    s.BronzeS3Region,
			Endpoint:  s.BronzeS3Endpoint,
			PathStyle: s.BronzeS3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		mirror = m
	}
	store := bronze.NewStore(bronze.Config{
		BronzeRoot:      s.BronzeRoot(),
		ManifestsRoot:   s.ManifestsRoot(),
		Tool:            appName,
		Orchestrator:    s.OrchestratorName,
		PipelineVersion: s.PipelineVersion,
	}, mirror)

	return connector.NewRuntime(connector.Deps{
		Store:  warehouse.NewGorm(a.db, a.log),
		Bronze: store,
		Env: &connector.Env{
			Settings: s,
			HTTP:     client,
			Resolver: datasource.NewResolver(client, store, a.log),
			DB:       a.db,
			Log:      a.log,
		},
		Metrics: metrics.NewRecorder(),
		Log:     a.log,
	}), nil
}

// registry prefers the warehouse rows and falls back to the registry file.
func (a *app) registry() ([]models.ConnectorRegistry, error) {
	entries, err := ops.LoadConnectorRegistry(a.db)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return ops.LoadRegistryFile(a.settings.RegistryPath())
}
