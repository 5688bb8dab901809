package connector

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/config"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/datasource"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
)

// HTTP is the subset of *httpclient.Client job bodies use.
type HTTP interface {
	GetJSON(ctx context.Context, url string, ro httpclient.RequestOptions, out any) error
	GetBytes(ctx context.Context, url string, ro httpclient.RequestOptions) (httpclient.Payload, error)
}

// Env carries the shared collaborators of every job body in a process.
type Env struct {
	Settings config.Settings
	HTTP     HTTP
	Resolver *datasource.Resolver
	// DB is the read handle used by warehouse-wide jobs (quality, contracts).
	DB  *gorm.DB
	Log *slog.Logger
}

// FetchOptions maps run overrides onto per-request HTTP options.
func (rc *RunContext) FetchOptions(minBytes int, contentTypes []string) httpclient.RequestOptions {
	return httpclient.RequestOptions{
		Timeout:              rc.Options.Timeout,
		MaxRetries:           rc.Options.MaxRetries,
		MinBytes:             minBytes,
		ExpectedContentTypes: contentTypes,
	}
}
