package warehouse

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Gorm is the Postgres-backed Store.
type Gorm struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewGorm(d *gorm.DB, log *slog.Logger) *Gorm {
	if log == nil {
		log = slog.Default()
	}
	return &Gorm{db: d, log: log}
}

// DB returns the underlying handle for read-only reporting queries.
func (g *Gorm) DB() *gorm.DB { return g.db }

func (g *Gorm) ResolveMunicipality(ctx context.Context, code string) (territory.Municipality, error) {
	return territory.ResolveMunicipality(ctx, g.db, code)
}

// InTransaction commits when fn returns nil and rolls back otherwise.
func (g *Gorm) InTransaction(ctx context.Context, fn func(Writer) error) error {
	return db.WithSession(ctx, g.db, func(tx *gorm.DB) error {
		return fn(&gormWriter{tx: tx, log: g.log})
	})
}

type gormWriter struct {
	tx  *gorm.DB
	log *slog.Logger
}

func (w *gormWriter) WriteBatch(ctx context.Context, b Batch) ([]TableCount, error) {
	start := time.Now()
	counts, err := Write(w.tx.WithContext(ctx), b)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		w.log.Info("upsert", "table", c.Table, "rows", c.Rows, "duration_ms", time.Since(start).Milliseconds())
	}
	return counts, nil
}

// RecordRun upserts the run row and replaces its checks.
func (w *gormWriter) RecordRun(ctx context.Context, run models.PipelineRun, checks []ops.Check) error {
	tx := w.tx.WithContext(ctx)
	if err := ops.UpsertPipelineRun(tx, run); err != nil {
		return err
	}
	return ops.ReplacePipelineChecks(tx, run.RunID, checks)
}

func (w *gormWriter) WithDB(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(w.tx.WithContext(ctx))
}
