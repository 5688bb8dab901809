// Package warehousetest provides an in-memory warehouse.Store for tests.
package warehousetest

import (
	"context"
	"errors"
	"sync"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// RecordedRun is one RecordRun call that was committed.
type RecordedRun struct {
	Run    models.PipelineRun
	Checks []ops.Check
}

// Store keeps committed batches and runs in memory. A transaction's writes
// become visible only when fn returns nil.
type Store struct {
	mu sync.Mutex

	Municipality *territory.Municipality
	// FailWrite makes WriteBatch fail with a warehouse error.
	FailWrite bool
	// FailRecord makes RecordRun fail.
	FailRecord bool

	Batches []warehouse.Batch
	Runs    []RecordedRun
	Commits int
}

// New returns a store that resolves m.
func New(m territory.Municipality) *Store {
	return &Store{Municipality: &m}
}

func (s *Store) ResolveMunicipality(_ context.Context, code string) (territory.Municipality, error) {
	if s.Municipality == nil || s.Municipality.IBGECode != code {
		return territory.Municipality{}, errs.E(errs.KindContextNotReady, "resolve municipality "+code, territory.ErrNotBootstrapped)
	}
	return *s.Municipality, nil
}

func (s *Store) InTransaction(ctx context.Context, fn func(warehouse.Writer) error) error {
	w := &writer{store: s}
	if err := fn(w); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches = append(s.Batches, w.batches...)
	s.Runs = append(s.Runs, w.runs...)
	s.Commits++
	return nil
}

// LastRun returns the most recent committed run.
func (s *Store) LastRun() (RecordedRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Runs) == 0 {
		return RecordedRun{}, false
	}
	return s.Runs[len(s.Runs)-1], true
}

type writer struct {
	store   *Store
	batches []warehouse.Batch
	runs    []RecordedRun
}

func (w *writer) WriteBatch(_ context.Context, b warehouse.Batch) ([]warehouse.TableCount, error) {
	if w.store.FailWrite {
		return nil, errs.E(errs.KindWarehouse, "upsert fact_indicator", errors.New("forced failure"))
	}
	w.batches = append(w.batches, b)
	var counts []warehouse.TableCount
	add := func(table string, n int) {
		if n > 0 {
			counts = append(counts, warehouse.TableCount{Table: table, Rows: int64(n)})
		}
	}
	add(models.DimTerritory{}.TableName(), len(b.Territories))
	add(models.FactIndicator{}.TableName(), len(b.Indicators))
	add(models.FactElectorate{}.TableName(), len(b.Electorate))
	add(models.FactElectionResult{}.TableName(), len(b.ElectionResults))
	add(models.FactSocialProtection{}.TableName(), len(b.SocialProtection))
	add(models.FactSocialAssistanceNetwork{}.TableName(), len(b.SocialAssistance))
	return counts, nil
}

func (w *writer) RecordRun(_ context.Context, run models.PipelineRun, checks []ops.Check) error {
	if w.store.FailRecord {
		return errs.E(errs.KindWarehouse, "upsert pipeline_run", errors.New("forced failure"))
	}
	w.runs = append(w.runs, RecordedRun{Run: run, Checks: append([]ops.Check(nil), checks...)})
	return nil
}

// WithDB is unsupported in memory.
func (w *writer) WithDB(context.Context, func(*gorm.DB) error) error {
	return errors.New("warehousetest: WithDB is not supported")
}
