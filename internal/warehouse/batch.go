// Package warehouse performs the idempotent writes of a run: dimension and
// fact upserts keyed on each table's unique tuple, plus the ops rows, all in
// the caller's transaction.
package warehouse

import (
	"context"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/territory"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

// Batch holds every row a run writes.
type Batch struct {
	Territories      []models.DimTerritory
	Indicators       []models.FactIndicator
	Electorate       []models.FactElectorate
	ElectionResults  []models.FactElectionResult
	SocialProtection []models.FactSocialProtection
	SocialAssistance []models.FactSocialAssistanceNetwork
}

// Len is the total row count of the batch.
func (b Batch) Len() int {
	return len(b.Territories) + len(b.Indicators) + len(b.Electorate) +
		len(b.ElectionResults) + len(b.SocialProtection) + len(b.SocialAssistance)
}

// TableCount reports rows written to one table.
type TableCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Total sums TableCount rows.
func Total(counts []TableCount) int64 {
	var n int64
	for _, c := range counts {
		n += c.Rows
	}
	return n
}

// Writer is the transaction-scoped handle handed to a run's persist step.
type Writer interface {
	WriteBatch(ctx context.Context, b Batch) ([]TableCount, error)
	RecordRun(ctx context.Context, run models.PipelineRun, checks []ops.Check) error
	// WithDB exposes the underlying transaction for writes outside Batch.
	WithDB(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is what the job runtime needs from the warehouse.
type Store interface {
	ResolveMunicipality(ctx context.Context, ibgeCode string) (territory.Municipality, error)
	InTransaction(ctx context.Context, fn func(Writer) error) error
}
