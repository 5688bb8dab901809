package contracts

import (
	"context"

	"gorm.io/gorm"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/connector"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/warehouse"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

var SyncMeta = connector.JobMeta{
	Name:             "schema_contract_sync",
	Source:           "INTERNAL",
	Dataset:          "schema_contracts",
	Wave:             "OPS",
	SkipMunicipality: true,
	PeriodOptional:   true,
}

var DriftMeta = connector.JobMeta{
	Name:             "schema_drift_check",
	Source:           "INTERNAL",
	Dataset:          "schema_drift",
	Wave:             "OPS",
	SkipMunicipality: true,
	PeriodOptional:   true,
}

var (
	SyncJob  = connector.Job{Meta: SyncMeta, Body: runSync}
	DriftJob = connector.Job{Meta: DriftMeta, Body: runDrift}
)

func init() {
	connector.Register(SyncJob)
	connector.Register(DriftJob)
}

// registry prefers the warehouse rows and falls back to configs/connectors.yml
// on a database that was never seeded.
func registry(rc *connector.RunContext) ([]models.ConnectorRegistry, error) {
	entries, err := ops.LoadConnectorRegistry(rc.Env.DB)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	rc.Log.Warn("connector registry empty, reading registry file", "path", rc.Env.Settings.RegistryPath())
	return ops.LoadRegistryFile(rc.Env.Settings.RegistryPath())
}

func runSync(ctx context.Context, rc *connector.RunContext) (*connector.Outcome, error) {
	if rc.Env.DB == nil {
		return nil, errs.Errorf(errs.KindConfiguration, "contract sync needs a database")
	}
	cfg, err := LoadConfig(rc.Env.Settings.ContractsPath())
	if err != nil {
		return nil, err
	}
	entries, err := registry(rc)
	if err != nil {
		return nil, err
	}
	return SyncOutcome(entries, cfg, rc)
}

// SyncOutcome builds the contracts and defers their write to the run
// transaction.
func SyncOutcome(entries []models.ConnectorRegistry, cfg Config, rc *connector.RunContext) (*connector.Outcome, error) {
	built, err := Build(entries, cfg, rc.StartedAt)
	if err != nil {
		return nil, err
	}
	out := &connector.Outcome{
		Resolved:      true,
		RowsExtracted: int64(len(built)),
		OwnChecks:     true,
		Details:       map[string]any{"registry_entries": len(entries), "contracts": len(built)},
	}
	if len(built) == 0 {
		out.Warn("no eligible connectors in the registry")
	}
	out.Persist = func(ctx context.Context, w warehouse.Writer, o *connector.Outcome) error {
		return w.WithDB(ctx, func(tx *gorm.DB) error {
			res, err := Sync(tx, built)
			if err != nil {
				return err
			}
			o.RowsWritten = res.Upserted
			o.Details["deprecated"] = res.Deprecated
			o.Checks = syncChecks(len(built), res)
			return nil
		})
	}
	return out, nil
}

func syncChecks(built int, res SyncResult) []ops.Check {
	var checks []ops.Check
	if built > 0 {
		checks = append(checks, ops.Pass("schema_contracts_built", built, 1, nil))
	} else {
		checks = append(checks, ops.Warn("schema_contracts_built", built, 1, nil))
	}
	if res.Upserted == int64(built) {
		checks = append(checks, ops.Pass("schema_contracts_upserted", res.Upserted, built, nil))
	} else {
		checks = append(checks, ops.Fail("schema_contracts_upserted", res.Upserted, built, nil))
	}
	return append(checks, ops.Pass("schema_contracts_deprecated", res.Deprecated, nil, nil))
}

func runDrift(ctx context.Context, rc *connector.RunContext) (*connector.Outcome, error) {
	if rc.Env.DB == nil {
		return nil, errs.Errorf(errs.KindConfiguration, "drift check needs a database")
	}
	cfg, err := LoadConfig(rc.Env.Settings.ContractsPath())
	if err != nil {
		return nil, err
	}
	active, err := LoadActive(rc.Env.DB)
	if err != nil {
		return nil, err
	}
	return DriftOutcome(ctx, PostgresCatalog{DB: rc.Env.DB}, active, cfg.MaxConnectorsWithIssues)
}

// DriftOutcome runs the drift check; the run fails iff a check fails.
func DriftOutcome(ctx context.Context, cat Catalog, active []models.SchemaContract, maxWithIssues int) (*connector.Outcome, error) {
	rep, err := CheckDrift(ctx, cat, active, maxWithIssues)
	if err != nil {
		return nil, err
	}
	status := models.RunSuccess
	if ops.CountStatus(rep.Checks, models.CheckFail) > 0 {
		status = models.RunFailed
	}
	out := &connector.Outcome{
		Status:        status,
		Resolved:      true,
		RowsExtracted: int64(len(rep.Connectors)),
		Checks:        rep.Checks,
		OwnChecks:     true,
		Details:       map[string]any{"contracts_checked": len(rep.Connectors)},
	}
	if len(active) == 0 {
		out.Warn("no active schema contracts; run schema_contract_sync first")
	}
	for _, d := range rep.Connectors {
		if d.HasIssues() {
			out.Warn("schema drift on %s (%s)", d.Connector, d.TargetTable)
		}
	}
	return out, nil
}
