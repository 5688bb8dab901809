package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

func TestNumericValue(t *testing.T) {
	f := 2.5
	for _, v := range []any{3, int64(3), uint8(3), float32(3), 3.0, decimal.NewFromInt(3)} {
		got := NumericValue(v)
		require.NotNil(t, got, "%T", v)
		assert.Equal(t, 3.0, *got)
	}
	assert.Equal(t, 2.5, *NumericValue(&f))
	for _, v := range []any{true, "3", nil, []int{1}, (*float64)(nil)} {
		assert.Nil(t, NumericValue(v), "%T", v)
	}
}

func TestCheckRows(t *testing.T) {
	runID := uuid.New()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := CheckRows(runID, []Check{
		Pass("rows_extracted", 10, 1, nil),
		Warn("flag", true, "x", map[string]any{"reason": "r"}),
	}, now)
	require.Len(t, rows, 2)
	assert.Equal(t, runID, rows[0].RunID)
	assert.Equal(t, 10.0, *rows[0].ObservedValue)
	assert.Equal(t, 1.0, *rows[0].ThresholdValue)
	assert.Nil(t, rows[1].ObservedValue)
	assert.Nil(t, rows[1].ThresholdValue)
	assert.Equal(t, "r", rows[1].Details.Map()["reason"])
	assert.Equal(t, "{}", string(rows[0].Details))
	assert.NotEqual(t, rows[0].CheckID, rows[1].CheckID)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, models.CheckPass, Worst(nil))
	assert.Equal(t, models.CheckWarn, Worst([]Check{Pass("a", 1, 1, nil), Warn("b", 0, 1, nil)}))
	assert.Equal(t, models.CheckFail, Worst([]Check{Fail("a", 1, 1, nil), Warn("b", 0, 1, nil)}))
	assert.Equal(t, 1, CountStatus([]Check{Fail("a", 1, 1, nil), Warn("b", 0, 1, nil)}, models.CheckFail))
}

func TestLoadRegistryFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "connectors.yml")
	require.NoError(t, os.WriteFile(p, []byte(`connectors:
  - connector_name: ibge_admin_bootstrap
    source: IBGE
    wave: MVP-1
    status: implemented
    notes: territories
  - connector_name: mds_censo_suas
    source: MDS
    wave: MVP-4
    status: planned
`), 0o644))
	entries, err := LoadRegistryFile(p)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"ibge_admin_bootstrap"}, Implemented(entries))

	require.NoError(t, os.WriteFile(p, []byte("connectors:\n  - connector_name: x\n    status: done\n"), 0o644))
	_, err = LoadRegistryFile(p)
	assert.True(t, errs.Is(err, errs.KindValidation))
}
