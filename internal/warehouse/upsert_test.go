package warehouse

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

func TestDedupeKeepsLastValueInFirstPosition(t *testing.T) {
	tid := uuid.New()
	rows := []models.FactIndicator{
		{TerritoryID: tid, Source: "INEP", IndicatorCode: "a", ReferencePeriod: "2024", Value: decimal.NewFromInt(1)},
		{TerritoryID: tid, Source: "INEP", IndicatorCode: "b", ReferencePeriod: "2024", Value: decimal.NewFromInt(2)},
		{TerritoryID: tid, Source: "INEP", IndicatorCode: "a", ReferencePeriod: "2024", Value: decimal.NewFromInt(3)},
	}
	out := Dedupe(rows, func(r models.FactIndicator) string {
		return key(r.TerritoryID, r.Source, r.Dataset, r.IndicatorCode, r.Category, r.ReferencePeriod)
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "a", out[0].IndicatorCode)
	assert.True(t, out[0].Value.Equal(decimal.NewFromInt(3)))
}

func TestBatchLenAndTotal(t *testing.T) {
	b := Batch{
		Territories: make([]models.DimTerritory, 2),
		Indicators:  make([]models.FactIndicator, 3),
		Electorate:  make([]models.FactElectorate, 1),
	}
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, int64(5), Total([]TableCount{{Table: "a", Rows: 2}, {Table: "b", Rows: 3}}))
}

func TestKeySeparatesParts(t *testing.T) {
	assert.NotEqual(t, key("ab", "c"), key("a", "bc"))
}
