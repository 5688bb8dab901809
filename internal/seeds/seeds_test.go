package seeds

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vthamada/territorial-intelligence-platform-sub001/models"
)

func TestDiff(t *testing.T) {
	entries := []models.ConnectorRegistry{
		{ConnectorName: "inep_censo_escolar", Source: "INEP", Wave: "MVP-1", Status: models.ConnectorImplemented},
		{ConnectorName: "datasus_cnes", Source: "DATASUS", Wave: "MVP-1", Status: models.ConnectorImplemented},
		{ConnectorName: "mds_cadunico", Source: "MDS", Wave: "MVP-2", Status: models.ConnectorImplemented},
	}
	existing := []models.ConnectorRegistry{
		{ConnectorName: "inep_censo_escolar", Source: "INEP", Wave: "MVP-1", Status: models.ConnectorImplemented},
		{ConnectorName: "datasus_cnes", Source: "DATASUS", Wave: "MVP-1", Status: models.ConnectorPartial},
		{ConnectorName: "legacy_probe", Source: "X", Wave: "MVP-0", Status: models.ConnectorBlocked},
	}

	plan := Diff(entries, existing)
	assert.Equal(t, 1, plan.Inserted)
	assert.Equal(t, 1, plan.Updated)
	assert.Len(t, plan.Entries, 3)

	assert.Equal(t, Plan{}, Diff(nil, nil))
}
