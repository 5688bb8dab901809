package seeds

import (
	"context"
	"os"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/db"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/logging"
	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/ops"
)

func TestSeedAllIsIdempotent(t *testing.T) {
	_ = godotenv.Load("../../.env.local")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	ctx := context.Background()
	d, err := db.Open(ctx, dsn, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(db.Close)

	opts := Options{RegistryPath: "../../configs/connectors.yml", Migrate: true, AdvisoryLock: 424242}
	_, err = SeedAll(ctx, d, opts, logging.Discard())
	require.NoError(t, err)

	again, err := SeedAll(ctx, d, opts, logging.Discard())
	require.NoError(t, err)
	assert.Zero(t, again.Inserted)
	assert.Zero(t, again.Updated)

	stored, err := ops.LoadConnectorRegistry(d)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(stored), len(again.Entries))
}
