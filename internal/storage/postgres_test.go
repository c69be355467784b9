package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Set TEST_DATABASE_URL to run against a real Postgres.
func TestPostgresStore_Suite(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("jobs_test_%d", time.Now().UnixNano())
	store, err := NewPostgresStore(ctx, url, table, zerolog.Nop())
	require.NoError(t, err)
	defer func() {
		_, _ = store.pool.Exec(ctx, "DROP TABLE IF EXISTS "+store.table)
		store.Close()
	}()

	require.NoError(t, store.HealthCheck(ctx))
	assert.Equal(t, "postgres", store.Name())
	runStoreSuite(t, store)
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "postgres://app:%2A%2A%2A@db:5432/jobs", maskDSN("postgres://app:secret@db:5432/jobs"))
	assert.Equal(t, "postgres://app@db/jobs", maskDSN("postgres://app@db/jobs"))
	assert.Equal(t, "***", maskDSN("postgres://%zz"))
}
