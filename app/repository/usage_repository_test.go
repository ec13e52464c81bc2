package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/database/dbtest"
)

func TestUsageRepository_IncrementAndGet(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewUsageRepository(db)
	ctx := context.Background()

	used, err := repo.Get(ctx, 1, models.UsageKindMessage, "2026-10-15")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	used, err = repo.Increment(ctx, 1, models.UsageKindMessage, "2026-10-15", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)

	used, err = repo.Increment(ctx, 1, models.UsageKindMessage, "2026-10-15", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), used)

	// Other periods and kinds are separate counters.
	used, err = repo.Increment(ctx, 1, models.UsageKindMessage, "2026-10-16", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), used)
	used, err = repo.Get(ctx, 1, models.UsageKindExtremeSearch, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	var rows int64
	require.NoError(t, db.Model(&models.Usage{}).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestUsageRepository_ConcurrentIncrements(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewUsageRepository(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Increment(ctx, 7, models.UsageKindExtremeSearch, "2026-10", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	used, err := repo.Get(ctx, 7, models.UsageKindExtremeSearch, "2026-10")
	require.NoError(t, err)
	assert.Equal(t, int64(10), used)
}
