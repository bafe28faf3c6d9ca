package replay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/aggregator"
	"github.com/fieldshare/surplus/internal/storage/memstore"
	"github.com/fieldshare/surplus/internal/types"
)

func newDriver(t *testing.T) (*Driver, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	agg := aggregator.New(store, zap.NewNop())
	cp := NewCheckpointStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	return New(store, agg, cp, zap.NewNop()), store
}

func seedScope(store *memstore.Store, createdAt time.Time) {
	remaining := 5.0
	l := &types.Listing{
		ID: types.NewID(), OwnerID: types.NewID(), CropID: types.NewID(), Title: "t", Unit: "lb",
		QuantityTotal: 5, QuantityRemaining: &remaining,
		AvailableStart: createdAt, AvailableEnd: createdAt.Add(24 * time.Hour),
		Status: types.ListingActive, GeoKey: "9q8yyk1", CreatedAt: createdAt, UpdatedAt: createdAt,
	}
	store.Seed([]*types.Listing{l}, nil, nil)
}

func TestRun_BackfillProcessesEveryDistinctScope(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()
	seedScope(store, now.Add(-time.Hour))

	result, err := d.Run(context.Background(), RunInput{Mode: ModeBackfill, To: now})
	require.NoError(t, err)
	require.Equal(t, 1, result.ScopesProcessed)
	require.False(t, result.DryRun)
}

func TestRun_ReplayDefaultsFromToTwentyFourHoursBeforeTo(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()
	seedScope(store, now.Add(-2*time.Hour))  // within the default 24h window
	seedScope(store, now.Add(-48*time.Hour)) // outside it

	result, err := d.Run(context.Background(), RunInput{Mode: ModeReplay, To: now})
	require.NoError(t, err)
	require.Equal(t, 1, result.ScopesProcessed)
}

func TestRun_ReplayHonorsExplicitFrom(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	seedScope(store, old)

	from := now.Add(-96 * time.Hour)
	result, err := d.Run(context.Background(), RunInput{Mode: ModeReplay, From: &from, To: now})
	require.NoError(t, err)
	require.Equal(t, 1, result.ScopesProcessed)
}

func TestRun_DryRunSkipsWritesAndCheckpoint(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()
	seedScope(store, now.Add(-time.Hour))

	result, err := d.Run(context.Background(), RunInput{Mode: ModeBackfill, To: now, DryRun: true})
	require.NoError(t, err)
	require.True(t, result.DryRun)
	require.Equal(t, 1, result.ScopesProcessed)

	cp, err := d.checkpoint.Read()
	require.NoError(t, err)
	require.Nil(t, cp, "dry run must not persist a checkpoint")
}

func TestRun_PersistsCheckpointOnRealRun(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()
	seedScope(store, now.Add(-time.Hour))

	_, err := d.Run(context.Background(), RunInput{Mode: ModeBackfill, To: now})
	require.NoError(t, err)

	cp, err := d.checkpoint.Read()
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.True(t, cp.LastProcessedTo.Equal(now))
	require.Equal(t, string(ModeBackfill), cp.Mode)
}

func TestRun_ReplayUsesPriorCheckpointAsFromWhenPresent(t *testing.T) {
	d, store := newDriver(t)
	now := time.Now().UTC()

	require.NoError(t, d.checkpoint.Write(Checkpoint{LastProcessedTo: now.Add(-10 * time.Hour), Mode: string(ModeReplay)}))

	// A scope just inside the checkpointed window, and one before it.
	seedScope(store, now.Add(-9*time.Hour))
	seedScope(store, now.Add(-20*time.Hour))

	result, err := d.Run(context.Background(), RunInput{Mode: ModeReplay, To: now})
	require.NoError(t, err)
	require.Equal(t, 1, result.ScopesProcessed)
}
