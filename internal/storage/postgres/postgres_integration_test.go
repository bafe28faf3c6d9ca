//go:build integration

// Integration tests against a real Postgres instance. Run with
// `go test -tags integration ./internal/storage/postgres/...` and
// DATABASE_URL pointed at a scratch database with migrations already
// applied; skipped otherwise, matching the teacher's own e2e-requires-build
// gating (cmd/bd/doctor/dolt_e2e_test.go upstream).
package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres integration test")
	}
	store, err := Open(context.Background(), Config{DSN: dsn}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func TestInsertListing_IsIdempotentOnConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	remaining := 10.0
	listing := &types.Listing{
		ID: types.NewID(), OwnerID: types.NewID(), CropID: types.NewID(), Title: "integration test listing",
		Unit: "lb", QuantityTotal: 10, QuantityRemaining: &remaining,
		AvailableStart: now, AvailableEnd: now.Add(24 * time.Hour),
		Status: types.ListingActive, GeoKey: "9q8yyk1", CreatedAt: now, UpdatedAt: now,
	}

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	created, _, err := tx.InsertListing(ctx, listing)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.BeginTx(ctx)
	require.NoError(t, err)
	created2, existing, err := tx2.InsertListing(ctx, listing)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, listing.ID, existing.ID)
	require.NoError(t, tx2.Commit(ctx))
}

func TestAdjustListingQuantity_RejectsOverdraft(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	remaining := 2.0
	listing := &types.Listing{
		ID: types.NewID(), OwnerID: types.NewID(), CropID: types.NewID(), Title: "integration test listing",
		Unit: "lb", QuantityTotal: 2, QuantityRemaining: &remaining,
		AvailableStart: now, AvailableEnd: now.Add(24 * time.Hour),
		Status: types.ListingActive, GeoKey: "9q8yyk1", CreatedAt: now, UpdatedAt: now,
	}

	tx, err := store.BeginTx(ctx)
	require.NoError(t, err)
	_, _, err = tx.InsertListing(ctx, listing)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	tx2, err := store.BeginTx(ctx)
	require.NoError(t, err)
	ok, err := tx2.AdjustListingQuantity(ctx, listing.ID, -5, types.ListingClaimed)
	require.NoError(t, err)
	require.False(t, ok, "a decrement larger than quantity_remaining must be rejected")
	require.NoError(t, tx2.Commit(ctx))
}
