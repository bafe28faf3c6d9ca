package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/authctx"
	"github.com/fieldshare/surplus/internal/eventbus"
	"github.com/fieldshare/surplus/internal/storage/memstore"
	"github.com/fieldshare/surplus/internal/types"
)

type fakeGeocoder struct {
	lat, lng float64
	err      error
}

func (g *fakeGeocoder) Geocode(_ context.Context, _ string) (float64, float64, error) {
	return g.lat, g.lng, g.err
}

func newLedger(t *testing.T) (*Ledger, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	bus := eventbus.New(zap.NewNop())
	l := New(store, bus, nil, &fakeGeocoder{lat: 37.7749, lng: -122.4194}, zap.NewNop())
	return l, store
}

func grower() authctx.Actor {
	return authctx.Actor{ID: types.NewID(), UserType: types.UserTypeGrower}
}

func validCreateInput() CreateInput {
	start := time.Now().Add(time.Hour)
	lat, lng := 37.77, -122.41
	return CreateInput{
		CropID:                 types.NewID(),
		Title:                  "Surplus squash",
		Unit:                   "lb",
		QuantityTotal:          20,
		AvailableStart:         start,
		AvailableEnd:           start.Add(48 * time.Hour),
		PickupDisclosurePolicy: types.DisclosureImmediate,
		ContactPreference:      types.ContactEmail,
		Lat:                    &lat,
		Lng:                    &lng,
	}
}

func TestCreate_HappyPath(t *testing.T) {
	l, _ := newLedger(t)
	actor := grower()

	listing, replay, err := l.Create(context.Background(), actor, validCreateInput())
	require.NoError(t, err)
	require.False(t, replay)
	require.Equal(t, actor.ID, listing.OwnerID)
	require.Equal(t, types.ListingActive, listing.Status)
	require.NotEmpty(t, listing.GeoKey)
	require.NotNil(t, listing.QuantityRemaining)
	require.Equal(t, 20.0, *listing.QuantityRemaining)
}

func TestCreate_RejectsNonGrower(t *testing.T) {
	l, _ := newLedger(t)
	actor := authctx.Actor{ID: types.NewID(), UserType: types.UserTypeGatherer}

	_, _, err := l.Create(context.Background(), actor, validCreateInput())
	require.Error(t, err)
	require.Equal(t, apperrors.Forbidden, err.(*apperrors.Error).Kind)
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	l, _ := newLedger(t)
	in := validCreateInput()
	in.Title = ""

	_, _, err := l.Create(context.Background(), grower(), in)
	require.Error(t, err)
	require.Equal(t, apperrors.Validation, err.(*apperrors.Error).Kind)
}

func TestCreate_IdempotencyKeyReplaysExistingListing(t *testing.T) {
	l, _ := newLedger(t)
	actor := grower()
	in := validCreateInput()
	in.IdempotencyKey = "order-1"

	first, replay1, err := l.Create(context.Background(), actor, in)
	require.NoError(t, err)
	require.False(t, replay1)

	second, replay2, err := l.Create(context.Background(), actor, in)
	require.NoError(t, err)
	require.True(t, replay2)
	require.Equal(t, first.ID, second.ID)
}

func TestCreate_GeocodesWhenNoLatLngSupplied(t *testing.T) {
	l, _ := newLedger(t)
	in := validCreateInput()
	in.Lat, in.Lng = nil, nil
	in.PickupAddress = "123 Farm Rd"

	listing, _, err := l.Create(context.Background(), grower(), in)
	require.NoError(t, err)
	require.Equal(t, 37.7749, listing.Lat)
	require.Equal(t, -122.4194, listing.Lng)
}

func TestCreate_FailsWithoutGeocoderOrLatLng(t *testing.T) {
	store := memstore.New()
	bus := eventbus.New(zap.NewNop())
	l := New(store, bus, nil, nil, zap.NewNop())

	in := validCreateInput()
	in.Lat, in.Lng = nil, nil
	in.PickupAddress = "123 Farm Rd"

	_, _, err := l.Create(context.Background(), grower(), in)
	require.Error(t, err)
}

func TestUpdate_ShrinkSafeRecomputesQuantityRemaining(t *testing.T) {
	l, store := newLedger(t)
	actor := grower()

	listing, _, err := l.Create(context.Background(), actor, validCreateInput())
	require.NoError(t, err)

	// Simulate a partial claim having already reduced quantity_remaining to 5.
	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	ok, err := tx.AdjustListingQuantity(context.Background(), listing.ID, -15, types.ListingActive)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx.Commit(context.Background()))

	updateIn := UpdateInput{
		Title: listing.Title, Unit: listing.Unit, QuantityTotal: 3,
		AvailableStart: listing.AvailableStart, AvailableEnd: listing.AvailableEnd,
		PickupDisclosurePolicy: listing.PickupDisclosurePolicy, ContactPreference: listing.ContactPreference,
	}
	updated, err := l.Update(context.Background(), actor, listing.ID, updateIn)
	require.NoError(t, err)
	require.Equal(t, 3.0, *updated.QuantityRemaining, "shrinking total below remaining must clamp remaining down")
}

func TestUpdate_RejectsNonOwner(t *testing.T) {
	l, _ := newLedger(t)
	owner := grower()
	listing, _, err := l.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	other := grower()
	_, err = l.Update(context.Background(), other, listing.ID, UpdateInput{
		Title: listing.Title, Unit: listing.Unit, QuantityTotal: listing.QuantityTotal,
		AvailableStart: listing.AvailableStart, AvailableEnd: listing.AvailableEnd,
		PickupDisclosurePolicy: listing.PickupDisclosurePolicy, ContactPreference: listing.ContactPreference,
	})
	require.Error(t, err)
	require.Equal(t, apperrors.Forbidden, err.(*apperrors.Error).Kind)
}

func TestRead_EnforcesOwnership(t *testing.T) {
	l, _ := newLedger(t)
	owner := grower()
	listing, _, err := l.Create(context.Background(), owner, validCreateInput())
	require.NoError(t, err)

	_, err = l.Read(context.Background(), owner, listing.ID)
	require.NoError(t, err)

	other := grower()
	_, err = l.Read(context.Background(), other, listing.ID)
	require.Error(t, err)
	require.Equal(t, apperrors.NotFound, err.(*apperrors.Error).Kind)
}

func TestDiscover_FiltersByGeoPrefixAndStatus(t *testing.T) {
	l, store := newLedger(t)
	actor := grower()
	listing, _, err := l.Create(context.Background(), actor, validCreateInput())
	require.NoError(t, err)

	results, _, err := l.Discover(context.Background(), DiscoverInput{GeoKey: listing.GeoKey, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, listing.ID, results[0].ID)

	empty, _, err := l.Discover(context.Background(), DiscoverInput{GeoKey: "zzzzzzz", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, empty)

	listing.Status = types.ListingExpired
	store.Seed([]*types.Listing{listing}, nil, nil)
	expired, _, err := l.Discover(context.Background(), DiscoverInput{GeoKey: listing.GeoKey, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, expired)
}
