// Package ledger implements the Listing Inventory Ledger (spec §4.1): the
// authoritative record of remaining quantity per listing, including atomic
// create-by-idempotency-key, shrink-safe update, and geo-prefix discovery.
package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/authctx"
	"github.com/fieldshare/surplus/internal/eventbus"
	"github.com/fieldshare/surplus/internal/geo"
	"github.com/fieldshare/surplus/internal/idgen"
	"github.com/fieldshare/surplus/internal/publisher"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
	"github.com/fieldshare/surplus/internal/validation"
)

// Geocoder resolves a free-text address to coordinates when a caller does
// not supply lat/lng literally (spec §4.1, §6).
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// Ledger is the Listing Inventory Ledger.
type Ledger struct {
	store     storage.Store
	bus       *eventbus.Bus
	publisher *publisher.Publisher
	geocoder  Geocoder
	log       *zap.Logger
}

func New(store storage.Store, bus *eventbus.Bus, pub *publisher.Publisher, geocoder Geocoder, log *zap.Logger) *Ledger {
	return &Ledger{store: store, bus: bus, publisher: pub, geocoder: geocoder, log: log}
}

// CreateInput is a listing creation payload.
type CreateInput struct {
	CropID                 types.ID
	VarietyID              *types.ID
	Title                  string
	Unit                   string
	QuantityTotal          float64
	AvailableStart         time.Time
	AvailableEnd           time.Time
	PickupAddress          string
	PickupDisclosurePolicy types.PickupDisclosurePolicy
	ContactPreference      types.ContactPreference
	Lat, Lng               *float64
	IdempotencyKey         string
}

// Create implements spec §4.1 create(). replay reports whether the id
// resolved to a pre-existing row (an idempotency replay) rather than a
// fresh insert.
func (l *Ledger) Create(ctx context.Context, actor authctx.Actor, in CreateInput) (listing *types.Listing, replay bool, err error) {
	if err := authctx.RequireGrower(actor); err != nil {
		return nil, false, err
	}
	if err := validation.ValidateListingInput(validation.ListingInput{
		Title: in.Title, Unit: in.Unit, QuantityTotal: in.QuantityTotal,
		AvailableStart: in.AvailableStart, AvailableEnd: in.AvailableEnd,
		PickupAddress: in.PickupAddress, PickupDisclosurePolicy: in.PickupDisclosurePolicy,
		ContactPreference: in.ContactPreference,
	}); err != nil {
		return nil, false, err
	}

	lat, lng, err := l.resolveCoords(ctx, in.Lat, in.Lng, in.PickupAddress)
	if err != nil {
		return nil, false, err
	}

	var id types.ID
	if in.IdempotencyKey != "" {
		id = idgen.DeriveListingID(actor.ID, in.IdempotencyKey)
	} else {
		id = idgen.New()
	}

	now := time.Now().UTC()
	qtyRemaining := in.QuantityTotal
	candidate := &types.Listing{
		ID: id, OwnerID: actor.ID, CropID: in.CropID, VarietyID: in.VarietyID,
		Title: strings.TrimSpace(in.Title), Unit: strings.TrimSpace(in.Unit),
		QuantityTotal: in.QuantityTotal, QuantityRemaining: &qtyRemaining,
		AvailableStart: in.AvailableStart, AvailableEnd: in.AvailableEnd,
		Status: types.ListingActive, PickupAddress: in.PickupAddress,
		PickupDisclosurePolicy: in.PickupDisclosurePolicy, ContactPreference: in.ContactPreference,
		GeoKey: geo.Encode(lat, lng), Lat: lat, Lng: lng,
		IdempotencyKey: in.IdempotencyKey, CreatedAt: now, UpdatedAt: now,
	}

	var created bool
	var existing *types.Listing
	err = l.store.WithRetryTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		created, existing, err = tx.InsertListing(ctx, candidate)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	if !created {
		return existing, true, nil
	}

	l.emit(ctx, eventbus.EventListingCreated, candidate.ID, candidate.OwnerID, string(candidate.Status), candidate.GeoKey, candidate.CropID)
	return candidate, false, nil
}

// UpdateInput is a listing update payload; QuantityTotal is required (the
// shrink-safe recompute needs a new_total to compare against).
type UpdateInput struct {
	Title                  string
	Unit                   string
	QuantityTotal          float64
	AvailableStart         time.Time
	AvailableEnd           time.Time
	PickupAddress          string
	PickupDisclosurePolicy types.PickupDisclosurePolicy
	ContactPreference      types.ContactPreference
}

// Update implements spec §4.1 update(): ownership + not-deleted enforced,
// quantity_remaining recomputed as
// LEAST(COALESCE(quantity_remaining, new_total), new_total) so shrinking
// quantity_total never leaves a listing over-reserved.
func (l *Ledger) Update(ctx context.Context, actor authctx.Actor, id types.ID, in UpdateInput) (*types.Listing, error) {
	if err := validation.ValidateListingInput(validation.ListingInput{
		Title: in.Title, Unit: in.Unit, QuantityTotal: in.QuantityTotal,
		AvailableStart: in.AvailableStart, AvailableEnd: in.AvailableEnd,
		PickupAddress: in.PickupAddress, PickupDisclosurePolicy: in.PickupDisclosurePolicy,
		ContactPreference: in.ContactPreference,
	}); err != nil {
		return nil, err
	}

	var existing *types.Listing
	err := l.store.WithRetryTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ex, err := tx.GetListingForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if ex.OwnerID != actor.ID {
			return apperrors.New(apperrors.Forbidden, "listing belongs to another grower")
		}

		remaining := in.QuantityTotal
		if ex.QuantityRemaining != nil {
			remaining = math.Min(*ex.QuantityRemaining, in.QuantityTotal)
		}

		ex.Title = strings.TrimSpace(in.Title)
		ex.Unit = strings.TrimSpace(in.Unit)
		ex.QuantityTotal = in.QuantityTotal
		ex.QuantityRemaining = &remaining
		ex.AvailableStart = in.AvailableStart
		ex.AvailableEnd = in.AvailableEnd
		ex.PickupAddress = in.PickupAddress
		ex.PickupDisclosurePolicy = in.PickupDisclosurePolicy
		ex.ContactPreference = in.ContactPreference
		ex.UpdatedAt = time.Now().UTC()

		existing = ex
		return tx.UpdateListing(ctx, ex)
	})
	if err != nil {
		return nil, err
	}

	l.emit(ctx, eventbus.EventListingUpdated, existing.ID, existing.OwnerID, string(existing.Status), existing.GeoKey, existing.CropID)
	return existing, nil
}

// Read fetches a listing, enforcing ownership (spec §4.1 read(owner, id)).
func (l *Ledger) Read(ctx context.Context, actor authctx.Actor, id types.ID) (*types.Listing, error) {
	listing, err := l.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.OwnerID != actor.ID {
		return nil, apperrors.New(apperrors.NotFound, "listing not found")
	}
	return listing, nil
}

func (l *Ledger) ListOwned(ctx context.Context, actor authctx.Actor, limit, offset int) ([]*types.Listing, bool, error) {
	limit = clampLimit(limit)
	return l.store.ListOwnedListings(ctx, actor.ID, limit, offset)
}

// DiscoverInput describes a discovery query (spec §4.1 discover()).
type DiscoverInput struct {
	GeoKey    string
	RadiusKM  float64
	Miles     bool
	HasRadius bool
	CropID    *types.ID
	Limit     int
	Offset    int
}

// Discover implements spec §4.1 discover(): filters by status=active,
// deleted_at IS NULL, geo_key LIKE prefix%, with the prefix length chosen
// by radius when supplied.
func (l *Ledger) Discover(ctx context.Context, in DiscoverInput) ([]*types.Listing, bool, error) {
	precision := geo.StorageGeoKeyLength
	if in.HasRadius {
		precision = geo.PrecisionForRadius(in.RadiusKM, in.Miles)
	}
	prefix, ok := geo.Prefix(in.GeoKey, precision)
	if !ok {
		prefix = geo.Normalize(in.GeoKey)
	}
	return l.store.DiscoverListings(ctx, prefix, in.CropID, clampLimit(in.Limit), in.Offset)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// resolveCoords returns literal coordinates when supplied, else geocodes
// the pickup address, storing at 5 decimal places per spec §4.1.
func (l *Ledger) resolveCoords(ctx context.Context, lat, lng *float64, address string) (float64, float64, error) {
	if lat != nil && lng != nil {
		return round5(*lat), round5(*lng), nil
	}
	if l.geocoder == nil {
		return 0, 0, apperrors.New(apperrors.Validation, "lat/lng required when no geocoder is configured")
	}
	resolvedLat, resolvedLng, err := l.geocoder.Geocode(ctx, address)
	if err != nil {
		return 0, 0, err
	}
	return round5(resolvedLat), round5(resolvedLng), nil
}

func round5(f float64) float64 {
	return math.Round(f*1e5) / 1e5
}

func (l *Ledger) emit(ctx context.Context, evt eventbus.EventType, entityID, ownerID types.ID, status, geoKey string, cropID types.ID) {
	event := &eventbus.Event{
		Type: evt, EntityID: entityID.String(), OwnerID: ownerID.String(), Status: status,
		GeoKey: geoKey, CropID: cropID.String(), CorrelationID: idgen.New().String(), OccurredAt: time.Now().UTC(),
	}
	if _, err := l.bus.Dispatch(ctx, event); err != nil {
		l.log.Warn("ledger: in-process dispatch failed", zap.Error(err))
	}
	if l.publisher != nil {
		l.publisher.Publish(ctx, *event)
	}
}
