// Package aggregator implements the Derived Signal Aggregation Pipeline
// (spec §4.3): an event-driven rolling aggregator that recomputes
// scarcity/abundance metrics over three time windows and a multi-resolution
// spatial hierarchy whenever a listing/request/claim event occurs.
package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldshare/surplus/internal/clock"
	"github.com/fieldshare/surplus/internal/eventbus"
	"github.com/fieldshare/surplus/internal/geo"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

const schemaVersion = 1

// Aggregator is registered on the event bus as a Handler for every
// listing/request/claim event; it is also the recompute engine the Replay
// driver calls directly so the two never duplicate the SQL (spec §9).
type Aggregator struct {
	store storage.Store
	log   *zap.Logger
}

func New(store storage.Store, log *zap.Logger) *Aggregator {
	return &Aggregator{store: store, log: log}
}

func (a *Aggregator) ID() string { return "rolling-aggregator" }

func (a *Aggregator) Handles() []eventbus.EventType {
	return []eventbus.EventType{
		eventbus.EventListingCreated, eventbus.EventListingUpdated,
		eventbus.EventRequestCreated, eventbus.EventRequestUpdated,
		eventbus.EventClaimCreated, eventbus.EventClaimUpdated,
	}
}

func (a *Aggregator) Priority() int { return 0 }

// Handle re-reads the triggering entity's current geo_key/crop_id (spec
// §4.3 "tolerating events whose entity has since been mutated") and
// recomputes every scope it belongs to, bucketed at the event's own
// timestamp.
func (a *Aggregator) Handle(ctx context.Context, event *eventbus.Event) error {
	geoKey, cropID, ok, err := a.resolveEntity(ctx, event)
	if err != nil {
		return err
	}
	if !ok {
		// Entity has since been deleted; nothing to recompute against.
		return nil
	}
	return a.Recompute(ctx, geoKey, cropID, event.OccurredAt)
}

func (a *Aggregator) resolveEntity(ctx context.Context, event *eventbus.Event) (geoKey string, cropID types.ID, ok bool, err error) {
	id, err := types.ParseID(event.EntityID)
	if err != nil {
		return "", types.NilID, false, nil
	}
	switch event.Type {
	case eventbus.EventListingCreated, eventbus.EventListingUpdated:
		listing, err := a.store.GetListing(ctx, id)
		if err != nil {
			return "", types.NilID, false, nil
		}
		return listing.GeoKey, listing.CropID, true, nil
	case eventbus.EventRequestCreated, eventbus.EventRequestUpdated:
		request, err := a.store.GetRequest(ctx, id)
		if err != nil {
			return "", types.NilID, false, nil
		}
		return request.GeoKey, request.CropID, true, nil
	case eventbus.EventClaimCreated, eventbus.EventClaimUpdated:
		claim, err := a.store.GetClaim(ctx, id)
		if err != nil {
			return "", types.NilID, false, nil
		}
		listing, err := a.store.GetListing(ctx, claim.ListingID)
		if err != nil {
			return "", types.NilID, false, nil
		}
		return listing.GeoKey, listing.CropID, true, nil
	}
	return "", types.NilID, false, nil
}

// recomputeScope is one (geo prefix, crop scope, window) cell of the 18-way
// fan-out; its AggregateInputs read is independent of every other cell.
type recomputeScope struct {
	prefix    string
	cropScope string
	window    types.WindowDays
}

// Recompute expands (geoKey, cropID) to the scope set S = { (prefix(g, p),
// crop) : p in {4,5,6}, crop in {c, ALL_CROPS} } and, for each scope and
// window, recomputes and upserts a DerivedSignal row (spec §4.3). The 18
// reads are independent of one another, so they run concurrently, each in
// its own transaction against the pool; the resulting rows are then
// upserted serially inside a single transaction so the recompute as a whole
// is still atomic.
func (a *Aggregator) Recompute(ctx context.Context, geoKey string, cropID types.ID, at time.Time) error {
	g := geo.Normalize(geoKey)
	bucket := clock.BucketFloor(at)

	var scopes []recomputeScope
	for _, p := range types.GeoPrecisions {
		prefix, ok := geo.Prefix(g, p)
		if !ok {
			continue
		}
		for _, cropScope := range []string{cropID.String(), types.AllCropsScope} {
			for _, window := range types.AllWindows {
				scopes = append(scopes, recomputeScope{prefix: prefix, cropScope: cropScope, window: window})
			}
		}
	}

	signals := make([]*types.DerivedSignal, len(scopes))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, scope := range scopes {
		i, scope := i, scope
		group.Go(func() error {
			sig, err := a.computeSignal(groupCtx, scope, bucket, at)
			if err != nil {
				return err
			}
			signals[i] = sig
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, sig := range signals {
		if err := tx.UpsertDerivedSignal(ctx, sig); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// computeSignal reads one scope's aggregate inputs in its own short-lived
// transaction and derives the scarcity/abundance scores for it. Read-only:
// it always rolls back rather than committing.
func (a *Aggregator) computeSignal(ctx context.Context, scope recomputeScope, bucket, at time.Time) (*types.DerivedSignal, error) {
	tx, err := a.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	since := at.AddDate(0, 0, -int(scope.window))
	inputs, err := tx.AggregateInputs(ctx, scope.prefix, scope.cropScope, since)
	if err != nil {
		return nil, err
	}

	scarcity := inputs.DemandQuantity / (inputs.SupplyQuantity + 1)
	abundance := inputs.SupplyQuantity / (inputs.DemandQuantity + 1)

	return &types.DerivedSignal{
		SchemaVersion: schemaVersion, GeoBoundaryKey: scope.prefix, CropScopeID: scope.cropScope,
		WindowDays: scope.window, BucketStart: bucket,
		ListingCount: inputs.ListingCount, RequestCount: inputs.RequestCount,
		SupplyQuantity: inputs.SupplyQuantity, DemandQuantity: inputs.DemandQuantity,
		ScarcityScore: scarcity, AbundanceScore: abundance,
		ComputedAt: at, ExpiresAt: at.AddDate(0, 0, scope.window.Retention()),
	}, nil
}
