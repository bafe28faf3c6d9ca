package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

const listingColumns = `id, owner_id, crop_id, variety_id, title, unit, quantity_total, quantity_remaining,
		       available_start, available_end, status, pickup_address, pickup_disclosure_policy,
		       contact_preference, geo_key, lat, lng, idempotency_key, created_at, updated_at, deleted_at`

func scanListing(row pgx.Row) (*types.Listing, error) {
	var l types.Listing
	err := row.Scan(&l.ID, &l.OwnerID, &l.CropID, &l.VarietyID, &l.Title, &l.Unit, &l.QuantityTotal,
		&l.QuantityRemaining, &l.AvailableStart, &l.AvailableEnd, &l.Status, &l.PickupAddress,
		&l.PickupDisclosurePolicy, &l.ContactPreference, &l.GeoKey, &l.Lat, &l.Lng,
		&l.IdempotencyKey, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return nil, wrapPgErr(err, "listing not found")
	}
	return &l, nil
}

func scanRequest(row pgx.Row) (*types.Request, error) {
	var r types.Request
	err := row.Scan(&r.ID, &r.OwnerID, &r.CropID, &r.VarietyID, &r.Quantity, &r.NeededBy, &r.Status,
		&r.GeoKey, &r.Lat, &r.Lng, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt)
	if err != nil {
		return nil, wrapPgErr(err, "request not found")
	}
	return &r, nil
}

func scanClaim(row pgx.Row) (*types.Claim, error) {
	var c types.Claim
	err := row.Scan(&c.ID, &c.ListingID, &c.RequestID, &c.ClaimerID, &c.QuantityClaimed, &c.Status,
		&c.Notes, &c.ClaimedAt, &c.ConfirmedAt, &c.CompletedAt, &c.CancelledAt)
	if err != nil {
		return nil, wrapPgErr(err, "claim not found")
	}
	return &c, nil
}

func (s *Store) GetListing(ctx context.Context, id types.ID) (*types.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM surplus_listings WHERE id = $1 AND deleted_at IS NULL`
	return scanListing(s.pool.QueryRow(ctx, q, id))
}

// ListOwnedListings fetches limit+1 rows to compute has_more without a
// second round-trip (spec §4.1 pagination contract).
func (s *Store) ListOwnedListings(ctx context.Context, ownerID types.ID, limit, offset int) ([]*types.Listing, bool, error) {
	q := `SELECT ` + listingColumns + ` FROM surplus_listings
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, q, ownerID, limit+1, offset)
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.Internal, "list owned listings")
	}
	defer rows.Close()
	return collectListingsPage(rows, limit)
}

// DiscoverListings filters to active, non-deleted listings whose geo_key
// matches the given prefix (spec §4.1 discover()). cropID is optional.
func (s *Store) DiscoverListings(ctx context.Context, geoPrefix string, cropID *types.ID, limit, offset int) ([]*types.Listing, bool, error) {
	q := `SELECT ` + listingColumns + ` FROM surplus_listings
		WHERE status = 'active' AND deleted_at IS NULL AND geo_key LIKE $1 || '%'
		  AND ($2::uuid IS NULL OR crop_id = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	rows, err := s.pool.Query(ctx, q, geoPrefix, cropID, limit+1, offset)
	if err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.Internal, "discover listings")
	}
	defer rows.Close()
	return collectListingsPage(rows, limit)
}

func collectListingsPage(rows pgx.Rows, limit int) ([]*types.Listing, bool, error) {
	var out []*types.Listing
	for rows.Next() {
		l, err := scanListingRow(rows)
		if err != nil {
			return nil, false, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, false, apperrors.Wrap(err, apperrors.Internal, "scan listings page")
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

func scanListingRow(rows pgx.Rows) (*types.Listing, error) {
	var l types.Listing
	err := rows.Scan(&l.ID, &l.OwnerID, &l.CropID, &l.VarietyID, &l.Title, &l.Unit, &l.QuantityTotal,
		&l.QuantityRemaining, &l.AvailableStart, &l.AvailableEnd, &l.Status, &l.PickupAddress,
		&l.PickupDisclosurePolicy, &l.ContactPreference, &l.GeoKey, &l.Lat, &l.Lng,
		&l.IdempotencyKey, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "scan listing row")
	}
	return &l, nil
}

func (s *Store) GetRequest(ctx context.Context, id types.ID) (*types.Request, error) {
	q := `SELECT id, owner_id, crop_id, variety_id, quantity, needed_by, status, geo_key, lat, lng,
		created_at, updated_at, deleted_at FROM requests WHERE id = $1 AND deleted_at IS NULL`
	return scanRequest(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetClaim(ctx context.Context, id types.ID) (*types.Claim, error) {
	q := `SELECT id, listing_id, request_id, claimer_id, quantity_claimed, status, notes,
		claimed_at, confirmed_at, completed_at, cancelled_at FROM claims WHERE id = $1`
	return scanClaim(s.pool.QueryRow(ctx, q, id))
}

// ListClaims applies the access-check predicate the coordinator always
// includes (claimer_id = actor OR listing.owner_id = actor — spec §4.2
// "read-side access rules"), plus whichever optional filters were supplied.
func (s *Store) ListClaims(ctx context.Context, f storage.ClaimFilter) ([]*types.Claim, error) {
	q := `
		SELECT c.id, c.listing_id, c.request_id, c.claimer_id, c.quantity_claimed, c.status, c.notes,
		       c.claimed_at, c.confirmed_at, c.completed_at, c.cancelled_at
		FROM claims c
		JOIN surplus_listings l ON l.id = c.listing_id
		WHERE (c.claimer_id = $1 OR l.owner_id = $1)
		  AND ($2::uuid IS NULL OR c.listing_id = $2)
		  AND ($3::uuid IS NULL OR c.request_id = $3)
		  AND ($4::text IS NULL OR c.status = $4)
		ORDER BY c.claimed_at DESC`
	rows, err := s.pool.Query(ctx, q, f.ActorID, f.ListingID, f.RequestID, f.Status)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "list claims")
	}
	defer rows.Close()

	var out []*types.Claim
	for rows.Next() {
		var c types.Claim
		if err := rows.Scan(&c.ID, &c.ListingID, &c.RequestID, &c.ClaimerID, &c.QuantityClaimed,
			&c.Status, &c.Notes, &c.ClaimedAt, &c.ConfirmedAt, &c.CompletedAt, &c.CancelledAt); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan claim row")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetFreshDerivedSignal implements the freshness contract from spec §4.3:
// prefer a row whose expires_at is after now; if none qualifies, fall back
// to the most recent row regardless of expiry so the caller can flag the
// result stale. Returns (nil, nil) only when no row exists at all.
func (s *Store) GetFreshDerivedSignal(ctx context.Context, key storage.DerivedSignalKey, now time.Time) (*types.DerivedSignal, error) {
	const freshQ = `
		SELECT schema_version, geo_boundary_key, crop_scope_id, window_days, bucket_start,
		       listing_count, request_count, supply_quantity, demand_quantity,
		       scarcity_score, abundance_score, computed_at, expires_at
		FROM derived_supply_signals
		WHERE schema_version=$1 AND geo_boundary_key=$2 AND crop_scope_id=$3 AND window_days=$4
		  AND expires_at > $5
		ORDER BY bucket_start DESC LIMIT 1`
	row := s.pool.QueryRow(ctx, freshQ, key.SchemaVersion, key.GeoBoundaryKey, key.CropScopeID, key.WindowDays, now)
	if d, err := scanDerivedSignalRow(row); err != nil || d != nil {
		return d, err
	}

	const staleQ = `
		SELECT schema_version, geo_boundary_key, crop_scope_id, window_days, bucket_start,
		       listing_count, request_count, supply_quantity, demand_quantity,
		       scarcity_score, abundance_score, computed_at, expires_at
		FROM derived_supply_signals
		WHERE schema_version=$1 AND geo_boundary_key=$2 AND crop_scope_id=$3 AND window_days=$4
		ORDER BY bucket_start DESC LIMIT 1`
	return scanDerivedSignalRow(s.pool.QueryRow(ctx, staleQ, key.SchemaVersion, key.GeoBoundaryKey, key.CropScopeID, key.WindowDays))
}

func scanDerivedSignalRow(row pgx.Row) (*types.DerivedSignal, error) {
	var d types.DerivedSignal
	err := row.Scan(
		&d.SchemaVersion, &d.GeoBoundaryKey, &d.CropScopeID, &d.WindowDays, &d.BucketStart,
		&d.ListingCount, &d.RequestCount, &d.SupplyQuantity, &d.DemandQuantity,
		&d.ScarcityScore, &d.AbundanceScore, &d.ComputedAt, &d.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.Internal, "get derived signal")
	}
	return &d, nil
}

func (s *Store) GetAiSummaryCache(ctx context.Context, geoBoundaryKey string, window types.WindowDays) (*types.AiSummaryCache, error) {
	const q = `
		SELECT schema_version, geo_boundary_key, window_days, text, model_id, model_version, generated_at, expires_at
		FROM ai_summary_cache WHERE schema_version=1 AND geo_boundary_key=$1 AND window_days=$2`
	var c types.AiSummaryCache
	err := s.pool.QueryRow(ctx, q, geoBoundaryKey, window).Scan(
		&c.SchemaVersion, &c.GeoBoundaryKey, &c.WindowDays, &c.Text, &c.ModelID, &c.ModelVersion,
		&c.GeneratedAt, &c.ExpiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.Internal, "get ai summary cache")
	}
	return &c, nil
}

func (s *Store) UpsertAiSummaryCache(ctx context.Context, entry *types.AiSummaryCache) error {
	const q = `
		INSERT INTO ai_summary_cache (schema_version, geo_boundary_key, window_days, text, model_id, model_version, generated_at, expires_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (schema_version, geo_boundary_key, window_days)
		DO UPDATE SET text=EXCLUDED.text, model_id=EXCLUDED.model_id, model_version=EXCLUDED.model_version,
			generated_at=EXCLUDED.generated_at, expires_at=EXCLUDED.expires_at`
	_, err := s.pool.Exec(ctx, q, entry.GeoBoundaryKey, entry.WindowDays, entry.Text, entry.ModelID,
		entry.ModelVersion, entry.GeneratedAt, entry.ExpiresAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "upsert ai summary cache")
	}
	return nil
}
