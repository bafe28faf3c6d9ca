package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

// Tx wraps one pgx.Tx and implements storage.Tx.
type Tx struct {
	tx  pgx.Tx
	log *zap.Logger
}

var _ storage.Tx = (*Tx)(nil)

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			// Wrapped, not returned raw: callers outside this package must
			// see the Kind→HTTP-status contract (spec §7) even on this
			// path. withRetry still detects the SQLSTATE through
			// errors.As, which unwraps apperrors.Error.Unwrap().
			return apperrors.Wrap(err, apperrors.Conflict, "transaction serialization failure").WithCode("SERIALIZATION_FAILURE")
		}
		return apperrors.Wrap(err, apperrors.Internal, "commit transaction")
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		t.log.Warn("postgres: rollback failed", zap.Error(err))
	}
	return nil
}

// InsertListing implements the upsert-on-conflict-do-nothing create path
// (spec §4.1). A returning row of nil means the INSERT applied; a non-nil
// row with created=false means another row already occupied the id — the
// idempotency-replay case.
func (t *Tx) InsertListing(ctx context.Context, l *types.Listing) (bool, *types.Listing, error) {
	const q = `
		INSERT INTO surplus_listings
			(id, owner_id, crop_id, variety_id, title, unit, quantity_total, quantity_remaining,
			 available_start, available_end, status, pickup_address, pickup_disclosure_policy,
			 contact_preference, geo_key, lat, lng, idempotency_key, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$19)
		ON CONFLICT (id) DO NOTHING`
	tag, err := t.tx.Exec(ctx, q,
		l.ID, l.OwnerID, l.CropID, l.VarietyID, l.Title, l.Unit, l.QuantityTotal, l.QuantityRemaining,
		l.AvailableStart, l.AvailableEnd, l.Status, l.PickupAddress, l.PickupDisclosurePolicy,
		l.ContactPreference, l.GeoKey, l.Lat, l.Lng, l.IdempotencyKey, l.CreatedAt)
	if err != nil {
		return false, nil, apperrors.Wrap(err, apperrors.Internal, "insert listing")
	}
	if tag.RowsAffected() == 1 {
		return true, nil, nil
	}

	existing, err := t.GetListingForUpdate(ctx, l.ID)
	if err != nil {
		return false, nil, err
	}
	if existing.OwnerID != l.OwnerID {
		return false, nil, apperrors.New(apperrors.Conflict, "idempotency key resolves to a listing owned by another grower")
	}
	return false, existing, nil
}

func (t *Tx) GetListingForUpdate(ctx context.Context, id types.ID) (*types.Listing, error) {
	const q = `
		SELECT id, owner_id, crop_id, variety_id, title, unit, quantity_total, quantity_remaining,
		       available_start, available_end, status, pickup_address, pickup_disclosure_policy,
		       contact_preference, geo_key, lat, lng, idempotency_key, created_at, updated_at, deleted_at
		FROM surplus_listings WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanListing(t.tx.QueryRow(ctx, q, id))
}

func (t *Tx) UpdateListing(ctx context.Context, l *types.Listing) error {
	const q = `
		UPDATE surplus_listings SET
			title=$2, unit=$3, quantity_total=$4, quantity_remaining=$5, available_start=$6,
			available_end=$7, status=$8, pickup_address=$9, pickup_disclosure_policy=$10,
			contact_preference=$11, updated_at=$12
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := t.tx.Exec(ctx, q, l.ID, l.Title, l.Unit, l.QuantityTotal, l.QuantityRemaining,
		l.AvailableStart, l.AvailableEnd, l.Status, l.PickupAddress, l.PickupDisclosurePolicy,
		l.ContactPreference, l.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "update listing")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.NotFound, "listing not found")
	}
	return nil
}

// AdjustListingQuantity applies the guarded conditional UPDATE from spec
// §4.2 step 4. delta is negative on confirm (decrement), positive on
// cancel/no_show (increment). The guard
// "quantity_remaining IS NULL OR quantity_remaining >= -delta" only matters
// on a decrement; it is written unconditionally since on an increment
// -delta is negative and the comparison is always true.
func (t *Tx) AdjustListingQuantity(ctx context.Context, listingID types.ID, delta float64, newStatus types.ListingStatus) (bool, error) {
	const q = `
		UPDATE surplus_listings SET
			quantity_remaining = CASE WHEN quantity_remaining IS NULL THEN NULL ELSE quantity_remaining + $2 END,
			status = $3,
			updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL AND (quantity_remaining IS NULL OR quantity_remaining >= $4)`
	tag, err := t.tx.Exec(ctx, q, listingID, delta, newStatus, -delta)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.Internal, "adjust listing quantity")
	}
	return tag.RowsAffected() == 1, nil
}

func (t *Tx) GetRequestForUpdate(ctx context.Context, id types.ID) (*types.Request, error) {
	const q = `
		SELECT id, owner_id, crop_id, variety_id, quantity, needed_by, status, geo_key, lat, lng,
		       created_at, updated_at, deleted_at
		FROM requests WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	return scanRequest(t.tx.QueryRow(ctx, q, id))
}

func (t *Tx) UpdateRequestStatus(ctx context.Context, id types.ID, status types.RequestStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE requests SET status=$2, updated_at=now() WHERE id=$1 AND deleted_at IS NULL`, id, status)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "update request status")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.NotFound, "request not found")
	}
	return nil
}

// GetClaimForUpdate implements spec §4.2 step 1: the claim joined with its
// listing, both locked FOR UPDATE.
func (t *Tx) GetClaimForUpdate(ctx context.Context, id types.ID) (*types.Claim, *types.Listing, error) {
	const q = `
		SELECT c.id, c.listing_id, c.request_id, c.claimer_id, c.quantity_claimed, c.status, c.notes,
		       c.claimed_at, c.confirmed_at, c.completed_at, c.cancelled_at,
		       l.id, l.owner_id, l.crop_id, l.variety_id, l.title, l.unit, l.quantity_total,
		       l.quantity_remaining, l.available_start, l.available_end, l.status, l.pickup_address,
		       l.pickup_disclosure_policy, l.contact_preference, l.geo_key, l.lat, l.lng,
		       l.idempotency_key, l.created_at, l.updated_at, l.deleted_at
		FROM claims c
		JOIN surplus_listings l ON l.id = c.listing_id
		WHERE c.id = $1
		FOR UPDATE OF c, l`
	row := t.tx.QueryRow(ctx, q, id)

	var c types.Claim
	var l types.Listing
	err := row.Scan(
		&c.ID, &c.ListingID, &c.RequestID, &c.ClaimerID, &c.QuantityClaimed, &c.Status, &c.Notes,
		&c.ClaimedAt, &c.ConfirmedAt, &c.CompletedAt, &c.CancelledAt,
		&l.ID, &l.OwnerID, &l.CropID, &l.VarietyID, &l.Title, &l.Unit, &l.QuantityTotal,
		&l.QuantityRemaining, &l.AvailableStart, &l.AvailableEnd, &l.Status, &l.PickupAddress,
		&l.PickupDisclosurePolicy, &l.ContactPreference, &l.GeoKey, &l.Lat, &l.Lng,
		&l.IdempotencyKey, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if err != nil {
		return nil, nil, wrapPgErr(err, "claim not found")
	}
	return &c, &l, nil
}

func (t *Tx) InsertClaim(ctx context.Context, c *types.Claim) error {
	const q = `
		INSERT INTO claims (id, listing_id, request_id, claimer_id, quantity_claimed, status, notes, claimed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := t.tx.Exec(ctx, q, c.ID, c.ListingID, c.RequestID, c.ClaimerID, c.QuantityClaimed, c.Status, c.Notes, c.ClaimedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "insert claim")
	}
	return nil
}

func (t *Tx) UpdateClaim(ctx context.Context, c *types.Claim) error {
	const q = `
		UPDATE claims SET
			status=$2, notes=$3,
			confirmed_at=COALESCE(confirmed_at, $4),
			completed_at=COALESCE(completed_at, $5),
			cancelled_at=COALESCE(cancelled_at, $6)
		WHERE id=$1`
	_, err := t.tx.Exec(ctx, q, c.ID, c.Status, c.Notes, c.ConfirmedAt, c.CompletedAt, c.CancelledAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "update claim")
	}
	return nil
}

// EnsureUserShell implements the identity-provider's post-confirmation hook
// (spec §4.6): insert-or-ignore keyed on id.
func (t *Tx) EnsureUserShell(ctx context.Context, id types.ID, email string) error {
	const q = `INSERT INTO users (id, email, tier, user_type, created_at) VALUES ($1,$2,'free','',now()) ON CONFLICT (id) DO NOTHING`
	_, err := t.tx.Exec(ctx, q, id, email)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "ensure user shell")
	}
	return nil
}

func (t *Tx) GetUser(ctx context.Context, id types.ID) (*types.User, error) {
	const q = `SELECT id, email, tier, user_type, created_at, deleted_at FROM users WHERE id=$1 AND deleted_at IS NULL`
	var u types.User
	err := t.tx.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Tier, &u.UserType, &u.CreatedAt, &u.DeletedAt)
	if err != nil {
		return nil, wrapPgErr(err, "user not found")
	}
	return &u, nil
}

func (t *Tx) ApplyBillingWebhook(ctx context.Context, userID types.ID, tier types.UserTier) error {
	tag, err := t.tx.Exec(ctx, `UPDATE users SET tier=$2 WHERE id=$1 AND deleted_at IS NULL`, userID, tier)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "apply billing webhook")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.NotFound, "user not found")
	}
	return nil
}

// AggregateInputs computes the raw scarcity/abundance inputs for one scope
// (spec §3): counts and summed quantities over non-deleted rows newer than
// since, restricted to the status sets the formula is defined over.
func (t *Tx) AggregateInputs(ctx context.Context, geoBoundaryKey, cropScopeID string, since time.Time) (storage.AggregateInputs, error) {
	var out storage.AggregateInputs

	const listingQ = `
		SELECT count(*), COALESCE(sum(COALESCE(quantity_remaining, quantity_total)), 0)
		FROM surplus_listings
		WHERE deleted_at IS NULL AND created_at >= $3
		  AND status IN ('active','pending','claimed')
		  AND geo_key LIKE $1 || '%'
		  AND ($2 = '00000000-0000-0000-0000-000000000000' OR crop_id = $2::uuid)`
	if err := t.tx.QueryRow(ctx, listingQ, geoBoundaryKey, cropScopeID, since).Scan(&out.ListingCount, &out.SupplyQuantity); err != nil {
		return out, apperrors.Wrap(err, apperrors.Internal, "aggregate listing inputs")
	}

	const requestQ = `
		SELECT count(*), COALESCE(sum(quantity), 0)
		FROM requests
		WHERE deleted_at IS NULL AND created_at >= $3
		  AND status = 'open'
		  AND geo_key LIKE $1 || '%'
		  AND ($2 = '00000000-0000-0000-0000-000000000000' OR crop_id = $2::uuid)`
	if err := t.tx.QueryRow(ctx, requestQ, geoBoundaryKey, cropScopeID, since).Scan(&out.RequestCount, &out.DemandQuantity); err != nil {
		return out, apperrors.Wrap(err, apperrors.Internal, "aggregate request inputs")
	}

	return out, nil
}

func (t *Tx) UpsertDerivedSignal(ctx context.Context, sig *types.DerivedSignal) error {
	const q = `
		INSERT INTO derived_supply_signals
			(schema_version, geo_boundary_key, crop_scope_id, window_days, bucket_start,
			 listing_count, request_count, supply_quantity, demand_quantity,
			 scarcity_score, abundance_score, computed_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (schema_version, geo_boundary_key, crop_scope_id, window_days, bucket_start)
		DO UPDATE SET
			listing_count=EXCLUDED.listing_count, request_count=EXCLUDED.request_count,
			supply_quantity=EXCLUDED.supply_quantity, demand_quantity=EXCLUDED.demand_quantity,
			scarcity_score=EXCLUDED.scarcity_score, abundance_score=EXCLUDED.abundance_score,
			computed_at=EXCLUDED.computed_at, expires_at=EXCLUDED.expires_at`
	_, err := t.tx.Exec(ctx, q, sig.SchemaVersion, sig.GeoBoundaryKey, sig.CropScopeID, sig.WindowDays,
		sig.BucketStart, sig.ListingCount, sig.RequestCount, sig.SupplyQuantity, sig.DemandQuantity,
		sig.ScarcityScore, sig.AbundanceScore, sig.ComputedAt, sig.ExpiresAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "upsert derived signal")
	}
	return nil
}

// ScopesInRange implements the replay() scope set from spec §4.4.
func (t *Tx) ScopesInRange(ctx context.Context, from, to time.Time) ([]storage.GeoCropPair, error) {
	const q = `
		SELECT DISTINCT geo_key, crop_id FROM surplus_listings WHERE created_at >= $1 AND created_at < $2
		UNION
		SELECT DISTINCT geo_key, crop_id FROM requests WHERE created_at >= $1 AND created_at < $2
		UNION
		SELECT DISTINCT l.geo_key, l.crop_id FROM claims c JOIN surplus_listings l ON l.id = c.listing_id
			WHERE c.claimed_at >= $1 AND c.claimed_at < $2`
	rows, err := t.tx.Query(ctx, q, from, to)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "scopes in range")
	}
	defer rows.Close()

	var out []storage.GeoCropPair
	for rows.Next() {
		var p storage.GeoCropPair
		if err := rows.Scan(&p.GeoKey, &p.CropID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan scope row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *Tx) DistinctListingRequestScopes(ctx context.Context) ([]storage.GeoCropPair, error) {
	const q = `
		SELECT DISTINCT geo_key, crop_id FROM surplus_listings WHERE deleted_at IS NULL
		UNION
		SELECT DISTINCT geo_key, crop_id FROM requests WHERE deleted_at IS NULL`
	rows, err := t.tx.Query(ctx, q)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Internal, "distinct scopes")
	}
	defer rows.Close()

	var out []storage.GeoCropPair
	for rows.Next() {
		var p storage.GeoCropPair
		if err := rows.Scan(&p.GeoKey, &p.CropID); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Internal, "scan scope row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
