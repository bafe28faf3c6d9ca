// Package storage defines the transactional boundary the Coordinator,
// Ledger, and Aggregator share (spec §5 "the Store is the single shared
// resource"). It is grounded on the teacher's storage.Storage interface
// (internal/storage/provider.go upstream) — a narrow interface of
// domain-shaped methods a caller composes, rather than a raw SQL builder —
// generalized here to a Postgres-transaction-scoped Tx so the Coordinator's
// "one transaction per call, FOR UPDATE OF c, l" rule (spec §4.2 step 1) is
// expressible directly in the interface.
package storage

import (
	"context"
	"time"

	"github.com/fieldshare/surplus/internal/types"
)

// Store is the entry point: a connection pool capable of starting
// transactions, plus the handful of single-statement reads that never need
// row locks (discovery, list-owned).
type Store interface {
	// BeginTx starts a new transaction. Callers must Commit or Rollback.
	BeginTx(ctx context.Context) (Tx, error)

	// WithRetryTx runs fn inside a fresh transaction, retrying the entire
	// attempt (including commit) when it fails with a Postgres
	// serialization/deadlock SQLSTATE (spec §9, SPEC_FULL.md §6
	// "Retry/backoff"). fn must have no externally visible side effects
	// before it returns — a retry re-runs it from a fresh BeginTx. This is
	// the entry point the Coordinator and Ledger use for their
	// read-modify-write transactions instead of BeginTx directly.
	WithRetryTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetListing(ctx context.Context, id types.ID) (*types.Listing, error)
	ListOwnedListings(ctx context.Context, ownerID types.ID, limit, offset int) ([]*types.Listing, bool, error)
	DiscoverListings(ctx context.Context, geoPrefix string, cropID *types.ID, limit, offset int) ([]*types.Listing, bool, error)

	GetRequest(ctx context.Context, id types.ID) (*types.Request, error)

	GetClaim(ctx context.Context, id types.ID) (*types.Claim, error)
	ListClaims(ctx context.Context, f ClaimFilter) ([]*types.Claim, error)

	GetFreshDerivedSignal(ctx context.Context, key DerivedSignalKey, now time.Time) (*types.DerivedSignal, error)
	GetAiSummaryCache(ctx context.Context, geoBoundaryKey string, window types.WindowDays) (*types.AiSummaryCache, error)
	UpsertAiSummaryCache(ctx context.Context, entry *types.AiSummaryCache) error

	Close()
}

// ClaimFilter is the set of optional filters list() accepts. The
// coordinator only sets ActorID; the store's ListClaims applies the
// access-check predicates (spec §4.2 "read-side access rules") for that
// actor alongside the caller's filters.
type ClaimFilter struct {
	ActorID   types.ID
	ListingID *types.ID
	RequestID *types.ID
	Status    *types.ClaimStatus
}

// DerivedSignalKey addresses one aggregate row.
type DerivedSignalKey struct {
	SchemaVersion  int
	GeoBoundaryKey string
	CropScopeID    string
	WindowDays     types.WindowDays
}

// Tx is a single database transaction. Every method that mutates state
// returns an *apperrors.Error on business-rule failure (e.g.
// INSUFFICIENT_QUANTITY) rather than a bare driver error, so callers never
// inspect SQLSTATE directly outside the storage/postgres package.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// InsertListing performs upsert-on-conflict-do-nothing keyed on id
	// (spec §4.1). created is false when the row already existed — the
	// "idempotency replay" case — in which case existing is the row as
	// currently stored. Returns apperrors.Conflict if the existing row
	// belongs to a different owner.
	InsertListing(ctx context.Context, l *types.Listing) (created bool, existing *types.Listing, err error)

	// GetListingForUpdate locks the listing row (spec §4.2 step 1 / §4.1
	// update path). Returns apperrors.NotFound if absent or soft-deleted.
	GetListingForUpdate(ctx context.Context, id types.ID) (*types.Listing, error)

	// UpdateListing persists a full row, including the
	// LEAST(COALESCE(quantity_remaining, new_total), new_total) shrink-safe
	// recompute the caller already applied in memory.
	UpdateListing(ctx context.Context, l *types.Listing) error

	// AdjustListingQuantity applies a conditional, guarded delta to
	// quantity_remaining: UPDATE ... SET quantity_remaining = quantity_remaining + delta,
	// status = newStatus WHERE id = ? AND (quantity_remaining IS NULL OR quantity_remaining >= -delta).
	// ok is false when the guard rejected the update (spec §4.2 step 4,
	// INSUFFICIENT_QUANTITY on a decrement). newStatus is the status to
	// persist on success (claimed on a decrement that reaches zero, active
	// on an increment that lifts a listing out of claimed).
	AdjustListingQuantity(ctx context.Context, listingID types.ID, delta float64, newStatus types.ListingStatus) (ok bool, err error)

	GetRequestForUpdate(ctx context.Context, id types.ID) (*types.Request, error)
	UpdateRequestStatus(ctx context.Context, id types.ID, status types.RequestStatus) error

	// GetClaimForUpdate selects the claim joined with its listing, both
	// FOR UPDATE (spec §4.2 step 1 "FOR UPDATE of both rows").
	GetClaimForUpdate(ctx context.Context, id types.ID) (*types.Claim, *types.Listing, error)

	InsertClaim(ctx context.Context, c *types.Claim) error

	// UpdateClaim persists status, notes, and whichever timestamp(s) the
	// caller has already stamped with COALESCE(existing, now()) semantics.
	UpdateClaim(ctx context.Context, c *types.Claim) error

	EnsureUserShell(ctx context.Context, id types.ID, email string) error
	GetUser(ctx context.Context, id types.ID) (*types.User, error)
	ApplyBillingWebhook(ctx context.Context, userID types.ID, tier types.UserTier) error

	// AggregateInputs computes the counts/quantities the aggregator needs
	// for one scope+window (spec §3 scoring inputs), scoped to non-deleted
	// rows with created_at >= since, filtered to the status sets spec §3
	// names.
	AggregateInputs(ctx context.Context, geoBoundaryKey string, cropScopeID string, since time.Time) (AggregateInputs, error)

	UpsertDerivedSignal(ctx context.Context, sig *types.DerivedSignal) error

	// DistinctListingRequestScopes enumerates every (geo_key, crop_id) pair
	// across current listings and requests, for backfill() (spec §4.4).
	DistinctListingRequestScopes(ctx context.Context) ([]GeoCropPair, error)

	// ScopesInRange enumerates every (geo_key, crop_id) pair touched by a
	// listing/request created, or a claim claimed, within [from, to) — the
	// scope set for replay() (spec §4.4).
	ScopesInRange(ctx context.Context, from, to time.Time) ([]GeoCropPair, error)
}

// GeoCropPair is one (geo_key, crop_id) combination observed in the data,
// used to seed backfill scopes.
type GeoCropPair struct {
	GeoKey string
	CropID types.ID
}

// AggregateInputs is the raw material the scarcity/abundance formulas in
// spec §3 are computed from.
type AggregateInputs struct {
	ListingCount   int
	RequestCount   int
	SupplyQuantity float64
	DemandQuantity float64
}
