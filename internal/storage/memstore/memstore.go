// Package memstore is an in-memory storage.Store implementation used by
// the coordinator/ledger/aggregator package tests, grounded on the
// teacher's own in-memory backend (internal/storage/memory/MemoryStorage
// upstream) — a full implementation of the storage interface, not a mock
// framework, so tests exercise the same business-rule error paths
// (INSUFFICIENT_QUANTITY, NotFound, Conflict) the Postgres backend
// produces.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

// Store is a single-process, mutex-guarded storage.Store.
type Store struct {
	mu sync.Mutex

	listings map[types.ID]*types.Listing
	requests map[types.ID]*types.Request
	claims   map[types.ID]*types.Claim
	users    map[types.ID]*types.User
	signals  map[signalKey]*types.DerivedSignal
	aiCache  map[aiKey]*types.AiSummaryCache
}

type signalKey struct {
	geo, crop string
	window    types.WindowDays
}

type aiKey struct {
	geo    string
	window types.WindowDays
}

func New() *Store {
	return &Store{
		listings: map[types.ID]*types.Listing{},
		requests: map[types.ID]*types.Request{},
		claims:   map[types.ID]*types.Claim{},
		users:    map[types.ID]*types.User{},
		signals:  map[signalKey]*types.DerivedSignal{},
		aiCache:  map[aiKey]*types.AiSummaryCache{},
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Close() {}

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	return &tx{store: s}, nil
}

// WithRetryTx runs fn inside a fresh transaction. memstore has no
// serialization failures to retry — every Tx method locks the whole store
// for its duration — so this is a plain begin/commit/rollback wrapper that
// satisfies storage.Store without any backoff machinery.
func (s *Store) WithRetryTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	t, err := s.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := fn(ctx, t); err != nil {
		_ = t.Rollback(ctx)
		return err
	}
	return t.Commit(ctx)
}

func clone[T any](v T) *T {
	c := v
	return &c
}

func (s *Store) GetListing(ctx context.Context, id types.ID) (*types.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok || l.DeletedAt != nil {
		return nil, apperrors.New(apperrors.NotFound, "listing not found")
	}
	return clone(*l), nil
}

func (s *Store) ListOwnedListings(ctx context.Context, ownerID types.ID, limit, offset int) ([]*types.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*types.Listing
	for _, l := range s.listings {
		if l.OwnerID == ownerID && l.DeletedAt == nil {
			all = append(all, clone(*l))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return paginate(all, limit, offset)
}

func (s *Store) DiscoverListings(ctx context.Context, geoPrefix string, cropID *types.ID, limit, offset int) ([]*types.Listing, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*types.Listing
	for _, l := range s.listings {
		if l.DeletedAt != nil || !strings.HasPrefix(l.GeoKey, geoPrefix) {
			continue
		}
		if cropID != nil && l.CropID != *cropID {
			continue
		}
		if l.Status != types.ListingActive {
			continue
		}
		all = append(all, clone(*l))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return paginate(all, limit, offset)
}

func paginate(all []*types.Listing, limit, offset int) ([]*types.Listing, bool, error) {
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	return all, hasMore, nil
}

func (s *Store) GetRequest(ctx context.Context, id types.ID) (*types.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok || r.DeletedAt != nil {
		return nil, apperrors.New(apperrors.NotFound, "request not found")
	}
	return clone(*r), nil
}

func (s *Store) GetClaim(ctx context.Context, id types.ID) (*types.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "claim not found")
	}
	return clone(*c), nil
}

func (s *Store) ListClaims(ctx context.Context, f storage.ClaimFilter) ([]*types.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Claim
	for _, c := range s.claims {
		listing := s.listings[c.ListingID]
		if c.ClaimerID != f.ActorID && (listing == nil || listing.OwnerID != f.ActorID) {
			continue
		}
		if f.ListingID != nil && c.ListingID != *f.ListingID {
			continue
		}
		if f.RequestID != nil && (c.RequestID == nil || *c.RequestID != *f.RequestID) {
			continue
		}
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		out = append(out, clone(*c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(out[j].ClaimedAt) })
	return out, nil
}

func (s *Store) GetFreshDerivedSignal(ctx context.Context, key storage.DerivedSignalKey, now time.Time) (*types.DerivedSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[signalKey{geo: key.GeoBoundaryKey, crop: key.CropScopeID, window: key.WindowDays}]
	if !ok {
		return nil, nil
	}
	return clone(*sig), nil
}

func (s *Store) GetAiSummaryCache(ctx context.Context, geoBoundaryKey string, window types.WindowDays) (*types.AiSummaryCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.aiCache[aiKey{geo: geoBoundaryKey, window: window}]
	if !ok {
		return nil, nil
	}
	return clone(*entry), nil
}

func (s *Store) UpsertAiSummaryCache(ctx context.Context, entry *types.AiSummaryCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiCache[aiKey{geo: entry.GeoBoundaryKey, window: entry.WindowDays}] = clone(*entry)
	return nil
}

// tx is a no-op transactional wrapper: memstore has no real isolation, so
// every Tx method locks the whole store for its duration. This is
// sufficient for the business-rule tests that use memstore — it is not a
// stand-in for the Postgres backend's concurrency behavior.
type tx struct {
	store *Store
}

func (t *tx) Commit(ctx context.Context) error   { return nil }
func (t *tx) Rollback(ctx context.Context) error { return nil }

func (t *tx) InsertListing(ctx context.Context, l *types.Listing) (bool, *types.Listing, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if existing, ok := t.store.listings[l.ID]; ok {
		if existing.OwnerID != l.OwnerID {
			return false, nil, apperrors.New(apperrors.Conflict, "idempotency key resolves to a listing owned by another grower")
		}
		return false, clone(*existing), nil
	}
	t.store.listings[l.ID] = clone(*l)
	return true, nil, nil
}

func (t *tx) GetListingForUpdate(ctx context.Context, id types.ID) (*types.Listing, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	l, ok := t.store.listings[id]
	if !ok || l.DeletedAt != nil {
		return nil, apperrors.New(apperrors.NotFound, "listing not found")
	}
	return clone(*l), nil
}

// UpdateListing persists l as-is: the caller (internal/ledger) has already
// applied the shrink-safe quantity_remaining recompute before calling this.
func (t *tx) UpdateListing(ctx context.Context, l *types.Listing) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.listings[l.ID]; !ok {
		return apperrors.New(apperrors.NotFound, "listing not found")
	}
	t.store.listings[l.ID] = clone(*l)
	return nil
}

func (t *tx) AdjustListingQuantity(ctx context.Context, listingID types.ID, delta float64, newStatus types.ListingStatus) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	l, ok := t.store.listings[listingID]
	if !ok {
		return false, apperrors.New(apperrors.NotFound, "listing not found")
	}
	if l.QuantityRemaining != nil {
		next := *l.QuantityRemaining + delta
		if next < 0 {
			return false, nil
		}
		l.QuantityRemaining = &next
	}
	l.Status = newStatus
	return true, nil
}

func (t *tx) GetRequestForUpdate(ctx context.Context, id types.ID) (*types.Request, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.requests[id]
	if !ok || r.DeletedAt != nil {
		return nil, apperrors.New(apperrors.NotFound, "request not found")
	}
	return clone(*r), nil
}

func (t *tx) UpdateRequestStatus(ctx context.Context, id types.ID, status types.RequestStatus) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	r, ok := t.store.requests[id]
	if !ok {
		return apperrors.New(apperrors.NotFound, "request not found")
	}
	r.Status = status
	return nil
}

func (t *tx) GetClaimForUpdate(ctx context.Context, id types.ID) (*types.Claim, *types.Listing, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	c, ok := t.store.claims[id]
	if !ok {
		return nil, nil, apperrors.New(apperrors.NotFound, "claim not found")
	}
	l, ok := t.store.listings[c.ListingID]
	if !ok {
		return nil, nil, apperrors.New(apperrors.NotFound, "listing not found")
	}
	return clone(*c), clone(*l), nil
}

func (t *tx) InsertClaim(ctx context.Context, c *types.Claim) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.claims[c.ID] = clone(*c)
	return nil
}

func (t *tx) UpdateClaim(ctx context.Context, c *types.Claim) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.claims[c.ID]; !ok {
		return apperrors.New(apperrors.NotFound, "claim not found")
	}
	t.store.claims[c.ID] = clone(*c)
	return nil
}

func (t *tx) EnsureUserShell(ctx context.Context, id types.ID, email string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, ok := t.store.users[id]; ok {
		return nil
	}
	t.store.users[id] = &types.User{ID: id, Email: email, Tier: types.TierFree, CreatedAt: time.Now().UTC()}
	return nil
}

func (t *tx) GetUser(ctx context.Context, id types.ID) (*types.User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	u, ok := t.store.users[id]
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "user not found")
	}
	return clone(*u), nil
}

func (t *tx) ApplyBillingWebhook(ctx context.Context, userID types.ID, tier types.UserTier) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	u, ok := t.store.users[userID]
	if !ok {
		return apperrors.New(apperrors.NotFound, "user not found")
	}
	u.Tier = tier
	return nil
}

func (t *tx) AggregateInputs(ctx context.Context, geoBoundaryKey, cropScopeID string, since time.Time) (storage.AggregateInputs, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	var out storage.AggregateInputs
	for _, l := range t.store.listings {
		if l.DeletedAt != nil || !strings.HasPrefix(l.GeoKey, geoBoundaryKey) || l.CreatedAt.Before(since) {
			continue
		}
		if cropScopeID != types.AllCropsScope && l.CropID.String() != cropScopeID {
			continue
		}
		switch l.Status {
		case types.ListingActive, types.ListingPending, types.ListingClaimed:
			out.ListingCount++
			if l.QuantityRemaining != nil {
				out.SupplyQuantity += *l.QuantityRemaining
			} else {
				out.SupplyQuantity += l.QuantityTotal
			}
		}
	}
	for _, r := range t.store.requests {
		if r.DeletedAt != nil || !strings.HasPrefix(r.GeoKey, geoBoundaryKey) || r.CreatedAt.Before(since) {
			continue
		}
		if cropScopeID != types.AllCropsScope && r.CropID.String() != cropScopeID {
			continue
		}
		if r.Status != types.RequestOpen {
			continue
		}
		out.RequestCount++
		out.DemandQuantity += r.Quantity
	}
	return out, nil
}

func (t *tx) UpsertDerivedSignal(ctx context.Context, sig *types.DerivedSignal) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.signals[signalKey{geo: sig.GeoBoundaryKey, crop: sig.CropScopeID, window: sig.WindowDays}] = clone(*sig)
	return nil
}

func (t *tx) DistinctListingRequestScopes(ctx context.Context) ([]storage.GeoCropPair, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	seen := map[storage.GeoCropPair]bool{}
	var out []storage.GeoCropPair
	for _, l := range t.store.listings {
		if l.DeletedAt != nil {
			continue
		}
		p := storage.GeoCropPair{GeoKey: l.GeoKey, CropID: l.CropID}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, r := range t.store.requests {
		if r.DeletedAt != nil {
			continue
		}
		p := storage.GeoCropPair{GeoKey: r.GeoKey, CropID: r.CropID}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *tx) ScopesInRange(ctx context.Context, from, to time.Time) ([]storage.GeoCropPair, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	seen := map[storage.GeoCropPair]bool{}
	var out []storage.GeoCropPair
	add := func(p storage.GeoCropPair) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, l := range t.store.listings {
		if !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
			add(storage.GeoCropPair{GeoKey: l.GeoKey, CropID: l.CropID})
		}
	}
	for _, r := range t.store.requests {
		if !r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			add(storage.GeoCropPair{GeoKey: r.GeoKey, CropID: r.CropID})
		}
	}
	for _, c := range t.store.claims {
		if !c.ClaimedAt.Before(from) && c.ClaimedAt.Before(to) {
			if l, ok := t.store.listings[c.ListingID]; ok {
				add(storage.GeoCropPair{GeoKey: l.GeoKey, CropID: l.CropID})
			}
		}
	}
	return out, nil
}

// Seed exposes direct write access for test setup, bypassing the Tx
// interface — tests build fixtures this way rather than through a fake
// transaction lifecycle.
func (s *Store) Seed(listings []*types.Listing, requests []*types.Request, claims []*types.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range listings {
		s.listings[l.ID] = clone(*l)
	}
	for _, r := range requests {
		s.requests[r.ID] = clone(*r)
	}
	for _, c := range claims {
		s.claims[c.ID] = clone(*c)
	}
}
