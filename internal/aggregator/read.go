package aggregator

import (
	"context"
	"time"

	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

// SignalView is a DerivedSignal with the freshness flags spec §4.3 names.
type SignalView struct {
	Signal            *types.DerivedSignal
	IsStale           bool
	StaleFallbackUsed bool
}

// Latest implements the freshness contract from spec §4.3: prefer a row
// with expires_at > now; if none exists, fall back to the most recent row
// regardless of expiry and flag the result stale.
func (a *Aggregator) Latest(ctx context.Context, geoBoundaryKey, cropScopeID string, window types.WindowDays, now time.Time) (*SignalView, error) {
	sig, err := a.store.GetFreshDerivedSignal(ctx, storage.DerivedSignalKey{
		SchemaVersion: schemaVersion, GeoBoundaryKey: geoBoundaryKey, CropScopeID: cropScopeID, WindowDays: window,
	}, now)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, nil
	}
	if sig.IsFresh(now) {
		return &SignalView{Signal: sig}, nil
	}
	return &SignalView{Signal: sig, IsStale: true, StaleFallbackUsed: true}, nil
}
