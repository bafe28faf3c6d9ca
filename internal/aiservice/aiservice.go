// Package aiservice implements the AI summary collaborator from spec §4.8:
// a provider switch (mock default, bedrock gated live) behind a cache keyed
// on the same (geo_boundary_key, window_days) scope the aggregator
// maintains.
package aiservice

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

// Provider generates a natural-language summary for one scope's current
// DerivedSignal.
type Provider interface {
	Summarize(ctx context.Context, scope types.DerivedSignal) (text, modelID, modelVersion string, err error)
}

// MockProvider returns deterministic canned text derived from the scope's
// current numbers, per SPEC_FULL.md §4.8.
type MockProvider struct{}

func (MockProvider) Summarize(_ context.Context, scope types.DerivedSignal) (string, string, string, error) {
	text := fmt.Sprintf(
		"%d listings and %d requests in this area over the last %d days (scarcity %.2f, abundance %.2f).",
		scope.ListingCount, scope.RequestCount, int(scope.WindowDays), scope.ScarcityScore, scope.AbundanceScore)
	return text, "mock-v1", "1", nil
}

// Cache wraps a Provider with the AiSummaryCache table, gated by
// expires_at. A provider failure degrades gracefully: GetOrGenerate returns
// "" rather than an error, so the caller treats it as "no summary
// available" instead of a request failure (SPEC_FULL.md §4.8).
type Cache struct {
	store    storage.Store
	provider Provider
	ttl      time.Duration
}

// NewCache wires provider behind a cache with the given freshness window.
func NewCache(store storage.Store, provider Provider, ttl time.Duration) *Cache {
	return &Cache{store: store, provider: provider, ttl: ttl}
}

// GetOrGenerate returns the cached summary if fresh, else generates one and
// upserts it.
func (c *Cache) GetOrGenerate(ctx context.Context, scope types.DerivedSignal, now time.Time) string {
	cached, err := c.store.GetAiSummaryCache(ctx, scope.GeoBoundaryKey, scope.WindowDays)
	if err == nil && cached != nil && cached.ExpiresAt.After(now) {
		return cached.Text
	}

	text, modelID, modelVersion, err := c.provider.Summarize(ctx, scope)
	if err != nil || text == "" {
		return ""
	}

	entry := &types.AiSummaryCache{
		SchemaVersion:  1,
		GeoBoundaryKey: scope.GeoBoundaryKey,
		WindowDays:     scope.WindowDays,
		Text:           text,
		ModelID:        modelID,
		ModelVersion:   modelVersion,
		GeneratedAt:    now,
		ExpiresAt:      now.Add(c.ttl),
	}
	_ = c.store.UpsertAiSummaryCache(ctx, entry)
	return text
}
