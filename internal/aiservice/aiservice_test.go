package aiservice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fieldshare/surplus/internal/storage/memstore"
	"github.com/fieldshare/surplus/internal/types"
)

type failingProvider struct{}

func (failingProvider) Summarize(_ context.Context, _ types.DerivedSignal) (string, string, string, error) {
	return "", "", "", fmt.Errorf("provider unavailable")
}

func TestMockProvider_SummarizesCurrentNumbers(t *testing.T) {
	text, modelID, _, err := MockProvider{}.Summarize(context.Background(), types.DerivedSignal{
		ListingCount: 3, RequestCount: 2, WindowDays: types.Window7, ScarcityScore: 0.5, AbundanceScore: 1.2,
	})
	require.NoError(t, err)
	require.Equal(t, "mock-v1", modelID)
	require.Contains(t, text, "3 listings")
	require.Contains(t, text, "2 requests")
}

func TestGetOrGenerate_GeneratesAndCachesOnMiss(t *testing.T) {
	store := memstore.New()
	cache := NewCache(store, MockProvider{}, time.Hour)
	now := time.Now().UTC()

	scope := types.DerivedSignal{GeoBoundaryKey: "9q8y", WindowDays: types.Window7, ListingCount: 1}
	text := cache.GetOrGenerate(context.Background(), scope, now)
	require.NotEmpty(t, text)

	cached, err := store.GetAiSummaryCache(context.Background(), "9q8y", types.Window7)
	require.NoError(t, err)
	require.NotNil(t, cached)
	require.Equal(t, text, cached.Text)
}

func TestGetOrGenerate_ReturnsCachedTextWhenFresh(t *testing.T) {
	store := memstore.New()
	now := time.Now().UTC()
	require.NoError(t, store.UpsertAiSummaryCache(context.Background(), &types.AiSummaryCache{
		GeoBoundaryKey: "9q8y", WindowDays: types.Window7, Text: "cached text",
		GeneratedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	cache := NewCache(store, failingProvider{}, time.Hour)
	text := cache.GetOrGenerate(context.Background(), types.DerivedSignal{GeoBoundaryKey: "9q8y", WindowDays: types.Window7}, now)
	require.Equal(t, "cached text", text, "a fresh cache entry must short-circuit the provider")
}

func TestGetOrGenerate_ReturnsEmptyOnProviderFailure(t *testing.T) {
	store := memstore.New()
	cache := NewCache(store, failingProvider{}, time.Hour)

	text := cache.GetOrGenerate(context.Background(), types.DerivedSignal{GeoBoundaryKey: "9q8y", WindowDays: types.Window7}, time.Now().UTC())
	require.Empty(t, text)
}
