// Package app wires every collaborator into one process (spec §5 "the
// Store is the single shared resource" / "the bus is the only channel
// between the Ledger, Coordinator, and Aggregator"). There is no HTTP
// façade in this core (out of scope per spec §6), so App is the
// integration point a future façade — or an integration test — imports
// rather than re-deriving the wiring.
package app

import (
	"context"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/aggregator"
	"github.com/fieldshare/surplus/internal/aiservice"
	"github.com/fieldshare/surplus/internal/billing"
	"github.com/fieldshare/surplus/internal/config"
	"github.com/fieldshare/surplus/internal/coordinator"
	"github.com/fieldshare/surplus/internal/eventbus"
	"github.com/fieldshare/surplus/internal/geocoder"
	"github.com/fieldshare/surplus/internal/ledger"
	"github.com/fieldshare/surplus/internal/publisher"
	"github.com/fieldshare/surplus/internal/storage/postgres"
	"github.com/fieldshare/surplus/internal/users"
)

// App holds every constructed collaborator, ready for a façade (or a test)
// to call into.
type App struct {
	Store       *postgres.Store
	Bus         *eventbus.Bus
	Aggregator  *aggregator.Aggregator
	Ledger      *ledger.Ledger
	Coordinator *coordinator.Coordinator
	Users       *users.Service
	AISummary   *aiservice.Cache
	Billing     *billing.Provider

	log *zap.Logger
}

// Build constructs the full collaborator graph from cfg. It opens a real
// Postgres pool and a real EventBridge client, plus a Bedrock client when
// the Bedrock summary provider is selected and enabled — callers that only need the in-memory pieces (e.g. unit tests)
// should construct components directly instead of calling Build.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DatabaseURL}, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	bus := eventbus.New(log)
	agg := aggregator.New(store, log)
	bus.Register(agg)

	pub, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}

	geo, err := buildGeocoder(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	aiProvider, err := buildAIProvider(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		Store:       store,
		Bus:         bus,
		Aggregator:  agg,
		Ledger:      ledger.New(store, bus, pub, geo, log),
		Coordinator: coordinator.New(store, bus, pub, log),
		Users:       users.New(store),
		AISummary:   aiservice.NewCache(store, aiProvider, 24*time.Hour),
		// No payment-provider base URL is named anywhere in spec §4.9/§6 —
		// this placeholder is never actually called by surplusd's
		// subcommands, only exercised directly in internal/billing tests.
		Billing: billing.NewProvider("", nil),
		log:     log,
	}, nil
}

// Close releases every resource App opened.
func (a *App) Close() {
	a.Store.Close()
}

func buildPublisher(ctx context.Context, cfg *config.Config, log *zap.Logger) (*publisher.Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := eventbridge.NewFromConfig(awsCfg)
	return publisher.New(client, publisher.Config{BusName: cfg.EventBus.Name, Source: "surplusd"}, log), nil
}

func buildGeocoder(_ context.Context, cfg *config.Config) (*geocoder.Client, error) {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "geocoder",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return geocoder.New(geocoder.Config{
		BaseURL: cfg.Geocoder.BaseURL,
		Timeout: cfg.Geocoder.Timeout,
	}, breaker), nil
}

// buildAIProvider selects mock or bedrock per AI_SUMMARY_PROVIDER /
// BEDROCK_SUMMARY_ENABLED (spec §4.8).
func buildAIProvider(ctx context.Context, cfg *config.Config) (aiservice.Provider, error) {
	if cfg.AISummary.Provider != "bedrock" || !cfg.AISummary.BedrockEnabled {
		return aiservice.MockProvider{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := bedrockruntime.NewFromConfig(awsCfg)
	return aiservice.NewBedrockProvider(client, cfg.AISummary.BedrockModelID), nil
}
