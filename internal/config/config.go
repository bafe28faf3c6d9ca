// Package config binds the closed set of environment variables spec.md §6
// names into a typed Config struct, using spf13/viper the way the teacher's
// config package does: BindEnv per key plus SetDefault, rather than a
// free-form config file (there is no config.yaml in this service — the env
// vars are the only input).
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully-resolved, typed configuration for the surplusd
// binary and its subcommands.
type Config struct {
	DatabaseURL string
	EventBus    EventBusConfig
	Origin      string
	Geocoder    GeocoderConfig
	AISummary   AISummaryConfig
	Billing     BillingConfig
	UserPool    UserPoolConfig
	Replay      ReplayConfig
}

type EventBusConfig struct {
	Name string
}

type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

type AISummaryConfig struct {
	Provider       string // "mock" | "bedrock"
	BedrockEnabled bool
	BedrockModelID string
}

type BillingConfig struct {
	StripeSecretKey     string
	StripePremiumPrice  string
}

type UserPoolConfig struct {
	ID       string
	ClientID string
}

// ReplayConfig configures one invocation of the surplusd replay/backfill
// batch entry point (spec §4.4); it is only read by the `replay` and
// `backfill` subcommands.
type ReplayConfig struct {
	Mode           string // "replay" | "backfill"
	From           *time.Time
	To             *time.Time
	CheckpointFile string
	DryRun         bool
}

// closed set of recognized env vars, per spec §6. viper.AutomaticEnv alone
// would accept anything; BindEnv per key keeps the set closed and gives
// each key an explicit, greppable home.
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("geocoder_timeout_ms", 3000)
	v.SetDefault("ai_summary_provider", "mock")
	v.SetDefault("bedrock_summary_enabled", false)
	v.SetDefault("replay_mode", "replay")
	v.SetDefault("dry_run", false)

	for _, key := range []string{
		"database_url", "event_bus_name", "origin",
		"geocoder_base_url", "geocoder_user_agent", "geocoder_timeout_ms",
		"ai_summary_provider", "bedrock_summary_enabled", "bedrock_model_id",
		"stripe_secret_key", "stripe_premium_price_id",
		"user_pool_id", "user_pool_client_id",
		"replay_mode", "from_ts", "to_ts", "checkpoint_file", "dry_run",
	} {
		_ = v.BindEnv(key)
	}

	return v
}

// Load reads the process environment into a Config. Unknown env vars are
// ignored (closed set, not a free-form config file, per SPEC_FULL.md §6).
func Load() (*Config, error) {
	v := newViper()

	cfg := &Config{
		DatabaseURL: v.GetString("database_url"),
		EventBus:    EventBusConfig{Name: v.GetString("event_bus_name")},
		Origin:      v.GetString("origin"),
		Geocoder: GeocoderConfig{
			BaseURL:   v.GetString("geocoder_base_url"),
			UserAgent: v.GetString("geocoder_user_agent"),
			Timeout:   time.Duration(v.GetInt("geocoder_timeout_ms")) * time.Millisecond,
		},
		AISummary: AISummaryConfig{
			Provider:       v.GetString("ai_summary_provider"),
			BedrockEnabled: v.GetBool("bedrock_summary_enabled"),
			BedrockModelID: v.GetString("bedrock_model_id"),
		},
		Billing: BillingConfig{
			StripeSecretKey:    v.GetString("stripe_secret_key"),
			StripePremiumPrice: v.GetString("stripe_premium_price_id"),
		},
		UserPool: UserPoolConfig{
			ID:       v.GetString("user_pool_id"),
			ClientID: v.GetString("user_pool_client_id"),
		},
	}

	replay, err := loadReplay(v)
	if err != nil {
		return nil, err
	}
	cfg.Replay = replay

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func loadReplay(v *viper.Viper) (ReplayConfig, error) {
	rc := ReplayConfig{
		Mode:           v.GetString("replay_mode"),
		CheckpointFile: v.GetString("checkpoint_file"),
		DryRun:         v.GetBool("dry_run"),
	}

	if raw := v.GetString("from_ts"); raw != "" {
		t, err := parseTimestamp(raw)
		if err != nil {
			return ReplayConfig{}, fmt.Errorf("FROM_TS: %w", err)
		}
		rc.From = &t
	}
	if raw := v.GetString("to_ts"); raw != "" {
		t, err := parseTimestamp(raw)
		if err != nil {
			return ReplayConfig{}, fmt.Errorf("TO_TS: %w", err)
		}
		rc.To = &t
	}

	return rc, nil
}

// parseTimestamp accepts RFC3339 or a bare unix-seconds integer, matching
// the two shapes operators realistically pass on a command line.
func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q (want RFC3339 or unix seconds)", raw)
}
