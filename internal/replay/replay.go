// Package replay implements the Replay/Backfill Driver (spec §4.4): an
// offline batch entry point for catch-up after an outage, sharing the
// aggregator's recompute function verbatim (spec §9 "avoid duplicating the
// SQL — it is the contract").
package replay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/aggregator"
	"github.com/fieldshare/surplus/internal/clock"
	"github.com/fieldshare/surplus/internal/storage"
)

// Mode is the batch entry point's mode.
type Mode string

const (
	ModeReplay   Mode = "replay"
	ModeBackfill Mode = "backfill"
)

// Driver runs replay or backfill passes over historical data.
type Driver struct {
	store      storage.Store
	aggregator *aggregator.Aggregator
	checkpoint *CheckpointStore
	log        *zap.Logger
}

func New(store storage.Store, agg *aggregator.Aggregator, checkpoint *CheckpointStore, log *zap.Logger) *Driver {
	return &Driver{store: store, aggregator: agg, checkpoint: checkpoint, log: log}
}

// RunInput configures one driver invocation.
type RunInput struct {
	Mode   Mode
	From   *time.Time // replay only; defaults to to-24h, or the checkpointed previous `to`
	To     time.Time
	DryRun bool
}

// RunResult summarizes one pass, for logging/CLI output.
type RunResult struct {
	ScopesProcessed int
	DryRun          bool
}

// Run executes one replay or backfill pass (spec §4.4). Both modes iterate
// (scope × window) and perform the same recompute+upsert as the live
// pipeline, with bucket_start = 5-minute floor(to). A dry run short-circuits
// all writes and only logs the intended work; a checkpoint is still written
// (or, on dry run, only logged) after a successful pass.
func (d *Driver) Run(ctx context.Context, in RunInput) (RunResult, error) {
	scopes, err := d.resolveScopes(ctx, in)
	if err != nil {
		return RunResult{}, err
	}

	bucket := clock.BucketFloor(in.To)
	for _, scope := range scopes {
		if in.DryRun {
			d.log.Info("replay: would recompute scope",
				zap.String("geo_key", scope.GeoKey), zap.String("crop_id", scope.CropID.String()),
				zap.Time("bucket_start", bucket))
			continue
		}
		if err := d.aggregator.Recompute(ctx, scope.GeoKey, scope.CropID, in.To); err != nil {
			return RunResult{}, err
		}
	}

	cp := Checkpoint{LastProcessedTo: in.To, UpdatedAt: time.Now().UTC(), Mode: string(in.Mode)}
	if in.DryRun {
		d.log.Info("replay: dry run, checkpoint not persisted", zap.Any("would_write", cp))
	} else if err := d.checkpoint.Write(cp); err != nil {
		return RunResult{}, err
	}

	return RunResult{ScopesProcessed: len(scopes), DryRun: in.DryRun}, nil
}

func (d *Driver) resolveScopes(ctx context.Context, in RunInput) ([]storage.GeoCropPair, error) {
	if in.Mode == ModeBackfill {
		tx, err := d.store.BeginTx(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		return tx.DistinctListingRequestScopes(ctx)
	}

	from := in.To.Add(-24 * time.Hour)
	if in.From != nil {
		from = *in.From
	} else if prev, err := d.checkpoint.Read(); err == nil && prev != nil {
		from = prev.LastProcessedTo
	}

	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return tx.ScopesInRange(ctx, from, in.To)
}
