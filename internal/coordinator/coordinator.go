// Package coordinator implements the Claim Coordination Engine (spec §4.2):
// the transactional state machine that reserves, releases, and finalizes
// inventory against a listing under concurrent access, with role-scoped
// transition authority and idempotent replay.
package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/authctx"
	"github.com/fieldshare/surplus/internal/eventbus"
	"github.com/fieldshare/surplus/internal/idgen"
	"github.com/fieldshare/surplus/internal/publisher"
	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
	"github.com/fieldshare/surplus/internal/validation"
)

// Coordinator is the Claim Coordination Engine.
type Coordinator struct {
	store     storage.Store
	bus       *eventbus.Bus
	publisher *publisher.Publisher
	log       *zap.Logger
}

func New(store storage.Store, bus *eventbus.Bus, pub *publisher.Publisher, log *zap.Logger) *Coordinator {
	return &Coordinator{store: store, bus: bus, publisher: pub, log: log}
}

// CreateInput is a claim-creation payload.
type CreateInput struct {
	ListingID       types.ID
	RequestID       *types.ID
	QuantityClaimed float64
	Notes           string
}

// Create implements spec §4.2's creation path: a pending claim is a soft
// hold — inventory is not decremented until the pending→confirmed edge.
func (c *Coordinator) Create(ctx context.Context, claimer authctx.Actor, in CreateInput) (*types.Claim, error) {
	if err := authctx.RequireGatherer(claimer); err != nil {
		return nil, err
	}
	if err := validation.ValidateClaimInput(validation.ClaimInput{QuantityClaimed: in.QuantityClaimed}); err != nil {
		return nil, err
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}

	listing, err := tx.GetListingForUpdate(ctx, in.ListingID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if !listingClaimable(listing.Status) {
		_ = tx.Rollback(ctx)
		return nil, apperrors.Newf(apperrors.Conflict, "listing is not claimable in status %q", listing.Status).WithCode("INVALID_TRANSITION")
	}
	if listing.QuantityRemaining != nil && *listing.QuantityRemaining < in.QuantityClaimed {
		_ = tx.Rollback(ctx)
		return nil, apperrors.New(apperrors.Conflict, "insufficient quantity remaining").WithCode("INSUFFICIENT_QUANTITY")
	}

	if in.RequestID != nil {
		request, err := tx.GetRequestForUpdate(ctx, *in.RequestID)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
		if request.OwnerID != claimer.ID {
			_ = tx.Rollback(ctx)
			return nil, apperrors.New(apperrors.Forbidden, "request does not belong to claimer")
		}
		if request.CropID != listing.CropID {
			_ = tx.Rollback(ctx)
			return nil, apperrors.New(apperrors.Validation, "request crop does not match listing crop")
		}
		if request.Status == types.RequestClosed {
			_ = tx.Rollback(ctx)
			return nil, apperrors.New(apperrors.Conflict, "request is closed")
		}
	}

	now := time.Now().UTC()
	claim := &types.Claim{
		ID: idgen.New(), ListingID: in.ListingID, RequestID: in.RequestID, ClaimerID: claimer.ID,
		QuantityClaimed: in.QuantityClaimed, Status: types.ClaimPending, Notes: in.Notes, ClaimedAt: now,
	}
	if err := tx.InsertClaim(ctx, claim); err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	c.emit(ctx, eventbus.EventClaimCreated, claim.ID, claim.ClaimerID, string(claim.Status), listing.GeoKey, listing.CropID)
	return claim, nil
}

func listingClaimable(s types.ListingStatus) bool {
	switch s {
	case types.ListingActive, types.ListingPending, types.ListingClaimed:
		return true
	}
	return false
}

// TransitionInput is a state-transition request.
type TransitionInput struct {
	TargetStatus types.ClaimStatus
	Notes        string
}

// Transition implements spec §4.2 steps 1-6: lock claim+listing, resolve
// role, apply the decision table, conditionally adjust inventory, stamp the
// claim, commit, emit.
func (c *Coordinator) Transition(ctx context.Context, actor authctx.Actor, claimID types.ID, in TransitionInput) (*types.Claim, error) {
	if !in.TargetStatus.Valid() {
		return nil, apperrors.Newf(apperrors.Validation, "invalid target status %q", in.TargetStatus)
	}

	var claim *types.Claim
	var listing *types.Listing
	var noop bool
	err := c.store.WithRetryTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		claim, listing, err = tx.GetClaimForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if listing.DeletedAt != nil {
			return apperrors.New(apperrors.NotFound, "listing no longer exists")
		}

		role := resolveRole(actor.ID, claim, listing)
		if role == types.RoleForbidden {
			return apperrors.New(apperrors.Forbidden, "actor is not a participant in this claim")
		}

		if claim.Status == in.TargetStatus {
			noop = true
			return nil
		}

		decision, err := decide(claim.Status, in.TargetStatus, role)
		if err != nil {
			return err
		}
		decision.quantityDelta *= claim.QuantityClaimed

		if decision.quantityDelta != 0 {
			newStatus := listing.Status
			if decision.quantityDelta < 0 {
				// A decrement reaching zero flips the listing to claimed; it
				// otherwise stays however it already was.
				if listing.QuantityRemaining == nil || *listing.QuantityRemaining+decision.quantityDelta <= 0 {
					newStatus = types.ListingClaimed
				}
			} else if listing.Status == types.ListingClaimed {
				newStatus = types.ListingActive
			}
			ok, err := tx.AdjustListingQuantity(ctx, listing.ID, decision.quantityDelta, newStatus)
			if err != nil {
				return err
			}
			if !ok {
				return apperrors.New(apperrors.Conflict, "insufficient quantity remaining").WithCode("INSUFFICIENT_QUANTITY")
			}
		}

		now := time.Now().UTC()
		claim.Status = in.TargetStatus
		if in.Notes != "" {
			claim.Notes = in.Notes
		}
		switch decision.stamp {
		case stampConfirmed:
			claim.ConfirmedAt = coalesceTime(claim.ConfirmedAt, now)
		case stampCompleted:
			claim.CompletedAt = coalesceTime(claim.CompletedAt, now)
		case stampCancelled:
			claim.CancelledAt = coalesceTime(claim.CancelledAt, now)
		}

		return tx.UpdateClaim(ctx, claim)
	})
	if err != nil {
		return nil, err
	}
	if noop {
		return claim, nil
	}

	c.emit(ctx, eventbus.EventClaimUpdated, claim.ID, claim.ClaimerID, string(claim.Status), listing.GeoKey, listing.CropID)
	return claim, nil
}

func coalesceTime(existing *time.Time, now time.Time) *time.Time {
	if existing != nil {
		return existing
	}
	return &now
}

// List implements spec §4.2 list(): access-checked entirely as SQL
// predicates (see storage/postgres ListClaims) — a non-participant query
// degrades to an empty page, never an error.
func (c *Coordinator) List(ctx context.Context, actor authctx.Actor, f storage.ClaimFilter) ([]*types.Claim, error) {
	f.ActorID = actor.ID
	return c.store.ListClaims(ctx, f)
}

func (c *Coordinator) emit(ctx context.Context, evt eventbus.EventType, entityID, ownerID types.ID, status, geoKey string, cropID types.ID) {
	event := &eventbus.Event{
		Type: evt, EntityID: entityID.String(), OwnerID: ownerID.String(), Status: status,
		GeoKey: geoKey, CropID: cropID.String(), CorrelationID: idgen.New().String(), OccurredAt: time.Now().UTC(),
	}
	if _, err := c.bus.Dispatch(ctx, event); err != nil {
		c.log.Warn("coordinator: in-process dispatch failed", zap.Error(err))
	}
	if c.publisher != nil {
		c.publisher.Publish(ctx, *event)
	}
}
