package coordinator

import (
	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

// resolveRole compares the actor's id against the claim's claimer_id and
// the listing's owner_id (spec §4.2 "Actor roles").
func resolveRole(actorID types.ID, claim *types.Claim, listing *types.Listing) types.ActorRole {
	switch {
	case actorID == claim.ClaimerID:
		return types.RoleClaimer
	case actorID == listing.OwnerID:
		return types.RoleListingOwner
	default:
		return types.RoleForbidden
	}
}

type stampField int

const (
	stampNone stampField = iota
	stampConfirmed
	stampCompleted
	stampCancelled
)

type decision struct {
	quantityDelta float64
	stamp         stampField
}

// decide implements the state diagram in spec §4.2. quantityDelta is
// negative on a decrement (confirm), positive on an increment
// (cancel-after-confirm, no_show); callers scale it by the claim's
// quantity_claimed.
func decide(current, target types.ClaimStatus, role types.ActorRole) (decision, error) {
	switch {
	case current == types.ClaimPending && target == types.ClaimConfirmed:
		if role != types.RoleListingOwner {
			return decision{}, apperrors.New(apperrors.Forbidden, "only the listing owner may confirm a claim")
		}
		return decision{quantityDelta: -1, stamp: stampConfirmed}, nil

	case current == types.ClaimPending && target == types.ClaimCancelled:
		return decision{stamp: stampCancelled}, nil

	case current == types.ClaimConfirmed && target == types.ClaimCompleted:
		return decision{stamp: stampCompleted}, nil

	case current == types.ClaimConfirmed && target == types.ClaimCancelled:
		return decision{quantityDelta: 1, stamp: stampCancelled}, nil

	case current == types.ClaimConfirmed && target == types.ClaimNoShow:
		if role != types.RoleListingOwner {
			return decision{}, apperrors.New(apperrors.Forbidden, "only the listing owner may mark a claim no_show")
		}
		return decision{quantityDelta: 1, stamp: stampCancelled}, nil

	default:
		return decision{}, apperrors.Newf(apperrors.Conflict, "cannot transition claim from %q to %q", current, target).WithCode("INVALID_TRANSITION")
	}
}
