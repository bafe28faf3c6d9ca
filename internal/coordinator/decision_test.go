package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

func TestResolveRole(t *testing.T) {
	claimerID, ownerID, strangerID := types.NewID(), types.NewID(), types.NewID()
	claim := &types.Claim{ClaimerID: claimerID}
	listing := &types.Listing{OwnerID: ownerID}

	require.Equal(t, types.RoleClaimer, resolveRole(claimerID, claim, listing))
	require.Equal(t, types.RoleListingOwner, resolveRole(ownerID, claim, listing))
	require.Equal(t, types.RoleForbidden, resolveRole(strangerID, claim, listing))
}

func TestDecide_PendingToConfirmed_RequiresListingOwner(t *testing.T) {
	d, err := decide(types.ClaimPending, types.ClaimConfirmed, types.RoleListingOwner)
	require.NoError(t, err)
	require.Equal(t, stampConfirmed, d.stamp)
	require.Equal(t, -1.0, d.quantityDelta)

	_, err = decide(types.ClaimPending, types.ClaimConfirmed, types.RoleClaimer)
	require.Error(t, err)
	require.Equal(t, apperrors.Forbidden, err.(*apperrors.Error).Kind)
}

func TestDecide_PendingToCancelled_EitherParticipant(t *testing.T) {
	for _, role := range []types.ActorRole{types.RoleClaimer, types.RoleListingOwner} {
		d, err := decide(types.ClaimPending, types.ClaimCancelled, role)
		require.NoError(t, err)
		require.Equal(t, stampCancelled, d.stamp)
		require.Zero(t, d.quantityDelta)
	}
}

func TestDecide_ConfirmedToCompleted(t *testing.T) {
	d, err := decide(types.ClaimConfirmed, types.ClaimCompleted, types.RoleClaimer)
	require.NoError(t, err)
	require.Equal(t, stampCompleted, d.stamp)
	require.Zero(t, d.quantityDelta)
}

func TestDecide_ConfirmedToCancelled_ReleasesInventory(t *testing.T) {
	d, err := decide(types.ClaimConfirmed, types.ClaimCancelled, types.RoleClaimer)
	require.NoError(t, err)
	require.Equal(t, stampCancelled, d.stamp)
	require.Equal(t, 1.0, d.quantityDelta)
}

func TestDecide_ConfirmedToNoShow_RequiresListingOwner(t *testing.T) {
	d, err := decide(types.ClaimConfirmed, types.ClaimNoShow, types.RoleListingOwner)
	require.NoError(t, err)
	require.Equal(t, stampCancelled, d.stamp, "no_show reuses the cancelled_at stamp per DESIGN.md")
	require.Equal(t, 1.0, d.quantityDelta)

	_, err = decide(types.ClaimConfirmed, types.ClaimNoShow, types.RoleClaimer)
	require.Error(t, err)
	require.Equal(t, apperrors.Forbidden, err.(*apperrors.Error).Kind)
}

func TestDecide_InvalidTransitionsRejected(t *testing.T) {
	cases := []struct{ from, to types.ClaimStatus }{
		{types.ClaimCompleted, types.ClaimCancelled},
		{types.ClaimCancelled, types.ClaimConfirmed},
		{types.ClaimNoShow, types.ClaimCompleted},
		{types.ClaimPending, types.ClaimCompleted},
		{types.ClaimPending, types.ClaimNoShow},
	}
	for _, c := range cases {
		_, err := decide(c.from, c.to, types.RoleListingOwner)
		require.Error(t, err, "%s -> %s should be rejected", c.from, c.to)
		appErr, ok := err.(*apperrors.Error)
		require.True(t, ok)
		require.Equal(t, apperrors.Conflict, appErr.Kind)
		require.Equal(t, "INVALID_TRANSITION", appErr.Code)
	}
}
