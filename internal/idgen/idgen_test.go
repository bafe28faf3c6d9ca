package idgen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldshare/surplus/internal/types"
)

func TestDeriveListingID_Deterministic(t *testing.T) {
	owner := types.NewID()

	a := DeriveListingID(owner, "order-123")
	b := DeriveListingID(owner, "order-123")
	require.Equal(t, a, b, "same owner+key must derive the same id every time")
}

func TestDeriveListingID_DistinctKeysDiffer(t *testing.T) {
	owner := types.NewID()

	a := DeriveListingID(owner, "order-123")
	b := DeriveListingID(owner, "order-456")
	require.NotEqual(t, a, b)
}

func TestDeriveListingID_DistinctOwnersDiffer(t *testing.T) {
	a := DeriveListingID(types.NewID(), "order-123")
	b := DeriveListingID(types.NewID(), "order-123")
	require.NotEqual(t, a, b)
}

func TestDeriveListingID_IsValidUUIDv4Shape(t *testing.T) {
	id := DeriveListingID(types.NewID(), "k")
	require.Equal(t, byte(4), (id[6]&0xf0)>>4, "version nibble must be forced to 4")
	require.Equal(t, byte(0x80), id[8]&0xc0, "variant bits must be forced to RFC 4122")
}

func TestNew_ProducesDistinctRandomIDs(t *testing.T) {
	require.NotEqual(t, New(), New())
}
