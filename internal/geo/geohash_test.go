package geo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_IsStableAndLowercased(t *testing.T) {
	key := Encode(37.7749, -122.4194)
	require.Len(t, key, StorageGeoKeyLength)
	require.Equal(t, Normalize(key), key)
}

func TestNormalize_TrimsAndLowercases(t *testing.T) {
	require.Equal(t, "9q8yyk", Normalize("  9Q8YYK  "))
}

func TestPrefix_RejectsKeyShorterThanRequestedPrecision(t *testing.T) {
	_, ok := Prefix("9q8y", 6)
	require.False(t, ok)
}

func TestPrefix_ReturnsLeadingCharacters(t *testing.T) {
	p, ok := Prefix("9q8yykx", 5)
	require.True(t, ok)
	require.Equal(t, "9q8yy", p)
}

func TestPrecisionForRadius_KMBuckets(t *testing.T) {
	cases := []struct {
		radius float64
		want   int
	}{
		{0.5, 7},
		{2, 6},
		{15, 5},
		{75, 4},
		{600, 3},
		{2000, 2},
		{5000, 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, PrecisionForRadius(c.radius, false), "radius=%v km", c.radius)
	}
}

func TestPrecisionForRadius_CoercesMilesToKM(t *testing.T) {
	// 1 mile ~= 1.609 km, within the 2.4km bucket (precision 6).
	require.Equal(t, 6, PrecisionForRadius(1, true))
}
