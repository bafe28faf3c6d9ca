// Package geo implements the geohash-prefix bucketing spec.md uses instead
// of true geospatial distance scoring (spec §1 Non-goals). It wraps
// github.com/mmcloughlin/geohash, which is not part of the retrieved
// example corpus — no example repo does geospatial bucketing, so this is
// an out-of-pack ecosystem dependency named here rather than grounded on a
// teacher file (see DESIGN.md).
package geo

import (
	"strings"

	"github.com/mmcloughlin/geohash"
)

// StorageGeoKeyLength is the precision stored on every listing/request row
// (spec §3, §4.1) regardless of what precision is later used to build an
// aggregation scope.
const StorageGeoKeyLength = 7

// Encode returns the lowercased geohash for (lat, lng) at the storage
// precision.
func Encode(lat, lng float64) string {
	return geohash.EncodeWithPrecision(lat, lng, StorageGeoKeyLength)
}

// Normalize lowercases and trims a geo key, per spec §4.3 "Geo keys are
// lowercased and trimmed".
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Prefix returns the first p characters of a (normalized) geo key.
// Per spec §4.3, prefix(g, p) is only defined when len(g) >= p; the second
// return value is false otherwise.
func Prefix(geoKey string, p int) (string, bool) {
	g := Normalize(geoKey)
	if len(g) < p {
		return "", false
	}
	return g[:p], true
}

// radiusPrecisionKM is the fixed lookup table from spec §4.1: radius
// (upper bound, km) -> geohash prefix length to filter discovery by.
var radiusPrecisionKM = []struct {
	maxKM     float64
	precision int
}{
	{0.61, 7},
	{2.4, 6},
	{20, 5},
	{78, 4},
	{630, 3},
	{2500, 2},
}

const milesToKM = 1.609344

// PrecisionForRadius returns the discovery prefix length for a radius given
// in either kilometers or miles, coercing miles to km first (spec §4.1).
func PrecisionForRadius(radius float64, miles bool) int {
	km := radius
	if miles {
		km = radius * milesToKM
	}
	for _, row := range radiusPrecisionKM {
		if km <= row.maxKM {
			return row.precision
		}
	}
	return 1
}
