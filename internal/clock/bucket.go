// Package clock holds the few time-bucketing helpers shared by the
// aggregator and replay driver, so the "5-minute floor" rule lives in one
// place (spec §4.3, §9 "avoid duplicating the SQL — it is the contract"
// applies equally to this bucketing arithmetic).
package clock

import "time"

const bucketWidth = 5 * time.Minute

// BucketFloor truncates t down to the nearest 5-minute epoch boundary:
// t - (t mod 300s), per spec §4.3.
func BucketFloor(t time.Time) time.Time {
	return t.UTC().Truncate(bucketWidth)
}
