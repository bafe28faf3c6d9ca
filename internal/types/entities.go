package types

import "time"

// User is a shell account created by the identity provider's
// post-confirmation hook. Profile CRUD and onboarding live outside the
// core (spec §1); the core only needs the fields below to resolve actors
// and apply billing-webhook tier changes.
type User struct {
	ID        ID
	Email     string
	Tier      UserTier
	UserType  UserType
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Listing is a grower's time-bounded offer of a specific crop/variety.
type Listing struct {
	ID                      ID
	OwnerID                 ID
	CropID                  ID
	VarietyID               *ID
	Title                   string
	Unit                    string
	QuantityTotal           float64
	QuantityRemaining       *float64 // nil means unbounded
	AvailableStart          time.Time
	AvailableEnd            time.Time
	Status                  ListingStatus
	PickupAddress           string
	PickupDisclosurePolicy  PickupDisclosurePolicy
	ContactPreference       ContactPreference
	GeoKey                  string
	Lat                     float64
	Lng                     float64
	IdempotencyKey          string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	DeletedAt               *time.Time
}

// EffectivePickupAddress returns the pickup address gated by the
// disclosure policy and the caller's relationship to the listing.
// confirmed/accepted are the claim states that satisfy the "after_*"
// policies (accepted is treated as an alias of confirmed — the source
// never introduced a distinct "accepted" claim state).
func (l *Listing) EffectivePickupAddress(viewerIsOwner bool, claimStatus ClaimStatus, hasClaim bool) string {
	if viewerIsOwner {
		return l.PickupAddress
	}
	switch l.PickupDisclosurePolicy {
	case DisclosureImmediate:
		return l.PickupAddress
	case DisclosureAfterConfirmed, DisclosureAfterAccepted:
		if hasClaim && (claimStatus == ClaimConfirmed || claimStatus == ClaimCompleted) {
			return l.PickupAddress
		}
		return ""
	default:
		return ""
	}
}

// Request is a gatherer's declared demand for a crop by a deadline.
type Request struct {
	ID        ID
	OwnerID   ID
	CropID    ID
	VarietyID *ID
	Quantity  float64
	NeededBy  time.Time
	Status    RequestStatus
	GeoKey    string
	Lat       float64
	Lng       float64
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Claim is a coordinated reservation against a listing, optionally linked
// to a request, driven by the state machine in coordinator.Coordinator.
type Claim struct {
	ID               ID
	ListingID        ID
	RequestID        *ID
	ClaimerID        ID
	QuantityClaimed  float64
	Status           ClaimStatus
	Notes            string
	ClaimedAt        time.Time
	ConfirmedAt      *time.Time
	CompletedAt      *time.Time
	CancelledAt      *time.Time
}

// DerivedSignal is one rolling scarcity/abundance aggregate for a
// (geo_boundary, crop_scope, window) key, bucketed to a 5-minute slot.
type DerivedSignal struct {
	SchemaVersion    int
	GeoBoundaryKey   string
	CropScopeID      string
	WindowDays       WindowDays
	BucketStart      time.Time
	ListingCount     int
	RequestCount     int
	SupplyQuantity   float64
	DemandQuantity   float64
	ScarcityScore    float64
	AbundanceScore   float64
	ComputedAt       time.Time
	ExpiresAt        time.Time
}

// IsFresh reports whether the row is still within its retention window
// relative to now, per the freshness contract in spec §4.3.
func (d *DerivedSignal) IsFresh(now time.Time) bool {
	return d.ExpiresAt.After(now)
}

// AiSummaryCache is an upserted cache entry for a generated AI summary,
// gated by expires_at (spec §3, §4.8).
type AiSummaryCache struct {
	SchemaVersion  int
	GeoBoundaryKey string
	WindowDays     WindowDays
	Text           string
	ModelID        string
	ModelVersion   string
	GeneratedAt    time.Time
	ExpiresAt      time.Time
}
