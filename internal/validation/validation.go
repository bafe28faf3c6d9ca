// Package validation applies the shape checks spec §4.1/§3 require before a
// Ledger or Coordinator operation ever opens a transaction. Tag-based shape
// checks run through go-playground/validator/v10 (the struct validation
// dependency named in SPEC_FULL.md §6); checks the tag language can't
// express — cross-field ordering, closed-enum membership keyed off our own
// Valid() methods — are hand-written, composed after the tag pass.
package validation

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// toAppError flattens the first validator.FieldError into an apperrors.Error
// so callers never branch on the validator's own error type.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if ve, ok := err.(validator.ValidationErrors); ok && len(ve) > 0 {
		fe := ve[0]
		return apperrors.Newf(apperrors.Validation, "%s failed %s validation", fe.Field(), fe.Tag())
	}
	return apperrors.Wrap(err, apperrors.Validation, "validation failed")
}

// ListingInput is the shape of a create/update payload for the Ledger.
type ListingInput struct {
	Title                  string    `validate:"required"`
	Unit                   string    `validate:"required"`
	QuantityTotal          float64   `validate:"gt=0"`
	AvailableStart         time.Time `validate:"required"`
	AvailableEnd           time.Time `validate:"required"`
	PickupAddress          string
	PickupDisclosurePolicy types.PickupDisclosurePolicy `validate:"required"`
	ContactPreference      types.ContactPreference      `validate:"required"`
}

// ValidateListingInput runs the tag pass, then the cross-field and
// closed-enum checks spec §4.1 names explicitly.
func ValidateListingInput(in ListingInput) error {
	trimmedTitle := strings.TrimSpace(in.Title)
	trimmedUnit := strings.TrimSpace(in.Unit)
	if trimmedTitle == "" {
		return apperrors.New(apperrors.Validation, "title must not be empty")
	}
	if trimmedUnit == "" {
		return apperrors.New(apperrors.Validation, "unit must not be empty")
	}
	if err := v.Struct(in); err != nil {
		return toAppError(err)
	}
	if in.AvailableStart.After(in.AvailableEnd) {
		return apperrors.New(apperrors.Validation, "available_start must not be after available_end")
	}
	if !in.PickupDisclosurePolicy.Valid() {
		return apperrors.Newf(apperrors.Validation, "invalid pickup disclosure policy %q", in.PickupDisclosurePolicy)
	}
	if !in.ContactPreference.Valid() {
		return apperrors.Newf(apperrors.Validation, "invalid contact preference %q", in.ContactPreference)
	}
	return nil
}

// RequestInput is the shape of a create payload for a gatherer's request.
type RequestInput struct {
	Quantity float64   `validate:"gt=0"`
	NeededBy time.Time `validate:"required"`
}

// ValidateRequestInput enforces spec §3's "needed_by strictly >= now and
// <= now + 365 days" window.
func ValidateRequestInput(in RequestInput, now time.Time) error {
	if err := v.Struct(in); err != nil {
		return toAppError(err)
	}
	if !in.NeededBy.After(now) {
		return apperrors.New(apperrors.Validation, "needed_by must be in the future")
	}
	if in.NeededBy.After(now.AddDate(0, 0, 365)) {
		return apperrors.New(apperrors.Validation, "needed_by must not be more than 365 days out")
	}
	return nil
}

// ClaimInput is the shape of a create payload for a claim.
type ClaimInput struct {
	QuantityClaimed float64 `validate:"gt=0"`
}

// ValidateClaimInput enforces the positive-quantity invariant from spec §3.
func ValidateClaimInput(in ClaimInput) error {
	if err := v.Struct(in); err != nil {
		return toAppError(err)
	}
	return nil
}
