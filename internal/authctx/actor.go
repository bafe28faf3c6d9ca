// Package authctx carries the already-validated identity fields an
// upstream layer places on every request (spec §6 "Auth context"). The
// core never re-derives these — it reads them by name once and threads a
// single Actor value through the coordinator/ledger call.
package authctx

import (
	"context"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

// Actor is the resolved identity of the caller for one request or event.
type Actor struct {
	ID       types.ID
	UserType types.UserType
	Tier     types.UserTier
	Email    string
}

type ctxKey struct{}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext extracts the Actor placed by WithActor. It fails with
// AuthMissing when the context carries no actor or the actor's ID is
// NilID. The Coordinator and Ledger do not call it; they take the Actor as
// an explicit argument.
func FromContext(ctx context.Context) (Actor, error) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	if !ok || a.ID == types.NilID {
		return Actor{}, apperrors.New(apperrors.AuthMissing, "no actor context on request")
	}
	return a, nil
}

// RequireGatherer fails with Forbidden unless the actor is a gatherer.
// Used by the claim-creation path (spec §4.2, §6).
func RequireGatherer(a Actor) error {
	if a.UserType != types.UserTypeGatherer {
		return apperrors.New(apperrors.Forbidden, "actor must be a gatherer")
	}
	return nil
}

// RequireGrower fails with Forbidden unless the actor is a grower.
func RequireGrower(a Actor) error {
	if a.UserType != types.UserTypeGrower {
		return apperrors.New(apperrors.Forbidden, "actor must be a grower")
	}
	return nil
}
