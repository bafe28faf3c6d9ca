// Package users implements the one piece of user management the core
// retains (spec §4.6): an idempotent shell-row insert for the identity
// provider's post-confirmation hook, and the billing webhook's tier
// mutation. Profile CRUD and onboarding stay out of scope.
package users

import (
	"context"

	"github.com/fieldshare/surplus/internal/storage"
	"github.com/fieldshare/surplus/internal/types"
)

// Service is a thin wrapper over storage.Store for the two user-touching
// operations the core needs.
type Service struct {
	store storage.Store
}

func New(store storage.Store) *Service {
	return &Service{store: store}
}

// EnsureShell inserts a shell user row if one does not already exist,
// keyed on id. Grounded on auth/post_confirmation.rs in original_source:
// the hook relies on a primary-key conflict for idempotency, never a
// SELECT-then-INSERT race.
func (s *Service) EnsureShell(ctx context.Context, id types.ID, email string) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.EnsureUserShell(ctx, id, email); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ApplyBillingTier updates a user's tier in response to a billing webhook
// (spec §4.9's WebhookEvent boundary).
func (s *Service) ApplyBillingTier(ctx context.Context, id types.ID, tier types.UserTier) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	if err := tx.ApplyBillingWebhook(ctx, id, tier); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
