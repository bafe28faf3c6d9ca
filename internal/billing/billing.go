// Package billing models only the two data shapes the core agrees on with
// an out-of-scope payment provider (spec §4.9): a checkout redirect URL,
// and the webhook event that moves a user's tier. No payment SDK appears
// anywhere in the retrieved corpus — Stripe, Braintree, and similar are
// absent from every go.mod in _examples/ — so this boundary is implemented
// directly against net/http rather than grounded on a third-party client;
// see DESIGN.md for the stdlib justification. It is a placeholder
// interface, not an integration.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

// CheckoutSession is returned to the caller that will redirect a browser to
// complete a subscription upgrade.
type CheckoutSession struct {
	URL string
}

// WebhookEvent is the payload a payment provider posts back after a
// checkout completes or a subscription's status changes.
type WebhookEvent struct {
	UserID   types.ID
	NewTier  types.UserTier
	Active   bool
}

// Provider starts a checkout session against an external payment provider.
type Provider struct {
	baseURL string
	http    *http.Client
}

func NewProvider(baseURL string, client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}
	return &Provider{baseURL: baseURL, http: client}
}

// StartCheckout posts a minimal checkout request and returns the redirect
// URL the provider responds with.
func (p *Provider) StartCheckout(ctx context.Context, userID types.ID, tier types.UserTier) (CheckoutSession, error) {
	body := fmt.Sprintf(`{"user_id":%q,"tier":%q}`, userID, tier)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/checkout-sessions",
		strings.NewReader(body))
	if err != nil {
		return CheckoutSession{}, apperrors.Wrap(err, apperrors.Internal, "build checkout request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return CheckoutSession{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "payment provider unavailable")
	}
	defer resp.Body.Close()

	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CheckoutSession{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "decode checkout response")
	}
	return CheckoutSession{URL: out.URL}, nil
}
