package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldshare/surplus/internal/apperrors"
	"github.com/fieldshare/surplus/internal/types"
)

func TestStartCheckout_ReturnsRedirectURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/checkout-sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"https://pay.example.com/cs_123"}`))
	}))
	defer srv.Close()

	provider := NewProvider(srv.URL, nil)
	session, err := provider.StartCheckout(context.Background(), types.NewID(), types.TierPremium)
	require.NoError(t, err)
	require.Equal(t, "https://pay.example.com/cs_123", session.URL)
}

func TestStartCheckout_WrapsTransportFailure(t *testing.T) {
	provider := NewProvider("http://127.0.0.1:0", nil)
	_, err := provider.StartCheckout(context.Background(), types.NewID(), types.TierPremium)
	require.Error(t, err)
	require.Equal(t, apperrors.DependencyUnavailable, err.(*apperrors.Error).Kind)
}
