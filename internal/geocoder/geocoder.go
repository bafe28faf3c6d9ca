// Package geocoder implements the external geocoder collaborator from spec
// §4.7: a single bounded HTTP GET, no retry, wrapped in a circuit breaker
// so an outage fails fast on subsequent listing writes instead of queueing
// up multi-second waits.
package geocoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/fieldshare/surplus/internal/apperrors"
)

// Client geocodes a free-text address into (lat, lng).
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// Config configures the geocoder client.
type Config struct {
	BaseURL string
	Timeout time.Duration // default 3s (GEOCODER_TIMEOUT_MS)
}

func New(cfg Config, breaker *gobreaker.CircuitBreaker) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves address to a (lat, lng) pair. A transport or 5xx failure
// surfaces as apperrors.DependencyUnavailable; an empty result set surfaces
// as apperrors.Validation ("address could not be geocoded") per spec §6/§7.
func (c *Client) Geocode(ctx context.Context, address string) (lat, lng float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.breaker.Execute(func() (any, error) {
		return c.doGeocode(ctx, address)
	})
	if err != nil {
		if appErr, ok := err.(*apperrors.Error); ok {
			return 0, 0, appErr
		}
		return 0, 0, apperrors.Wrap(err, apperrors.DependencyUnavailable, "geocoding service unavailable")
	}
	coords := out.([2]float64)
	return coords[0], coords[1], nil
}

func (c *Client) doGeocode(ctx context.Context, address string) ([2]float64, error) {
	u := fmt.Sprintf("%s/search?format=jsonv2&limit=1&q=%s", c.baseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return [2]float64{}, apperrors.Wrap(err, apperrors.Internal, "build geocoder request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return [2]float64{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "geocoding service unavailable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return [2]float64{}, apperrors.Newf(apperrors.DependencyUnavailable, "geocoding service returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return [2]float64{}, apperrors.Newf(apperrors.Validation, "geocoder rejected request with %d", resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return [2]float64{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "decode geocoder response")
	}
	if len(results) == 0 {
		return [2]float64{}, apperrors.New(apperrors.Validation, "address could not be geocoded")
	}

	var lat, lng float64
	if _, err := fmt.Sscanf(results[0].Lat, "%f", &lat); err != nil {
		return [2]float64{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "parse geocoder latitude")
	}
	if _, err := fmt.Sscanf(results[0].Lon, "%f", &lng); err != nil {
		return [2]float64{}, apperrors.Wrap(err, apperrors.DependencyUnavailable, "parse geocoder longitude")
	}
	return [2]float64{lat, lng}, nil
}
