// Package identity is the boundary to the external identity-verification
// service consumed by user-management flows. The crawling core treats it as
// opaque; its contract is owned by the external provider.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sitewatch/sitewatch/internal/config"
)

// ErrUnavailable means no verification endpoint is configured.
var ErrUnavailable = errors.New("identity verification unavailable")

// Verifier checks a phone number against the external identity provider.
type Verifier interface {
	Verify(ctx context.Context, phone string) (bool, error)
}

// HTTPVerifier calls a configured HTTP endpoint.
type HTTPVerifier struct {
	client   *http.Client
	endpoint string
}

// NewHTTPVerifier creates a verifier from configuration. Returns an
// unavailable verifier when no endpoint is configured; the real provider's
// contract is still unsettled, so nothing is simulated in its place.
func NewHTTPVerifier(cfg config.IdentityConfig) Verifier {
	if cfg.URL == "" {
		return unavailableVerifier{}
	}
	return &HTTPVerifier{
		client:   &http.Client{Timeout: cfg.Timeout},
		endpoint: cfg.URL,
	}
}

type verifyRequest struct {
	Phone string `json:"phone"`
}

type verifyResponse struct {
	Accepted bool `json:"accepted"`
}

// Verify posts the phone number to the provider and reports its decision.
func (v *HTTPVerifier) Verify(ctx context.Context, phone string) (bool, error) {
	payload, err := json.Marshal(verifyRequest{Phone: phone})
	if err != nil {
		return false, fmt.Errorf("marshal verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return false, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("verify request: http status %d", resp.StatusCode)
	}

	var decoded verifyResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&decoded); decodeErr != nil {
		return false, fmt.Errorf("decode verify response: %w", decodeErr)
	}
	return decoded.Accepted, nil
}

type unavailableVerifier struct{}

func (unavailableVerifier) Verify(context.Context, string) (bool, error) {
	return false, ErrUnavailable
}
