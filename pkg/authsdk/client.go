package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 10 * time.Second

// Client performs the bare token-endpoint calls. It deliberately uses
// its own undecorated http.Client: routing a refresh exchange back
// through the Gate would intercept its own 401s and recurse.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a token-endpoint client. Exchanges are paced so a
// misbehaving caller cannot hammer the token endpoint; this is pacing,
// not a retry policy.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 3),
		logger:     logger,
	}
}

// Refresh exchanges a refresh token for a new credential pair.
// Any non-2xx response is a failed exchange.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("authsdk: refresh pacing: %w", err)
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("authsdk: encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/auth/refresh",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("authsdk: create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authsdk: send refresh request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("authsdk: read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseErrorResponse(resp, raw)
	}

	var pair TokenPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return nil, fmt.Errorf("authsdk: decode refresh response: %w", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, fmt.Errorf("authsdk: refresh response missing tokens")
	}

	return &pair, nil
}

// Logout notifies the backend that the session is ending. Callers treat
// it as best effort; a failure here never blocks the local sign-out.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("authsdk: logout pacing: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.BaseURL+"/auth/logout",
		nil,
	)
	if err != nil {
		return fmt.Errorf("authsdk: create logout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("authsdk: send logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp, raw)
	}

	return nil
}
