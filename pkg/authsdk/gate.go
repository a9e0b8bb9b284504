package authsdk

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pocketclub/authcore/pkg/credstore"
	"github.com/pocketclub/authcore/pkg/idx"
)

// PublicPathSubstrings marks endpoints that never carry credentials.
// Matching is by substring on the request path.
var PublicPathSubstrings = []string{
	"login",
	"register",
	"refresh",
	"check-existence",
	"forgot-password",
}

// Gate is the interception point every outbound call passes through.
// It is an http.RoundTripper: wrap it around an http.Client's transport
// and the rest of the application sends plain requests.
//
// Behavior per call: attach the current access token; on the first 401,
// refresh once and resend once. A second 401 on the resend propagates
// as-is — the backend rejecting a freshly refreshed token is not
// something another refresh will fix.
type Gate struct {
	base        http.RoundTripper
	store       *credstore.Store
	coordinator *Coordinator
	bus         *LostAuthBus
	allowlist   []string
	logger      *slog.Logger
}

// NewGate wraps base (nil means http.DefaultTransport).
func NewGate(
	base http.RoundTripper,
	store *credstore.Store,
	coordinator *Coordinator,
	bus *LostAuthBus,
	logger *slog.Logger,
) *Gate {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		base:        base,
		store:       store,
		coordinator: coordinator,
		bus:         bus,
		allowlist:   PublicPathSubstrings,
		logger:      logger,
	}
}

// Client returns an http.Client whose transport is this gate.
func (g *Gate) Client() *http.Client {
	return &http.Client{Transport: g}
}

func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	if g.isPublic(req.URL.Path) {
		return g.base.RoundTrip(req)
	}

	logger := g.logger.With(
		"req_id", idx.New().String(),
		"method", req.Method,
		"path", req.URL.Path,
	)

	// The body is captured once so the original send and the single
	// retry both carry it; the caller's request is never touched.
	getBody, bodyLen, err := bodyReplay(req)
	if err != nil {
		return nil, err
	}

	first, err := g.clone(req, getBody, bodyLen)
	if err != nil {
		return nil, err
	}

	ctx := req.Context()
	if token := g.store.AccessToken(ctx); token != "" {
		first.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.base.RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// First authorization failure for this call: exactly one refresh
	// and one resend. The 401 from the backend is the ground truth,
	// even when the token decoded as unexpired locally. A failed
	// flight signals the loss once, from inside the flight, no matter
	// how many callers coalesced onto it.
	if refreshErr := g.coordinator.refresh(ctx, g.reportLost); refreshErr != nil {
		logger.Warn("refresh after 401 failed", "error", refreshErr)
		// Propagate the original authorization failure untouched.
		return resp, nil
	}

	retry, err := g.clone(req, getBody, bodyLen)
	if err != nil {
		logger.Warn("retry setup failed", "error", err)
		return resp, nil
	}
	if token := g.store.AccessToken(ctx); token != "" {
		retry.Header.Set("Authorization", "Bearer "+token)
	}

	// The original 401 body is done with; release the connection.
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()

	logger.Debug("resending after refresh")
	return g.base.RoundTrip(retry)
}

func (g *Gate) isPublic(path string) bool {
	for _, fragment := range g.allowlist {
		if strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}

// bodyReplay returns a replayable body source for req. Requests built
// with http.NewRequest already carry GetBody; anything else is buffered
// here, once. The original body is consumed and closed but no field of
// req is written, per the http.RoundTripper contract.
func bodyReplay(req *http.Request) (func() (io.ReadCloser, error), int64, error) {
	if req.Body == nil {
		return nil, 0, nil
	}

	if req.GetBody != nil {
		// Every send uses a fresh copy; the original is never read.
		req.Body.Close() //nolint:errcheck
		return req.GetBody, req.ContentLength, nil
	}

	buf, err := io.ReadAll(req.Body)
	req.Body.Close() //nolint:errcheck
	if err != nil {
		return nil, 0, fmt.Errorf("authsdk: buffer request body: %w", err)
	}

	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(buf)), nil
	}, int64(len(buf)), nil
}

// clone copies req for one send, attaching a fresh body from the replay
// source produced by bodyReplay.
func (g *Gate) clone(
	req *http.Request,
	getBody func() (io.ReadCloser, error),
	bodyLen int64,
) (*http.Request, error) {
	out := req.Clone(req.Context())
	if getBody == nil {
		return out, nil
	}

	body, err := getBody()
	if err != nil {
		return nil, fmt.Errorf("authsdk: replay request body: %w", err)
	}
	out.Body = body
	out.GetBody = getBody
	out.ContentLength = bodyLen

	return out, nil
}

func (g *Gate) reportLost(cause error) {
	if g.bus == nil {
		return
	}
	if err := g.bus.PublishSessionLost(cause.Error()); err != nil {
		g.logger.Error("session lost signal dropped", "error", err)
	}
}
