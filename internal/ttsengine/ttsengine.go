// Package ttsengine implements the Engine Client (spec §4.A): a typed
// HTTP wrapper over the VOICEVOX-style synthesis engine's /speakers,
// /initialize_speaker, /audio_query, and /synthesis endpoints. Grounded
// on the teacher's AzureClient (internal/speech/azure.go) for the
// http.Client/functional-options/context-aware-request shape, generalized
// from Azure's single-endpoint SSML POST to the engine's multi-endpoint,
// query-string-driven contract shown in
// other_examples/ec784f89_shouni-go-voicevox's AudioQueryClient usage.
package ttsengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hammamikhairi/vvcache/internal/domain"
	"github.com/hammamikhairi/vvcache/internal/logger"
	"github.com/hammamikhairi/vvcache/internal/retrypolicy"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPTimeout sets the per-request timeout used by the underlying
// http.Client (the connection timeout spec §4.A refers to).
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client is the Engine Client (spec §4.A).
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// New constructs an Engine Client against baseURL.
func New(baseURL string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsReachable reports whether the engine answers /speakers within the
// client's timeout, used by the Orchestrator's reachability gate (spec
// §4.J step 1).
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speakers", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListSpeakers fetches the engine's speaker roster (spec §4.A).
func (c *Client) ListSpeakers(ctx context.Context) ([]domain.Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/speakers", nil)
	if err != nil {
		return nil, fmt.Errorf("building speakers request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ioError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ioError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var speakers []domain.Speaker
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, domain.Wrap(domain.KindAPIResponseInvalid, "parse /speakers response", err)
	}
	return speakers, nil
}

// InitializeSpeaker warms the engine's speaker model (spec §4.A);
// idempotent.
func (c *Client) InitializeSpeaker(ctx context.Context, speakerID int) error {
	u := fmt.Sprintf("%s/initialize_speaker?speaker=%d", c.baseURL, speakerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("building initialize_speaker request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ioError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return statusError(resp.StatusCode, body)
	}
	return nil
}

// AudioQuery builds an engine query document for req (spec §4.A):
// speed_scale/pitch_scale/volume_scale are only included when they
// deviate from their default by more than 1e-4, and number formatting is
// locale-neutral (Go's strconv always uses '.').
func (c *Client) AudioQuery(ctx context.Context, req domain.VoiceRequest) (string, error) {
	q := url.Values{}
	q.Set("text", req.Text)
	q.Set("speaker", strconv.Itoa(req.SpeakerID))

	if domain.DeviatesFromDefault(req.Speed, domain.DefaultSpeed) {
		q.Set("speed_scale", strconv.FormatFloat(req.Speed, 'f', -1, 64))
	}
	if domain.DeviatesFromDefault(req.Pitch, domain.DefaultPitch) {
		q.Set("pitch_scale", strconv.FormatFloat(req.Pitch, 'f', -1, 64))
	}
	if domain.DeviatesFromDefault(req.Volume, domain.DefaultVolume) {
		q.Set("volume_scale", strconv.FormatFloat(req.Volume, 'f', -1, 64))
	}

	u := fmt.Sprintf("%s/audio_query?%s", c.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return "", fmt.Errorf("building audio_query request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", ioError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", ioError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, body)
	}
	return string(body), nil
}

// Synthesize posts queryJSON to /synthesis and returns raw WAV bytes
// (spec §4.A).
func (c *Client) Synthesize(ctx context.Context, queryJSON string, speakerID int) ([]byte, error) {
	u := fmt.Sprintf("%s/synthesis?speaker=%d", c.baseURL, speakerID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader([]byte(queryJSON)))
	if err != nil {
		return nil, fmt.Errorf("building synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, ioError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ioError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// statusError classifies an HTTP status into the spec §4.A/§7 error kind
// table, wrapped in a *retrypolicy.StatusError so the Retry Policy can
// classify it without parsing strings.
func statusError(status int, body []byte) error {
	kind := domain.KindAPIRequestFailed
	switch status {
	case http.StatusUnauthorized:
		kind = domain.KindAPIAuthenticationErr
	case http.StatusForbidden:
		kind = domain.KindPermissionDenied
	case http.StatusNotFound:
		kind = domain.KindResourceNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = domain.KindAPITimeout
	case http.StatusTooManyRequests:
		kind = domain.KindAPIRateLimitExceeded
	case http.StatusInternalServerError:
		kind = domain.KindEngineProcessError
	case http.StatusServiceUnavailable:
		kind = domain.KindEngineNotAvailable
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		kind = domain.KindAPIRequestFailed
	}

	inner := domain.New(kind, fmt.Sprintf("engine returned %d: %s", status, truncate(body, 200)))
	return &retrypolicy.StatusError{Status: status, Err: inner}
}

func ioError(err error) error {
	return domain.Wrap(domain.KindEngineNotAvailable, "engine request failed", err)
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
