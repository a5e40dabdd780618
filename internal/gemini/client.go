// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gemini

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/mymckenzie/assistant/internal/model"
)

const (
	// DefaultBaseURL is the public Gemini REST endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultTimeout bounds a single generateContent request.
	DefaultTimeout = 60 * time.Second

	// MaxResponseSize is the maximum accepted response body size.
	MaxResponseSize = 10 * 1024 * 1024

	replyPath = "candidates.0.content.parts.0.text"
	errorPath = "error.message"
)

// DefaultModels is the fallback order used when none is configured.
var DefaultModels = []string{
	"gemini-2.5-flash-lite",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

// Content is one entry of the request "contents" array.
type Content struct {
	Role  string       `json:"role"`
	Parts []model.Part `json:"parts"`
}

// Request is the generateContent request body.
type Request struct {
	Contents []Content `json:"contents"`
}

// NewRequest converts turns into a request body, preserving order.
func NewRequest(turns []model.Turn) Request {
	contents := make([]Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, Content{Role: string(t.Role), Parts: t.Parts})
	}
	return Request{Contents: contents}
}

// ReplyText extracts the first candidate's text from a response body.
// The second return value is false when the body does not carry one.
func ReplyText(body []byte) (string, bool) {
	res := gjson.GetBytes(body, replyPath)
	if res.Type != gjson.String || res.Str == "" {
		return "", false
	}
	return res.Str, true
}

// ReplyBody builds a minimal provider-shaped success body around text.
func ReplyBody(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"role":  string(model.RoleModel),
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client sends generateContent requests.
type Client struct {
	apiKey     string
	baseURL    string
	proxyURL   string
	httpClient *http.Client
}

// NewClient creates a client for the given API key.
//
// An empty key is allowed when a proxy URL is configured; otherwise every
// call fails with ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// WithBaseURL sets a custom base URL for the API. Empty keeps the default.
func (c *Client) WithBaseURL(u string) *Client {
	if u != "" {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
	return c
}

// WithProxyURL sets the keyless proxy endpoint, e.g.
// "http://localhost:8000/api/generate". The model is passed as a query
// parameter.
func (c *Client) WithProxyURL(u string) *Client {
	c.proxyURL = u
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// IsConfigured returns true if the client can reach a provider.
func (c *Client) IsConfigured() bool {
	return c.apiKey != "" || c.proxyURL != ""
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key, safe to
// log.
func (c *Client) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

func (c *Client) endpoint(modelName string) (string, error) {
	if c.apiKey != "" {
		return fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(modelName)), nil
	}
	if c.proxyURL == "" {
		return "", ErrNotConfigured
	}
	u, err := url.Parse(c.proxyURL)
	if err != nil {
		return "", errors.Wrap(err, "parse proxy url")
	}
	q := u.Query()
	q.Set("model", modelName)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GenerateContent sends contents to modelName and returns the reply text.
//
// Exactly one HTTP request is made. Failures are returned as *APIError,
// *TransportError or ErrMalformedResponse so callers can classify them.
func (c *Client) GenerateContent(ctx context.Context, modelName string, contents []model.Turn) (string, error) {
	endpoint, err := c.endpoint(modelName)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(NewRequest(contents))
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	log.Debug().
		Str("model", modelName).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("key", c.KeyFingerprint()).
		Msg("generateContent response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newAPIError(resp.StatusCode, body)
	}

	text, ok := ReplyText(body)
	if !ok {
		return "", ErrMalformedResponse
	}
	return text, nil
}

// readResponse reads the body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, errors.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

func newAPIError(status int, body []byte) *APIError {
	msg := gjson.GetBytes(body, errorPath).String()
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", status)
	}
	return &APIError{Status: status, Message: msg, Body: string(body)}
}
