package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/rs/zerolog/log"
)

// inspectLimit is how much of a response body is examined for an embedded
// unauthorized code. Larger bodies are passed through uninspected.
const inspectLimit = 64 << 10

// Session is the part of session.Store the request wrapper needs.
type Session interface {
	AccessToken() string
	RefreshStale(ctx context.Context, usedToken string) bool
}

// Options describes one request. Body is kept as bytes so the request can be
// sent a second time after a refresh.
type Options struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

// Client sends authenticated requests to the backend.
type Client struct {
	baseURL string
	hc      *http.Client
	session Session
}

func NewClient(baseURL string, httpClient *http.Client, s Session) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, hc: httpClient, session: s}
}

// Request sends the request with the current bearer token. If the backend
// rejects the token, by status 401 or by a JSON body carrying code 401, the
// session is refreshed once and the request resent once. The resent
// response is returned whatever it says. If the refresh fails the error
// wraps ErrSessionExpired.
//
// The caller owns the returned body. An inspected body is restored before it
// is returned.
func (c *Client) Request(ctx context.Context, url string, opts Options) (*http.Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	resp, usedToken, err := c.send(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("[api Request] %s %s: %w", opts.Method, url, err)
	}

	unauthorized, err := isUnauthorized(resp)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("[api Request] %s %s: %w", opts.Method, url, err)
	}
	if !unauthorized {
		return resp, nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("Access token rejected, refreshing")
	if !c.session.RefreshStale(ctx, usedToken) {
		return nil, apperrors.Wrapf(ErrSessionExpired, "[api Request] %s %s", opts.Method, url)
	}

	resp, _, err = c.send(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("[api Request] retry %s %s: %w", opts.Method, url, err)
	}
	return resp, nil
}

// send builds headers fresh so a retry picks up a refreshed token. It returns
// the token the request carried.
func (c *Client) send(ctx context.Context, url string, opts Options) (*http.Response, string, error) {
	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, url, body)
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	token := c.session.AccessToken()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, token, err
	}
	return resp, token, nil
}

// isUnauthorized checks the status and then peeks at the body, leaving
// resp.Body readable from the start.
func isUnauthorized(resp *http.Response) (bool, error) {
	if resp.StatusCode == http.StatusUnauthorized {
		return true, nil
	}

	orig := resp.Body
	peek, err := io.ReadAll(io.LimitReader(orig, inspectLimit))
	if err != nil {
		return false, fmt.Errorf("inspect response: %w", err)
	}
	resp.Body = &replayBody{Reader: io.MultiReader(bytes.NewReader(peek), orig), Closer: orig}

	if len(peek) == inspectLimit {
		return false, nil
	}
	return hasEmbeddedUnauthorized(peek), nil
}

type replayBody struct {
	io.Reader
	io.Closer
}

// doJSON sends in as JSON to path and decodes the envelope payload into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	opts := Options{Method: method}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[api %s %s] encode: %w", method, path, err)
		}
		opts.Body = data
	}

	resp, err := c.Request(ctx, c.baseURL+path, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("[api %s %s] read: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("[api %s %s] %w", method, path, newStatusError(resp.StatusCode, body))
	}
	if out == nil {
		return nil
	}
	if err := decodePayload(body, out); err != nil {
		return fmt.Errorf("[api %s %s] %w", method, path, err)
	}
	return nil
}
