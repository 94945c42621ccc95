package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jrsteele09/go-hotspot-client/session"
)

// maxResponseBody caps how much of a backend response is buffered.
const maxResponseBody = 4 << 20

// AuthResult is the session material a login-style call yields.
type AuthResult struct {
	AccessToken string
	User        session.UserProfile
}

// Backend calls the endpoints that need no access token. Its http.Client
// should carry a cookie jar: the refresh cookie set at login is the only
// credential Refresh sends.
type Backend struct {
	baseURL string
	hc      *http.Client
}

var _ session.Refresher = (*Backend)(nil)

func NewBackend(baseURL string, httpClient *http.Client) *Backend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Backend{baseURL: baseURL, hc: httpClient}
}

// BaseURL is the backend root this client talks to.
func (b *Backend) BaseURL() string {
	return b.baseURL
}

// Login posts email and password to /auth/login.
func (b *Backend) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body, err := b.post(ctx, EndpointLogin, map[string]string{"email": email, "password": password}, "")
	if err != nil {
		return nil, fmt.Errorf("[Backend Login] %w", err)
	}
	res, err := extractAuth(body)
	if err != nil {
		return nil, fmt.Errorf("[Backend Login] %w", err)
	}
	return res, nil
}

// Refresh implements session.Refresher using the ambient refresh cookie.
func (b *Backend) Refresh(ctx context.Context) (*session.RefreshResult, error) {
	body, err := b.post(ctx, EndpointRefresh, nil, "")
	if err != nil {
		return nil, fmt.Errorf("[Backend Refresh] %w", err)
	}
	res, err := extractAuth(body)
	if err != nil {
		return nil, fmt.Errorf("[Backend Refresh] %w", err)
	}
	return &session.RefreshResult{AccessToken: res.AccessToken, User: res.User}, nil
}

// Logout tells the backend to revoke the refresh cookie.
func (b *Backend) Logout(ctx context.Context, accessToken string) error {
	if _, err := b.post(ctx, EndpointLogout, nil, accessToken); err != nil {
		return fmt.Errorf("[Backend Logout] %w", err)
	}
	return nil
}

// SignupRequest is the body of /user/create.
type SignupRequest struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) Signup(ctx context.Context, req SignupRequest) error {
	if _, err := b.post(ctx, EndpointCreateUser, req, ""); err != nil {
		return fmt.Errorf("[Backend Signup] %w", err)
	}
	return nil
}

// ResendOTP asks the backend to email a fresh verification code.
func (b *Backend) ResendOTP(ctx context.Context, email string) error {
	if _, err := b.post(ctx, EndpointResendOTP, map[string]string{"email": email}, ""); err != nil {
		return fmt.Errorf("[Backend ResendOTP] %w", err)
	}
	return nil
}

// VerifyOTP confirms the account; the backend answers with a session.
func (b *Backend) VerifyOTP(ctx context.Context, email, otp string) (*AuthResult, error) {
	body, err := b.post(ctx, EndpointVerifyOTP, map[string]string{"email": email, "otp": otp}, "")
	if err != nil {
		return nil, fmt.Errorf("[Backend VerifyOTP] %w", err)
	}
	res, err := extractAuth(body)
	if err != nil {
		return nil, fmt.Errorf("[Backend VerifyOTP] %w", err)
	}
	return res, nil
}

// ExchangeSocialCode trades a provider authorization code for a session.
func (b *Backend) ExchangeSocialCode(ctx context.Context, provider, code string) (*AuthResult, error) {
	body, err := b.post(ctx, EndpointSocialCallback(provider), map[string]string{"code": code}, "")
	if err != nil {
		return nil, fmt.Errorf("[Backend ExchangeSocialCode] %w", err)
	}
	res, err := extractAuth(body)
	if err != nil {
		return nil, fmt.Errorf("[Backend ExchangeSocialCode] %w", err)
	}
	return res, nil
}

func (b *Backend) post(ctx context.Context, path string, in any, bearer string) ([]byte, error) {
	var reader io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, body)
	}
	return body, nil
}
