package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/session"
	"github.com/tidwall/gjson"
)

// The backend wraps payloads inconsistently. Each list is tried in order and
// the first non-empty match wins.
var (
	tokenPaths   = []string{"result.data.accessToken", "data.accessToken", "accessToken"}
	userPaths    = []string{"result.data.user", "data.user", "user"}
	payloadPaths = []string{"result.data", "data", "result"}
	messagePaths = []string{"message", "error.message", "error", "result.message"}
)

// unauthorizedCode is the embedded code some endpoints return inside an
// otherwise successful JSON body.
const unauthorizedCode = 401

func firstMatch(body []byte, paths []string) gjson.Result {
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() && r.Type != gjson.Null {
			if r.Type == gjson.String && r.Str == "" {
				continue
			}
			return r
		}
	}
	return gjson.Result{}
}

// extractAuth reads the access token and optional user from a login or
// refresh response.
func extractAuth(body []byte) (*AuthResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, apperrors.ErrMalformedResponse
	}
	token := firstMatch(body, tokenPaths)
	if token.Type != gjson.String {
		return nil, apperrors.ErrTokenNotFound
	}

	res := &AuthResult{AccessToken: token.Str}
	if u := firstMatch(body, userPaths); u.IsObject() {
		var user session.UserProfile
		if err := json.Unmarshal([]byte(u.Raw), &user); err != nil {
			return nil, apperrors.Wrapf(err, "[extractAuth] decode user")
		}
		res.User = user
	}
	return res, nil
}

// decodePayload unmarshals the envelope's payload, or the whole body when no
// envelope is present, into out.
func decodePayload(body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return apperrors.ErrMalformedResponse
	}
	raw := []byte(firstMatch(body, payloadPaths).Raw)
	if len(raw) == 0 {
		raw = body
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("[decodePayload] %w: %w", apperrors.ErrMalformedResponse, err)
	}
	return nil
}

// hasEmbeddedUnauthorized reports whether body is JSON carrying code 401.
func hasEmbeddedUnauthorized(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	code := gjson.GetBytes(body, "code")
	return code.Type == gjson.Number && code.Int() == unauthorizedCode
}

func responseMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	m := firstMatch(body, messagePaths)
	if m.Type == gjson.String {
		return m.Str
	}
	return ""
}
