package config

import (
	"strconv"
	"time"
)

type SessionConfig interface {
	GetAccessTokenCookieName() string
	GetCookiePath() string
	GetCookieMaxAge() time.Duration
	GetProfileKey() string
	GetRequestTimeout() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetAccessTokenCookieName() string {
	return "accessToken"
}

func (Session) GetCookiePath() string {
	return "/"
}

// GetCookieMaxAge bounds the lifetime of the persisted access token cookie.
// COOKIE_MAX_AGE is in seconds.
func (Session) GetCookieMaxAge() time.Duration {
	seconds, err := strconv.Atoi(GetEnv("COOKIE_MAX_AGE", "3600"))
	if err != nil || seconds <= 0 {
		return time.Hour
	}
	return time.Duration(seconds) * time.Second
}

func (Session) GetProfileKey() string {
	return "user"
}

func (Session) GetRequestTimeout() time.Duration {
	return 15 * time.Second
}
