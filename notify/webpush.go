package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/jrsteele09/go-hotspot-client/api"
	"github.com/jrsteele09/go-hotspot-client/internal/config"
)

// defaultTTL is how long, in seconds, the push service keeps an undelivered
// message.
const defaultTTL = 60 * 60 * 24

var _ Sender = (*WebPushSender)(nil)

// WebPushSender delivers through the subscription's push service using VAPID.
type WebPushSender struct {
	options webpush.Options
}

func NewWebPushSender(cfg config.PushConfig, httpClient *http.Client) (*WebPushSender, error) {
	if cfg.GetVAPIDPublicKey() == "" || cfg.GetVAPIDPrivateKey() == "" {
		return nil, errors.New("[NewWebPushSender] VAPID keys are required")
	}
	if cfg.GetVAPIDSubject() == "" {
		return nil, errors.New("[NewWebPushSender] VAPID subject is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebPushSender{options: webpush.Options{
		HTTPClient:      httpClient,
		Subscriber:      cfg.GetVAPIDSubject(),
		VAPIDPublicKey:  cfg.GetVAPIDPublicKey(),
		VAPIDPrivateKey: cfg.GetVAPIDPrivateKey(),
		TTL:             defaultTTL,
	}}, nil
}

func (s *WebPushSender) Send(ctx context.Context, sub api.PushSubscription, payload []byte) error {
	opts := s.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
	}, &opts)
	if err != nil {
		return fmt.Errorf("[WebPushSender Send] %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrSubscriptionGone
	case resp.StatusCode >= 300:
		return fmt.Errorf("[WebPushSender Send] push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys returns a new base64url key pair for configuration.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	return webpush.GenerateVAPIDKeys()
}
