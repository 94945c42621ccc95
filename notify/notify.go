// Package notify keeps the Web Push subscriptions this device knows about
// and fans a message out to all of them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-hotspot-client/api"
	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/rs/zerolog/log"
)

const registryKey = "push_subscriptions"

// ErrSubscriptionGone is returned by a Sender when the push service reports
// the subscription no longer exists.
var ErrSubscriptionGone = errors.New("push subscription gone")

// Message is the notification payload shown by the service worker.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Sender interface {
	Send(ctx context.Context, sub api.PushSubscription, payload []byte) error
}

// Entry is a stored subscription.
type Entry struct {
	ID           uuid.UUID            `json:"id"`
	Subscription api.PushSubscription `json:"subscription"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// Registry holds subscriptions, one per endpoint, persisted to a LocalStore.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	local   storage.LocalStore
	nowTime func() time.Time
}

// LoadRegistry reads the stored subscriptions, starting empty if there are none.
func LoadRegistry(local storage.LocalStore) (*Registry, error) {
	r := &Registry{local: local, nowTime: time.Now}
	if err := local.Load(registryKey, &r.entries); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("[notify LoadRegistry] %w", err)
	}
	return r, nil
}

// Subscribe adds sub unless its endpoint is already registered. It reports
// the entry's id and whether it was added.
func (r *Registry) Subscribe(sub api.PushSubscription) (uuid.UUID, bool, error) {
	if sub.Endpoint == "" {
		return uuid.Nil, false, errors.New("[notify Subscribe] endpoint is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Subscription.Endpoint == sub.Endpoint {
			return e.ID, false, nil
		}
	}

	e := Entry{ID: uuid.New(), Subscription: sub, CreatedAt: r.nowTime()}
	r.entries = append(r.entries, e)
	if err := r.saveLocked(); err != nil {
		r.entries = r.entries[:len(r.entries)-1]
		return uuid.Nil, false, err
	}
	return e.ID, true, nil
}

// Unsubscribe removes the subscription for endpoint.
func (r *Registry) Unsubscribe(endpoint string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.removeLocked(endpoint) {
		return false, nil
	}
	return true, r.saveLocked()
}

func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// BroadcastResult counts the outcome of a Broadcast.
type BroadcastResult struct {
	Sent    int
	Failed  int
	Removed int
}

// Broadcast sends msg to every subscription. A failure for one subscription
// does not stop the others; subscriptions reported gone are removed.
func (r *Registry) Broadcast(ctx context.Context, sender Sender, msg Message) (BroadcastResult, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("[notify Broadcast] encode: %w", err)
	}

	entries := r.List()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		res  BroadcastResult
		gone []string
	)
	for _, e := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := sender.Send(ctx, e.Subscription, payload)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Sent++
			case errors.Is(err, ErrSubscriptionGone):
				res.Failed++
				gone = append(gone, e.Subscription.Endpoint)
			default:
				res.Failed++
				log.Err(err).Str("subscription", e.ID.String()).Msg("Push notification failed")
			}
		}()
	}
	wg.Wait()

	if len(gone) == 0 {
		return res, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, endpoint := range gone {
		if r.removeLocked(endpoint) {
			res.Removed++
		}
	}
	return res, r.saveLocked()
}

func (r *Registry) removeLocked(endpoint string) bool {
	for i, e := range r.entries {
		if e.Subscription.Endpoint == endpoint {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) saveLocked() error {
	if err := r.local.Save(registryKey, r.entries); err != nil {
		return fmt.Errorf("[notify Registry] save: %w", err)
	}
	return nil
}
