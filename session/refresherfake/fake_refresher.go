package refresherfake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-hotspot-client/session"
)

var _ session.Refresher = (*FakeRefresher)(nil)

// RefreshFunc produces the outcome of the n-th call (1-based).
type RefreshFunc func(ctx context.Context, call int) (*session.RefreshResult, error)

type FakeRefresher struct {
	calls atomic.Int64
	fn    RefreshFunc

	lock    sync.Mutex
	gate    chan struct{}
	started chan struct{}
}

func NewFakeRefresher(fn RefreshFunc) *FakeRefresher {
	return &FakeRefresher{
		fn:      fn,
		started: make(chan struct{}, 64),
	}
}

// Returning always succeeds with token and user.
func Returning(token string, user session.UserProfile) *FakeRefresher {
	return NewFakeRefresher(func(context.Context, int) (*session.RefreshResult, error) {
		return &session.RefreshResult{AccessToken: token, User: user}, nil
	})
}

// Failing always fails.
func Failing() *FakeRefresher {
	return NewFakeRefresher(func(context.Context, int) (*session.RefreshResult, error) {
		return nil, errors.New("refresh rejected")
	})
}

// Hold makes subsequent calls block until Release.
func (f *FakeRefresher) Hold() {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.gate = make(chan struct{})
}

func (f *FakeRefresher) Release() {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Started yields once for every call that has begun.
func (f *FakeRefresher) Started() <-chan struct{} {
	return f.started
}

func (f *FakeRefresher) Calls() int {
	return int(f.calls.Load())
}

func (f *FakeRefresher) Refresh(ctx context.Context) (*session.RefreshResult, error) {
	n := int(f.calls.Add(1))

	f.lock.Lock()
	gate := f.gate
	f.lock.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}
	if gate != nil {
		<-gate
	}
	return f.fn(ctx, n)
}
