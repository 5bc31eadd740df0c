// Package lock provides the per-key exclusive sections that serialize
// registration attempts racing on the same content or file
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock can't be acquired within the configured
// timeout. Callers may retry with backoff.
var ErrTimeout = errors.New("lock acquisition timed out")

type keyLock struct {
	// Token channel with capacity 1. Holding the token means holding the
	// lock; waiters block on the channel, no polling
	ch   chan struct{}
	refs int
}

// Keyed hands out exclusive sections by string key. Two calls with the same
// key never run concurrently, calls with different keys never block each
// other. Entries are dropped as soon as nobody holds or waits on them.
type Keyed struct {
	mu      sync.Mutex
	locks   map[string]*keyLock
	timeout time.Duration
}

func NewKeyed(timeout time.Duration) *Keyed {
	return &Keyed{
		locks:   make(map[string]*keyLock),
		timeout: timeout,
	}
}

// Acquire blocks until the key's lock is free, the context is cancelled or
// the timeout elapses. On success it returns a release function which must be
// called exactly once; calling it again is a no-op.
func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	kl, ok := k.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		kl.ch <- struct{}{}
		k.locks[key] = kl
	}
	kl.refs++
	k.mu.Unlock()

	timer := time.NewTimer(k.timeout)
	defer timer.Stop()

	select {
	case <-kl.ch:
	case <-ctx.Done():
		k.unref(key, kl)
		return nil, ctx.Err()
	case <-timer.C:
		k.unref(key, kl)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			kl.ch <- struct{}{}
			k.unref(key, kl)
		})
	}, nil
}

// WithExclusive runs body while holding the key's lock, releasing it on
// every return path.
func (k *Keyed) WithExclusive(ctx context.Context, key string, body func() error) error {
	release, err := k.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()

	return body()
}

func (k *Keyed) unref(key string, kl *keyLock) {
	k.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
