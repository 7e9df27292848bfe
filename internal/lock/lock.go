// Package lock serializes generations per source document.
//
// A generation holds the lock for its document from the moment it opens the
// working copy until the output is serialized. LocalLocker covers a single
// process; RedisLocker extends the guarantee across replicas.
package lock

import (
	"context"
	"sync"
	"time"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
)

// Release gives the lock back. It is safe to call more than once.
type Release func()

// Locker grants exclusive access to a document id.
type Locker interface {
	// Acquire blocks until the lock is held, ctx ends, or the configured
	// wait elapses (LOCK_TIMEOUT).
	Acquire(ctx context.Context, documentID string) (Release, error)
	Close() error
}

type slot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker is an in-process keyed mutex.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

// NewLocalLocker returns a locker that gives up after wait; wait <= 0 waits
// until the context ends.
func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{slots: map[string]*slot{}, wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, documentID string) (Release, error) {
	l.mu.Lock()
	s, ok := l.slots[documentID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[documentID] = s
	}
	s.refs++
	l.mu.Unlock()

	var timeout <-chan time.Time
	if l.wait > 0 {
		t := time.NewTimer(l.wait)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(documentID, s)
		return nil, ctx.Err()
	case <-timeout:
		l.unref(documentID, s)
		return nil, svcerrors.NewLockTimeoutError(documentID, l.wait)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(documentID, s)
		})
	}, nil
}

func (l *LocalLocker) unref(documentID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, documentID)
	}
}

func (l *LocalLocker) Close() error { return nil }
