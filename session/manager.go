package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/smallnest/fabflow/log"
)

// DefaultLockTTL is the expiry of a distributed lock.
const DefaultLockTTL = 30 * time.Second

// ErrLockTimeout is returned when a lock is not acquired within the configured timeout.
var ErrLockTimeout = errors.New("timed out waiting for session lock")

// UnlockFunc releases a lock.
type UnlockFunc func(ctx context.Context) error

// Locker acquires a lock on key that expires after ttl.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager serializes work per thread id. Entries are reference counted and
// removed once nobody holds or waits for them.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  Locker
	ttl     time.Duration
	timeout time.Duration
	logger  log.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker Locker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithLockTimeout bounds how long WithLock waits. Zero waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:  make(map[string]*lockEntry),
		ttl:    DefaultLockTTL,
		logger: log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		entry = &lockEntry{sem: make(chan struct{}, 1)}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// Active returns the number of threads currently locked or waited on.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock runs fn while holding the lock of thread id.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	waitCtx := ctx
	if m.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	entry := m.acquire(id)
	defer m.release(id)

	select {
	case entry.sem <- struct{}{}:
	case <-waitCtx.Done():
		return m.waitErr(ctx, waitCtx)
	}
	defer func() { <-entry.sem }()

	if m.locker != nil {
		unlock, err := m.locker.Lock(waitCtx, id, m.ttl)
		if err != nil {
			if waitCtx.Err() != nil {
				return m.waitErr(ctx, waitCtx)
			}
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("failed to release distributed lock for %s (will expire via TTL): %v", id, err)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) waitErr(parent, waitCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w after %v", ErrLockTimeout, m.timeout)
}
