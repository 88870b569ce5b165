package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/eugenenazirov/keypad-calculator/internal/calculator"
)

const (
	defaultMaxSessions = 1000
	defaultIdleTTL     = 30 * time.Minute
)

var (
	// ErrSessionNotFound indicates the requested session does not exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions indicates the store is at capacity.
	ErrTooManySessions = errors.New("maximum number of sessions reached")
)

// Snapshot is a read-only view of a session taken while its lock was held.
type Snapshot struct {
	ID        string
	Display   string
	Pending   calculator.Operator
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Storage keeps calculator sessions. Every engine is only touched while its
// session lock is held.
type Storage interface {
	Create() (Snapshot, error)
	Get(id string) (Snapshot, error)
	Apply(id string, fn func(*calculator.Engine) error) (Snapshot, error)
	Delete(id string) error
	EvictIdle(now time.Time) []string
	Len() int
}

type session struct {
	mu        sync.Mutex
	id        string
	engine    *calculator.Engine
	createdAt time.Time
	updatedAt time.Time
}

func (s *session) snapshot() Snapshot {
	return Snapshot{
		ID:        s.id,
		Display:   s.engine.Display(),
		Pending:   s.engine.Pending(),
		Err:       s.engine.Err(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// MemoryStorage keeps sessions in-memory and guards the index with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*session

	maxSessions   int
	idleTTL       time.Duration
	engineOptions []calculator.Option
	clock         func() time.Time
	newID         func() string
}

// Option configures MemoryStorage behaviour.
type Option func(*MemoryStorage)

// WithMaxSessions caps the number of live sessions. Values below one are ignored.
func WithMaxSessions(n int) Option {
	return func(s *MemoryStorage) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTTL sets how long an unused session survives EvictIdle.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *MemoryStorage) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithEngineOptions applies opts to every engine the store creates.
func WithEngineOptions(opts ...calculator.Option) Option {
	return func(s *MemoryStorage) {
		s.engineOptions = append(s.engineOptions, opts...)
	}
}

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *MemoryStorage) {
		s.clock = clock
	}
}

// WithIDGenerator overrides session ID generation, primarily for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *MemoryStorage) {
		s.newID = gen
	}
}

// NewMemoryStorage creates an empty session store.
func NewMemoryStorage(opts ...Option) *MemoryStorage {
	s := &MemoryStorage{
		sessions:    make(map[string]*session),
		maxSessions: defaultMaxSessions,
		idleTTL:     defaultIdleTTL,
		clock: func() time.Time {
			return time.Now().UTC()
		},
		newID: generateSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a new session with a fresh engine.
func (s *MemoryStorage) Create() (Snapshot, error) {
	now := s.clock()
	sess := &session{
		engine:    calculator.New(s.engineOptions...),
		createdAt: now,
		updatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.maxSessions {
		return Snapshot{}, ErrTooManySessions
	}
	for {
		sess.id = s.newID()
		if _, taken := s.sessions[sess.id]; !taken {
			break
		}
	}
	s.sessions[sess.id] = sess

	return sess.snapshot(), nil
}

// Get returns the current state of a session without touching its idle timer.
func (s *MemoryStorage) Get(id string) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.snapshot(), nil
}

// Apply runs fn against the session engine under the session lock. The
// returned snapshot reflects the engine after fn, even when fn fails.
func (s *MemoryStorage) Apply(id string, fn func(*calculator.Engine) error) (Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	fnErr := fn(sess.engine)
	sess.updatedAt = s.clock()
	return sess.snapshot(), fnErr
}

// Delete removes a session.
func (s *MemoryStorage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// EvictIdle removes sessions not updated within the idle TTL and returns
// their IDs in sorted order.
func (s *MemoryStorage) EvictIdle(now time.Time) []string {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.updatedAt.Before(cutoff)
		sess.mu.Unlock()

		if idle {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

// Len returns the number of live sessions.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStorage) lookup(id string) (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func generateSessionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(buf)
}
