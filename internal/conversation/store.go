// Package conversation keeps per-conversation message history in memory.
//
// History lives for the process lifetime only. The set of conversations is
// bounded by an LRU cap and an idle TTL so a long-running relay does not
// grow without limit. Turns for one key are serialized with Lock; different
// keys never block each other.
package conversation

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reinhart/zostelAgent/internal/assistant"
)

// Defaults for Options.
const (
	DefaultMaxConversations = 1000
	DefaultIdleTTL          = 24 * time.Hour
	DefaultSweepInterval    = time.Minute
)

// ErrNotFound is returned when a conversation key has no history.
var ErrNotFound = errors.New("conversation not found")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("conversation store closed")

// Options configure a Store. Zero values pick the defaults.
type Options struct {
	MaxConversations int
	IdleTTL          time.Duration
	SweepInterval    time.Duration
	Logger           *slog.Logger
}

// entry is one conversation; element is its position in the LRU list.
type entry struct {
	key      string
	history  []assistant.Message
	lastUsed time.Time
	element  *list.Element
}

// keyLock is a per-key turn lock, reference counted so it can be dropped
// once nobody holds or waits on it.
type keyLock struct {
	sem  chan struct{}
	refs int
}

// Store is an in-memory assistant.HistoryStore.
type Store struct {
	prompt PromptSource
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	convs   map[string]*entry
	order   *list.List // least recently used at front
	locks   map[string]*keyLock
	maxSize int
	ttl     time.Duration
	done    chan struct{}
	closed  bool
}

var _ assistant.HistoryStore = (*Store)(nil)

// NewStore creates a store that seeds new conversations from prompt. A
// background goroutine sweeps idle conversations until Close is called.
func NewStore(prompt PromptSource, opts Options) *Store {
	s := &Store{
		prompt:  prompt,
		logger:  opts.Logger,
		now:     time.Now,
		convs:   make(map[string]*entry),
		order:   list.New(),
		locks:   make(map[string]*keyLock),
		maxSize: opts.MaxConversations,
		ttl:     opts.IdleTTL,
		done:    make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "conversation_store")
	if s.maxSize <= 0 {
		s.maxSize = DefaultMaxConversations
	}
	if s.ttl <= 0 {
		s.ttl = DefaultIdleTTL
	}
	interval := opts.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go s.sweep(interval)
	return s
}

// Lock blocks until the caller owns the turn lock for key or ctx is done.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	select {
	case kl.sem <- struct{}{}:
	case <-ctx.Done():
		s.release(key, kl)
		return nil, fmt.Errorf("wait for conversation %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.sem
			s.release(key, kl)
		})
	}, nil
}

func (s *Store) release(key string, kl *keyLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, key)
	}
}

// GetOrCreate returns a copy of the history for key. An unseen key is
// seeded with the priming prompt; if the prompt can't be loaded nothing is
// stored and a *PrimingLoadError is returned.
func (s *Store) GetOrCreate(ctx context.Context, key string) ([]assistant.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := s.convs[key]; ok {
		s.touchLocked(e)
		h := cloneHistory(e.history)
		s.mu.Unlock()
		return h, nil
	}
	s.mu.Unlock()

	// Load outside the lock; the prompt source may do I/O.
	text, err := s.prompt.Load(ctx)
	if err != nil {
		return nil, &PrimingLoadError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if e, ok := s.convs[key]; ok {
		s.touchLocked(e)
		return cloneHistory(e.history), nil
	}

	e := &entry{
		key:     key,
		history: []assistant.Message{{Role: assistant.RoleSystem, Content: text}},
	}
	e.lastUsed = s.now()
	e.element = s.order.PushBack(e)
	s.convs[key] = e
	s.evictOverflowLocked()
	s.logger.Debug("conversation created", "conversation", key, "conversations", len(s.convs))
	return cloneHistory(e.history), nil
}

// Append adds messages to the end of the history in order. System messages
// are rejected; only the priming message may hold that role.
func (s *Store) Append(key string, msgs ...assistant.Message) error {
	for _, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("append to %s: invalid role %q", key, m.Role)
		}
		if m.Role == assistant.RoleSystem {
			return fmt.Errorf("append to %s: system message only allowed at creation", key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convs[key]
	if !ok {
		return fmt.Errorf("append to %s: %w", key, ErrNotFound)
	}
	for _, m := range msgs {
		e.history = append(e.history, m.Clone())
	}
	s.touchLocked(e)
	return nil
}

// Truncate drops the oldest non-system messages until at most window
// remain. A tool result left at the head without its request is dropped
// as well. The system message is never touched.
func (s *Store) Truncate(key string, window int) error {
	if window < 0 {
		return fmt.Errorf("truncate %s: negative window %d", key, window)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convs[key]
	if !ok {
		return fmt.Errorf("truncate %s: %w", key, ErrNotFound)
	}

	e.history = trimHistory(e.history, window)
	return nil
}

// trimHistory returns h with history[0] kept and at most window
// non-system messages after it.
func trimHistory(h []assistant.Message, window int) []assistant.Message {
	rest := h[1:]
	if len(rest) <= window {
		return h
	}
	rest = rest[len(rest)-window:]
	for len(rest) > 0 && rest[0].Role == assistant.RoleTool {
		rest = rest[1:]
	}

	out := make([]assistant.Message, 0, len(rest)+1)
	out = append(out, h[0])
	return append(out, rest...)
}

// History returns a copy of the history for key.
func (s *Store) History(key string) ([]assistant.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.convs[key]
	if !ok {
		return nil, false
	}
	return cloneHistory(e.history), true
}

// Reset forgets a conversation. The next turn re-primes it.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.convs[key]; ok {
		s.removeLocked(e)
	}
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}

// Close stops the background sweeper.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Store) touchLocked(e *entry) {
	e.lastUsed = s.now()
	s.order.MoveToBack(e.element)
}

func (s *Store) removeLocked(e *entry) {
	s.order.Remove(e.element)
	delete(s.convs, e.key)
}

// evictOverflowLocked drops least recently used conversations beyond the
// cap. Conversations with a turn in flight are skipped.
func (s *Store) evictOverflowLocked() {
	for el := s.order.Front(); el != nil && len(s.convs) > s.maxSize; {
		next := el.Next()
		e, _ := el.Value.(*entry)
		if _, busy := s.locks[e.key]; !busy {
			s.removeLocked(e)
			s.logger.Debug("conversation evicted", "conversation", e.key, "reason", "capacity")
		}
		el = next
	}
}

func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.done:
			return
		}
	}
}

// evictIdle removes conversations unused for longer than the TTL.
func (s *Store) evictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for el := s.order.Front(); el != nil; {
		next := el.Next()
		e, _ := el.Value.(*entry)
		if now.Sub(e.lastUsed) < s.ttl {
			// List is ordered by last use; the rest are fresher.
			break
		}
		if _, busy := s.locks[e.key]; !busy {
			s.removeLocked(e)
			removed++
		}
		el = next
	}
	if removed > 0 {
		s.logger.Debug("idle conversations evicted", "count", removed, "remaining", len(s.convs))
	}
	return removed
}

func cloneHistory(h []assistant.Message) []assistant.Message {
	out := make([]assistant.Message, len(h))
	for i, m := range h {
		out[i] = m.Clone()
	}
	return out
}
