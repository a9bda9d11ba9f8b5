// Package history keeps the bounded, role-seeded transcript of each conversation.
package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/relaychat/internal/persona"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/store"
)

// LimitSource reports the global history limit. nil means unbounded.
type LimitSource interface {
	HistoryLimit(ctx context.Context) (*int, error)
}

// Caps bound a log, seed line included, while no global limit is set.
// 0 leaves that conversation class unbounded.
type Caps struct {
	Private int
	Group   int
}

// DefaultCaps keeps private chats to 50 lines.
func DefaultCaps() Caps { return Caps{Private: 50} }

// Store persists one log per identity under store.NamespaceHistory.
// log[0] is always persona.Seed(role) once a user turn has been appended.
type Store struct {
	kv     store.KV
	limits LimitSource
	caps   atomic.Pointer[Caps]
	mu     sync.Mutex
}

func New(kv store.KV, limits LimitSource) *Store {
	s := &Store{kv: kv, limits: limits}
	s.SetCaps(DefaultCaps())
	return s
}

// SetCaps replaces the per-class caps. Safe to call while appending.
func (s *Store) SetCaps(c Caps) {
	s.caps.Store(&c)
}

// Get returns the stored log (possibly empty).
func (s *Store) Get(ctx context.Context, id sessions.Identity) ([]string, error) {
	return store.Load(ctx, s.kv, store.NamespaceHistory, id.String(), []string{})
}

// AppendUserTurn reseeds the log when its seed does not match role, appends
// "speaker: text", truncates, persists and returns the snapshot.
func (s *Store) AppendUserTurn(ctx context.Context, id sessions.Identity, role, speaker, text string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	seed := persona.Seed(role)
	if len(log) == 0 || log[0] != seed {
		log = []string{seed}
	}
	log = append(log, fmt.Sprintf("%s: %s", speaker, text))
	return s.commit(ctx, id, log)
}

// AppendResponseTurn appends a generated response with no speaker label.
func (s *Store) AppendResponseTurn(ctx context.Context, id sessions.Identity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.commit(ctx, id, append(log, text))
	return err
}

// Reset clears the log. The next AppendUserTurn reseeds it.
func (s *Store) Reset(ctx context.Context, id sessions.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.Save(ctx, s.kv, store.NamespaceHistory, id.String(), []string{})
}

func (s *Store) commit(ctx context.Context, id sessions.Identity, log []string) ([]string, error) {
	limit, err := s.limits.HistoryLimit(ctx)
	if err != nil {
		return nil, fmt.Errorf("history limit: %w", err)
	}
	// A global limit of 0 or less means "no limit", as an unset one does.
	if limit != nil && *limit > 0 {
		log = Truncate(log, *limit)
	} else if c := s.capFor(id); c > 0 {
		log = Truncate(log, c-1)
	}
	if err := store.Save(ctx, s.kv, store.NamespaceHistory, id.String(), log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *Store) capFor(id sessions.Identity) int {
	c := s.caps.Load()
	if id.IsGroup() {
		return c.Group
	}
	return c.Private
}

// Truncate keeps log[0] and the most recent limit lines after it.
func Truncate(log []string, limit int) []string {
	if limit < 0 {
		limit = 0
	}
	if len(log) <= limit+1 {
		return log
	}
	out := make([]string, 0, limit+1)
	out = append(out, log[0])
	return append(out, log[len(log)-limit:]...)
}
