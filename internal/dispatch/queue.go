package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nextlevelbuilder/relaychat/internal/sessions"
	"github.com/nextlevelbuilder/relaychat/internal/store"
)

// Deps are the collaborators a Queue drives. Typer, Voice and Notifier are optional.
type Deps struct {
	KV        store.KV
	Settings  Settings
	History   History
	Generator Generator
	Deliverer Deliverer
	Typer     Typer
	Voice     VoiceHook
	Notifier  Notifier
}

// entry is the in-memory buffer for one identity. loaded is set once the
// persisted queue has been merged in; dead once the entry left the map.
type entry struct {
	mu     sync.Mutex
	msgs   []PendingMessage
	loaded bool
	dead   bool
}

// Queue buffers messages per identity and spawns at most one loop per identity.
type Queue struct {
	deps   Deps
	owners *Owners
	cfg    atomic.Pointer[Config]

	// ctx scopes every loop; cancelling it stops them at their next blocking point.
	ctx context.Context

	mu      sync.Mutex
	entries map[sessions.Identity]*entry

	wg    sync.WaitGroup
	sleep func(ctx context.Context, d time.Duration) error
	pick  func(n int) int
}

// New creates a Queue whose loops run under ctx.
func New(ctx context.Context, deps Deps, cfg Config) *Queue {
	q := &Queue{
		deps:    deps,
		owners:  NewOwners(),
		ctx:     ctx,
		entries: make(map[sessions.Identity]*entry),
		sleep:   sleepCtx,
		pick:    rand.IntN,
	}
	q.SetConfig(cfg)
	return q
}

// WithSleep replaces the debounce/typing sleeper (tests).
func (q *Queue) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Queue {
	q.sleep = fn
	return q
}

// WithPicker replaces the random delay picker (tests). fn(n) must return [0,n).
func (q *Queue) WithPicker(fn func(n int) int) *Queue {
	q.pick = fn
	return q
}

// SetConfig swaps the loop timings; running loops pick it up on their next batch.
func (q *Queue) SetConfig(cfg Config) {
	q.cfg.Store(&cfg)
}

func (q *Queue) config() Config { return *q.cfg.Load() }

func (q *Queue) entry(id sessions.Identity) *entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		e = &entry{}
		q.entries[id] = e
	}
	return e
}

// Enqueue appends msg to id's queue, persists it, and starts a loop for id if
// none is running. It never waits for generation.
func (q *Queue) Enqueue(ctx context.Context, id sessions.Identity, msg PendingMessage) error {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	e := q.lockLive(id)
	if !e.loaded {
		persisted, err := store.Load(ctx, q.deps.KV, store.NamespaceQueue, id.String(), []PendingMessage{})
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("load queue %s: %w", id, err)
		}
		e.msgs = append(persisted, e.msgs...)
		e.loaded = true
	}
	e.msgs = append(e.msgs, msg)
	err := store.Save(ctx, q.deps.KV, store.NamespaceQueue, id.String(), e.msgs)
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persist queue %s: %w", id, err)
	}

	q.spawn(id)
	return nil
}

// lockLive returns id's entry locked, skipping one pruned concurrently.
func (q *Queue) lockLive(id sessions.Identity) *entry {
	for {
		e := q.entry(id)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// prune forgets id's entry once it is empty and no loop owns it. The
// persisted queue is empty too, so the next Enqueue reloads nothing.
func (q *Queue) prune(id sessions.Identity) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.msgs) > 0 || q.owners.Held(id) {
		return
	}
	e.dead = true
	delete(q.entries, id)
}

// tracked is the number of identities with an in-memory entry.
func (q *Queue) tracked() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) spawn(id sessions.Identity) {
	if !q.owners.TryClaim(id) {
		return
	}
	if q.ctx.Err() != nil {
		// shutting down: the message stays persisted for the next start
		q.owners.Release(id)
		return
	}
	q.wg.Add(1)
	go q.run(id)
}

// Pending returns the number of buffered messages for id.
func (q *Queue) Pending(id sessions.Identity) int {
	q.mu.Lock()
	e, ok := q.entries[id]
	q.mu.Unlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.msgs)
}

// Active reports whether a loop currently owns id.
func (q *Queue) Active(id sessions.Identity) bool { return q.owners.Held(id) }

// Wait blocks until every running loop has exited.
func (q *Queue) Wait() { q.wg.Wait() }

// drain removes up to n messages from the front and persists the remainder.
func (q *Queue) drain(ctx context.Context, id sessions.Identity, n int) []PendingMessage {
	e := q.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	n = min(n, len(e.msgs))
	if n == 0 {
		return nil
	}
	batch := slices.Clone(e.msgs[:n])
	e.msgs = slices.Clone(e.msgs[n:])
	if err := store.Save(ctx, q.deps.KV, store.NamespaceQueue, id.String(), e.msgs); err != nil {
		slog.Error("dispatch: persist queue after drain", "identity", id.String(), "error", err)
	}
	return batch
}

// requeue puts a failed batch back at the front.
func (q *Queue) requeue(ctx context.Context, id sessions.Identity, batch []PendingMessage) {
	e := q.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.msgs = append(slices.Clone(batch), e.msgs...)
	if err := store.Save(context.WithoutCancel(ctx), q.deps.KV, store.NamespaceQueue, id.String(), e.msgs); err != nil {
		slog.Error("dispatch: persist requeued batch", "identity", id.String(), "error", err)
	}
}

// discard drops everything buffered for id, in memory and persisted.
func (q *Queue) discard(ctx context.Context, id sessions.Identity) {
	e := q.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()

	if n := len(e.msgs); n > 0 {
		slog.Info("dispatch: conversation disabled, dropping queued messages", "identity", id.String(), "count", n)
	}
	e.msgs = nil
	if err := q.deps.KV.Delete(ctx, store.NamespaceQueue, id.String()); err != nil {
		slog.Error("dispatch: delete persisted queue", "identity", id.String(), "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
