package dispatch

import (
	"sync"

	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

// Owners records which identities currently have a running loop.
type Owners struct {
	mu   sync.Mutex
	held map[sessions.Identity]struct{}
}

func NewOwners() *Owners {
	return &Owners{held: make(map[sessions.Identity]struct{})}
}

// TryClaim marks id as owned. It returns false if another loop already owns it.
func (o *Owners) TryClaim(id sessions.Identity) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.held[id]; ok {
		return false
	}
	o.held[id] = struct{}{}
	return true
}

func (o *Owners) Release(id sessions.Identity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.held, id)
}

func (o *Owners) Held(id sessions.Identity) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.held[id]
	return ok
}

// Len returns the number of running loops.
func (o *Owners) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.held)
}
