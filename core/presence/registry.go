// Package presence tracks which users currently hold at least one live
// connection. The registry is a process-local, in-memory map; scaling the
// gateway to multiple processes requires substituting an implementation
// backed by a shared store, which is why it is always injected rather than
// accessed as package state.
package presence

import "sync"

type connSet map[string]struct{}

// Registry maps a user ID to the set of their active connection IDs.
// A user is online iff their set is non-empty. All operations are
// synchronous, in-memory and race-free; none may block on I/O.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]connSet
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]connSet)}
}

// AddConnection registers connID under userID and reports whether the user
// just transitioned to online (first connection). Adding the same connID
// twice is idempotent.
func (reg *Registry) AddConnection(userID, connID string) (cameOnline bool) {
	if userID == "" || connID == "" {
		return false
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()

	set, ok := reg.conns[userID]
	if !ok {
		set = make(connSet, 1)
		reg.conns[userID] = set
	}
	cameOnline = len(set) == 0
	set[connID] = struct{}{}
	return cameOnline
}

// RemoveConnection drops connID from userID's set and reports whether this
// removal took the user offline. Removing a connID that does not belong to
// userID is a no-op; the offline transition is therefore observable exactly
// once per actual last-connection removal.
func (reg *Registry) RemoveConnection(userID, connID string) (wentOffline bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	set, ok := reg.conns[userID]
	if !ok {
		return false
	}
	if _, ok = set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(reg.conns, userID)
		return true
	}
	return false
}

func (reg *Registry) IsOnline(userID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.conns[userID]) > 0
}

// ListOnline returns the IDs of all users with at least one connection.
func (reg *Registry) ListOnline() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	users := make([]string, 0, len(reg.conns))
	for userID := range reg.conns {
		users = append(users, userID)
	}
	return users
}

// ConnectionCount returns the number of active connections for a user.
func (reg *Registry) ConnectionCount(userID string) int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.conns[userID])
}
