// Package presence tracks which users currently hold at least one live
// connection to this process.
package presence

import (
	"sort"
	"sync"

	"community-chat/internal/models"
)

// Registry maps user id to the set of that user's live connection ids.
// A user stays online until the last of their connections unregisters.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]map[string]struct{})}
}

// Register records connID for the principal and reports whether this is the
// user's first live connection.
func (r *Registry) Register(principal models.Principal, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[principal.UserID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[principal.UserID] = conns
	}
	conns[connID] = struct{}{}
	return !ok
}

// Unregister removes connID and reports whether the user went offline.
// Unknown pairs are ignored.
func (r *Registry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) > 0 {
		return false
	}
	delete(r.users, userID)
	return true
}

// Snapshot returns the sorted ids of every online user.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether userID has a live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
