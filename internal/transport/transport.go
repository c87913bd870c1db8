// Package transport is the boundary to the WhatsApp bridge. The core
// never talks to the network directly; it sees connections through the
// Conn interface and finds them in the Registry.
package transport

import (
	"context"
	"sort"
	"sync"
)

// Conn is one live messaging account connection.
type Conn interface {
	Send(ctx context.Context, phone, text string, images []string) (providerMessageID string, err error)
	Connected() bool
}

// Registry owns connection lifecycle. It replaces the ambient global
// client map of the original system; everything that needs a connection
// gets the registry injected.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

func (r *Registry) Register(accountID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[accountID] = c
}

func (r *Registry) Remove(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, accountID)
}

func (r *Registry) Get(accountID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[accountID]
	return c, ok
}

// ConnectedAccounts returns the ids of accounts whose connection
// reports ready, sorted for deterministic dispatch order.
func (r *Registry) ConnectedAccounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.conns))
	for id, c := range r.conns {
		if c.Connected() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
