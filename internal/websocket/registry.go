package websocket

import (
	"sort"
	"sync"
)

// Registry maps a user identity to the set of its open connections.
// A connection sits in at most one entry and empty entries are removed.
type Registry struct {
	mu          sync.RWMutex
	userClients map[string]map[*Client]struct{}
	clientUser  map[*Client]string
}

func NewRegistry() *Registry {
	return &Registry{
		userClients: make(map[string]map[*Client]struct{}),
		clientUser:  make(map[*Client]string),
	}
}

// Register adds client under identity and reports whether it is the
// identity's first open connection. Registering the same pair twice is a
// no-op. A client registered under another identity is moved.
func (r *Registry) Register(identity string, client *Client) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.clientUser[client]; ok {
		if prev == identity {
			return false
		}
		r.removeLocked(prev, client)
	}

	set, ok := r.userClients[identity]
	if !ok {
		set = make(map[*Client]struct{})
		r.userClients[identity] = set
	}
	set[client] = struct{}{}
	r.clientUser[client] = identity
	return !ok
}

// Unregister removes client from identity's set. It reports true only when
// this call removed the identity's last connection.
func (r *Registry) Unregister(identity string, client *Client) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientUser[client] != identity {
		return false
	}
	return r.removeLocked(identity, client)
}

func (r *Registry) removeLocked(identity string, client *Client) bool {
	delete(r.clientUser, client)
	set, ok := r.userClients[identity]
	if !ok {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(r.userClients, identity)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of identity's connections. Unknown
// identities yield an empty slice.
func (r *Registry) ConnectionsFor(identity string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.userClients[identity]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// IsOnline reports whether identity has at least one open connection.
func (r *Registry) IsOnline(identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.userClients[identity]
	return ok
}

// OnlineUsers returns every identity with an open connection, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.userClients))
	for u := range r.userClients {
		users = append(users, u)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clientUser)
}

// UserCount returns the number of identities with an open connection.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userClients)
}
