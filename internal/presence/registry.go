package presence

import "sync"

// Registry tracks which users currently hold at least one live websocket
// connection. It is the only process-wide mutable set in the system and is
// never exposed raw; callers go through Register/Unregister/Snapshot.
//
// Connections are refcounted per user, so a user with several tabs open
// stays online until the last one closes. Presence is best effort: the set
// starts empty on process restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]int // userID -> live connection count
	order []string       // online users in the order they came online
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]int)}
}

// Register records one more connection for userID and reports whether the
// user just came online (their first live connection).
func (r *Registry) Register(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[userID]++
	if r.conns[userID] == 1 {
		r.order = append(r.order, userID)
		return true
	}
	return false
}

// Unregister drops one connection for userID and reports whether the user
// went offline (their last connection closed). Unknown users are a no-op.
func (r *Registry) Unregister(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.conns[userID]
	if !ok {
		return false
	}
	if n > 1 {
		r.conns[userID] = n - 1
		return false
	}

	delete(r.conns, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[userID] > 0
}

// Snapshot returns the ids of all online users. The order is the order they
// came online and carries no meaning beyond being stable between changes.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
