// Package presence keeps the process-wide registry of which live connection
// a logged-in user is reachable on.
package presence

import "sync"

// Policy decides what happens when a user who already has a route binds a
// second connection.
type Policy int

const (
	// FirstWriterWins keeps the existing route; the later connection is not
	// registered.
	FirstWriterWins Policy = iota
	// LastWriterWins moves the route to the newest connection. The previous
	// connection stays open but is no longer reachable by user id.
	LastWriterWins
)

// ParsePolicy maps a config value to a Policy. Unknown values yield
// FirstWriterWins.
func ParsePolicy(s string) Policy {
	if s == "last_writer" {
		return LastWriterWins
	}
	return FirstWriterWins
}

func (p Policy) String() string {
	if p == LastWriterWins {
		return "last_writer"
	}
	return "first_writer"
}

// Entry is one (user, connection) binding.
type Entry struct {
	UserID string
	ConnID string
}

// Directory maps user ids to connection ids, with a secondary index from
// connection id back to user id so removal on disconnect is O(1). Every
// operation runs as a single critical section and performs no I/O.
type Directory struct {
	mu     sync.RWMutex
	policy Policy
	byUser map[string]string // user_id -> conn_id
	byConn map[string]string // conn_id -> user_id
}

// NewDirectory creates an empty Directory using the given policy.
func NewDirectory(policy Policy) *Directory {
	return &Directory{
		policy: policy,
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Policy returns the rebind policy in effect.
func (d *Directory) Policy() Policy {
	return d.policy
}

// Add binds userID to connID. It returns true when, after the call, the
// user routes to connID.
//
// A connection is bound to at most one user: if connID already belongs to a
// different user the call is rejected.
func (d *Directory) Add(userID, connID string) bool {
	if userID == "" || connID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, ok := d.byConn[connID]; ok && owner != userID {
		return false
	}

	current, present := d.byUser[userID]
	switch {
	case !present:
		d.byUser[userID] = connID
		d.byConn[connID] = userID
		return true
	case current == connID:
		return true
	case d.policy == LastWriterWins:
		delete(d.byConn, current)
		d.byUser[userID] = connID
		d.byConn[connID] = userID
		return true
	default:
		return false
	}
}

// Remove deletes the entry owned by connID and returns the user it was
// bound to. It is a no-op when connID has no entry.
func (d *Directory) Remove(connID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	userID, ok := d.byConn[connID]
	if !ok {
		return "", false
	}
	delete(d.byConn, connID)
	if d.byUser[userID] == connID {
		delete(d.byUser, userID)
	}
	return userID, true
}

// Lookup returns the connection a user currently routes to.
func (d *Directory) Lookup(userID string) (string, bool) {
	d.mu.RLock()
	connID, ok := d.byUser[userID]
	d.mu.RUnlock()
	return connID, ok
}

// UserOf returns the user bound to connID, if any.
func (d *Directory) UserOf(connID string) (string, bool) {
	d.mu.RLock()
	userID, ok := d.byConn[connID]
	d.mu.RUnlock()
	return userID, ok
}

// Count returns the number of users with a route.
func (d *Directory) Count() int {
	d.mu.RLock()
	n := len(d.byUser)
	d.mu.RUnlock()
	return n
}

// Snapshot returns a copy of all entries. Order is unspecified.
func (d *Directory) Snapshot() []Entry {
	d.mu.RLock()
	entries := make([]Entry, 0, len(d.byUser))
	for userID, connID := range d.byUser {
		entries = append(entries, Entry{UserID: userID, ConnID: connID})
	}
	d.mu.RUnlock()
	return entries
}
