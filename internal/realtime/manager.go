package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/metrics"
	"github.com/realar/estate/internal/presence"
)

// State is the lifecycle position of one connection.
type State int

const (
	StateClosed State = iota // unknown connections also report Closed
	StateOpen
	StateBound
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateBound:
		return "bound"
	default:
		return "closed"
	}
}

// SessionMirror records bindings outside the process, e.g. on the Redis
// connection session. Failures are logged and otherwise ignored.
type SessionMirror interface {
	BindUser(ctx context.Context, connID, userID string) error
}

// Manager tracks connection states and keeps the presence directory in
// step with them. Open and Close are driven by the transport; Bind is driven
// by identity announcements.
type Manager struct {
	mu       sync.Mutex
	dir      *presence.Directory
	states   map[string]State // conn_id -> Open|Bound
	sessions SessionMirror
}

// NewManager creates a Manager that binds into dir. sessions may be nil.
func NewManager(dir *presence.Directory, sessions SessionMirror) *Manager {
	return &Manager{
		dir:      dir,
		states:   make(map[string]State),
		sessions: sessions,
	}
}

// Directory returns the presence directory the manager writes to.
func (m *Manager) Directory() *presence.Directory {
	return m.dir
}

// Open registers a newly established connection.
func (m *Manager) Open(connID string) {
	m.mu.Lock()
	if _, ok := m.states[connID]; !ok {
		m.states[connID] = StateOpen
	}
	m.mu.Unlock()
}

// Bind associates userID with an open connection. It reports whether the
// user now routes to connID; false covers closed or unknown connections and
// rebinds refused by the directory policy. The asserted identity is trusted.
func (m *Manager) Bind(userID, connID string) bool {
	m.mu.Lock()
	state, ok := m.states[connID]
	if !ok || userID == "" {
		m.mu.Unlock()
		metrics.BindsTotal.WithLabelValues("ignored").Inc()
		logging.Debug().
			Str("user_id", userID).
			Str("conn_id", connID).
			Msg("realtime: bind for unknown or closed connection ignored")
		return false
	}

	// The state check and directory insert share one critical section so a
	// concurrent Close cannot leave an entry behind for a closed connection.
	previous, hadRoute := m.dir.Lookup(userID)
	bound := m.dir.Add(userID, connID)
	if bound {
		m.states[connID] = StateBound
		// Under LastWriterWins the superseded connection stays open but
		// loses its route.
		if hadRoute && previous != connID {
			if _, open := m.states[previous]; open {
				m.states[previous] = StateOpen
			}
		}
	}
	online := m.dir.Count()
	m.mu.Unlock()

	metrics.OnlineUsers.Set(float64(online))
	if !bound {
		metrics.BindsTotal.WithLabelValues("ignored").Inc()
		logging.Debug().
			Str("user_id", userID).
			Str("conn_id", connID).
			Str("state", state.String()).
			Str("policy", m.dir.Policy().String()).
			Msg("realtime: bind not applied")
		return false
	}

	metrics.BindsTotal.WithLabelValues("bound").Inc()
	logging.Info().Str("user_id", userID).Str("conn_id", connID).Msg("realtime: user bound")

	if m.sessions != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := m.sessions.BindUser(ctx, connID, userID); err != nil {
			logging.Warn().Err(err).Str("conn_id", connID).Msg("realtime: failed to mirror binding")
		}
	}
	return true
}

// Close moves a connection to Closed and removes its presence entry, if
// any. Closing an unknown or already closed connection is a no-op.
func (m *Manager) Close(connID string) {
	m.mu.Lock()
	state, ok := m.states[connID]
	delete(m.states, connID)
	userID, removed := m.dir.Remove(connID)
	online := m.dir.Count()
	m.mu.Unlock()

	if !ok && !removed {
		return
	}
	metrics.OnlineUsers.Set(float64(online))

	ev := logging.Debug().Str("conn_id", connID).Str("from", state.String())
	if removed {
		ev = ev.Str("user_id", userID)
	}
	ev.Msg("realtime: connection closed")
}

// State returns the lifecycle state of connID.
func (m *Manager) State(connID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[connID]
}
