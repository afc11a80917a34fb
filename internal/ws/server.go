// Package ws handles WebSocket connection management: upgrading HTTP
// requests, polling connections for readable frames on a bounded worker
// pool, heartbeating, and writing frames back to clients.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/realar/estate/internal/logging"
	"github.com/realar/estate/internal/metrics"
	"github.com/realar/estate/internal/protocol"
	"github.com/realar/estate/internal/session"
)

// ErrConnectionNotFound is returned by SendMessage for unknown ids.
var ErrConnectionNotFound = errors.New("ws: connection not found")

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for reading one frame once data is ready
	WriteTimeout   time.Duration // timeout for writing one frame
	Heartbeat      HeartbeatConfig
}

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server upgrades HTTP requests to WebSocket, registers each connection with
// the poller, and dispatches ready connections to a bounded worker pool for
// frame reading. It does not own a listener: mount HandleUpgrade on the
// application router.
type Server struct {
	config       ServerConfig
	epoll        *Epoll
	conns        *ConnectionManager
	sessionStore *session.Store                      // optional Redis mirror
	workerPool   chan struct{}                       // semaphore limiting concurrent read workers
	onMessage    func(conn *Connection, data []byte) // message handler callback
	onConnect    func(connID string)                 // called after a connection is registered
	onDisconnect func(connID string)                 // called when a connection is removed
	admit        func(r *http.Request) bool          // optional upgrade admission check
	done         chan struct{}
	stopOnce     sync.Once
	startedAt    time.Time
}

// NewServer creates a Server. sessionStore may be nil. onMessage is called
// from a worker goroutine for every complete text or binary frame.
func NewServer(config ServerConfig, sessionStore *session.Store, onMessage func(conn *Connection, data []byte)) *Server {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 1
	}
	return &Server{
		config:       config,
		conns:        NewConnectionManager(),
		sessionStore: sessionStore,
		workerPool:   make(chan struct{}, config.WorkerPoolSize),
		onMessage:    onMessage,
		done:         make(chan struct{}),
	}
}

// SetOnConnect registers a callback run after a connection is registered
// and before connection_created is sent to the client.
func (s *Server) SetOnConnect(fn func(connID string)) {
	s.onConnect = fn
}

// SetOnDisconnect registers a callback run when a connection is removed
// (read error, close frame, heartbeat timeout or shutdown). It runs before
// the Redis session is deleted.
func (s *Server) SetOnDisconnect(fn func(connID string)) {
	s.onDisconnect = fn
}

// SetAdmission installs a check run before upgrading; returning false
// rejects the request with 429.
func (s *Server) SetAdmission(fn func(r *http.Request) bool) {
	s.admit = fn
}

// Start creates the poller and launches the event loop and heartbeat.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	s.startedAt = time.Now()

	go s.startEventLoop()
	StartHeartbeat(s, s.config.Heartbeat)

	logging.Info().
		Int("workers", s.config.WorkerPoolSize).
		Int("max_conns", s.config.MaxConnections).
		Msg("ws: server started")
	return nil
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection using
// the gobwas/ws zero-copy upgrader and registers it with the poller.
//
// onConnect and the Redis session run before the connection is added to the
// poller, so no frame is dispatched for a connection the callbacks have not
// seen. The MaxConnections pre-check is advisory; the slot is reserved
// atomically by ConnectionManager.TryAdd after the handshake.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.epoll == nil {
		http.Error(w, "websocket server not started", http.StatusServiceUnavailable)
		return
	}
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if s.admit != nil && !s.admit(r) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("ws: upgrade failed")
		return
	}

	connID := uuid.New().String()
	c := newConnection(connID, conn, r.RemoteAddr, s.config.WriteTimeout)

	if s.onConnect != nil {
		s.onConnect(connID)
	}
	if s.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := s.sessionStore.Create(ctx, connID, r.RemoteAddr); err != nil {
			logging.Warn().Err(err).Str("conn_id", connID).Msg("ws: failed to create redis session")
		}
		cancel()
	}

	if !s.conns.TryAdd(c, s.config.MaxConnections) {
		logging.Warn().Str("conn_id", connID).Msg("ws: connection limit reached after upgrade")
		s.abortConnection(c)
		return
	}
	reader, err := s.epoll.Add(conn)
	if err != nil {
		logging.Error().Err(err).Str("conn_id", connID).Msg("ws: epoll add failed")
		s.conns.Remove(connID)
		s.abortConnection(c)
		return
	}
	c.reader = reader
	metrics.ConnectionsTotal.Inc()

	msg, err := protocol.NewServerMessage(protocol.TypeConnectionCreated, protocol.ConnectionCreatedMsg{
		ConnectionID: connID,
	})
	if err != nil {
		logging.Error().Err(err).Str("conn_id", connID).Msg("ws: failed to build connection_created")
	} else if err := c.WriteMessage(msg); err != nil {
		logging.Warn().Err(err).Str("conn_id", connID).Msg("ws: failed to send connection_created")
	}

	logging.Info().Str("conn_id", connID).Int("total", s.conns.Count()).Msg("ws: new connection")
}

// abortConnection undoes onConnect and the Redis session for a connection
// that never reached the poller, and closes the socket.
func (s *Server) abortConnection(c *Connection) {
	_ = c.Conn.Close()
	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}
	if s.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.sessionStore.Delete(ctx, c.ID); err != nil {
			logging.Warn().Err(err).Str("conn_id", c.ID).Msg("ws: failed to delete redis session")
		}
	}
}

// startEventLoop waits for ready connections and hands each to a worker
// goroutine, bounded by the worker pool semaphore.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if isEINTR(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Error().Err(err).Msg("ws: epoll wait error")
			continue
		}

		for _, conn := range conns {
			conn := conn
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single frame from a ready connection. Control frames
// are answered in place; data frames go to onMessage. Any read failure other
// than a timeout removes the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer func() {
		atomic.StoreInt32(&c.processing, 0)
		s.epoll.Resume(netConn)
	}()

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}
	data, keep := s.readFrame(c)
	_ = netConn.SetReadDeadline(time.Time{})

	if !keep {
		s.RemoveConnection(c)
		return
	}
	if len(data) > 0 && s.onMessage != nil {
		s.onMessage(c, data)
	}
}

// readFrame returns the payload of one data frame, or nil for control
// frames and stale wakeups. keep is false when the connection must go.
func (s *Server) readFrame(c *Connection) (data []byte, keep bool) {
	header, reader, err := wsutil.NextReader(c.reader, ws.StateServerSide)
	if err != nil {
		// A timeout means no complete frame was available; the heartbeat
		// evicts connections that are really dead.
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, true
		}
		return nil, false
	}

	c.Touch()

	if header.OpCode.IsControl() {
		payload := make([]byte, header.Length)
		if header.Length > 0 {
			if _, err := io.ReadFull(reader, payload); err != nil {
				return nil, false
			}
		}
		switch header.OpCode {
		case ws.OpClose:
			return nil, false
		case ws.OpPing:
			if err := c.writePong(payload); err != nil {
				return nil, false
			}
		}
		return nil, true
	}

	data = make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			return nil, false
		}
	}
	return data, true
}

// RemoveConnection unregisters and closes a connection. Concurrent callers
// for the same connection are safe: only the first performs cleanup.
func (s *Server) RemoveConnection(c *Connection) {
	if s.epoll != nil {
		_ = s.epoll.Remove(c.Conn)
	}

	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.ConnectionsTotal.Dec()

	if s.onDisconnect != nil {
		s.onDisconnect(c.ID)
	}

	if s.sessionStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.sessionStore.Delete(ctx, c.ID); err != nil {
			logging.Warn().Err(err).Str("conn_id", c.ID).Msg("ws: failed to delete redis session")
		}
	}

	logging.Info().Str("conn_id", c.ID).Int("total", s.conns.Count()).Msg("ws: connection closed")
}

// SendMessage writes a text frame to the connection identified by connID.
// It is safe for concurrent use.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}
	return c.WriteMessage(data)
}

// Connections returns the ConnectionManager.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Uptime returns time since Start, or zero before Start.
func (s *Server) Uptime() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

// Shutdown stops the event loop and heartbeat and closes every connection,
// running the disconnect callback for each. The HTTP listener is owned by
// the caller and must be shut down separately.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info().Msg("ws: shutting down server")

	s.stopOnce.Do(func() { close(s.done) })

	for _, c := range s.conns.All() {
		if ctx.Err() != nil {
			break
		}
		s.RemoveConnection(c)
	}

	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	logging.Info().Int("remaining", s.conns.Count()).Msg("ws: server stopped")
	return ctx.Err()
}
