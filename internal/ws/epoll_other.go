//go:build !linux

package ws

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
)

// Epoll is the portable fallback used where epoll is unavailable. Each
// connection gets a watcher goroutine that peeks a buffered reader for
// readiness and then waits for Resume before peeking again, so the watcher
// and the frame reader never touch the buffer at the same time.
type Epoll struct {
	mu      sync.Mutex
	watches map[net.Conn]*watch
	readyCh chan net.Conn
	done    chan struct{}
	once    sync.Once
}

type watch struct {
	r      *bufio.Reader
	resume chan struct{}
	stop   chan struct{}
}

// NewEpoll creates the fallback poller.
func NewEpoll() (*Epoll, error) {
	return &Epoll{
		watches: make(map[net.Conn]*watch),
		readyCh: make(chan net.Conn, 128),
		done:    make(chan struct{}),
	}, nil
}

// Add starts watching conn and returns the buffered reader that frames
// must be read from.
func (e *Epoll) Add(conn net.Conn) (io.Reader, error) {
	w := &watch{
		r:      bufio.NewReader(conn),
		resume: make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}

	e.mu.Lock()
	e.watches[conn] = w
	e.mu.Unlock()

	go e.monitor(conn, w)
	return w.r, nil
}

func (e *Epoll) monitor(conn net.Conn, w *watch) {
	for {
		_, err := w.r.Peek(1)
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}

		select {
		case e.readyCh <- conn:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
		if err != nil {
			// The reader will observe the same error and remove the conn.
			return
		}

		select {
		case <-w.resume:
		case <-w.stop:
			return
		case <-e.done:
			return
		}
	}
}

// Resume re-arms readiness reporting for conn once its ready frame has been
// consumed.
func (e *Epoll) Resume(conn net.Conn) {
	e.mu.Lock()
	w, ok := e.watches[conn]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.resume <- struct{}{}:
	default:
	}
}

// Remove stops watching conn.
func (e *Epoll) Remove(conn net.Conn) error {
	e.mu.Lock()
	w, ok := e.watches[conn]
	delete(e.watches, conn)
	e.mu.Unlock()
	if ok {
		close(w.stop)
	}
	return nil
}

// Wait blocks until at least one connection is ready and returns all
// connections that are ready without further blocking.
func (e *Epoll) Wait() ([]net.Conn, error) {
	var first net.Conn
	select {
	case first = <-e.readyCh:
	case <-e.done:
		return nil, net.ErrClosed
	}

	conns := []net.Conn{first}
	for {
		select {
		case conn := <-e.readyCh:
			conns = append(conns, conn)
		default:
			return conns, nil
		}
	}
}

// Close stops all watchers.
func (e *Epoll) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

func isEINTR(error) bool { return false }
