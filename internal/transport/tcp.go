package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netsession/internal/session"
)

// TCP implements the session transport over plain TCP sockets.
//
// Every request is keyed by the session generation it was issued for. Work
// that blocks (dialing, accepting, reading) runs on goroutines tracked by the
// endpoint so that Close can release everything belonging to a generation.
type TCP struct {
	// Name reported in status output.
	Identifier string
	// Address the server role binds to (host:port).
	ListenAddress string
	// Port appended to dialed addresses that don't carry one.
	DefaultPort int
	DialTimeout time.Duration
	Logger      *logrus.Logger

	mu        sync.Mutex
	endpoints map[uint64]*endpoint
}

// endpoint holds everything opened for one session generation.
type endpoint struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	listener net.Listener
	conns    map[*Conn]struct{}
}

func NewTCP(logger *logrus.Logger, name, listenAddress string, defaultPort int, dialTimeout time.Duration) *TCP {
	return &TCP{
		Identifier:    name,
		ListenAddress: listenAddress,
		DefaultPort:   defaultPort,
		DialTimeout:   dialTimeout,
		Logger:        logger,
		endpoints:     make(map[uint64]*endpoint),
	}
}

func (t *TCP) Name() string {
	return t.Identifier
}

func (t *TCP) open(gen uint64) *endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	e := &endpoint{gen: gen, ctx: ctx, cancel: cancel, conns: make(map[*Conn]struct{})}
	t.endpoints[gen] = e
	return e
}

// Listen opens the server socket for gen and spins off the accept loop.
func (t *TCP) Listen(gen uint64, events session.Events) {
	e := t.open(gen)

	listener, err := net.Listen("tcp", t.ListenAddress)
	if err != nil {
		t.forget(gen)
		events.NotifyDisconnected(gen, fmt.Errorf("error listening on %s: %w", t.ListenAddress, err))
		return
	}
	e.mu.Lock()
	e.listener = listener
	e.mu.Unlock()

	e.wg.Add(1)
	go t.acceptLoop(e, events)
}

// Addr returns the address the server socket for gen is bound to, or nil if
// there isn't one.
func (t *TCP) Addr(gen uint64) net.Addr {
	t.mu.Lock()
	e, ok := t.endpoints[gen]
	t.mu.Unlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}

// acceptLoop is purely responsible for accepting new connections and spinning
// off goroutines to service them until the endpoint is closed.
func (t *TCP) acceptLoop(e *endpoint, events session.Events) {
	defer e.wg.Done()

	t.Logger.Infof("[%s] waiting for connections on %v", t.Identifier, e.listener.Addr())
	for {
		netConn, err := e.listener.Accept()
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				t.Logger.Warnf("[%s] failed to accept connection: %v", t.Identifier, err)
				continue
			}
			events.NotifyDisconnected(e.gen, fmt.Errorf("error accepting connections: %w", err))
			return
		}

		c := newConn(netConn)
		if !e.track(c) {
			_ = c.Close()
			return
		}
		t.Logger.Infof("[%s] accepted connection from %s", t.Identifier, c.RemoteAddr())

		e.wg.Add(1)
		go t.serve(e, c)
	}
}

// serve drains a peer connection until it closes. Peers leaving don't end the
// server session.
func (t *TCP) serve(e *endpoint, c *Conn) {
	defer e.wg.Done()
	defer t.closeConnectionAndRecover(e, c)

	_, _ = io.Copy(io.Discard, c)
}

// Dial connects to address for gen in the background and reports the outcome.
func (t *TCP) Dial(gen uint64, address string, events session.Events) {
	e := t.open(gen)

	e.wg.Add(1)
	go t.dial(e, address, events)
}

func (t *TCP) dial(e *endpoint, address string, events session.Events) {
	defer e.wg.Done()

	dialer := net.Dialer{Timeout: t.DialTimeout}
	netConn, err := dialer.DialContext(e.ctx, "tcp", t.withDefaultPort(address))
	if err != nil {
		// Cancelled dials were asked for; the session already moved on.
		if e.ctx.Err() == nil {
			events.NotifyDisconnected(e.gen, fmt.Errorf("error dialing %s: %w", address, err))
		}
		return
	}

	c := newConn(netConn)
	if !e.track(c) {
		_ = c.Close()
		return
	}
	defer t.closeConnectionAndRecover(e, c)

	t.Logger.Infof("[%s] connected to %s", t.Identifier, c.RemoteAddr())
	events.NotifyConnected(e.gen)

	_, err = io.Copy(io.Discard, c)
	if e.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = io.EOF
	}
	events.NotifyDisconnected(e.gen, err)
}

func (t *TCP) withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(t.DefaultPort))
}

// Close releases the listener, dial and connections opened for gen and waits
// for their goroutines to exit.
func (t *TCP) Close(gen uint64) {
	e := t.forget(gen)
	if e == nil {
		return
	}

	e.cancel()
	e.mu.Lock()
	if e.listener != nil {
		if err := e.listener.Close(); err != nil {
			t.Logger.Warnf("[%s] failed to close listener: %v", t.Identifier, err)
		}
	}
	for c := range e.conns {
		_ = c.Close()
	}
	e.mu.Unlock()

	e.wg.Wait()
	t.Logger.Infof("[%s] released session %d", t.Identifier, gen)
}

// Shutdown closes every open endpoint.
func (t *TCP) Shutdown() {
	t.mu.Lock()
	gens := make([]uint64, 0, len(t.endpoints))
	for gen := range t.endpoints {
		gens = append(gens, gen)
	}
	t.mu.Unlock()

	for _, gen := range gens {
		t.Close(gen)
	}
}

func (t *TCP) forget(gen uint64) *endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.endpoints[gen]
	delete(t.endpoints, gen)
	return e
}

// track registers c with the endpoint unless it's already being closed.
func (e *endpoint) track(c *Conn) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx.Err() != nil {
		return false
	}
	e.conns[c] = struct{}{}
	return true
}

// closeConnectionAndRecover is the failsafe that catches any panics, closes the
// connection and removes it from the endpoint regardless of its state.
func (t *TCP) closeConnectionAndRecover(e *endpoint, c *Conn) {
	if err := recover(); err != nil {
		t.Logger.Errorf("error in connection with %s: error=%s, trace: %s",
			c.RemoteAddr(), err, debug.Stack())
	}

	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		t.Logger.Warnf("failed to close connection: %s", err)
	}

	e.mu.Lock()
	delete(e.conns, c)
	e.mu.Unlock()

	t.Logger.Infof("[%s] disconnected %s", t.Identifier, c.RemoteAddr())
}
