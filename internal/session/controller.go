package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"
)

// Controller owns the authoritative state of the local networking session.
//
// Transitions are serialized by a single mutex. Collaborator calls (transport
// start/stop, player spawning) are queued while the lock is held and run
// afterwards on the dispatcher goroutine, so no operation blocks on I/O and
// the transport sees requests in transition order.
type Controller struct {
	logger    *logrus.Logger
	transport Transport
	spawner   PlayerSpawner
	platform  Platform

	mu          sync.Mutex
	state       State
	lastGen     uint64
	subscribers []chan State
	closed      bool

	snapshot atomic.Value
	dispatch *dispatcher
}

// NewController creates a Controller in the Idle phase. spawner and platform
// may be nil, in which case no player is spawned and the platform is assumed
// to be able to serve.
func NewController(logger *logrus.Logger, transport Transport, spawner PlayerSpawner, platform Platform) *Controller {
	c := &Controller{
		logger:    logger,
		transport: transport,
		spawner:   spawner,
		platform:  platform,
		dispatch:  newDispatcher(),
	}
	c.snapshot.Store(c.state)
	return c
}

// Snapshot returns a consistent copy of the current state. It never blocks.
func (c *Controller) Snapshot() State {
	return c.snapshot.Load().(State)
}

// Subscribe returns a channel that receives the latest state after every
// successful transition. Slow readers skip intermediate states but always
// observe the most recent one.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Wait blocks until every collaborator call queued so far has completed.
func (c *Controller) Wait() {
	c.dispatch.wait()
}

// Close drains pending collaborator calls and stops the dispatcher. The
// session state is left as-is; callers stop any active role first.
func (c *Controller) Close() {
	c.dispatch.close()
	c.mu.Lock()
	c.closed = true
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
	c.mu.Unlock()
}

func (c *Controller) canServe() bool {
	return c.platform == nil || c.platform.CanServe()
}

// StartHost runs the server and a local client in the same process.
func (c *Controller) StartHost(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "start host"
	if c.state.Phase != Idle {
		return c.reject(op, ErrAlreadyActive)
	}
	if !c.canServe() {
		return c.reject(op, ErrUnsupportedPlatform)
	}
	if err := ValidateAddress(address); err != nil {
		return c.reject(op, err)
	}

	gen := c.begin(State{
		Phase:     HostActive,
		Address:   address,
		Transport: c.transport.Name(),
	})
	c.dispatch.enqueue(func() { c.transport.Listen(gen, c) })
	return nil
}

// StartClient begins dialing address. The session stays in ClientConnecting
// until the transport reports the connection through NotifyConnected.
func (c *Controller) StartClient(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "start client"
	if c.state.Phase != Idle {
		return c.reject(op, ErrAlreadyActive)
	}
	if err := ValidateAddress(address); err != nil {
		return c.reject(op, err)
	}

	gen := c.begin(State{Phase: ClientConnecting, Address: address})
	c.dispatch.enqueue(func() { c.transport.Dial(gen, address, c) })
	return nil
}

// StartServer starts accepting connections without a local client.
func (c *Controller) StartServer() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "start server"
	if c.state.Phase != Idle {
		return c.reject(op, ErrAlreadyActive)
	}
	if !c.canServe() {
		return c.reject(op, ErrUnsupportedPlatform)
	}

	gen := c.begin(State{Phase: ServerActive, Transport: c.transport.Name()})
	c.dispatch.enqueue(func() { c.transport.Listen(gen, c) })
	return nil
}

// NotifyConnected is called by the transport once the dial issued for gen
// succeeds. Events for anything but the current ClientConnecting generation
// are discarded.
func (c *Controller) NotifyConnected(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase != ClientConnecting || c.state.Generation != gen {
		c.discard("connected", gen)
		return
	}

	next := c.state
	next.Phase = ClientConnected
	next.Ready = false
	next.PlayerAssigned = false
	c.transition(next)
}

// NotifyDisconnected is called by the transport when the endpoints opened for
// gen went away without being asked to (refused dial, listener failure, peer
// hang-up). The session drops back to Idle.
func (c *Controller) NotifyDisconnected(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == Idle || c.state.Generation != gen {
		c.discard("disconnected", gen)
		return
	}

	c.logger.WithFields(logrus.Fields{
		"phase":      c.state.Phase.String(),
		"generation": gen,
	}).Warnf("session lost: %v", err)
	c.stop()
}

// MarkReady flags the local client as ready and requests its player exactly
// once per connection. Calling it again once ready does nothing.
func (c *Controller) MarkReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.ClientConnected() {
		return c.reject("mark ready", ErrNotActive)
	}
	if c.state.Ready {
		return nil
	}

	next := c.state
	next.Ready = true
	spawn := !next.PlayerAssigned
	next.PlayerAssigned = true
	c.transition(next)

	if spawn && c.spawner != nil {
		req := PlayerRequest{Generation: next.Generation, Role: next.Phase, Address: next.Address}
		c.dispatch.enqueue(func() {
			if err := c.spawner.AddLocalPlayer(context.Background(), req); err != nil {
				c.logger.Errorf("error adding local player for generation %d: %v", req.Generation, err)
			}
		})
	}
	return nil
}

// StopHost stops a session started with StartHost.
func (c *Controller) StopHost() error {
	return c.stopIf("stop host", HostActive)
}

// StopClient stops a client session, cancelling the dial if it's still in progress.
func (c *Controller) StopClient() error {
	return c.stopIf("stop client", ClientConnecting, ClientConnected)
}

// StopServer stops a server, including the server half of a host.
func (c *Controller) StopServer() error {
	return c.stopIf("stop server", ServerActive, HostActive)
}

func (c *Controller) stopIf(op string, phases ...Phase) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range phases {
		if c.state.Phase == p {
			c.stop()
			return nil
		}
	}
	return c.reject(op, ErrNotActive)
}

// stop moves to Idle and releases the transport. Callers hold c.mu.
func (c *Controller) stop() {
	gen := c.state.Generation
	c.transition(State{Phase: Idle})
	c.dispatch.enqueue(func() { c.transport.Close(gen) })
}

// begin starts a new session generation in the given state. Callers hold c.mu.
func (c *Controller) begin(next State) uint64 {
	c.lastGen++
	next.Generation = c.lastGen
	c.transition(next)
	return next.Generation
}

// transition installs and publishes next. Callers hold c.mu.
func (c *Controller) transition(next State) {
	prev := c.state.Phase
	c.state = next
	c.snapshot.Store(next)

	c.logger.WithFields(logrus.Fields{
		"from":       prev.String(),
		"to":         next.Phase.String(),
		"generation": next.Generation,
	}).Info("session transition")
	if c.logger.IsLevelEnabled(logrus.DebugLevel) {
		c.logger.Debug(spew.Sdump(next))
	}

	for _, ch := range c.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

func (c *Controller) reject(op string, err error) error {
	return &TransitionError{Op: op, From: c.state.Phase, Err: err}
}

func (c *Controller) discard(event string, gen uint64) {
	c.logger.WithFields(logrus.Fields{
		"event":      event,
		"generation": gen,
		"current":    c.state.Generation,
		"phase":      c.state.Phase.String(),
	}).Warn(fmt.Errorf("%w: discarded", ErrStaleEvent))
}
