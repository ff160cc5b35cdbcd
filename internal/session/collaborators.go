package session

import "context"

// Transport opens and closes the network endpoints backing a session. Calls
// are made in transition order from a single goroutine owned by the
// Controller; outcomes are reported back through Events, tagged with the
// generation the request was issued for.
type Transport interface {
	// Name identifies the transport in status output.
	Name() string
	// Listen starts accepting connections for the server role.
	Listen(gen uint64, events Events)
	// Dial starts connecting to address for the client role.
	Dial(gen uint64, address string, events Events)
	// Close releases everything opened for gen. Closing an unknown or
	// already closed generation is a no-op.
	Close(gen uint64)
}

// Events is the callback surface a Transport reports into.
type Events interface {
	NotifyConnected(gen uint64)
	NotifyDisconnected(gen uint64, err error)
}

// PlayerRequest describes the connection a local player is being added for.
type PlayerRequest struct {
	Generation uint64
	Role       Phase
	Address    string
}

// PlayerSpawner is the game-state collaborator that materializes the local
// player once a client turns ready.
type PlayerSpawner interface {
	AddLocalPlayer(ctx context.Context, req PlayerRequest) error
}

// Platform reports capabilities of the environment the session runs in.
type Platform interface {
	CanServe() bool
}

// PlatformFunc adapts a plain function to the Platform interface.
type PlatformFunc func() bool

func (f PlatformFunc) CanServe() bool { return f() }
