package session

import "fmt"

// Phase is the networking role the local session is currently in. Exactly one
// phase is active at a time.
type Phase int

const (
	Idle Phase = iota
	ClientConnecting
	ClientConnected
	ServerActive
	HostActive
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case ClientConnecting:
		return "client connecting"
	case ClientConnected:
		return "client connected"
	case ServerActive:
		return "server active"
	case HostActive:
		return "host active"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := Idle; candidate <= HostActive; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase: %q", text)
}

// State is a point-in-time copy of the session. Fields that don't apply to
// the current Phase are left at their zero values.
type State struct {
	Phase Phase
	// Generation identifies the session started by the last StartHost,
	// StartClient or StartServer call and tags the transport requests issued
	// for it. Zero while Idle.
	Generation uint64

	// Address dialed by the client (ClientConnecting, ClientConnected) or
	// reported by the host's local client (HostActive).
	Address string
	// Transport identifier of the active server (ServerActive, HostActive).
	Transport string

	// Ready and PlayerAssigned track the local client (ClientConnected, HostActive).
	Ready          bool
	PlayerAssigned bool
}

// ClientActive reports whether a client role is running, connected or not.
func (s State) ClientActive() bool {
	return s.Phase == ClientConnecting || s.ClientConnected()
}

// ClientConnected reports whether the local client has an established connection.
func (s State) ClientConnected() bool {
	return s.Phase == ClientConnected || s.Phase == HostActive
}

// ServerActive reports whether the session is accepting connections.
func (s State) ServerActive() bool {
	return s.Phase == ServerActive || s.Phase == HostActive
}
