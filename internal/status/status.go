// Package status turns session snapshots into what a control overlay shows:
// a title, status lines and the actions currently available. It doesn't draw
// anything; presentation layers render a View however they like.
package status

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dcrodman/netsession/internal/session"
)

// Action is a command a control surface can offer for the current state.
type Action string

const (
	StartHost     Action = "start_host"
	StartClient   Action = "start_client"
	StartServer   Action = "start_server"
	CancelConnect Action = "cancel_connect"
	ClientReady   Action = "client_ready"
	StopHost      Action = "stop_host"
	StopClient    Action = "stop_client"
	StopServer    Action = "stop_server"
)

// View is the presentation-agnostic rendering of a session snapshot.
type View struct {
	Title      string   `json:"title"`
	Phase      string   `json:"phase"`
	Generation uint64   `json:"generation"`
	Lines      []string `json:"lines"`
	Actions    []Action `json:"actions"`
}

// Render builds the View for s. canServe hides the host and server actions
// on platforms that can't listen for connections.
func Render(s session.State, canServe bool) View {
	v := View{
		Title:      cases.Title(language.English).String(s.Phase.String()),
		Phase:      s.Phase.String(),
		Generation: s.Generation,
	}

	if !s.ClientConnected() && !s.ServerActive() {
		if !s.ClientActive() {
			if canServe {
				v.Actions = append(v.Actions, StartHost)
			}
			v.Actions = append(v.Actions, StartClient)
			if canServe {
				v.Actions = append(v.Actions, StartServer)
			} else {
				v.Lines = append(v.Lines, "(this platform cannot be a server)")
			}
		} else {
			v.Lines = append(v.Lines, fmt.Sprintf("Connecting to %s..", s.Address))
			v.Actions = append(v.Actions, CancelConnect)
		}
	} else {
		if s.ServerActive() {
			v.Lines = append(v.Lines, "Server: active. Transport: "+s.Transport)
		}
		if s.ClientConnected() {
			v.Lines = append(v.Lines, "Client: address="+s.Address)
		}
	}

	if s.ClientConnected() && !s.Ready {
		v.Actions = append(v.Actions, ClientReady)
	}

	switch {
	case s.ServerActive() && s.ClientConnected():
		v.Actions = append(v.Actions, StopHost)
	case s.ClientConnected():
		v.Actions = append(v.Actions, StopClient)
	case s.ServerActive():
		v.Actions = append(v.Actions, StopServer)
	}
	return v
}

// Session is the part of the session controller a control surface drives.
type Session interface {
	StartHost(address string) error
	StartClient(address string) error
	StartServer() error
	MarkReady() error
	StopHost() error
	StopClient() error
	StopServer() error
}

// Perform runs action against s. address is used by the start actions that
// need one.
func Perform(s Session, action Action, address string) error {
	switch action {
	case StartHost:
		return s.StartHost(address)
	case StartClient:
		return s.StartClient(address)
	case StartServer:
		return s.StartServer()
	case ClientReady:
		return s.MarkReady()
	case CancelConnect, StopClient:
		return s.StopClient()
	case StopHost:
		return s.StopHost()
	case StopServer:
		return s.StopServer()
	default:
		return fmt.Errorf("unknown action: %q", action)
	}
}
