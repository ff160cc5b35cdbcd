package debug

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netsession/internal/session"
	"github.com/dcrodman/netsession/internal/status"
)

// Session is the controller surface exposed over HTTP.
type Session interface {
	status.Session
	Snapshot() session.State
}

type sessionResponse struct {
	View  status.View   `json:"view"`
	State session.State `json:"state"`
	Error string        `json:"error,omitempty"`
}

// Handler serves the session endpoints:
//
//	GET  /session           current status view and raw state
//	POST /session/{action}  performs a status.Action (?address= for the start actions)
type Handler struct {
	Session  Session
	Platform session.Platform
	// Address used by start actions when the request doesn't supply one.
	DefaultAddress string
	Logger         *logrus.Logger
}

func (h *Handler) canServe() bool {
	return h.Platform == nil || h.Platform.CanServe()
}

func (h *Handler) respond(w http.ResponseWriter, code int, errMsg string) {
	state := h.Session.Snapshot()
	resp := sessionResponse{
		View:  status.Render(state, h.canServe()),
		State: state,
		Error: errMsg,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(&resp); err != nil {
		h.Logger.Warnf("failed to write session response: %v", err)
	}
}

func (h *Handler) getSession(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, "")
}

func (h *Handler) postAction(w http.ResponseWriter, r *http.Request) {
	action := status.Action(r.PathValue("action"))
	address := r.URL.Query().Get("address")
	if address == "" {
		address = h.DefaultAddress
	}

	if err := status.Perform(h.Session, action, address); err != nil {
		h.Logger.Infof("rejected %s request: %v", action, err)
		h.respond(w, statusCode(err), err.Error())
		return
	}
	h.respond(w, http.StatusOK, "")
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrUnsupportedPlatform):
		return http.StatusForbidden
	case errors.Is(err, session.ErrAlreadyActive), errors.Is(err, session.ErrNotActive):
		return http.StatusConflict
	default:
		return http.StatusNotFound
	}
}

// NewMux returns the debug mux: the session endpoints plus pprof.
// See https://golang.org/pkg/net/http/pprof/
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /session", h.getSession)
	mux.HandleFunc("POST /session/{action}", h.postAction)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Server runs the debug HTTP surface on localhost.
type Server struct {
	Port    int
	Handler *Handler
	Logger  *logrus.Logger

	httpServer *http.Server
}

// Start spins off the HTTP server. Failing to serve is logged, not fatal.
func (s *Server) Start() {
	listenerAddr := fmt.Sprintf("localhost:%d", s.Port)
	s.httpServer = &http.Server{
		Addr:              listenerAddr,
		Handler:           NewMux(s.Handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.Logger.Infof("starting debug server on %s", listenerAddr)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Errorf("error starting debug server: %s", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
