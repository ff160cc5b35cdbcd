package debug

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dcrodman/netsession/internal/session"
	"github.com/dcrodman/netsession/internal/status"
)

type nopTransport struct{}

func (nopTransport) Name() string { return "nop" }
func (nopTransport) Listen(uint64, session.Events) {}
func (nopTransport) Dial(uint64, string, session.Events) {}
func (nopTransport) Close(uint64) {}

func newTestServer(t *testing.T, canServe bool) (*httptest.Server, *session.Controller) {
	logger, _ := test.NewNullLogger()
	platform := session.PlatformFunc(func() bool { return canServe })
	c := session.NewController(logger, nopTransport{}, nil, platform)
	t.Cleanup(c.Close)

	srv := httptest.NewServer(NewMux(&Handler{
		Session:        c,
		Platform:       platform,
		DefaultAddress: "localhost",
		Logger:         logger,
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func doRequest(t *testing.T, method, url string) (int, sessionResponse) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("error building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("error performing request: %v", err)
	}
	defer resp.Body.Close()

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("error decoding response: %v", err)
	}
	return resp.StatusCode, body
}

func TestHandler_GetSession(t *testing.T) {
	srv, _ := newTestServer(t, true)

	code, body := doRequest(t, http.MethodGet, srv.URL+"/session")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got = %d", code)
	}
	want := []status.Action{status.StartHost, status.StartClient, status.StartServer}
	if diff := cmp.Diff(want, body.View.Actions); diff != "" {
		t.Fatalf("unexpected actions; diff:\n%s", diff)
	}
}

func TestHandler_PostAction(t *testing.T) {
	srv, c := newTestServer(t, true)

	code, body := doRequest(t, http.MethodPost, srv.URL+"/session/start_client?address=127.0.0.1")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got = %d (%s)", code, body.Error)
	}
	if body.State.Phase != session.ClientConnecting || body.State.Address != "127.0.0.1" {
		t.Fatalf("unexpected state: %+v", body.State)
	}
	if diff := cmp.Diff([]string{"Connecting to 127.0.0.1.."}, body.View.Lines); diff != "" {
		t.Fatalf("unexpected lines; diff:\n%s", diff)
	}

	code, body = doRequest(t, http.MethodPost, srv.URL+"/session/start_server")
	if code != http.StatusConflict || body.Error == "" {
		t.Fatalf("expected a 409 with an error, got = %d (%q)", code, body.Error)
	}

	code, _ = doRequest(t, http.MethodPost, srv.URL+"/session/cancel_connect")
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got = %d", code)
	}
	if phase := c.Snapshot().Phase; phase != session.Idle {
		t.Fatalf("expected phase = idle, got = %s", phase)
	}
}

func TestHandler_PostActionErrors(t *testing.T) {
	tests := map[string]struct {
		canServe bool
		path     string
		wantCode int
	}{
		"invalid_address":      {canServe: true, path: "/session/start_client?address=bad%20host", wantCode: http.StatusBadRequest},
		"unsupported_platform": {canServe: false, path: "/session/start_server", wantCode: http.StatusForbidden},
		"not_active":           {canServe: true, path: "/session/stop_host", wantCode: http.StatusConflict},
		"unknown_action":       {canServe: true, path: "/session/explode", wantCode: http.StatusNotFound},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv, c := newTestServer(t, tt.canServe)

			code, body := doRequest(t, http.MethodPost, srv.URL+tt.path)
			if code != tt.wantCode {
				t.Fatalf("expected status %d, got = %d (%s)", tt.wantCode, code, body.Error)
			}
			if phase := c.Snapshot().Phase; phase != session.Idle {
				t.Fatalf("expected phase = idle, got = %s", phase)
			}
		})
	}
}
