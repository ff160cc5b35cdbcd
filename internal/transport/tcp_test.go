package transport

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

type event struct {
	connected bool
	gen       uint64
	err       error
}

// recordingEvents captures transport callbacks on a channel.
type recordingEvents struct {
	ch chan event
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{ch: make(chan event, 16)}
}

func (r *recordingEvents) NotifyConnected(gen uint64) {
	r.ch <- event{connected: true, gen: gen}
}

func (r *recordingEvents) NotifyDisconnected(gen uint64, err error) {
	r.ch <- event{gen: gen, err: err}
}

func (r *recordingEvents) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a transport event")
		return event{}
	}
}

func (r *recordingEvents) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Fatalf("expected no transport event, got = %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestTransport(listenAddress string) *TCP {
	logger, _ := test.NewNullLogger()
	return NewTCP(logger, "tcp", listenAddress, 7777, time.Second)
}

func newTestListener(t *testing.T) net.Listener {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("error initializing test listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener
}

func TestTCP_ListenAndClose(t *testing.T) {
	tr := newTestTransport("127.0.0.1:0")
	events := newRecordingEvents()

	tr.Listen(1, events)
	addr := tr.Addr(1)
	if addr == nil {
		t.Fatal("expected the server socket to be bound")
	}

	// Connect as a peer and make sure the server keeps running when it leaves.
	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("error connecting to transport: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("error closing test connection: %v", err)
	}
	events.expectNone(t)

	tr.Close(1)
	if tr.Addr(1) != nil {
		t.Fatal("expected the endpoint to be released")
	}
	if _, err := net.DialTimeout("tcp", addr.String(), time.Second); err == nil {
		t.Fatal("expected the listener to be closed")
	}
	// Asked-for closes aren't reported as disconnects.
	events.expectNone(t)

	// Closing twice is harmless.
	tr.Close(1)
}

func TestTCP_ListenFailure(t *testing.T) {
	listener := newTestListener(t)
	tr := newTestTransport(listener.Addr().String())
	events := newRecordingEvents()

	tr.Listen(3, events)

	e := events.next(t)
	if e.connected || e.gen != 3 || e.err == nil {
		t.Fatalf("expected a disconnect for generation 3, got = %+v", e)
	}
}

func TestTCP_DialConnectsAndReportsHangUp(t *testing.T) {
	listener := newTestListener(t)
	tr := newTestTransport("")
	events := newRecordingEvents()

	tr.Dial(2, listener.Addr().String(), events)

	peer, err := listener.Accept()
	if err != nil {
		t.Fatalf("error accepting transport connection: %v", err)
	}
	if e := events.next(t); !e.connected || e.gen != 2 {
		t.Fatalf("expected a connect for generation 2, got = %+v", e)
	}

	peer.Close()
	if e := events.next(t); e.connected || e.gen != 2 || e.err == nil {
		t.Fatalf("expected a disconnect for generation 2, got = %+v", e)
	}
	tr.Close(2)
}

func TestTCP_DialRefused(t *testing.T) {
	listener := newTestListener(t)
	addr := listener.Addr().String()
	listener.Close()

	tr := newTestTransport("")
	events := newRecordingEvents()
	tr.Dial(4, addr, events)

	if e := events.next(t); e.connected || e.gen != 4 || e.err == nil {
		t.Fatalf("expected a disconnect for generation 4, got = %+v", e)
	}
}

func TestTCP_CloseConnectedClient(t *testing.T) {
	listener := newTestListener(t)
	tr := newTestTransport("")
	events := newRecordingEvents()

	tr.Dial(5, listener.Addr().String(), events)
	peer, err := listener.Accept()
	if err != nil {
		t.Fatalf("error accepting transport connection: %v", err)
	}
	defer peer.Close()
	if e := events.next(t); !e.connected {
		t.Fatalf("expected a connect, got = %+v", e)
	}

	tr.Close(5)
	events.expectNone(t)

	// The peer sees the connection go away.
	if err := peer.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("error setting read deadline: %v", err)
	}
	if _, err := peer.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected the client connection to be closed")
	}
}

func TestTCP_Shutdown(t *testing.T) {
	tr := newTestTransport("127.0.0.1:0")
	events := newRecordingEvents()

	tr.Listen(1, events)
	listener := newTestListener(t)
	tr.Dial(2, listener.Addr().String(), events)
	peer, err := listener.Accept()
	if err != nil {
		t.Fatalf("error accepting transport connection: %v", err)
	}
	defer peer.Close()
	events.next(t)

	tr.Shutdown()
	if tr.Addr(1) != nil {
		t.Fatal("expected every endpoint to be released")
	}
	events.expectNone(t)
}

func TestTCP_WithDefaultPort(t *testing.T) {
	tr := newTestTransport("")

	tests := map[string]string{
		"127.0.0.1":      "127.0.0.1:7777",
		"localhost:9000": "localhost:9000",
		"::1":            "[::1]:7777",
		"[::1]:9000":     "[::1]:9000",
	}
	for in, want := range tests {
		if got := tr.withDefaultPort(in); got != want {
			t.Errorf("withDefaultPort(%q) want = %s, got = %s", in, want, got)
		}
	}
}
