package motor

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.bug.st/serial"

	"github.com/teslashibe/go-autocar/pkg/steering"
)

// fakePort records writes like a serial port would
type fakePort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.buf.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestApplyDispatchesExactlyOneCall(t *testing.T) {
	cmds := []steering.Command{
		steering.CommandForward,
		steering.CommandBackward,
		steering.CommandTurnLeft,
		steering.CommandTurnRight,
		steering.CommandStop,
	}
	for _, cmd := range cmds {
		m := NewMock()
		if err := Apply(m, cmd); err != nil {
			t.Fatalf("Apply(%v): %v", cmd, err)
		}
		calls := m.Calls()
		if len(calls) != 1 || calls[0] != cmd {
			t.Errorf("Apply(%v) made calls %v", cmd, calls)
		}
	}
}

func TestApplyWrapsFailure(t *testing.T) {
	m := NewMock()
	boom := errors.New("driver fault")
	m.FailOn[steering.CommandTurnLeft] = boom

	err := Apply(m, steering.CommandTurnLeft)
	var ce *CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CommandError, got %T %v", err, err)
	}
	if ce.Command != steering.CommandTurnLeft || !errors.Is(err, boom) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestApplyUnknownCommand(t *testing.T) {
	m := NewMock()
	err := Apply(m, steering.Command(42))
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
	if len(m.Calls()) != 0 {
		t.Errorf("unknown command reached the driver: %v", m.Calls())
	}
}

func TestSerialWritesLineCodes(t *testing.T) {
	port := &fakePort{}
	s := NewSerial(port, nil)

	for _, cmd := range []steering.Command{
		steering.CommandForward,
		steering.CommandTurnLeft,
		steering.CommandTurnRight,
		steering.CommandBackward,
		steering.CommandStop,
	} {
		if err := Apply(s, cmd); err != nil {
			t.Fatalf("Apply(%v): %v", cmd, err)
		}
	}

	if got, want := port.buf.String(), "F\nL\nR\nB\nS\n"; got != want {
		t.Errorf("wire = %q, want %q", got, want)
	}
}

func TestSerialCleanupStopsAndCloses(t *testing.T) {
	port := &fakePort{}
	s := NewSerial(port, nil)

	if err := s.Forward(); err != nil {
		t.Fatal(err)
	}
	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if got := port.buf.String(); got != "F\nS\n" {
		t.Errorf("wire = %q", got)
	}
	if err := s.Forward(); !errors.Is(err, ErrClosed) {
		t.Errorf("command after cleanup: got %v, want ErrClosed", err)
	}
	if err := s.Cleanup(); !errors.Is(err, ErrClosed) {
		t.Errorf("second cleanup: got %v, want ErrClosed", err)
	}
}

func TestSerialWriteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("unplugged")}
	s := NewSerial(port, nil)
	if err := s.Stop(); err == nil {
		t.Error("expected write error")
	}
}

func TestPortOptionsModeDefaults(t *testing.T) {
	mode, err := PortOptions{}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	want := serial.Mode{BaudRate: 9600, DataBits: 8, StopBits: serial.OneStopBit, Parity: serial.NoParity}
	if *mode != want {
		t.Errorf("got %+v, want %+v", *mode, want)
	}
}

func TestPortOptionsModeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.opts.Mode(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPortOptionsMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: " odd "}.Mode()
	if err != nil {
		t.Fatalf("Mode: %v", err)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 7 {
		t.Errorf("mode = %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}

	mode, err = PortOptions{Parity: "E"}.Mode()
	if err != nil {
		t.Fatal(err)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}
}

func TestHTTPPostsCommand(t *testing.T) {
	var mu sync.Mutex
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/drive" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Command string `json:"command"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, body.Command)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	h := NewHTTP(srv.URL+"/", 0)
	if err := Apply(h, steering.CommandTurnRight); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := h.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if err := h.Forward(); !errors.Is(err, ErrClosed) {
		t.Errorf("after cleanup: got %v, want ErrClosed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "turn_right" || got[1] != "stop" {
		t.Errorf("server saw %v", got)
	}
}

func TestHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "estop engaged", http.StatusConflict)
	}))
	defer srv.Close()

	if err := NewHTTP(srv.URL, 0).Forward(); err == nil {
		t.Error("expected error on 409")
	}
}

func TestMockCleanupCount(t *testing.T) {
	m := NewMock()
	_ = m.Cleanup()
	_ = m.Cleanup()
	if m.Cleanups() != 2 {
		t.Errorf("Cleanups = %d", m.Cleanups())
	}
}

func TestDryLogsCommandsWithoutHistory(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	d := NewDry(logger)

	for i := 0; i < 3; i++ {
		if err := Apply(d, steering.CommandTurnRight); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}
	if got := strings.Count(buf.String(), "command=turn_right"); got != 3 {
		t.Errorf("logged %d commands, want 3:\n%s", got, buf.String())
	}
	if !strings.Contains(buf.String(), "component=motor.dry") {
		t.Errorf("missing component attr:\n%s", buf.String())
	}

	if err := d.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if err := d.Forward(); !errors.Is(err, ErrClosed) {
		t.Errorf("after cleanup: got %v, want ErrClosed", err)
	}
	if err := d.Cleanup(); !errors.Is(err, ErrClosed) {
		t.Errorf("second cleanup: got %v, want ErrClosed", err)
	}
}

func TestDrySilentAtInfo(t *testing.T) {
	var buf bytes.Buffer
	d := NewDry(slog.New(slog.NewTextHandler(&buf, nil)))
	if err := d.Forward(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("dry run logged at info level: %s", buf.String())
	}
}
