package app_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/maylavoice/mayla/internal/app"
	"github.com/maylavoice/mayla/internal/chime"
	"github.com/maylavoice/mayla/internal/config"
	"github.com/maylavoice/mayla/internal/orchestrator"
	"github.com/maylavoice/mayla/pkg/realtime"
	"github.com/maylavoice/mayla/pkg/stt"
	"github.com/maylavoice/mayla/pkg/stt/mock"
)

// fakeConn scripts the realtime event stream and counts outbound traffic.
type fakeConn struct {
	events chan realtime.Event

	mu     sync.Mutex
	sent   int
	audio  int
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan realtime.Event, 64)}
}

func (c *fakeConn) Events() <-chan realtime.Event { return c.events }

func (c *fakeConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent++
	return nil
}

func (c *fakeConn) SendAudio(pcm []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio++
	return nil
}

func (c *fakeConn) Err() error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

func (c *fakeConn) audioCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

// dialRecorder hands out a fresh fakeConn per dial, optionally failing
// scripted attempts first.
type dialRecorder struct {
	mu       sync.Mutex
	conns    []*fakeConn
	failNext int
}

func (d *dialRecorder) dial(ctx context.Context, cfg realtime.DialConfig) (orchestrator.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failNext > 0 {
		d.failNext--
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *dialRecorder) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *dialRecorder) latest() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// playbackSink records every PCM chunk handed to the output device.
type playbackSink struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (p *playbackSink) play(pcm []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks = append(p.chunks, pcm)
}

func (p *playbackSink) first() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) == 0 {
		return nil
	}
	return p.chunks[0]
}

func newBackendServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":"ek_test"}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{BaseURL: backendURL},
		Realtime: config.RealtimeConfig{
			Model:    "gpt-realtime-test",
			Greeting: "Hello there",
		},
		Wake: config.WakeConfig{
			Enabled:         true,
			Phrases:         []string{"hey mayla"},
			Threshold:       0.8,
			DebounceMS:      10,
			ConfidenceFloor: 0.5,
		},
		STT: config.STTConfig{APIKey: "dg_test"},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func final(text string) stt.Transcript {
	return stt.Transcript{Text: text, Confidence: 0.95, IsFinal: true}
}

// harness bundles a running App with its injected doubles.
type harness struct {
	app    *app.App
	dialer *dialRecorder
	rec    *mock.Session
	prov   *mock.Provider
	sink   *playbackSink
	errCh  chan error
	cancel context.CancelFunc
}

func startApp(t *testing.T, mutate func(*config.Config), opts ...app.Option) *harness {
	t.Helper()
	srv := newBackendServer(t)
	cfg := testConfig(srv.URL)
	if mutate != nil {
		mutate(cfg)
	}

	rec := &mock.Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
	prov := &mock.Provider{Session: rec}
	dialer := &dialRecorder{}
	sink := &playbackSink{}

	opts = append([]app.Option{
		app.WithSTTProvider(prov),
		app.WithDialer(dialer.dial),
		app.WithPlayback(sink.play),
	}, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		cancel()
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errCh <- a.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
	})

	return &harness{app: a, dialer: dialer, rec: rec, prov: prov, sink: sink, errCh: errCh, cancel: cancel}
}

func TestWakePhraseOpensSession(t *testing.T) {
	h := startApp(t, nil)

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })
	h.rec.FinalsCh <- final("hey mayla")

	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})

	if got := h.dialer.dialCount(); got != 1 {
		t.Errorf("dial count = %d, want 1", got)
	}
	if h.rec.CloseCallCount == 0 {
		t.Error("recognizer stream not closed before session start")
	}
	if got := h.sink.first(); !bytes.Equal(got, chime.WakeChime()) {
		t.Errorf("first playback chunk is not the wake chime (len %d)", len(got))
	}
}

func TestTerminationPhraseResumesWakeListening(t *testing.T) {
	h := startApp(t, nil)

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })
	h.rec.FinalsCh <- final("hey mayla")
	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})

	h.dialer.latest().events <- realtime.InputTranscriptionCompletedEvent{
		ItemID: "item_1", Transcript: "goodbye",
	}

	waitFor(t, "session to close", func() bool {
		return h.app.Session().State() == orchestrator.StateIdle
	})
	waitFor(t, "wake stream restart", func() bool { return h.prov.StartStreamCallCount() == 2 })
}

func TestShutdownPhraseStopsApp(t *testing.T) {
	h := startApp(t, nil)

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })
	h.rec.FinalsCh <- final("hey mayla")
	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})

	h.dialer.latest().events <- realtime.InputTranscriptionCompletedEvent{
		ItemID: "item_1", Transcript: "shut down",
	}

	select {
	case err := <-h.errCh:
		if !errors.Is(err, app.ErrShutdownRequested) {
			t.Fatalf("Run returned %v, want ErrShutdownRequested", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown phrase")
	}
}

func TestMicrophoneFollowsSessionState(t *testing.T) {
	mic := make(chan []byte, 8)
	h := startApp(t, nil, app.WithMicrophone(mic))

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })

	// No session: capture audio feeds the wake recognizer.
	mic <- []byte{1, 2, 3}
	waitFor(t, "recognizer audio", func() bool { return h.rec.SendAudioCallCount() > 0 })

	h.rec.FinalsCh <- final("hey mayla")
	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})

	// Connected: capture audio goes to the realtime connection instead.
	mic <- []byte{4, 5, 6}
	waitFor(t, "session audio", func() bool { return h.dialer.latest().audioCount() > 0 })
}

func TestConnectFailureResumesWakeListening(t *testing.T) {
	h := startApp(t, nil)
	h.dialer.mu.Lock()
	h.dialer.failNext = 1
	h.dialer.mu.Unlock()

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })
	h.rec.FinalsCh <- final("hey mayla")

	// The failed connect sends the loop back to wake listening.
	waitFor(t, "wake stream restart", func() bool { return h.prov.StartStreamCallCount() == 2 })

	h.rec.FinalsCh <- final("hey mayla")
	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})
	if got := h.dialer.dialCount(); got != 1 {
		t.Errorf("successful dial count = %d, want 1", got)
	}
}

func TestReloadSwapsWakePhrases(t *testing.T) {
	h := startApp(t, nil)

	waitFor(t, "wake stream", func() bool { return h.prov.StartStreamCallCount() == 1 })

	// Not a configured phrase yet.
	h.rec.FinalsCh <- final("computer")
	time.Sleep(50 * time.Millisecond)
	if got := h.app.Session().State(); got != orchestrator.StateIdle {
		t.Fatalf("state after unknown phrase = %v, want idle", got)
	}

	cfg := testConfig("http://unused")
	cfg.Wake.Phrases = []string{"computer"}
	h.app.ApplyReload(config.ConfigDiff{WakeChanged: true}, cfg)

	h.rec.FinalsCh <- final("computer")
	waitFor(t, "session connect", func() bool {
		return h.app.Session().State() == orchestrator.StateConnected
	})
}

func TestWakeDisabledRunsControlPlaneOnly(t *testing.T) {
	srv := newBackendServer(t)
	cfg := testConfig(srv.URL)
	cfg.Wake.Enabled = false

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No recognizer is needed when wake listening is off.
	a, err := app.New(ctx, cfg, app.WithDialer((&dialRecorder{}).dial))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewRejectsMissingBackend(t *testing.T) {
	cfg := testConfig("")
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("New accepted an empty backend URL")
	}
}
