// Package orchestrator owns the realtime voice session: connection lifecycle,
// the ordered control-channel event pump, response and transcript tracking,
// and the dispatch-and-resume protocol for model tool calls.
//
// A [Session] is created once and reused across connections. At most one
// connection is live at a time; [Session.Connect] while one is pending or
// open returns [ErrAlreadyConnected] rather than tearing the prior one down.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maylavoice/mayla/internal/tools"
	"github.com/maylavoice/mayla/pkg/audio"
	"github.com/maylavoice/mayla/pkg/realtime"
)

var (
	// ErrAlreadyConnected is returned by Connect while a connection is
	// pending or open.
	ErrAlreadyConnected = errors.New("orchestrator: session already connected")

	// ErrNotConnected is returned by SendAudio when no connection is live.
	ErrNotConnected = errors.New("orchestrator: session not connected")
)

const (
	defaultGoodbyeDelay  = 2500 * time.Millisecond
	defaultGreetFallback = 2 * time.Second
	defaultToolTimeout   = 60 * time.Second
	audioOutBuffer       = 64
)

// Conn is the slice of the realtime client the session needs. Introduced so
// tests can drive the pump with a scripted connection.
type Conn interface {
	Events() <-chan realtime.Event
	Send(msg any) error
	SendAudio(pcm []byte) error
	Err() error
	Close() error
}

var _ Conn = (*realtime.Client)(nil)

// Dialer establishes a realtime connection. The default wraps
// [realtime.Dial].
type Dialer func(ctx context.Context, cfg realtime.DialConfig) (Conn, error)

// TokenSource mints the ephemeral credential used to dial.
// *backend.Client satisfies it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Metrics receives session lifecycle and event-pump telemetry.
type Metrics interface {
	SessionStarted(ctx context.Context)
	SessionEnded(ctx context.Context, d time.Duration)
	RecordPumpEvent(ctx context.Context, eventType string)
}

type nopMetrics struct{}

func (nopMetrics) SessionStarted(context.Context)              {}
func (nopMetrics) SessionEnded(context.Context, time.Duration) {}
func (nopMetrics) RecordPumpEvent(context.Context, string)     {}

// Config holds the session parameters pushed to the model on connect.
type Config struct {
	// BaseURL and Model select the realtime endpoint; empty values use the
	// realtime package defaults.
	BaseURL string
	Model   string

	// Voice is the synthesized voice identifier.
	Voice string

	// Instructions is the system prompt.
	Instructions string

	// Greeting is the synthetic user message injected when connecting with
	// GreetOnConnect, prompting the model to say hello.
	Greeting string

	// TranscriptionModel transcribes user audio server-side.
	TranscriptionModel string

	// Server-side voice activity detection tuning.
	VADThreshold float64
	VADSilenceMS int
	VADPrefixMS  int

	// GoodbyeDelay is how long after an end-conversation tool result the
	// connection stays up so the model can speak its farewell.
	GoodbyeDelay time.Duration

	// GreetFallback bounds the wait for the session acknowledgement before
	// the greeting is injected anyway.
	GreetFallback time.Duration
}

func (c *Config) applyDefaults() {
	if c.Voice == "" {
		c.Voice = "alloy"
	}
	if c.Greeting == "" {
		c.Greeting = "Hey Mayla"
	}
	if c.TranscriptionModel == "" {
		c.TranscriptionModel = "whisper-1"
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = 0.5
	}
	if c.VADSilenceMS == 0 {
		c.VADSilenceMS = 500
	}
	if c.VADPrefixMS == 0 {
		c.VADPrefixMS = 300
	}
	if c.GoodbyeDelay == 0 {
		c.GoodbyeDelay = defaultGoodbyeDelay
	}
	if c.GreetFallback == 0 {
		c.GreetFallback = defaultGreetFallback
	}
}

// ConnectOptions modify one Connect call.
type ConnectOptions struct {
	// GreetOnConnect injects the greeting once the remote session is
	// acknowledged, so the assistant speaks first after a wake word.
	GreetOnConnect bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithDialer replaces the realtime dialer, primarily for tests.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// OnUserTranscript registers a callback fired with each finalized user
// utterance. Called from the pump goroutine; keep it fast.
func OnUserTranscript(fn func(text string)) Option {
	return func(s *Session) { s.onUserFinal = fn }
}

// OnAgentTranscript registers a callback fired with each finalized assistant
// utterance. Called from the pump goroutine; keep it fast.
func OnAgentTranscript(fn func(text string)) Option {
	return func(s *Session) { s.onAgentFinal = fn }
}

// OnDisconnect registers a callback fired once per connection when it ends,
// whatever the cause.
func OnDisconnect(fn func()) Option {
	return func(s *Session) { s.onDisconnect = fn }
}

// Session is the realtime session orchestrator.
type Session struct {
	cfg        Config
	tokens     TokenSource
	dispatcher *tools.Dispatcher
	log        *slog.Logger
	metrics    Metrics
	dial       Dialer

	transcript *Transcript
	level      *audio.LevelEstimator
	audioOut   chan []byte
	listening  atomic.Bool

	onUserFinal  func(string)
	onAgentFinal func(string)
	onDisconnect func()

	mu        sync.Mutex
	state     State
	conn      Conn
	startedAt time.Time
	goodbye   *time.Timer
}

// New creates an idle session.
func New(cfg Config, tokens TokenSource, dispatcher *tools.Dispatcher, opts ...Option) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:        cfg,
		tokens:     tokens,
		dispatcher: dispatcher,
		log:        slog.Default(),
		metrics:    nopMetrics{},
		transcript: &Transcript{},
		level:      audio.NewLevelEstimator(),
		audioOut:   make(chan []byte, audioOutBuffer),
	}
	s.dial = func(ctx context.Context, cfg realtime.DialConfig) (Conn, error) {
		return realtime.Dial(ctx, cfg)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript exposes the conversation buffers.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Audio is the stream of synthesized PCM16 chunks for playback. The channel
// is never closed; chunks are dropped when the consumer falls behind.
func (s *Session) Audio() <-chan []byte { return s.audioOut }

// Level reports the smoothed output audio level in [0, 1] for UI display.
func (s *Session) Level() float64 { return s.level.Level() }

// Listening reports whether server-side VAD currently detects user speech.
func (s *Session) Listening() bool { return s.listening.Load() }

// SetPersona updates the voice, instructions, and greeting at runtime
// (config hot reload). The new values apply to the next connection; a live
// session keeps the persona it was opened with. Empty voice or greeting
// keep their current values.
func (s *Session) SetPersona(voice, instructions, greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if voice != "" {
		s.cfg.Voice = voice
	}
	s.cfg.Instructions = instructions
	if greeting != "" {
		s.cfg.Greeting = greeting
	}
}

// Connect mints an ephemeral credential, dials the realtime endpoint, pushes
// the session configuration, and starts the event pump. It returns
// [ErrAlreadyConnected] if a connection is pending or open.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateConnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	secret, err := s.tokens.Token(ctx)
	if err != nil {
		s.abortConnect()
		return fmt.Errorf("orchestrator: connect: %w", err)
	}

	conn, err := s.dial(ctx, realtime.DialConfig{
		BaseURL: s.cfg.BaseURL,
		Model:   s.cfg.Model,
		Secret:  secret,
	})
	if err != nil {
		s.abortConnect()
		return fmt.Errorf("orchestrator: connect: %w", err)
	}

	if err := conn.Send(realtime.SessionUpdate(s.sessionParams())); err != nil {
		_ = conn.Close()
		s.abortConnect()
		return fmt.Errorf("orchestrator: configure session: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Disconnected mid-connect.
		s.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("orchestrator: connect: %w", ErrNotConnected)
	}
	s.conn = conn
	s.state = StateConnected
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.transcript.Reset()
	s.level.Reset()
	s.listening.Store(false)
	s.metrics.SessionStarted(ctx)
	s.log.Info("session connected", "greet", opts.GreetOnConnect)

	p := newPump(s, conn)
	go p.run()
	if opts.GreetOnConnect {
		go s.greet(p)
	}
	return nil
}

// abortConnect rolls a failed connect back to idle unless a concurrent
// Disconnect already did.
func (s *Session) abortConnect() {
	s.mu.Lock()
	if s.state == StateConnecting {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// greet waits for the remote session acknowledgement, bounded by the
// configured fallback, then injects the greeting and asks for a response.
func (s *Session) greet(p *pump) {
	s.mu.Lock()
	greeting := s.cfg.Greeting
	fallback := s.cfg.GreetFallback
	s.mu.Unlock()

	select {
	case <-p.ready:
	case <-time.After(fallback):
		s.log.Debug("session acknowledgement timed out; greeting anyway")
	case <-p.done:
		return
	}
	if err := p.conn.Send(realtime.UserMessage(greeting)); err != nil {
		s.log.Warn("greeting injection failed", "error", err)
		return
	}
	if err := p.conn.Send(realtime.ResponseCreate()); err != nil {
		s.log.Warn("greeting response request failed", "error", err)
	}
}

// SendAudio forwards a microphone PCM16 chunk to the model.
func (s *Session) SendAudio(pcm []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendAudio(pcm)
}

// Disconnect tears down any live or pending connection. Safe to call at any
// lifecycle point, any number of times; the session ends idle.
func (s *Session) Disconnect() {
	s.mu.Lock()
	conn := s.conn
	prev := s.state
	started := s.startedAt
	s.conn = nil
	s.state = StateIdle
	s.stopGoodbyeLocked()
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if prev == StateIdle {
		return
	}

	s.finishSession(prev, started, conn != nil || prev == StateConnecting)
}

// connectionEnded is called by the pump when the event stream closes. If the
// session still owns the connection the close was transport-initiated.
func (s *Session) connectionEnded(conn Conn) {
	s.mu.Lock()
	if s.conn != conn {
		// Disconnect already detached it.
		s.mu.Unlock()
		return
	}
	prev := s.state
	started := s.startedAt
	s.conn = nil
	if conn.Err() != nil {
		s.state = StateError
	} else {
		s.state = StateIdle
	}
	s.stopGoodbyeLocked()
	s.mu.Unlock()

	_ = conn.Close()
	if err := conn.Err(); err != nil {
		s.log.Warn("connection lost", "error", err)
	}
	s.finishSession(prev, started, true)
}

// stopGoodbyeLocked cancels a pending goodbye teardown timer so it cannot
// tear down a connection opened after the one that armed it. Caller holds
// s.mu.
func (s *Session) stopGoodbyeLocked() {
	if s.goodbye != nil {
		s.goodbye.Stop()
		s.goodbye = nil
	}
}

// finishSession runs the once-per-connection teardown effects.
func (s *Session) finishSession(prev State, started time.Time, notify bool) {
	s.dispatcher.Guard().Clear()
	s.listening.Store(false)
	if prev == StateConnected && !started.IsZero() {
		s.metrics.SessionEnded(context.Background(), time.Since(started))
	}
	s.log.Info("session ended", "from", prev.String())
	if notify && s.onDisconnect != nil {
		s.onDisconnect()
	}
}

// dispatchCall executes one model tool call and resumes generation. Runs on
// its own goroutine so backend round-trips never stall the pump; the guard's
// own locking keeps registry mutations atomic across parallel calls.
func (s *Session) dispatchCall(conn Conn, callID, name, args string) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultToolTimeout)
	defer cancel()

	result := s.dispatcher.Execute(ctx, name, args)

	if err := conn.Send(realtime.FunctionCallOutput(callID, result)); err != nil {
		s.log.Warn("tool output delivery failed", "tool", name, "error", err)
		return
	}
	if err := conn.Send(realtime.ResponseCreate()); err != nil {
		s.log.Warn("post-tool response request failed", "tool", name, "error", err)
	}

	if name == tools.EndConversationTool {
		s.log.Info("conversation end requested", "delay", s.cfg.GoodbyeDelay)
		s.mu.Lock()
		// Arm only while this connection is still live; a teardown that
		// raced the dispatch must not leave a timer aimed at a successor
		// connection.
		if s.conn == conn {
			if s.goodbye != nil {
				s.goodbye.Stop()
			}
			s.goodbye = time.AfterFunc(s.cfg.GoodbyeDelay, s.Disconnect)
		}
		s.mu.Unlock()
	}
}

func (s *Session) sessionParams() realtime.SessionParams {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	return realtime.SessionParams{
		Instructions:      cfg.Instructions,
		Voice:             cfg.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputTranscription: &realtime.InputTranscription{
			Model: cfg.TranscriptionModel,
		},
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         cfg.VADThreshold,
			SilenceDurationMS: cfg.VADSilenceMS,
			PrefixPaddingMS:   cfg.VADPrefixMS,
		},
		Tools: s.dispatcher.Schemas(),
	}
}
