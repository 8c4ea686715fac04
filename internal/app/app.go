// Package app wires all Mayla subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the wake/session loop plus the admin HTTP server,
// and Shutdown tears everything down in order.
//
// The app alternates between two exclusive microphone modes. In wake mode the
// wake-word detector holds the mic through a cheap streaming recognizer; on an
// accepted wake phrase the recognizer stream is closed, the chime plays, and a
// realtime session is opened with a greeting. In session mode all mic audio is
// forwarded to the realtime connection. When the session ends, by a spoken
// termination phrase, the end_conversation tool, or a transport failure, the
// app returns to wake mode.
//
// For testing, inject doubles via functional options (WithSTTProvider,
// WithDialer, WithMicrophone, WithPlayback). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maylavoice/mayla/internal/archive"
	"github.com/maylavoice/mayla/internal/backend"
	"github.com/maylavoice/mayla/internal/chime"
	"github.com/maylavoice/mayla/internal/config"
	"github.com/maylavoice/mayla/internal/integrity"
	"github.com/maylavoice/mayla/internal/observe"
	"github.com/maylavoice/mayla/internal/orchestrator"
	"github.com/maylavoice/mayla/internal/tools"
	"github.com/maylavoice/mayla/internal/tools/mcpext"
	"github.com/maylavoice/mayla/internal/wakeword"
	"github.com/maylavoice/mayla/pkg/stt"
	"github.com/maylavoice/mayla/pkg/stt/deepgram"
)

// One observe.Metrics instance feeds every subsystem's telemetry interface.
var (
	_ tools.Metrics        = (*observe.Metrics)(nil)
	_ orchestrator.Metrics = (*observe.Metrics)(nil)
	_ wakeword.Metrics     = (*observe.Metrics)(nil)
)

// ErrShutdownRequested is returned by Run when a spoken shutdown phrase asks
// the whole assistant to stop. Callers should treat it as a clean exit.
var ErrShutdownRequested = errors.New("app: shutdown requested")

// cueWarmTimeout bounds the startup pre-synthesis of the spoken greeting.
const cueWarmTimeout = 15 * time.Second

// App owns all subsystem lifetimes and runs the wake/session loop.
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	metrics *observe.Metrics

	backend    *backend.Client
	dispatcher *tools.Dispatcher
	session    *orchestrator.Session
	detector   *wakeword.Detector
	phrases    *wakeword.SessionPhrases
	store      *archive.Store
	mcpHost    *mcpext.Host
	cue        *chime.CachedCue

	// Audio endpoints. Nil microphone or playback disables that direction;
	// the control plane still runs (useful in tests and headless setups).
	mic      <-chan []byte
	playback func(pcm []byte)

	// wakeMic is the detector's view of the microphone; the mic router
	// forwards into it only while no session is up.
	wakeMic chan []byte

	// sessionDone is signalled once per connection when it ends.
	sessionDone chan struct{}

	// shutdownReq is closed when a spoken shutdown phrase is accepted.
	shutdownReq  chan struct{}
	shutdownOnce sync.Once

	// sessionID tags archive rows for the current connection.
	sessionMu sync.Mutex
	sessionID string

	sttProvider stt.Provider
	dialer      orchestrator.Dialer

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMicrophone supplies the capture stream of PCM16 chunks.
func WithMicrophone(ch <-chan []byte) Option {
	return func(a *App) { a.mic = ch }
}

// WithPlayback supplies the output sink for PCM16 chunks (chime, greeting
// cue, and synthesized session audio).
func WithPlayback(fn func(pcm []byte)) Option {
	return func(a *App) { a.playback = fn }
}

// WithSTTProvider injects the wake listener's recognizer instead of creating
// a Deepgram provider from config.
func WithSTTProvider(p stt.Provider) Option {
	return func(a *App) { a.sttProvider = p }
}

// WithDialer injects the realtime dialer, primarily for tests.
func WithDialer(d orchestrator.Dialer) Option {
	return func(a *App) { a.dialer = d }
}

// WithArchiveStore injects a transcript store instead of opening one from the
// configured DSN.
func WithArchiveStore(s *archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLogger sets the app logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous except for the greeting cue, which is pre-synthesized in the
// background so startup does not block on the speech API.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:         cfg,
		log:         slog.Default(),
		metrics:     observe.DefaultMetrics(),
		wakeMic:     make(chan []byte, 16),
		sessionDone: make(chan struct{}, 1),
		shutdownReq: make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Backend client ────────────────────────────────────────────────
	var beOpts []backend.Option
	if cfg.Backend.TimeoutSeconds > 0 {
		beOpts = append(beOpts, backend.WithTimeout(time.Duration(cfg.Backend.TimeoutSeconds)*time.Second))
	}
	be, err := backend.New(cfg.Backend.BaseURL, beOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}
	a.backend = be

	// ── 2. Tool registry + dispatcher ────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 3. Transcript archive ────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Realtime session ──────────────────────────────────────────────
	a.initSession()

	// ── 5. Wake listener + greeting cue ──────────────────────────────────
	if err := a.initWake(ctx); err != nil {
		return nil, fmt.Errorf("app: init wake: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTools builds the standard tool set, imports MCP extension tools, and
// assembles the guarded dispatcher.
func (a *App) initTools(ctx context.Context) error {
	reg, err := tools.NewStandardRegistry(a.backend)
	if err != nil {
		return err
	}

	if len(a.cfg.MCP.Servers) > 0 {
		host := mcpext.NewHost(a.log)
		host.Connect(ctx, reg, a.cfg.MCP.Servers)
		a.mcpHost = host
		a.closers = append(a.closers, host.Close)
	}

	a.dispatcher = tools.NewDispatcher(reg, integrity.NewRegistry(),
		tools.WithLogger(a.log),
		tools.WithMetrics(a.metrics),
	)
	a.log.Info("tool registry assembled", "tools", reg.Len(), "mcp_servers", len(a.cfg.MCP.Servers))
	return nil
}

// initArchive opens the transcript store when a DSN is configured. The store
// is nil-safe, so an empty DSN simply disables persistence.
func (a *App) initArchive(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}
	store, err := archive.Open(ctx, a.cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = store
	if store != nil {
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	return nil
}

// initSession builds the realtime session orchestrator with transcript and
// lifecycle callbacks wired back into the app.
func (a *App) initSession() {
	rt := a.cfg.Realtime
	sessCfg := orchestrator.Config{
		BaseURL:            rt.BaseURL,
		Model:              rt.Model,
		Voice:              rt.Voice,
		Instructions:       rt.Instructions,
		Greeting:           rt.Greeting,
		TranscriptionModel: rt.TranscriptionModel,
		GoodbyeDelay:       time.Duration(rt.GoodbyeDelayMS) * time.Millisecond,
	}

	sessOpts := []orchestrator.Option{
		orchestrator.WithLogger(a.log),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.OnUserTranscript(a.handleUserFinal),
		orchestrator.OnAgentTranscript(a.handleAgentFinal),
		orchestrator.OnDisconnect(a.handleDisconnect),
	}
	if a.dialer != nil {
		sessOpts = append(sessOpts, orchestrator.WithDialer(a.dialer))
	}

	a.session = orchestrator.New(sessCfg, a.backend, a.dispatcher, sessOpts...)
}

// initWake builds the phrase classifier, the wake detector, and the spoken
// greeting cue.
func (a *App) initWake(ctx context.Context) error {
	w := a.cfg.Wake

	termination := w.TerminationPhrases
	if len(termination) == 0 {
		termination = wakeword.DefaultTerminationPhrases
	}
	shutdown := w.ShutdownPhrases
	if len(shutdown) == 0 {
		shutdown = wakeword.DefaultShutdownPhrases
	}
	a.phrases = wakeword.NewSessionPhrases(termination, shutdown, w.Threshold)

	if a.cfg.Chime.APIKey != "" {
		syn, err := chime.NewSynthesizer(a.cfg.Chime.APIKey)
		if err != nil {
			return err
		}
		a.cue = chime.NewCachedCue(syn, a.cfg.Chime.Greeting)
		go a.warmCue(ctx)
	}

	if !w.Enabled {
		a.log.Info("wake listening disabled; no session trigger configured")
		return nil
	}

	if a.sttProvider == nil {
		var dgOpts []deepgram.Option
		if a.cfg.STT.Model != "" {
			dgOpts = append(dgOpts, deepgram.WithModel(a.cfg.STT.Model))
		}
		if a.cfg.STT.Language != "" {
			dgOpts = append(dgOpts, deepgram.WithLanguage(a.cfg.STT.Language))
		}
		p, err := deepgram.New(a.cfg.STT.APIKey, dgOpts...)
		if err != nil {
			return err
		}
		a.sttProvider = p
	}

	a.detector = wakeword.New(a.sttProvider, wakeword.Config{
		Phrases:         w.Phrases,
		Threshold:       w.Threshold,
		Debounce:        time.Duration(w.DebounceMS) * time.Millisecond,
		ConfidenceFloor: w.ConfidenceFloor,
		Language:        a.cfg.STT.Language,
	}, nil,
		wakeword.WithLogger(a.log),
		wakeword.WithMetrics(a.metrics),
		wakeword.WithChime(a.playCue),
		wakeword.WithAudioSource(a.wakeMic),
	)
	return nil
}

// warmCue pre-synthesizes the spoken greeting so the first wake does not wait
// on the speech API.
func (a *App) warmCue(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cueWarmTimeout)
	defer cancel()
	if _, err := a.cue.PCM(ctx); err != nil {
		a.log.Warn("greeting cue pre-synthesis failed", "error", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyReload reacts to a hot config reload. Log level changes are handled by
// the caller (the level var lives in main); this applies wake-phrase and
// persona changes.
func (a *App) ApplyReload(diff config.ConfigDiff, cfg *config.Config) {
	if diff.WakeChanged {
		if a.detector != nil {
			a.detector.SetPhrases(cfg.Wake.Phrases, cfg.Wake.Threshold)
		}
		a.phrases = wakeword.NewSessionPhrases(
			cfg.Wake.TerminationPhrases, cfg.Wake.ShutdownPhrases, cfg.Wake.Threshold)
		a.log.Info("wake phrase sets reloaded")
	}
	if diff.PersonaChanged {
		a.session.SetPersona(cfg.Realtime.Voice, cfg.Realtime.Instructions, cfg.Realtime.Greeting)
		a.log.Info("persona reloaded; applies to the next session")
	}
}

// ─── Session callbacks ───────────────────────────────────────────────────────

// handleUserFinal runs on the session's pump goroutine for each finalized
// user utterance: persist it, then check the spoken session-control phrases.
func (a *App) handleUserFinal(text string) {
	a.archiveSegment(archive.RoleUser, text)

	switch a.phrases.Classify(text) {
	case wakeword.SignalShutdown:
		a.log.Info("shutdown phrase accepted", "text", text)
		a.session.Disconnect()
		a.requestShutdown()
	case wakeword.SignalEndSession:
		a.log.Info("termination phrase accepted", "text", text)
		a.session.Disconnect()
	}
}

func (a *App) handleAgentFinal(text string) {
	a.archiveSegment(archive.RoleAssistant, text)
}

// handleDisconnect fires once per connection; the wake loop resumes on it.
func (a *App) handleDisconnect() {
	select {
	case a.sessionDone <- struct{}{}:
	default:
	}
}

// archiveSegment persists one finalized transcript segment off the pump
// goroutine. Disabled stores drop segments silently.
func (a *App) archiveSegment(role, text string) {
	if a.store == nil || text == "" {
		return
	}
	seg := archive.Segment{
		SessionID: a.currentSessionID(),
		Role:      role,
		Text:      text,
		SpokenAt:  time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.Write(ctx, seg); err != nil {
			a.log.Warn("transcript archive write failed", "error", err)
		}
	}()
}

func (a *App) currentSessionID() string {
	a.sessionMu.Lock()
	defer a.sessionMu.Unlock()
	return a.sessionID
}

func (a *App) newSessionID() string {
	id := uuid.NewString()
	a.sessionMu.Lock()
	a.sessionID = id
	a.sessionMu.Unlock()
	return id
}

// requestShutdown asks Run to exit cleanly. Idempotent.
func (a *App) requestShutdown() {
	a.shutdownOnce.Do(func() { close(a.shutdownReq) })
}

// playCue plays the wake chime tone followed by the pre-synthesized spoken
// greeting. Called by the detector after the recognizer stream is closed, so
// the playback never overlaps the wake listener's mic hold.
func (a *App) playCue() {
	if a.playback == nil {
		return
	}
	a.playback(chime.WakeChime())
	if a.cue == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pcm, err := a.cue.PCM(ctx)
	if err != nil {
		a.log.Warn("greeting cue unavailable", "error", err)
		return
	}
	a.playback(pcm)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the admin server, the audio routes, and the wake/session loop,
// blocking until ctx is cancelled or a shutdown phrase is accepted. Returns
// [ErrShutdownRequested] for the latter.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.serveAdmin(ctx) })
	g.Go(func() error { return a.pumpPlayback(ctx) })
	if a.mic != nil {
		g.Go(func() error { return a.routeMic(ctx) })
	}
	if a.detector != nil {
		g.Go(func() error { return a.runWakeLoop(ctx) })
	}
	g.Go(func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.shutdownReq:
			return ErrShutdownRequested
		}
	})

	a.log.Info("mayla running",
		"wake", a.detector != nil,
		"archive", a.store != nil,
		"admin", a.cfg.Server.ListenAddr,
	)

	err := g.Wait()
	a.session.Disconnect()
	return err
}

// runWakeLoop alternates between wake listening and an open session. The
// detector returns nil on an accepted wake; the loop then opens the realtime
// session and parks until it ends.
func (a *App) runWakeLoop(ctx context.Context) error {
	for {
		if err := a.detector.Run(ctx); err != nil {
			return err
		}

		id := a.newSessionID()
		if err := a.session.Connect(ctx, orchestrator.ConnectOptions{GreetOnConnect: true}); err != nil {
			a.log.Error("session connect failed; resuming wake listening",
				"session", id, "error", err)
			continue
		}
		a.log.Info("session opened", "session", id)

		select {
		case <-a.sessionDone:
			a.log.Info("session closed; resuming wake listening", "session", id)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// routeMic forwards capture audio to whichever side owns the microphone:
// the realtime session when one is connected, the wake listener otherwise.
// Wake-side sends never block; the listener drops frames it cannot take
// (stream restarts, session connecting).
func (a *App) routeMic(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-a.mic:
			if !ok {
				a.log.Info("microphone stream closed")
				return nil
			}
			if a.session.State() == orchestrator.StateConnected {
				if err := a.session.SendAudio(chunk); err != nil && !errors.Is(err, orchestrator.ErrNotConnected) {
					a.log.Warn("mic forward failed", "error", err)
				}
				continue
			}
			select {
			case a.wakeMic <- chunk:
			default:
			}
		}
	}
}

// pumpPlayback forwards synthesized session audio to the playback sink.
func (a *App) pumpPlayback(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pcm := <-a.session.Audio():
			if a.playback != nil {
				a.playback(pcm)
			}
		}
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		a.session.Disconnect()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// Session exposes the realtime session for UI surfaces (level, transcript).
func (a *App) Session() *orchestrator.Session { return a.session }
