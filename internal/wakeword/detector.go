// Package wakeword runs the always-on wake-phrase listener and the spoken
// session-control predicates.
//
// The detector keeps a cheap streaming transcription session open while the
// assistant is idle, matching every hypothesis against the wake-phrase set
// with normalized containment or edit-distance similarity. It never runs
// concurrently with a realtime session: on an accepted match it closes its
// stream first, releasing the microphone before session media starts.
package wakeword

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/maylavoice/mayla/pkg/stt"
	"github.com/maylavoice/mayla/pkg/textmatch"
)

const (
	// DefaultDebounce suppresses repeat matches of the same trigger; a wake
	// phrase often shows up in several consecutive hypotheses.
	DefaultDebounce = 3 * time.Second

	// DefaultConfidenceFloor discards hypotheses the recognizer itself
	// doubts. Transcripts reporting zero confidence are not filtered.
	DefaultConfidenceFloor = 0.5

	// DefaultSampleRate is the wake listener's capture rate in Hz.
	DefaultSampleRate = 16000

	// keywordBoost is the recognition boost applied to each wake phrase.
	keywordBoost = 5.0

	// restartBackoff spaces out stream reopen attempts after a failure.
	restartBackoff = time.Second
)

// DefaultWakePhrases covers the trigger and its common mishearings.
var DefaultWakePhrases = []string{"hey mayla", "hey mailer", "hey mayler", "mayla"}

// Config tunes the detector.
type Config struct {
	// Phrases is the wake set; empty selects [DefaultWakePhrases].
	Phrases []string

	// Threshold is the similarity floor for fuzzy matches; zero selects
	// textmatch.DefaultThreshold. 0.8 suits this multi-word phrase set.
	Threshold float64

	// Debounce is the repeat-suppression window; zero selects
	// [DefaultDebounce].
	Debounce time.Duration

	// ConfidenceFloor drops low-confidence hypotheses; zero selects
	// [DefaultConfidenceFloor].
	ConfidenceFloor float64

	// SampleRate of the audio source; zero selects [DefaultSampleRate].
	SampleRate int

	// Language passed to the recognizer.
	Language string
}

func (c *Config) applyDefaults() {
	if len(c.Phrases) == 0 {
		c.Phrases = DefaultWakePhrases
	}
	if c.Debounce == 0 {
		c.Debounce = DefaultDebounce
	}
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = DefaultConfidenceFloor
	}
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
}

// Metrics receives detection telemetry.
type Metrics interface {
	WakeDetected(ctx context.Context)
}

type nopMetrics struct{}

func (nopMetrics) WakeDetected(context.Context) {}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the detector logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.log = l }
}

// WithMetrics sets the telemetry sink.
func WithMetrics(m Metrics) Option {
	return func(d *Detector) { d.metrics = m }
}

// WithChime registers a callback played on an accepted match, after the
// stream is closed and before onWake runs.
func WithChime(fn func()) Option {
	return func(d *Detector) { d.chime = fn }
}

// WithAudioSource supplies the microphone PCM16 stream. Each open recognizer
// session forwards from this channel until the session ends.
func WithAudioSource(ch <-chan []byte) Option {
	return func(d *Detector) { d.mic = ch }
}

// Detector is the wake-phrase listener.
type Detector struct {
	cfg      Config
	provider stt.Provider
	matcher  *textmatch.Matcher
	onWake   func()
	chime    func()
	log      *slog.Logger
	metrics  Metrics
	mic      <-chan []byte

	mu        sync.Mutex
	lastMatch time.Time
}

// New builds a detector over the given recognition provider. onWake fires
// once per accepted match, after the microphone is released.
func New(provider stt.Provider, cfg Config, onWake func(), opts ...Option) *Detector {
	cfg.applyDefaults()
	d := &Detector{
		cfg:      cfg,
		provider: provider,
		matcher:  textmatch.NewMatcher(cfg.Phrases, cfg.Threshold),
		onWake:   onWake,
		log:      slog.Default(),
		metrics:  nopMetrics{},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// SetPhrases replaces the wake set at runtime (config hot reload). The new
// set applies to matching immediately and to keyword boosts when the
// recognizer stream next reopens. An empty set restores the defaults.
func (d *Detector) SetPhrases(phrases []string, threshold float64) {
	if len(phrases) == 0 {
		phrases = DefaultWakePhrases
	}
	m := textmatch.NewMatcher(phrases, threshold)
	d.mu.Lock()
	d.cfg.Phrases = phrases
	d.matcher = m
	d.mu.Unlock()
}

// Run listens until a wake phrase is accepted or ctx is cancelled. The
// recognizer stream is reopened automatically on benign termination (natural
// end, no speech) for as long as ctx lives. On an accepted match Run closes
// the stream, plays the chime, invokes onWake, and returns nil.
func (d *Detector) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		matched, err := d.listenOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			d.log.Warn("wake stream failed; retrying", "error", err)
			select {
			case <-time.After(restartBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if matched {
			// The stream is already closed: the microphone is free before
			// the chime plays or session setup starts.
			if d.chime != nil {
				d.chime()
			}
			if d.onWake != nil {
				d.onWake()
			}
			return nil
		}
		// Benign stream end; reopen.
		d.log.Debug("wake stream ended; restarting")
	}
}

// listenOnce opens one recognizer stream and consumes it to completion.
// Returns true when a wake phrase was accepted.
func (d *Detector) listenOnce(ctx context.Context) (bool, error) {
	session, err := d.provider.StartStream(ctx, d.streamConfig())
	if err != nil {
		return false, err
	}
	defer session.Close()

	stop := make(chan struct{})
	defer close(stop)
	if d.mic != nil {
		go d.forwardAudio(session, stop)
	}

	partials, finals := session.Partials(), session.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if d.evaluate(ctx, t) {
				_ = session.Close()
				return true, nil
			}
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if d.evaluate(ctx, t) {
				_ = session.Close()
				return true, nil
			}
		}
	}
	return false, nil
}

// evaluate tests one hypothesis; returns true when it triggers a wake.
func (d *Detector) evaluate(ctx context.Context, t stt.Transcript) bool {
	if t.Confidence > 0 && t.Confidence < d.cfg.ConfidenceFloor {
		return false
	}
	d.mu.Lock()
	matcher := d.matcher
	d.mu.Unlock()
	phrase, score, ok := matcher.Match(t.Text)
	if !ok {
		return false
	}

	d.mu.Lock()
	since := time.Since(d.lastMatch)
	if since < d.cfg.Debounce {
		d.mu.Unlock()
		d.log.Debug("wake match debounced",
			"phrase", phrase, "since_last", since)
		return false
	}
	d.lastMatch = time.Now()
	d.mu.Unlock()

	d.log.Info("wake phrase detected",
		"phrase", phrase, "score", score, "final", t.IsFinal)
	d.metrics.WakeDetected(ctx)
	return true
}

// forwardAudio pushes microphone chunks into the session until the stream
// consumer signals stop or the source closes.
func (d *Detector) forwardAudio(session stt.SessionHandle, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case chunk, ok := <-d.mic:
			if !ok {
				return
			}
			if err := session.SendAudio(chunk); err != nil {
				// The consume loop will observe the stream end.
				return
			}
		}
	}
}

func (d *Detector) streamConfig() stt.StreamConfig {
	d.mu.Lock()
	phrases := d.cfg.Phrases
	d.mu.Unlock()

	keywords := make([]stt.KeywordBoost, 0, len(phrases))
	for _, p := range phrases {
		keywords = append(keywords, stt.KeywordBoost{Keyword: p, Boost: keywordBoost})
	}
	return stt.StreamConfig{
		SampleRate: d.cfg.SampleRate,
		Channels:   1,
		Language:   d.cfg.Language,
		Keywords:   keywords,
	}
}
