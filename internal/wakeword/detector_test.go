package wakeword

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maylavoice/mayla/pkg/stt"
	"github.com/maylavoice/mayla/pkg/stt/mock"
)

func newSession() *mock.Session {
	return &mock.Session{
		PartialsCh: make(chan stt.Transcript, 16),
		FinalsCh:   make(chan stt.Transcript, 16),
	}
}

func runDetector(t *testing.T, d *Detector) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(context.Background()) }()
	return errCh
}

func TestDetectsWakePhraseAndReleasesStream(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}

	var woke atomic.Int32
	var chimed atomic.Int32
	d := New(provider, Config{}, func() {
		if chimed.Load() == 0 {
			t.Error("onWake fired before the chime")
		}
		if session.CloseCallCount == 0 {
			t.Error("onWake fired before the stream was closed")
		}
		woke.Add(1)
	}, WithChime(func() { chimed.Add(1) }))

	errCh := runDetector(t, d)
	session.FinalsCh <- stt.Transcript{Text: "Hey Mayla!", IsFinal: true, Confidence: 0.92}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if woke.Load() != 1 {
		t.Fatalf("onWake fired %d times, want 1", woke.Load())
	}
}

func TestFuzzyMishearingTriggers(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}
	d := New(provider, Config{}, nil)

	errCh := runDetector(t, d)
	session.PartialsCh <- stt.Transcript{Text: "hey mailer can you help", Confidence: 0.8}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestLowConfidenceHypothesisIgnored(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}

	d := New(provider, Config{}, nil)
	errCh := runDetector(t, d)

	session.PartialsCh <- stt.Transcript{Text: "hey mayla", Confidence: 0.2}
	session.PartialsCh <- stt.Transcript{Text: "unrelated chatter", Confidence: 0.9}
	// A later confident hypothesis still triggers.
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.9}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestDebounceSuppressesRepeatMatch(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}

	var woke atomic.Int32
	d := New(provider, Config{Debounce: time.Hour}, func() { woke.Add(1) })

	// Seed a recent match so the incoming hypothesis lands inside the window.
	d.mu.Lock()
	d.lastMatch = time.Now()
	d.mu.Unlock()

	errCh := runDetector(t, d)
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.9}

	select {
	case err := <-errCh:
		t.Fatalf("Run returned (%v); debounced match must not wake", err)
	case <-time.After(50 * time.Millisecond):
	}
	if woke.Load() != 0 {
		t.Fatalf("onWake fired %d times inside debounce window", woke.Load())
	}

	// Outside the window the same phrase wakes normally.
	d.mu.Lock()
	d.lastMatch = time.Time{}
	d.mu.Unlock()
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.9}
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if woke.Load() != 1 {
		t.Fatalf("onWake fired %d times, want exactly 1", woke.Load())
	}
}

func TestAutoRestartOnBenignStreamEnd(t *testing.T) {
	first := newSession()
	close(first.PartialsCh)
	close(first.FinalsCh)
	second := newSession()

	provider := &mock.Provider{Sessions: []stt.SessionHandle{first, second}}
	d := New(provider, Config{}, nil)

	errCh := runDetector(t, d)
	second.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.9}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := provider.StartStreamCallCount(); got != 2 {
		t.Errorf("StartStream calls = %d, want 2 (restart after benign end)", got)
	}
}

func TestStreamConfigCarriesKeywordBoosts(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}
	d := New(provider, Config{Language: "en-US"}, nil)

	errCh := runDetector(t, d)
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.9}
	<-errCh

	if provider.StartStreamCallCount() == 0 {
		t.Fatal("StartStream never called")
	}
	cfg := provider.StartStreamCalls[0].Cfg
	if cfg.SampleRate != DefaultSampleRate || cfg.Channels != 1 {
		t.Errorf("stream config = %d Hz / %d ch", cfg.SampleRate, cfg.Channels)
	}
	if len(cfg.Keywords) != len(DefaultWakePhrases) {
		t.Fatalf("keywords = %d, want one per wake phrase", len(cfg.Keywords))
	}
	if cfg.Keywords[0].Boost <= 0 {
		t.Error("keyword boost must be positive")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}
	d := New(provider, Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestSessionPhraseClassification(t *testing.T) {
	p := NewSessionPhrases(nil, nil, 0)

	cases := []struct {
		text string
		want Signal
	}{
		{"okay goodbye now", SignalEndSession},
		{"stop listening please", SignalEndSession},
		{"that's all", SignalEndSession},
		{"please shut down", SignalShutdown},
		{"power off", SignalShutdown},
		{"what's on my calendar", SignalNone},
		{"", SignalNone},
	}
	for _, tc := range cases {
		if got := p.Classify(tc.text); got != tc.want {
			t.Errorf("Classify(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestSetPhrasesSwapsMatcherLive(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}

	d := New(provider, Config{Phrases: []string{"hey mayla"}}, nil)
	d.SetPhrases([]string{"computer"}, 0.8)

	errCh := runDetector(t, d)
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.95}
	session.FinalsCh <- stt.Transcript{Text: "computer", IsFinal: true, Confidence: 0.95}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The old phrase was consumed without matching; only the swapped-in
	// phrase ended the run.
	if got := len(session.FinalsCh); got != 0 {
		t.Errorf("unconsumed finals = %d, want 0", got)
	}
}

func TestSetPhrasesEmptyFallsBackToDefaults(t *testing.T) {
	session := newSession()
	provider := &mock.Provider{Session: session}

	d := New(provider, Config{Phrases: []string{"computer"}}, nil)
	d.SetPhrases(nil, 0.8)

	errCh := runDetector(t, d)
	session.FinalsCh <- stt.Transcript{Text: "hey mayla", IsFinal: true, Confidence: 0.95}

	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
