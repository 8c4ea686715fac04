package wakeword

import "github.com/maylavoice/mayla/pkg/textmatch"

// Signal classifies a session transcript against the spoken control phrases.
type Signal int

const (
	// SignalNone means the utterance is ordinary conversation.
	SignalNone Signal = iota

	// SignalEndSession means the user asked to end the conversation; the
	// assistant should return to wake mode.
	SignalEndSession

	// SignalShutdown means the user asked to stop the assistant entirely.
	SignalShutdown
)

// Default control phrase sets, matched against session transcripts with the
// same normalization and threshold as the wake set.
var (
	DefaultTerminationPhrases = []string{"goodbye", "bye mayla", "stop listening", "that's all"}
	DefaultShutdownPhrases    = []string{"shut down", "power off", "shutdown mayla"}
)

// SessionPhrases detects spoken end-of-session and shutdown requests in
// freshly finalized session transcripts. It is matched against what the user
// said during a live session, not against the idle wake listener.
type SessionPhrases struct {
	termination *textmatch.Matcher
	shutdown    *textmatch.Matcher
}

// NewSessionPhrases builds the predicates. Empty sets select the defaults;
// threshold <= 0 selects textmatch.DefaultThreshold.
func NewSessionPhrases(termination, shutdown []string, threshold float64) *SessionPhrases {
	if len(termination) == 0 {
		termination = DefaultTerminationPhrases
	}
	if len(shutdown) == 0 {
		shutdown = DefaultShutdownPhrases
	}
	return &SessionPhrases{
		termination: textmatch.NewMatcher(termination, threshold),
		shutdown:    textmatch.NewMatcher(shutdown, threshold),
	}
}

// Classify returns the strongest signal in text. Shutdown outranks
// end-session when both match.
func (p *SessionPhrases) Classify(text string) Signal {
	if _, _, ok := p.shutdown.Match(text); ok {
		return SignalShutdown
	}
	if _, _, ok := p.termination.Match(text); ok {
		return SignalEndSession
	}
	return SignalNone
}
