package stt

import "time"

// Transcript represents a speech-to-text result. Both partial (interim) and
// final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) result.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when the provider supports it; may be
	// nil.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to stream start.
	Timestamp time.Duration
}

// WordDetail is per-word timing and confidence information.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost represents a keyword to boost in recognition, used to keep
// wake-phrase variants recognizable.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Mayla").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
