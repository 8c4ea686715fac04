// Package stt defines the streaming speech-recognition interface used by the
// always-on wake-word listener.
//
// An stt.Provider wraps a realtime transcription service (e.g., Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// [SessionHandle]: once opened, a session accepts raw PCM16 audio chunks and
// emits two streams of [Transcript] values — low-latency partials for
// responsiveness and authoritative finals.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new
// transcription stream.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The wake listener captures
	// at 16000.
	SampleRate int

	// Channels is the number of audio channels; 1 is required by most
	// providers.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// Keywords lists vocabulary hints that raise recognition probability for
	// uncommon words. The wake listener passes its wake-phrase variants here
	// so misheard triggers stay close to the phrase set.
	Keywords []KeywordBoost
}

// SessionHandle represents an open streaming transcription session. It is an
// interface so tests can supply mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections. All methods are safe for
// concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM16 audio for transcription. The
	// chunk must match the SampleRate and Channels agreed in StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of low-latency interim
	// transcripts. The channel is closed when the session ends.
	Partials() <-chan Transcript

	// Finals returns a read-only channel of committed recognition results.
	// The channel is closed when the session ends.
	Finals() <-chan Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns, Partials and Finals are
	// closed. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming speech-recognition backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns
	// the handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
