// Package audio provides PCM16 helpers for the voice pipeline. Audio moves
// through the assistant as raw little-endian PCM16 byte chunks; this package
// derives display-level signals from that stream.
package audio

import (
	"math"
	"sync"
)

// Default smoothing coefficients for [LevelEstimator]. Attack is fast so the
// indicator reacts to speech onset; decay is slow so it falls off smoothly.
const (
	defaultAttack = 0.6
	defaultDecay  = 0.12
)

// LevelEstimator derives a smoothed amplitude signal in [0, 1] from PCM16
// audio, suitable for driving a UI "assistant is speaking" indicator.
//
// Feed it raw PCM16 chunks as they arrive; read the current value with
// [LevelEstimator.Level]. All methods are safe for concurrent use.
type LevelEstimator struct {
	mu     sync.Mutex
	level  float64
	attack float64
	decay  float64
}

// NewLevelEstimator returns a LevelEstimator with the default attack/decay
// smoothing.
func NewLevelEstimator() *LevelEstimator {
	return &LevelEstimator{attack: defaultAttack, decay: defaultDecay}
}

// Feed updates the level from a chunk of little-endian PCM16 samples.
// Chunks with an odd byte count have their trailing byte ignored; empty
// chunks decay the level toward zero.
func (e *LevelEstimator) Feed(pcm []byte) {
	rms := rmsPCM16(pcm)

	e.mu.Lock()
	defer e.mu.Unlock()
	if rms > e.level {
		e.level += (rms - e.level) * e.attack
	} else {
		e.level += (rms - e.level) * e.decay
	}
}

// Level returns the current smoothed amplitude in [0, 1].
func (e *LevelEstimator) Level() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

// Reset drops the level back to zero, for use at turn boundaries.
func (e *LevelEstimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.level = 0
}

// rmsPCM16 computes the root-mean-square amplitude of little-endian PCM16
// data, normalized to [0, 1].
func rmsPCM16(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*2; i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(n))
}
