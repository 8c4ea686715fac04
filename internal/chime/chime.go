// Package chime produces the assistant's audio cues: the generated wake
// acknowledgement tone and the synthesized spoken greeting, both as PCM16 for
// the playback sink.
package chime

import (
	"math"
	"time"
)

// SampleRate of all generated cues, matching the realtime output format.
const SampleRate = 24000

// Tone renders a sine tone as PCM16 mono with a short linear fade on both
// ends to avoid clicks.
func Tone(freq float64, d time.Duration, volume float64) []byte {
	if volume <= 0 || volume > 1 {
		volume = 0.5
	}
	samples := int(float64(SampleRate) * d.Seconds())
	fade := SampleRate / 100 // 10ms
	if fade*2 > samples {
		fade = samples / 2
	}

	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := math.Sin(2*math.Pi*freq*float64(i)/float64(SampleRate)) * volume
		switch {
		case i < fade:
			v *= float64(i) / float64(fade)
		case i >= samples-fade:
			v *= float64(samples-1-i) / float64(fade)
		}
		s := int16(v * math.MaxInt16)
		pcm[2*i] = byte(s)
		pcm[2*i+1] = byte(s >> 8)
	}
	return pcm
}

// WakeChime is the two-note ascending cue played when a wake phrase is
// accepted.
func WakeChime() []byte {
	first := Tone(880, 120*time.Millisecond, 0.4)
	second := Tone(1175, 160*time.Millisecond, 0.4)
	out := make([]byte, 0, len(first)+len(second))
	out = append(out, first...)
	return append(out, second...)
}
