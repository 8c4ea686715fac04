package chime

import (
	"context"
	"fmt"
	"io"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultGreeting is the spoken cue synthesized at startup so the assistant
// can answer a wake word instantly, before the realtime session is up.
const DefaultGreeting = "Hi, I'm listening."

// Synthesizer renders short spoken cues to PCM16 via the speech API.
type Synthesizer struct {
	client oai.Client
	model  string
	voice  string
}

// SynthOption configures a Synthesizer.
type SynthOption func(*Synthesizer)

// WithVoice selects the synthesis voice; keep it matching the realtime
// session voice so the greeting doesn't sound like someone else.
func WithVoice(voice string) SynthOption {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithModel selects the speech model. Default: tts-1.
func WithModel(model string) SynthOption {
	return func(s *Synthesizer) { s.model = model }
}

// WithBaseURL overrides the API base URL, primarily for tests.
func WithBaseURL(url string) SynthOption {
	return func(s *Synthesizer) {
		s.client = oai.NewClient(option.WithBaseURL(url))
	}
}

// NewSynthesizer builds a synthesizer authenticated with apiKey.
func NewSynthesizer(apiKey string, opts ...SynthOption) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("chime: synthesizer requires an API key")
	}
	s := &Synthesizer{
		client: oai.NewClient(option.WithAPIKey(apiKey)),
		model:  "tts-1",
		voice:  "alloy",
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Synthesize renders text to raw PCM16 at the API's native 24 kHz.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(s.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("chime: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chime: read synthesis: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("chime: synthesis returned no audio")
	}
	return pcm, nil
}

// CachedCue synthesizes a cue at most once and replays the bytes afterwards.
type CachedCue struct {
	syn  *Synthesizer
	text string

	once sync.Once
	pcm  []byte
	err  error
}

// NewCachedCue wraps text for lazy one-time synthesis.
func NewCachedCue(syn *Synthesizer, text string) *CachedCue {
	if text == "" {
		text = DefaultGreeting
	}
	return &CachedCue{syn: syn, text: text}
}

// PCM returns the synthesized audio, rendering it on first use.
func (c *CachedCue) PCM(ctx context.Context) ([]byte, error) {
	c.once.Do(func() {
		c.pcm, c.err = c.syn.Synthesize(ctx, c.text)
	})
	return c.pcm, c.err
}
