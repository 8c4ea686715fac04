// Package realtime implements the client side of the bidirectional
// audio+control WebSocket protocol spoken by the cloud speech-to-speech
// model.
//
// A [Client] owns exactly one connection: it dials the realtime endpoint with
// an ephemeral credential, runs a single receive goroutine that decodes every
// inbound JSON event into the tagged union in events.go, and delivers them in
// arrival order on one channel. Ordered processing is therefore a structural
// property of the channel, not an accident of handler scheduling.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

const (
	// DefaultBaseURL is the production realtime endpoint.
	DefaultBaseURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is the speech-to-speech model used when none is
	// configured.
	DefaultModel = "gpt-4o-realtime-preview"

	// eventBuffer is the capacity of the inbound event channel. The pump is
	// expected to keep up; the buffer only absorbs short bursts.
	eventBuffer = 256
)

// DialConfig describes how to reach the realtime endpoint.
type DialConfig struct {
	// BaseURL is the WebSocket endpoint; empty selects [DefaultBaseURL].
	BaseURL string

	// Model selects the speech model; empty selects [DefaultModel].
	Model string

	// Secret is the ephemeral credential minted by the backend token
	// endpoint. Required.
	Secret string
}

// Client is a live realtime connection. Create one with [Dial]; it is invalid
// once [Client.Close] has been called. Send methods are safe for concurrent
// use; Events must have a single consumer.
type Client struct {
	conn   *websocket.Conn
	events chan Event

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	errVal error

	closeOnce sync.Once
}

// Dial connects to the realtime endpoint and starts the receive loop. The
// returned Client is ready to send immediately.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("realtime: dial: missing ephemeral credential")
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	wsURL := fmt.Sprintf("%s?model=%s", base, model)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + cfg.Secret},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		events: make(chan Event, eventBuffer),
		ctx:    clientCtx,
		cancel: cancel,
	}

	go c.receiveLoop()

	return c, nil
}

// Events returns the ordered inbound event stream. The channel is closed when
// the connection ends; check [Client.Err] afterwards to distinguish a clean
// close from a transport failure.
func (c *Client) Events() <-chan Event { return c.events }

// Send marshals msg (built by one of the constructors in messages.go) and
// writes it as a single text frame.
func (c *Client) Send(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("realtime: marshal: %w", err)
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("realtime: write: %w", err)
	}
	return nil
}

// SendAudio delivers a raw PCM16 chunk as an input_audio_buffer.append event.
func (c *Client) SendAudio(pcm []byte) error {
	return c.Send(AudioAppend(pcm))
}

// Err returns the first transport error that terminated the receive loop, or
// nil after a clean close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the connection and releases all resources. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// receiveLoop reads frames, decodes them, and delivers events in arrival
// order. It owns c.events and closes it on exit.
func (c *Client) receiveLoop() {
	defer close(c.events)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() == nil {
				c.setErr(err)
			}
			return
		}

		evt, err := DecodeEvent(data)
		if err != nil {
			// Malformed frame; skip rather than kill the stream.
			continue
		}

		select {
		case c.events <- evt:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errVal == nil {
		c.errVal = err
	}
}
