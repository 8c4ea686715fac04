package realtime

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// ToolSchema declares a callable tool to the model: name, human-readable
// description, and a JSON-schema parameter object.
type ToolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMS int     `json:"silence_duration_ms,omitempty"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms,omitempty"`
}

// InputTranscription selects the model used for transcribing user audio.
type InputTranscription struct {
	Model string `json:"model"`
}

// SessionParams is the payload of a session.update event.
type SessionParams struct {
	Instructions       string              `json:"instructions,omitempty"`
	Voice              string              `json:"voice,omitempty"`
	InputAudioFormat   string              `json:"input_audio_format,omitempty"`
	OutputAudioFormat  string              `json:"output_audio_format,omitempty"`
	InputTranscription *InputTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection      *TurnDetection      `json:"turn_detection,omitempty"`
	Tools              []ToolSchema        `json:"tools,omitempty"`
}

// ContentPart is one content element of a conversation item.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Item is a conversation item injected via conversation.item.create: either a
// message (Role + Content) or a function_call_output (CallID + Output).
type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Output  string        `json:"output,omitempty"`
}

// Outbound client events. Every event carries a unique event_id so rejections
// in error events can be correlated with what was sent.

type sessionUpdateMsg struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session SessionParams `json:"session"`
}

type itemCreateMsg struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Item    Item   `json:"item"`
}

type responseCreateMsg struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type responseCancelMsg struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type audioAppendMsg struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

// SessionUpdate builds a session.update client event.
func SessionUpdate(params SessionParams) any {
	return sessionUpdateMsg{
		EventID: uuid.NewString(),
		Type:    "session.update",
		Session: params,
	}
}

// UserMessage builds a conversation.item.create event carrying a synthetic
// user text message.
func UserMessage(text string) any {
	return itemCreateMsg{
		EventID: uuid.NewString(),
		Type:    "conversation.item.create",
		Item: Item{
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// FunctionCallOutput builds a conversation.item.create event carrying a tool
// result keyed by call ID. output must be a JSON-encoded string.
func FunctionCallOutput(callID, output string) any {
	return itemCreateMsg{
		EventID: uuid.NewString(),
		Type:    "conversation.item.create",
		Item: Item{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// ResponseCreate builds a response.create event asking the model to generate.
func ResponseCreate() any {
	return responseCreateMsg{EventID: uuid.NewString(), Type: "response.create"}
}

// ResponseCancel builds a response.cancel event interrupting the in-progress
// response (barge-in).
func ResponseCancel() any {
	return responseCancelMsg{EventID: uuid.NewString(), Type: "response.cancel"}
}

// AudioAppend builds an input_audio_buffer.append event from raw PCM16.
func AudioAppend(pcm []byte) any {
	return audioAppendMsg{
		EventID: uuid.NewString(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(pcm),
	}
}
