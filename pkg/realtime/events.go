package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event is an inbound control-channel event, decoded into one variant per
// protocol event kind. The orchestrator's pump switches on the concrete type;
// unrecognized protocol types decode to [UnknownEvent] so the pump can log
// and skip them without crashing.
type Event interface {
	// EventType returns the wire-level type discriminator.
	EventType() string
}

// ErrorEvent is a model-reported error. The connection stays open unless the
// remote side closes it.
type ErrorEvent struct {
	Code    string
	Message string
}

// SessionCreatedEvent confirms the remote session exists.
type SessionCreatedEvent struct{}

// SessionUpdatedEvent acknowledges a session.update.
type SessionUpdatedEvent struct{}

// SpeechStartedEvent signals server-side VAD detected the user speaking.
type SpeechStartedEvent struct{}

// SpeechStoppedEvent signals server-side VAD detected end of user speech.
type SpeechStoppedEvent struct{}

// ResponseCreatedEvent begins a new model response turn.
type ResponseCreatedEvent struct {
	ResponseID string
}

// ResponseDoneEvent finalizes a model response turn.
type ResponseDoneEvent struct {
	ResponseID string
}

// AudioDeltaEvent carries a chunk of synthesized PCM16 audio.
type AudioDeltaEvent struct {
	ResponseID string
	PCM        []byte
}

// AudioTranscriptDeltaEvent carries an incremental piece of the assistant's
// spoken-transcript text.
type AudioTranscriptDeltaEvent struct {
	ResponseID string
	Delta      string
}

// AudioTranscriptDoneEvent carries the finalized assistant spoken transcript.
type AudioTranscriptDoneEvent struct {
	ResponseID string
	Transcript string
}

// TextDeltaEvent carries an incremental piece of assistant text output.
type TextDeltaEvent struct {
	ResponseID string
	Delta      string
}

// TextDoneEvent carries finalized assistant text output.
type TextDoneEvent struct {
	ResponseID string
	Text       string
}

// InputTranscriptionDeltaEvent carries an incremental piece of the user's
// input transcription.
type InputTranscriptionDeltaEvent struct {
	ItemID string
	Delta  string
}

// InputTranscriptionCompletedEvent carries the user's completed input
// transcription.
type InputTranscriptionCompletedEvent struct {
	ItemID     string
	Transcript string
}

// OutputItem describes a response output item; for tool invocations Type is
// "function_call".
type OutputItem struct {
	Type      string
	ID        string
	CallID    string
	Name      string
	Arguments string
}

// OutputItemAddedEvent announces a new output item within a response.
type OutputItemAddedEvent struct {
	ResponseID string
	Item       OutputItem
}

// OutputItemDoneEvent marks an output item complete; for function_call items
// this is the dispatch trigger.
type OutputItemDoneEvent struct {
	ResponseID string
	Item       OutputItem
}

// FunctionCallArgumentsDeltaEvent carries an incremental fragment of a
// function call's JSON argument string.
type FunctionCallArgumentsDeltaEvent struct {
	CallID string
	Delta  string
}

// ConversationItemCreatedEvent acknowledges a conversation.item.create.
type ConversationItemCreatedEvent struct {
	ItemID string
}

// UnknownEvent wraps any protocol event type this client does not model.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (ErrorEvent) EventType() string                { return "error" }
func (SessionCreatedEvent) EventType() string       { return "session.created" }
func (SessionUpdatedEvent) EventType() string       { return "session.updated" }
func (SpeechStartedEvent) EventType() string        { return "input_audio_buffer.speech_started" }
func (SpeechStoppedEvent) EventType() string        { return "input_audio_buffer.speech_stopped" }
func (ResponseCreatedEvent) EventType() string      { return "response.created" }
func (ResponseDoneEvent) EventType() string         { return "response.done" }
func (AudioDeltaEvent) EventType() string           { return "response.audio.delta" }
func (AudioTranscriptDeltaEvent) EventType() string { return "response.audio_transcript.delta" }
func (AudioTranscriptDoneEvent) EventType() string  { return "response.audio_transcript.done" }
func (TextDeltaEvent) EventType() string            { return "response.text.delta" }
func (TextDoneEvent) EventType() string             { return "response.text.done" }
func (InputTranscriptionDeltaEvent) EventType() string {
	return "conversation.item.input_audio_transcription.delta"
}
func (InputTranscriptionCompletedEvent) EventType() string {
	return "conversation.item.input_audio_transcription.completed"
}
func (OutputItemAddedEvent) EventType() string { return "response.output_item.added" }
func (OutputItemDoneEvent) EventType() string  { return "response.output_item.done" }
func (FunctionCallArgumentsDeltaEvent) EventType() string {
	return "response.function_call_arguments.delta"
}
func (ConversationItemCreatedEvent) EventType() string { return "conversation.item.created" }
func (e UnknownEvent) EventType() string               { return e.Type }

// wireEvent is the superset JSON shape of every inbound event this client
// understands. Field names differ per event kind; unused fields stay zero.
type wireEvent struct {
	Type       string `json:"type"`
	EventID    string `json:"event_id,omitempty"`
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text,omitempty"`
	ItemID     string `json:"item_id,omitempty"`
	CallID     string `json:"call_id,omitempty"`
	ResponseID string `json:"response_id,omitempty"`

	Response *struct {
		ID string `json:"id"`
	} `json:"response,omitempty"`

	Item *struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		CallID    string `json:"call_id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"item,omitempty"`

	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// DecodeEvent parses a raw control-channel message into a typed Event.
// Messages whose type is not modeled decode to UnknownEvent; only malformed
// JSON returns an error.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("realtime: decode event: %w", err)
	}

	switch w.Type {
	case "error":
		evt := ErrorEvent{Message: "unknown error"}
		if w.Error != nil {
			evt.Code = w.Error.Code
			if w.Error.Message != "" {
				evt.Message = w.Error.Message
			}
		}
		return evt, nil

	case "session.created":
		return SessionCreatedEvent{}, nil

	case "session.updated":
		return SessionUpdatedEvent{}, nil

	case "input_audio_buffer.speech_started":
		return SpeechStartedEvent{}, nil

	case "input_audio_buffer.speech_stopped":
		return SpeechStoppedEvent{}, nil

	case "response.created":
		evt := ResponseCreatedEvent{}
		if w.Response != nil {
			evt.ResponseID = w.Response.ID
		}
		return evt, nil

	case "response.done":
		evt := ResponseDoneEvent{ResponseID: w.ResponseID}
		if evt.ResponseID == "" && w.Response != nil {
			evt.ResponseID = w.Response.ID
		}
		return evt, nil

	case "response.audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(w.Delta)
		if err != nil {
			return nil, fmt.Errorf("realtime: audio delta: %w", err)
		}
		return AudioDeltaEvent{ResponseID: w.ResponseID, PCM: pcm}, nil

	case "response.audio_transcript.delta":
		return AudioTranscriptDeltaEvent{ResponseID: w.ResponseID, Delta: w.Delta}, nil

	case "response.audio_transcript.done":
		return AudioTranscriptDoneEvent{ResponseID: w.ResponseID, Transcript: w.Transcript}, nil

	case "response.text.delta":
		return TextDeltaEvent{ResponseID: w.ResponseID, Delta: w.Delta}, nil

	case "response.text.done":
		return TextDoneEvent{ResponseID: w.ResponseID, Text: w.Text}, nil

	case "conversation.item.input_audio_transcription.delta",
		"input_audio_transcription.delta":
		return InputTranscriptionDeltaEvent{ItemID: w.ItemID, Delta: w.Delta}, nil

	case "conversation.item.input_audio_transcription.completed",
		"input_audio_transcription.completed":
		return InputTranscriptionCompletedEvent{ItemID: w.ItemID, Transcript: w.Transcript}, nil

	case "response.output_item.added":
		return OutputItemAddedEvent{ResponseID: w.ResponseID, Item: decodeItem(w)}, nil

	case "response.output_item.done":
		return OutputItemDoneEvent{ResponseID: w.ResponseID, Item: decodeItem(w)}, nil

	case "response.function_call_arguments.delta":
		return FunctionCallArgumentsDeltaEvent{CallID: w.CallID, Delta: w.Delta}, nil

	case "conversation.item.created":
		evt := ConversationItemCreatedEvent{ItemID: w.ItemID}
		if evt.ItemID == "" && w.Item != nil {
			evt.ItemID = w.Item.ID
		}
		return evt, nil

	default:
		return UnknownEvent{Type: w.Type, Raw: json.RawMessage(data)}, nil
	}
}

func decodeItem(w wireEvent) OutputItem {
	if w.Item == nil {
		return OutputItem{}
	}
	return OutputItem{
		Type:      w.Item.Type,
		ID:        w.Item.ID,
		CallID:    w.Item.CallID,
		Name:      w.Item.Name,
		Arguments: w.Item.Arguments,
	}
}
