// Package realtime implements the event-classification state machine for an
// upstream realtime speech session.
//
// A [Router] consumes one raw protocol event at a time, reconstructs
// higher-level entities from partially-ordered deltas (transcripts, tool-call
// argument streams, usage reports) and surfaces them through a [Callbacks]
// table. Routing is strictly synchronous: events must be processed in the
// order the transport delivers them, so Route never blocks on I/O.
//
// Unknown event types never fail routing. The upstream protocol grows over
// time; anything unrecognised falls through to a best-effort heuristic that
// tries to salvage transcript text from a handful of well-known field names
// and is otherwise dropped with a debug log line.
package realtime

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MrWong99/aurelay/pkg/usage"
)

// Server event types recognised by the router. The set is closed but
// evolving; see [Router.Route] for the fallback behaviour on anything else.
const (
	TypeSessionCreated = "session.created"

	TypeResponseTextDelta        = "response.text.delta"
	TypeResponseTextDone         = "response.text.done"
	TypeResponseTranscriptDelta  = "response.audio_transcript.delta"
	TypeResponseTranscriptDone   = "response.audio_transcript.done"
	TypeResponseAudioDelta       = "response.audio.delta"
	TypeResponseDone             = "response.done"
	TypeResponseCompleted        = "response.completed"
	TypeResponseError            = "error"
	TypeFunctionCallArgsDelta    = "response.function_call_arguments.delta"
	TypeFunctionCallArgsDone     = "response.function_call_arguments.done"
	TypeSpeechStarted            = "input_audio_buffer.speech_started"
	TypeSpeechStopped            = "input_audio_buffer.speech_stopped"
	TypeInputAudioCommitted      = "input_audio_buffer.committed"
	TypeItemCreated              = "conversation.item.created"
	TypeItemCompleted            = "conversation.item.completed"
	TypeInputTranscriptionDelta  = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionDone   = "conversation.item.input_audio_transcription.completed"
)

// Client event types sent back upstream.
const (
	TypeConversationItemCreate = "conversation.item.create"
	TypeResponseCreate         = "response.create"
)

// Event is one raw protocol event as delivered by the transport. Only the
// fields relevant to the handled type are populated; everything else is left
// zero. Events are ephemeral and must not be retained after routing.
type Event struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	// Streaming payloads: transcript/text/argument deltas share the field.
	Delta string `json:"delta,omitempty"`

	// Terminal payloads.
	Transcript string `json:"transcript,omitempty"`
	Text       string `json:"text,omitempty"`

	// Function call argument streams.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	ItemID    string `json:"item_id,omitempty"`

	Session  *SessionPayload  `json:"session,omitempty"`
	Item     *ItemPayload     `json:"item,omitempty"`
	Response *ResponsePayload `json:"response,omitempty"`
	Usage    *usage.Report    `json:"usage,omitempty"`
	Error    *ErrorDetail     `json:"error,omitempty"`

	// Heuristic-only candidate fields for unknown event types.
	Content json.RawMessage `json:"content,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// ParseEvent decodes a raw wire frame into an Event. Unknown fields are
// ignored; only a structurally invalid frame (not a JSON object) errors.
func ParseEvent(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("realtime: decode event: %w", err)
	}
	return &evt, nil
}

// SessionPayload is the nested session object on a session.created event.
// The upstream-assigned ID is opaque.
type SessionPayload struct {
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
	Voice string `json:"voice,omitempty"`
}

// ItemPayload is the nested conversation item on conversation.item.* events.
// Items double as an alternate delivery path for transcripts and tool calls.
type ItemPayload struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type,omitempty"`
	Role      string        `json:"role,omitempty"`
	Status    string        `json:"status,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`

	// Formatted carries pre-rendered text on completed assistant items.
	Formatted *FormattedPayload `json:"formatted,omitempty"`
}

// ContentPart is one element of an item's content array.
type ContentPart struct {
	Type       string `json:"type,omitempty"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// FormattedPayload holds pre-rendered item content.
type FormattedPayload struct {
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// text returns the first non-empty textual content of the item, checking the
// formatted payload first and then the content parts.
func (it *ItemPayload) text() string {
	if it.Formatted != nil {
		if it.Formatted.Text != "" {
			return it.Formatted.Text
		}
		if it.Formatted.Transcript != "" {
			return it.Formatted.Transcript
		}
	}
	for _, part := range it.Content {
		if part.Text != "" {
			return part.Text
		}
		if part.Transcript != "" {
			return part.Transcript
		}
	}
	return ""
}

// ResponsePayload is the nested response object on response.done /
// response.completed events.
type ResponsePayload struct {
	ID     string        `json:"id,omitempty"`
	Status string        `json:"status,omitempty"`
	Usage  *usage.Report `json:"usage,omitempty"`
}

// ErrorDetail is the nested error object on an error event.
type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Role identifies the speaker of a transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptKind distinguishes in-progress from terminal transcripts.
type TranscriptKind string

const (
	// KindPartial marks an in-progress utterance, superseded by later
	// partials or a final.
	KindPartial TranscriptKind = "partial"

	// KindFinal marks a terminal transcript. Finals are immutable once
	// emitted and are the unit of persistence.
	KindFinal TranscriptKind = "final"
)

// Transcript is one reconstructed utterance.
type Transcript struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Kind      TranscriptKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
}

// ToolCall is a completed tool invocation request from the model, with its
// argument stream fully accumulated and parsed.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewID produces a random 16-byte hex identifier for locally-created
// entities (transcripts, synthesized call IDs, client session correlation).
func NewID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is broken;
		// fall back to a timestamp so callers still get a usable ID.
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
