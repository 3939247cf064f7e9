package openairealtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Client event types (sent from client to server).
const (
	EventTypeSessionUpdate = "session.update"

	EventTypeInputAudioBufferClear = "input_audio_buffer.clear"

	EventTypeConversationItemCreate = "conversation.item.create"
	EventTypeConversationItemDelete = "conversation.item.delete"

	EventTypeResponseCreate = "response.create"
	EventTypeResponseCancel = "response.cancel"
)

// Server event types (sent from server to client).
//
// The GA API renamed several response events. The beta names are kept
// because some deployments still emit them; callers should treat each pair
// the same way.
const (
	EventTypeError = "error"

	EventTypeSessionCreated = "session.created"
	EventTypeSessionUpdated = "session.updated"

	// EventTypeConversationItemCreated is the beta acknowledgment of a
	// created item; GA sends EventTypeConversationItemAdded.
	EventTypeConversationItemCreated = "conversation.item.created"
	EventTypeConversationItemAdded   = "conversation.item.added"
	EventTypeConversationItemDone    = "conversation.item.done"

	EventTypeInputAudioTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeInputAudioTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"

	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"
	EventTypeInputAudioBufferCommitted     = "input_audio_buffer.committed"

	EventTypeResponseCreated = "response.created"
	EventTypeResponseDone    = "response.done"

	EventTypeResponseOutputTextDelta = "response.output_text.delta"
	EventTypeResponseOutputTextDone  = "response.output_text.done"
	EventTypeResponseTextDelta       = "response.text.delta"
	EventTypeResponseTextDone        = "response.text.done"

	EventTypeResponseOutputAudioTranscriptDelta = "response.output_audio_transcript.delta"
	EventTypeResponseOutputAudioTranscriptDone  = "response.output_audio_transcript.done"
	EventTypeResponseAudioTranscriptDelta       = "response.audio_transcript.delta"
	EventTypeResponseAudioTranscriptDone        = "response.audio_transcript.done"

	EventTypeResponseOutputAudioDone = "response.output_audio.done"
	EventTypeResponseAudioDone       = "response.audio.done"

	EventTypeOutputAudioBufferStarted = "output_audio_buffer.started"
	EventTypeOutputAudioBufferStopped = "output_audio_buffer.stopped"

	EventTypeRateLimitsUpdated = "rate_limits.updated"

	// EventTypeSessionError is not sent by OpenAI; relays and proxies in
	// front of the API use it to report a session-level failure.
	EventTypeSessionError = "session.error"

	// EventTypeSessionClosed is sent by the same relays when they end the
	// session cleanly.
	EventTypeSessionClosed = "session.closed"
)

// ServerEvent represents a server event received from the Realtime API.
type ServerEvent struct {
	// Type is the event type.
	Type string `json:"type"`

	// EventID is the unique identifier for this event.
	EventID string `json:"event_id,omitzero"`

	// Session contains session information (for session.created, session.updated).
	Session *SessionResource `json:"session,omitzero"`

	// Item contains conversation item (for conversation.item.* events).
	Item *ConversationItem `json:"item,omitzero"`

	// ItemID is the ID of the item the event refers to.
	ItemID string `json:"item_id,omitzero"`

	// PreviousItemID is the ID of the preceding item.
	PreviousItemID string `json:"previous_item_id,omitzero"`

	// ResponseID is the response identifier.
	ResponseID string `json:"response_id,omitzero"`

	// Response contains response information (for response.created, response.done).
	Response *ResponseResource `json:"response,omitzero"`

	// Delta contains incremental text (for *.delta events).
	Delta string `json:"delta,omitzero"`

	// Text is the final text (for text done events).
	Text string `json:"text,omitzero"`

	// Transcript is the final transcript (for transcript done events).
	Transcript string `json:"transcript,omitzero"`

	// Error is set on error, session.error and transcription failure events.
	Error *EventError `json:"error,omitzero"`

	// RateLimits contains rate limit information.
	RateLimits []RateLimit `json:"rate_limits,omitzero"`

	// Raw contains the original JSON message.
	Raw []byte `json:"-"`
}

// RateLimit represents rate limit information.
type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// ParseServerEvent decodes one data channel message. A message without a
// type is rejected.
func ParseServerEvent(data []byte) (*ServerEvent, error) {
	var event ServerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("openai-realtime: parse event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("openai-realtime: parse event: missing type")
	}
	event.Raw = data
	return &event, nil
}

// NewItemID returns a client-chosen conversation item id. The API limits ids
// to 32 characters.
func NewItemID() string {
	return "item_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

func newEventID() string {
	return "evt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// NewSessionUpdate builds a session.update event.
func NewSessionUpdate(config *SessionConfig) map[string]any {
	return map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeSessionUpdate,
		"session":  config,
	}
}

// NewUserTextItem builds a conversation.item.create event carrying one user
// text message with the given item id.
func NewUserTextItem(itemID, text string) map[string]any {
	return map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeConversationItemCreate,
		"item": ConversationItem{
			ID:   itemID,
			Type: "message",
			Role: "user",
			Content: []ContentPart{
				{Type: "input_text", Text: text},
			},
		},
	}
}

// NewResponseCreate builds a response.create event.
func NewResponseCreate() map[string]any {
	return map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeResponseCreate,
	}
}

// NewResponseCancel builds a response.cancel event.
func NewResponseCancel() map[string]any {
	return map[string]any{
		"event_id": newEventID(),
		"type":     EventTypeResponseCancel,
	}
}
