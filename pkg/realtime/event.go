package realtime

import (
	"errors"

	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
)

// Event is something that happened to a session: a provider message, a
// transport lifecycle change, or a local recognizer result. The set of
// variants is closed; only this package implements Event.
type Event interface {
	event()
}

// Family tells which provider event family produced assistant text.
type Family int

const (
	FamilyText Family = iota
	FamilyAudioTranscript
)

func (f Family) String() string {
	if f == FamilyAudioTranscript {
		return "audio_transcript"
	}
	return "text"
}

// SessionReady is session.created or session.updated.
type SessionReady struct {
	SessionID string
}

// AssistantDelta is a fragment of assistant output.
type AssistantDelta struct {
	Family Family
	ItemID string
	Text   string
}

// AssistantDone ends an assistant utterance. Text is the provider's final
// text; the accumulated deltas are what gets persisted.
type AssistantDone struct {
	Family Family
	ItemID string
	Text   string
}

// AssistantAudioDone means assistant audio playback finished.
type AssistantAudioDone struct{}

// UserDelta is a fragment of the user's speech transcription.
type UserDelta struct {
	ItemID string
	Text   string
}

// UserDone is the completed transcription of one user utterance.
type UserDone struct {
	ItemID     string
	Transcript string
}

// ItemAcknowledged is the provider confirming a conversation item exists.
type ItemAcknowledged struct {
	ItemID string
}

// ResponseDone carries token usage for one model response.
type ResponseDone struct {
	ResponseID   string
	InputTokens  int
	OutputTokens int
}

// ProviderError is a provider-signaled session error.
type ProviderError struct {
	Code    string
	Message string
}

// MalformedMessage is a control channel message that could not be decoded.
type MalformedMessage struct {
	Err error
}

// ChannelOpened means the control channel opened.
type ChannelOpened struct{}

// ChannelClosed means the control channel closed.
type ChannelClosed struct{}

// ChannelFailed means the control channel reported an error.
type ChannelFailed struct {
	Err error
}

// TransportState is the peer connection state.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// TransportChanged is a peer connection state change.
type TransportChanged struct {
	State TransportState
}

// LocalTranscript is a result from the optional on-device recognizer. It
// only previews the user's speech; provider transcription stays
// authoritative.
type LocalTranscript struct {
	Text  string
	Final bool
}

// Ignored is any provider message the orchestrator does not react to.
type Ignored struct {
	Type string
}

func (SessionReady) event()       {}
func (AssistantDelta) event()     {}
func (AssistantDone) event()      {}
func (AssistantAudioDone) event() {}
func (UserDelta) event()          {}
func (UserDone) event()           {}
func (ItemAcknowledged) event()   {}
func (ResponseDone) event()       {}
func (ProviderError) event()      {}
func (MalformedMessage) event()   {}
func (ChannelOpened) event()      {}
func (ChannelClosed) event()      {}
func (ChannelFailed) event()      {}
func (TransportChanged) event()   {}
func (LocalTranscript) event()    {}
func (Ignored) event()            {}

// Decode maps one control channel message to an Event. Both the GA and the
// beta event names decode to the same variants.
func Decode(data []byte) (Event, error) {
	ev, err := openairealtime.ParseServerEvent(data)
	if err != nil {
		return nil, err
	}
	return FromServerEvent(ev), nil
}

// FromServerEvent maps a parsed provider event to an Event.
func FromServerEvent(ev *openairealtime.ServerEvent) Event {
	switch ev.Type {
	case openairealtime.EventTypeSessionCreated, openairealtime.EventTypeSessionUpdated:
		var id string
		if ev.Session != nil {
			id = ev.Session.ID
		}
		return SessionReady{SessionID: id}

	case openairealtime.EventTypeResponseOutputTextDelta, openairealtime.EventTypeResponseTextDelta:
		return AssistantDelta{Family: FamilyText, ItemID: ev.ItemID, Text: ev.Delta}
	case openairealtime.EventTypeResponseOutputAudioTranscriptDelta, openairealtime.EventTypeResponseAudioTranscriptDelta:
		return AssistantDelta{Family: FamilyAudioTranscript, ItemID: ev.ItemID, Text: ev.Delta}
	case openairealtime.EventTypeResponseOutputTextDone, openairealtime.EventTypeResponseTextDone:
		return AssistantDone{Family: FamilyText, ItemID: ev.ItemID, Text: ev.Text}
	case openairealtime.EventTypeResponseOutputAudioTranscriptDone, openairealtime.EventTypeResponseAudioTranscriptDone:
		return AssistantDone{Family: FamilyAudioTranscript, ItemID: ev.ItemID, Text: ev.Transcript}
	case openairealtime.EventTypeResponseOutputAudioDone, openairealtime.EventTypeResponseAudioDone:
		return AssistantAudioDone{}

	case openairealtime.EventTypeInputAudioTranscriptionDelta:
		return UserDelta{ItemID: ev.ItemID, Text: ev.Delta}
	case openairealtime.EventTypeInputAudioTranscriptionCompleted:
		return UserDone{ItemID: ev.ItemID, Transcript: ev.Transcript}

	case openairealtime.EventTypeConversationItemCreated, openairealtime.EventTypeConversationItemAdded:
		id := ev.ItemID
		if ev.Item != nil && ev.Item.ID != "" {
			id = ev.Item.ID
		}
		return ItemAcknowledged{ItemID: id}

	case openairealtime.EventTypeResponseDone:
		rd := ResponseDone{}
		if ev.Response != nil {
			rd.ResponseID = ev.Response.ID
			if u := ev.Response.Usage; u != nil {
				rd.InputTokens, rd.OutputTokens = u.InputTokens, u.OutputTokens
			}
		}
		return rd

	case openairealtime.EventTypeSessionClosed:
		return ChannelClosed{}

	case openairealtime.EventTypeError, openairealtime.EventTypeSessionError:
		pe := ProviderError{Message: "unknown provider error"}
		if ev.Error != nil {
			pe.Code = ev.Error.Code
			if ev.Error.Message != "" {
				pe.Message = ev.Error.Message
			}
		}
		return pe
	}
	return Ignored{Type: ev.Type}
}

var errUnknownVariant = errors.New("realtime: unknown event variant")
