package openairealtime

// Models supported by the OpenAI Realtime API.
const (
	ModelGPTRealtime     = "gpt-realtime"
	ModelGPTRealtimeMini = "gpt-realtime-mini"
)

// SessionTypeRealtime is the session type for speech-to-speech sessions.
const SessionTypeRealtime = "realtime"

// Voice options for audio output.
const (
	VoiceAlloy   = "alloy"
	VoiceAsh     = "ash"
	VoiceBallad  = "ballad"
	VoiceCedar   = "cedar"
	VoiceCoral   = "coral"
	VoiceEcho    = "echo"
	VoiceMarin   = "marin"
	VoiceSage    = "sage"
	VoiceShimmer = "shimmer"
	VoiceVerse   = "verse"
)

// Turn detection types.
const (
	TurnDetectionServerVAD   = "server_vad"
	TurnDetectionSemanticVAD = "semantic_vad"
)

// SessionConfig is the session configuration sent when minting a client
// secret or in session.update.
type SessionConfig struct {
	// Type is always SessionTypeRealtime for voice sessions.
	Type string `json:"type"`

	// Model is the model ID.
	Model string `json:"model,omitzero"`

	// Instructions is the system prompt.
	Instructions string `json:"instructions,omitzero"`

	// OutputModalities is ["audio"] or ["text"].
	OutputModalities []string `json:"output_modalities,omitzero"`

	Audio *AudioConfig `json:"audio,omitzero"`

	// MaxOutputTokens is an int or "inf".
	MaxOutputTokens any `json:"max_output_tokens,omitzero"`
}

// AudioConfig configures the audio input and output of a session.
type AudioConfig struct {
	Input  *AudioInput  `json:"input,omitzero"`
	Output *AudioOutput `json:"output,omitzero"`
}

// AudioInput configures microphone-side processing.
type AudioInput struct {
	Transcription *TranscriptionConfig `json:"transcription,omitzero"`
	TurnDetection *TurnDetection       `json:"turn_detection,omitzero"`
}

// AudioOutput configures the assistant voice.
type AudioOutput struct {
	Voice string  `json:"voice,omitzero"`
	Speed float64 `json:"speed,omitzero"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	// Model is the transcription model, e.g. "whisper-1".
	Model string `json:"model,omitzero"`

	// Language is an ISO-639-1 hint such as "ko".
	Language string `json:"language,omitzero"`
}

// TurnDetection configures voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type,omitzero"`
	Threshold         float64 `json:"threshold,omitzero"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitzero"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitzero"`
}

// SessionResource represents the session state returned by the server.
type SessionResource struct {
	ID           string       `json:"id,omitzero"`
	Object       string       `json:"object,omitzero"`
	Type         string       `json:"type,omitzero"`
	Model        string       `json:"model,omitzero"`
	ExpiresAt    int64        `json:"expires_at,omitzero"`
	Instructions string       `json:"instructions,omitzero"`
	Audio        *AudioConfig `json:"audio,omitzero"`
}

// ConversationItem represents an item in the conversation.
type ConversationItem struct {
	ID      string        `json:"id,omitzero"`
	Object  string        `json:"object,omitzero"`
	Type    string        `json:"type,omitzero"` // "message"
	Status  string        `json:"status,omitzero"`
	Role    string        `json:"role,omitzero"` // "user", "assistant", "system"
	Content []ContentPart `json:"content,omitzero"`
}

// ContentPart represents a part of message content.
type ContentPart struct {
	Type       string `json:"type,omitzero"` // "input_text", "input_audio", "output_text", "output_audio"
	Text       string `json:"text,omitzero"`
	Transcript string `json:"transcript,omitzero"`
}

// ResponseResource represents a response from the model.
type ResponseResource struct {
	ID     string             `json:"id,omitzero"`
	Object string             `json:"object,omitzero"`
	Status string             `json:"status,omitzero"` // "in_progress", "completed", "cancelled", "incomplete", "failed"
	Output []ConversationItem `json:"output,omitzero"`
	Usage  *Usage             `json:"usage,omitzero"`
}

// Usage contains token usage information.
type Usage struct {
	TotalTokens  int `json:"total_tokens,omitzero"`
	InputTokens  int `json:"input_tokens,omitzero"`
	OutputTokens int `json:"output_tokens,omitzero"`
}
