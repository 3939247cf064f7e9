package realtime

import "context"

// CredentialIssuer mints a short-lived client secret for a session with the
// given instructions.
type CredentialIssuer interface {
	IssueClientSecret(ctx context.Context, instructions string) (string, error)
}

// Capture is an acquired local audio input.
type Capture interface {
	Stop() error
}

// CaptureSource acquires local audio input.
type CaptureSource interface {
	Acquire(ctx context.Context) (Capture, error)
}

// Playback consumes the assistant's audio.
type Playback interface {
	Close() error
	Closed() bool
}

// PlaybackSink opens a playback for one session.
type PlaybackSink interface {
	Open(ctx context.Context, sessionID string) (Playback, error)
}

// Recognizer is an optional local speech recognizer.
type Recognizer interface {
	Stop() error
}

// RecognizerFactory starts a recognizer that reports results through emit,
// normally as LocalTranscript events.
type RecognizerFactory interface {
	Start(ctx context.Context, emit func(Event)) (Recognizer, error)
}

// Transport is an established connection to the provider.
type Transport interface {
	// Send encodes v as JSON and sends it on the control channel.
	Send(v any) error
	ChannelOpen() bool
	CloseChannel() error
	Close() error
}

// DialRequest is what a Dialer needs to connect one session.
type DialRequest struct {
	SessionID string
	Secret    string
	Capture   Capture
	Playback  Playback

	// Emit receives every decoded message and lifecycle change. It may be
	// called from any goroutine, before Dial returns.
	Emit func(Event)
}

// Dialer connects to the provider.
type Dialer interface {
	Dial(ctx context.Context, req DialRequest) (Transport, error)
}
