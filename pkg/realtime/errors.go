package realtime

import (
	"errors"
	"fmt"

	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
)

var (
	// ErrChannelNotReady is returned by SendText when the control channel
	// is not open. Nothing is transmitted or persisted.
	ErrChannelNotReady = openairealtime.ErrChannelNotReady

	// ErrClosed is returned when the session was closed.
	ErrClosed = errors.New("realtime: session closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("realtime: session already started")

	// ErrAckTimeout is returned when the provider never acknowledged a sent
	// conversation item.
	ErrAckTimeout = errors.New("realtime: item acknowledgment timed out")

	// ErrEmptyText is returned by SendText for blank input.
	ErrEmptyText = errors.New("realtime: empty text")

	// ErrInvalidSession is returned by Start for a session that was not
	// created by NewSession or Open.
	ErrInvalidSession = errors.New("realtime: invalid session")
)

// Stage is the setup step that failed.
type Stage string

const (
	StageCredential  Stage = "credential"
	StageMedia       Stage = "media"
	StageNegotiation Stage = "negotiation"
	StageChannel     Stage = "channel"
)

// SetupError is a fatal failure while opening a session. Partially acquired
// resources are already released when it is returned.
type SetupError struct {
	Stage Stage
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("realtime: %s setup failed: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Message is the text shown to the user.
func (e *SetupError) Message() string {
	switch e.Stage {
	case StageCredential:
		return "세션 인증에 실패했습니다: " + e.Err.Error()
	case StageMedia:
		return "마이크를 사용할 수 없습니다: " + e.Err.Error()
	case StageNegotiation:
		return "음성 연결을 설정하지 못했습니다: " + e.Err.Error()
	default:
		return "연결이 열리지 않았습니다: " + e.Err.Error()
	}
}
