package realtime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/haivivi/giztalk/pkg/projection"
)

// Session is one realtime voice session. All mutation goes through the
// Orchestrator, which serializes it on the session mutex.
//
// Sessions come from NewSession or Orchestrator.Open. Start rejects a zero
// Session; Close on one is a no-op.
type Session struct {
	id             string
	conversationID string

	mu sync.Mutex

	started  bool
	closed   bool
	terminal bool

	status        projection.Status
	providerID    string
	channelOpen   bool
	errorReported bool

	transcript strings.Builder
	user       userUtterance
	assistant  assistantUtterance

	// streamIdx is the projection index of the assistant message being
	// streamed, valid while streaming is true.
	streaming bool
	streamIdx int

	acks map[string]chan struct{}

	handles handles
	bridge  *turnBridge

	opened      chan struct{}
	openedOnce  sync.Once
	setupFailed chan error
	stop        chan struct{}
	stopOnce    sync.Once
}

// handles are the resources a session owns. Each is released at most once
// because release swaps them out under the session lock.
type handles struct {
	recognizer Recognizer
	transport  Transport
	capture    Capture
	playback   Playback
}

func newSession(conversationID string) *Session {
	return &Session{
		id:             uuid.NewString(),
		conversationID: conversationID,
		status:         projection.StatusDisconnected,
		acks:           make(map[string]chan struct{}),
		opened:         make(chan struct{}),
		setupFailed:    make(chan error, 1),
		stop:           make(chan struct{}),
	}
}

// ID is the local session id.
func (s *Session) ID() string {
	return s.id
}

// ConversationID is the conversation turns are persisted to.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// ProviderSessionID is the id reported by the provider, once known.
func (s *Session) ProviderSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.providerID
}

// Status returns the current status.
func (s *Session) Status() projection.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == "" {
		return projection.StatusDisconnected
	}
	return s.status
}

// Transcript returns all finalized and in-progress assistant text, one
// utterance per line.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

func (s *Session) signalOpened() {
	if s.opened == nil {
		return
	}
	s.openedOnce.Do(func() { close(s.opened) })
}

func (s *Session) signalSetupFailed(err error) {
	if s.setupFailed == nil {
		return
	}
	select {
	case s.setupFailed <- err:
	default:
	}
}

func (s *Session) signalStop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
}
