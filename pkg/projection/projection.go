// Package projection holds the observable state of a realtime voice session.
//
// The orchestrator is the only writer. Readers take snapshots or subscribe
// to a stream of snapshots; a slow subscriber only ever misses intermediate
// states, never the latest one.
package projection

import (
	"slices"
	"sync"
	"time"
)

// Status is the session status shown to the user.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	// StatusUserTurn means the assistant finished speaking and the user is
	// expected to talk.
	StatusUserTurn Status = "user_turn"
	// StatusAssistantTurn means the user's speech was transcribed and the
	// assistant is about to answer.
	StatusAssistantTurn Status = "assistant_turn"
	StatusError         Status = "error"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the live transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Streaming is true while assistant deltas are still arriving.
	Streaming bool `json:"streaming,omitzero"`
	// Timestamp is unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// State is a snapshot of the projection.
type State struct {
	Status                   Status    `json:"status"`
	IsConnected              bool      `json:"isConnected"`
	IsListening              bool      `json:"isListening"`
	IsSpeaking               bool      `json:"isSpeaking"`
	Messages                 []Message `json:"messages"`
	CurrentUserInput         string    `json:"currentUserInput"`
	CurrentAssistantResponse string    `json:"currentAssistantResponse"`
	ErrorMessage             string    `json:"errorMessage"`
}

// SetStatus sets the status and the flags derived from it.
func (s *State) SetStatus(st Status) {
	s.Status = st
	switch st {
	case StatusConnected, StatusUserTurn:
		s.IsConnected, s.IsListening, s.IsSpeaking = true, true, false
	case StatusAssistantTurn:
		s.IsConnected, s.IsListening, s.IsSpeaking = true, false, true
	case StatusConnecting:
		s.IsConnected, s.IsListening, s.IsSpeaking = false, false, false
		s.ErrorMessage = ""
	default:
		s.IsConnected, s.IsListening, s.IsSpeaking = false, false, false
	}
}

// AppendMessage appends a message stamped with the current time and returns
// its index.
func (s *State) AppendMessage(role, content string, streaming bool) int {
	s.Messages = append(s.Messages, Message{
		Role:      role,
		Content:   content,
		Streaming: streaming,
		Timestamp: time.Now().UnixMilli(),
	})
	return len(s.Messages) - 1
}

func (s State) clone() State {
	s.Messages = slices.Clone(s.Messages)
	return s
}

// Store is the projection store.
type Store struct {
	mu      sync.Mutex
	state   State
	version uint64
	subs    map[int]chan State
	nextSub int

	debug *DebugLog
}

// New returns a store in the disconnected state.
func New() *Store {
	s := &Store{
		subs:  make(map[int]chan State),
		debug: NewDebugLog(DefaultDebugLogSize),
	}
	s.state.SetStatus(StatusDisconnected)
	return s
}

// Update applies fn to the state and notifies subscribers. fn must not call
// back into the store.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.version++
	snap := s.state.clone()
	for _, ch := range s.subs {
		publish(ch, snap)
	}
}

// publish delivers snap, replacing the oldest queued snapshot when the
// subscriber is behind.
func publish(ch chan State, snap State) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Version increases with every Update.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe returns a channel receiving a snapshot after every update,
// starting with the current state. Call cancel to unsubscribe; the channel
// is closed afterwards.
func (s *Store) Subscribe(buffer int) (updates <-chan State, cancel func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.state.clone()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Reset returns the store to the initial disconnected state with no
// messages. Subscribers are notified.
func (s *Store) Reset() {
	s.Update(func(st *State) {
		*st = State{}
		st.SetStatus(StatusDisconnected)
	})
}

// Debug returns the bounded debug log attached to this store.
func (s *Store) Debug() *DebugLog {
	return s.debug
}
