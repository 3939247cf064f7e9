package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/haivivi/giztalk/pkg/projection"
)

type fakeCreds struct {
	secret       string
	err          error
	instructions string

	// block makes IssueClientSecret wait for ctx.
	block bool
}

func (f *fakeCreds) IssueClientSecret(ctx context.Context, instructions string) (string, error) {
	f.instructions = instructions
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.secret, f.err
}

type fakeCapture struct {
	mu    sync.Mutex
	stops int
}

func (f *fakeCapture) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeCapture) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeCaptureSource struct {
	capture *fakeCapture
	err     error
}

func (f *fakeCaptureSource) Acquire(ctx context.Context) (Capture, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.capture, nil
}

type fakePlayback struct {
	mu     sync.Mutex
	closes int
}

func (f *fakePlayback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakePlayback) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes > 0
}

func (f *fakePlayback) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakePlaybackSink struct {
	playback *fakePlayback
}

func (f *fakePlaybackSink) Open(ctx context.Context, sessionID string) (Playback, error) {
	return f.playback, nil
}

type fakeTransport struct {
	mu         sync.Mutex
	open       bool
	sent       []map[string]any
	chanCloses int
	peerCloses int
	onSend     func(msg map[string]any)
}

func (f *fakeTransport) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return ErrChannelNotReady
	}
	f.sent = append(f.sent, msg)
	hook := f.onSend
	f.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return nil
}

func (f *fakeTransport) ChannelOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) CloseChannel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chanCloses++
	f.open = false
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peerCloses++
	return nil
}

func (f *fakeTransport) sentTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, m := range f.sent {
		types = append(types, m["type"].(string))
	}
	return types
}

func (f *fakeTransport) closes() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chanCloses, f.peerCloses
}

// fakeDialer returns its transport and, when openChannel is set, reports the
// control channel open before returning.
type fakeDialer struct {
	transport   *fakeTransport
	err         error
	openChannel bool
	onDial      func(req DialRequest)
}

func (f *fakeDialer) Dial(ctx context.Context, req DialRequest) (Transport, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.openChannel {
		f.transport.mu.Lock()
		f.transport.open = true
		f.transport.mu.Unlock()
		req.Emit(ChannelOpened{})
	}
	if f.onDial != nil {
		f.onDial(req)
	}
	return f.transport, nil
}

type turn struct {
	conversationID, role, content string
}

type fakeAppender struct {
	mu    sync.Mutex
	turns []turn
	err   error
}

func (f *fakeAppender) AppendTurn(ctx context.Context, conversationID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, turn{conversationID, role, content})
	return f.err
}

func (f *fakeAppender) all() []turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turn(nil), f.turns...)
}

type errorReport struct {
	message string
	err     error
}

// harness wires an Orchestrator to fakes.
type harness struct {
	o         *Orchestrator
	creds     *fakeCreds
	capture   *fakeCapture
	captures  *fakeCaptureSource
	playback  *fakePlayback
	transport *fakeTransport
	dialer    *fakeDialer
	turns     *fakeAppender
	proj      *projection.Store

	mu     sync.Mutex
	errors []errorReport
}

func newHarness(t *testing.T, tweak func(*Options)) *harness {
	t.Helper()
	h := &harness{
		creds:     &fakeCreds{secret: "ek_test"},
		capture:   &fakeCapture{},
		playback:  &fakePlayback{},
		transport: &fakeTransport{},
		turns:     &fakeAppender{},
		proj:      projection.New(),
	}
	h.captures = &fakeCaptureSource{capture: h.capture}
	h.dialer = &fakeDialer{transport: h.transport, openChannel: true}
	opts := Options{
		Credentials: h.creds,
		Capture:     h.captures,
		Dialer:      h.dialer,
		Playback:    &fakePlaybackSink{playback: h.playback},
		Turns:       h.turns,
		Projection:  h.proj,
		OnError: func(sess *Session, message string, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.errors = append(h.errors, errorReport{message, err})
		},
	}
	if tweak != nil {
		tweak(&opts)
	}
	h.o = New(opts)
	return h
}

func (h *harness) reported() []errorReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]errorReport(nil), h.errors...)
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	sess, err := h.o.Open(context.Background(), OpenRequest{ConversationID: "conv-1", StyleID: "casualConversation"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return sess
}

// feed decodes raw provider messages and applies them in order.
func (h *harness) feed(t *testing.T, sess *Session, raws ...string) {
	t.Helper()
	for _, raw := range raws {
		ev, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		h.o.HandleEvent(sess, ev)
	}
}
