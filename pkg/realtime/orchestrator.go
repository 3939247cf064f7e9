// Package realtime runs realtime voice sessions against the OpenAI Realtime
// API: it opens the peer connection, reacts to provider events, keeps the
// status projection current and forwards finalized turns to persistence.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haivivi/giztalk/pkg/account"
	openairealtime "github.com/haivivi/giztalk/pkg/openai-realtime"
	"github.com/haivivi/giztalk/pkg/projection"
	"github.com/haivivi/giztalk/pkg/styles"
)

const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultAckTimeout     = 5 * time.Second
	defaultFlushTimeout   = 5 * time.Second
)

// OpenRequest describes the session to open.
type OpenRequest struct {
	// ConversationID receives the persisted turns. Empty disables
	// persistence.
	ConversationID string

	StyleID       string
	Profile       account.Profile
	PreviousTurns []styles.Turn
}

// Options configures an Orchestrator. Credentials, Capture and Dialer are
// required.
type Options struct {
	Credentials CredentialIssuer
	Capture     CaptureSource
	Dialer      Dialer

	// Playback is optional; without it assistant audio is not consumed
	// locally.
	Playback PlaybackSink

	// Recognizer is optional.
	Recognizer RecognizerFactory

	// Turns persists finalized turns. Optional.
	Turns TurnAppender

	// Projection defaults to a new store.
	Projection *projection.Store

	// Prompt builds the session instructions. Defaults to styles.Instructions.
	Prompt func(OpenRequest) string

	// OnError is called at most once per session with a user-facing message
	// and the cause.
	OnError func(sess *Session, message string, err error)

	// OnUsage is called for every completed model response, on its own
	// goroutine.
	OnUsage func(sess *Session, usage ResponseDone)

	ConnectTimeout time.Duration
	AckTimeout     time.Duration

	Logger *slog.Logger
}

// Orchestrator opens and drives realtime sessions.
type Orchestrator struct {
	opts   Options
	proj   *projection.Store
	logger *slog.Logger
}

// New returns an Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Projection == nil {
		opts.Projection = projection.New()
	}
	if opts.Prompt == nil {
		opts.Prompt = func(req OpenRequest) string {
			return styles.Instructions(req.StyleID, req.Profile, req.PreviousTurns)
		}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, proj: opts.Projection, logger: logger}
}

// Projection returns the store this orchestrator writes to.
func (o *Orchestrator) Projection() *projection.Store {
	return o.proj
}

// NewSession returns a session that can be passed to Start and, from any
// goroutine, to Close.
func (o *Orchestrator) NewSession(conversationID string) *Session {
	return newSession(conversationID)
}

// Open creates a session and starts it. On failure nothing stays acquired.
func (o *Orchestrator) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	sess := o.NewSession(req.ConversationID)
	if err := o.Start(ctx, sess, req); err != nil {
		return nil, err
	}
	return sess, nil
}

// Start opens sess. It returns once the control channel is open, or with a
// *SetupError naming the step that failed. Close may be called concurrently
// to abort.
func (o *Orchestrator) Start(ctx context.Context, sess *Session, req OpenRequest) error {
	if sess == nil || sess.opened == nil || sess.setupFailed == nil || sess.stop == nil {
		return ErrInvalidSession
	}
	log := o.logger.With("session_id", sess.id)

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return ErrClosed
	}
	if sess.started {
		sess.mu.Unlock()
		return ErrAlreadyStarted
	}
	sess.started = true
	if o.opts.Turns != nil {
		sess.bridge = newTurnBridge(o.opts.Turns, sess.conversationID, log)
	}
	o.proj.Update(func(st *projection.State) {
		*st = projection.State{}
		st.SetStatus(projection.StatusConnecting)
	})
	sess.status = projection.StatusConnecting
	sess.mu.Unlock()
	o.debug("info", "connecting, style="+req.StyleID)

	ctx, cancel := context.WithTimeout(ctx, o.opts.ConnectTimeout)
	defer cancel()
	go func() {
		select {
		case <-sess.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	instructions := o.opts.Prompt(req)
	secret, err := o.opts.Credentials.IssueClientSecret(ctx, instructions)
	if err != nil {
		return o.failSetup(sess, StageCredential, err)
	}

	capture, err := o.opts.Capture.Acquire(ctx)
	if err != nil {
		return o.failSetup(sess, StageMedia, err)
	}
	if !o.attach(sess, func(h *handles) { h.capture = capture }) {
		o.releaseStep(log, "capture", capture.Stop)
		return ErrClosed
	}

	var playback Playback
	if o.opts.Playback != nil {
		playback, err = o.opts.Playback.Open(ctx, sess.id)
		if err != nil {
			return o.failSetup(sess, StageMedia, err)
		}
		if !o.attach(sess, func(h *handles) { h.playback = playback }) {
			o.releaseStep(log, "playback", playback.Close)
			return ErrClosed
		}
	}

	transport, err := o.opts.Dialer.Dial(ctx, DialRequest{
		SessionID: sess.id,
		Secret:    secret,
		Capture:   capture,
		Playback:  playback,
		Emit:      func(ev Event) { o.HandleEvent(sess, ev) },
	})
	if err != nil {
		return o.failSetup(sess, StageNegotiation, err)
	}
	if !o.attach(sess, func(h *handles) { h.transport = transport }) {
		o.releaseStep(log, "channel", transport.CloseChannel)
		o.releaseStep(log, "peer", transport.Close)
		return ErrClosed
	}

	select {
	case <-sess.opened:
	case err := <-sess.setupFailed:
		return o.failSetup(sess, StageChannel, err)
	case <-sess.stop:
		return ErrClosed
	case <-ctx.Done():
		return o.failSetup(sess, StageChannel, fmt.Errorf("control channel did not open: %w", ctx.Err()))
	}

	if o.opts.Recognizer != nil {
		rec, err := o.opts.Recognizer.Start(ctx, func(ev Event) { o.HandleEvent(sess, ev) })
		if err != nil {
			log.Warn("recognizer unavailable", "error", err)
		} else if !o.attach(sess, func(h *handles) { h.recognizer = rec }) {
			o.releaseStep(log, "recognizer", rec.Stop)
			return ErrClosed
		}
	}

	log.Info("realtime session open", "conversation_id", sess.conversationID, "style", req.StyleID)
	return nil
}

// attach registers a resource unless the session was closed meanwhile.
func (o *Orchestrator) attach(sess *Session, fn func(*handles)) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return false
	}
	fn(&sess.handles)
	return true
}

func (o *Orchestrator) failSetup(sess *Session, stage Stage, err error) error {
	se := &SetupError{Stage: stage, Err: err}
	o.release(sess)

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return ErrClosed
	}
	report := o.markTerminal(sess, se.Message())
	sess.mu.Unlock()

	o.logger.Error("realtime session setup failed", "session_id", sess.id, "stage", string(stage), "error", err)
	if report && o.opts.OnError != nil {
		o.opts.OnError(sess, se.Message(), se)
	}
	return se
}

// markTerminal moves sess to the error state. It reports whether the error
// callback is still owed. Callers hold sess.mu.
func (o *Orchestrator) markTerminal(sess *Session, message string) bool {
	if sess.terminal {
		return false
	}
	sess.terminal = true
	sess.status = projection.StatusError
	o.proj.Update(func(st *projection.State) {
		st.SetStatus(projection.StatusError)
		st.ErrorMessage = message
	})
	o.debug("error", message)
	if sess.errorReported {
		return false
	}
	sess.errorReported = true
	return true
}

// SendText sends a typed user message: the turn is persisted, the item is
// created with a client-chosen id, and a response is requested once the
// provider acknowledges that id.
func (o *Orchestrator) SendText(ctx context.Context, sess *Session, text string) error {
	if sess == nil {
		return ErrChannelNotReady
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	sess.mu.Lock()
	tr := sess.handles.transport
	if sess.closed || sess.terminal || tr == nil || !tr.ChannelOpen() {
		sess.mu.Unlock()
		return ErrChannelNotReady
	}
	itemID := openairealtime.NewItemID()
	ack := make(chan struct{})
	if sess.acks == nil {
		sess.acks = make(map[string]chan struct{})
	}
	sess.acks[itemID] = ack
	o.proj.Update(func(st *projection.State) {
		st.AppendMessage(projection.RoleUser, text, false)
	})
	sess.bridge.append(projection.RoleUser, text)
	sess.mu.Unlock()

	defer func() {
		sess.mu.Lock()
		delete(sess.acks, itemID)
		sess.mu.Unlock()
	}()

	if err := tr.Send(openairealtime.NewUserTextItem(itemID, text)); err != nil {
		return fmt.Errorf("realtime: send item: %w", err)
	}

	timer := time.NewTimer(o.opts.AckTimeout)
	defer timer.Stop()
	select {
	case <-ack:
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-sess.stop:
		return ErrClosed
	}

	if err := tr.Send(openairealtime.NewResponseCreate()); err != nil {
		return fmt.Errorf("realtime: request response: %w", err)
	}
	return nil
}

// Close tears sess down. It is safe on nil, never-opened, partially opened
// and already closed sessions, and never fails: every release step is
// attempted and its error logged.
func (o *Orchestrator) Close(sess *Session) {
	if sess == nil {
		return
	}
	sess.mu.Lock()
	active := sess.started && !sess.closed
	sess.closed = true
	sess.mu.Unlock()
	if !active {
		return
	}

	o.release(sess)

	sess.mu.Lock()
	sess.status = projection.StatusDisconnected
	sess.streaming = false
	o.proj.Update(func(st *projection.State) {
		st.SetStatus(projection.StatusDisconnected)
		st.CurrentUserInput = ""
		st.CurrentAssistantResponse = ""
		for i := range st.Messages {
			st.Messages[i].Streaming = false
		}
	})
	sess.mu.Unlock()
	o.debug("info", "disconnected")
	o.logger.Info("realtime session closed", "session_id", sess.id)
}

// release frees every acquired resource exactly once and flushes pending
// turns.
func (o *Orchestrator) release(sess *Session) {
	sess.mu.Lock()
	h := sess.handles
	sess.handles = handles{}
	bridge := sess.bridge
	sess.mu.Unlock()

	sess.signalStop()
	log := o.logger.With("session_id", sess.id)

	if h.recognizer != nil {
		o.releaseStep(log, "recognizer", h.recognizer.Stop)
	}
	if h.transport != nil {
		o.releaseStep(log, "channel", h.transport.CloseChannel)
		o.releaseStep(log, "peer", h.transport.Close)
	}
	if h.capture != nil {
		o.releaseStep(log, "capture", h.capture.Stop)
	}
	if h.playback != nil && !h.playback.Closed() {
		o.releaseStep(log, "playback", h.playback.Close)
	}
	bridge.close(defaultFlushTimeout)
}

func (o *Orchestrator) releaseStep(log *slog.Logger, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("release panicked", "resource", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		log.Warn("release failed", "resource", name, "error", err)
	}
}

// HandleEvent applies ev to sess. Events for closed or failed sessions are
// dropped.
func (o *Orchestrator) HandleEvent(sess *Session, ev Event) {
	if sess == nil || ev == nil {
		return
	}

	sess.mu.Lock()
	if sess.closed || sess.terminal {
		sess.mu.Unlock()
		return
	}
	fx := o.apply(sess, ev)
	sess.mu.Unlock()

	if fx.usage != nil && o.opts.OnUsage != nil {
		go o.opts.OnUsage(sess, *fx.usage)
	}
	if fx.fatal != nil {
		o.logger.Error("realtime session failed", "session_id", sess.id, "error", fx.fatal)
		sess.signalSetupFailed(fx.fatal)
		o.release(sess)
		if fx.report && o.opts.OnError != nil {
			o.opts.OnError(sess, fx.message, fx.fatal)
		}
	}
	if fx.teardown {
		o.release(sess)
	}
}

// effects are the parts of handling an event that run outside the session
// lock.
type effects struct {
	usage    *ResponseDone
	fatal    error
	message  string
	report   bool
	teardown bool
}

func (o *Orchestrator) apply(sess *Session, ev Event) effects {
	var fx effects
	log := o.logger.With("session_id", sess.id)

	fail := func(message string, err error) {
		fx.fatal = err
		fx.message = message
		fx.report = o.markTerminal(sess, message)
	}

	switch e := ev.(type) {
	case SessionReady:
		if e.SessionID != "" {
			sess.providerID = e.SessionID
		}
		o.setStatus(sess, projection.StatusConnected)

	case ChannelOpened:
		sess.channelOpen = true
		sess.signalOpened()
		if sess.status == projection.StatusConnecting {
			o.setStatus(sess, projection.StatusConnected)
		}

	case AssistantDelta:
		if sess.assistant.superseded(e.ItemID) && !sess.assistant.isFinished(e.ItemID) {
			log.Debug("assistant item superseded", "item_id", sess.assistant.itemID, "next", e.ItemID)
			o.abandonAssistant(sess)
		}
		text, ok := sess.assistant.append(e.Family, e.ItemID, e.Text)
		if !ok {
			log.Debug("assistant delta dropped", "family", e.Family.String(), "item_id", e.ItemID)
			return fx
		}
		sess.transcript.WriteString(e.Text)
		o.proj.Update(func(st *projection.State) {
			st.CurrentAssistantResponse = text
			if sess.streaming && sess.streamIdx < len(st.Messages) {
				st.Messages[sess.streamIdx].Content = text
				return
			}
			sess.streamIdx = st.AppendMessage(projection.RoleAssistant, text, true)
			sess.streaming = true
		})

	case AssistantDone:
		text := sess.assistant.finish(e.Family, e.ItemID)
		if strings.TrimSpace(text) == "" {
			return fx
		}
		sess.transcript.WriteString("\n")
		sess.bridge.append(projection.RoleAssistant, text)
		o.proj.Update(func(st *projection.State) {
			st.CurrentAssistantResponse = ""
			if sess.streaming && sess.streamIdx < len(st.Messages) {
				st.Messages[sess.streamIdx].Content = text
				st.Messages[sess.streamIdx].Streaming = false
			} else {
				st.AppendMessage(projection.RoleAssistant, text, false)
			}
		})
		sess.streaming = false
		o.debug("info", "assistant: "+text)

	case AssistantAudioDone:
		o.setStatus(sess, projection.StatusUserTurn)

	case UserDelta:
		text := sess.user.append(e.Text)
		o.proj.Update(func(st *projection.State) { st.CurrentUserInput = text })

	case UserDone:
		text := sess.user.finish(e.Transcript)
		changed := false
		o.proj.Update(func(st *projection.State) {
			st.CurrentUserInput = ""
			if text != "" {
				st.AppendMessage(projection.RoleUser, text, false)
				changed = o.transition(sess, st, projection.StatusAssistantTurn)
			}
		})
		if text == "" {
			return fx
		}
		sess.bridge.append(projection.RoleUser, text)
		if changed {
			o.debug("debug", "status: "+string(projection.StatusAssistantTurn))
		}
		o.debug("info", "user: "+text)

	case LocalTranscript:
		o.proj.Update(func(st *projection.State) {
			if e.Final {
				st.CurrentUserInput = ""
			} else {
				st.CurrentUserInput = e.Text
			}
		})

	case ItemAcknowledged:
		if ch, ok := sess.acks[e.ItemID]; ok {
			close(ch)
			delete(sess.acks, e.ItemID)
		}

	case ResponseDone:
		if sess.assistant.active {
			log.Debug("assistant item left open at response end", "item_id", sess.assistant.itemID)
			o.abandonAssistant(sess)
		}
		fx.usage = &e

	case ProviderError:
		fail(e.Message, fmt.Errorf("provider error: %s", e.Message))

	case MalformedMessage:
		fail("잘못된 메시지를 받았습니다", fmt.Errorf("malformed message: %w", e.Err))

	case ChannelFailed:
		if !sess.channelOpen {
			sess.signalSetupFailed(e.Err)
			return fx
		}
		fail("연결 오류가 발생했습니다", fmt.Errorf("control channel: %w", e.Err))

	case ChannelClosed:
		if !sess.channelOpen {
			sess.signalSetupFailed(errors.New("control channel closed"))
			return fx
		}
		o.setStatus(sess, projection.StatusDisconnected)
		sess.channelOpen = false
		fx.teardown = true

	case TransportChanged:
		switch e.State {
		case TransportFailed:
			if !sess.channelOpen {
				sess.signalSetupFailed(errors.New("peer connection failed"))
				return fx
			}
			fail("연결이 끊어졌습니다", errors.New("peer connection failed"))
		case TransportClosed:
			if !sess.channelOpen {
				sess.signalSetupFailed(errors.New("peer connection closed"))
				return fx
			}
			o.setStatus(sess, projection.StatusDisconnected)
			fx.teardown = true
		default:
			log.Debug("transport state", "state", string(e.State))
		}

	case Ignored:
		log.Debug("event ignored", "type", e.Type)

	default:
		log.Warn("event not handled", "error", errUnknownVariant, "event", fmt.Sprintf("%T", ev))
	}
	return fx
}

func (o *Orchestrator) setStatus(sess *Session, st projection.Status) {
	if sess.status == st {
		return
	}
	o.proj.Update(func(s *projection.State) { o.transition(sess, s, st) })
	o.debug("debug", "status: "+string(st))
}

// transition moves sess and s to st within a single projection update. It
// reports whether the status changed.
func (o *Orchestrator) transition(sess *Session, s *projection.State, st projection.Status) bool {
	if sess.status == st {
		return false
	}
	sess.status = st
	s.SetStatus(st)
	return true
}

// abandonAssistant drops the accumulating assistant item without persisting
// it and ends its streaming entry.
func (o *Orchestrator) abandonAssistant(sess *Session) {
	if sess.assistant.current() != "" {
		sess.transcript.WriteString("\n")
	}
	sess.assistant.abandon()
	o.proj.Update(func(st *projection.State) {
		st.CurrentAssistantResponse = ""
		if sess.streaming && sess.streamIdx < len(st.Messages) {
			st.Messages[sess.streamIdx].Streaming = false
		}
	})
	sess.streaming = false
}

func (o *Orchestrator) debug(level, msg string) {
	o.proj.Debug().Add(level, msg)
}
