package realtime

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/giztalk/pkg/projection"
)

func TestAssistantDeltasPersistOneTurn(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess,
		`{"type":"session.created","session":{"id":"sess_1"}}`,
		`{"type":"response.output_audio_transcript.delta","item_id":"item_a","delta":"안"}`,
		`{"type":"response.output_audio_transcript.delta","item_id":"item_a","delta":"녕"}`,
	)

	st := h.proj.Snapshot()
	if st.CurrentAssistantResponse != "안녕" {
		t.Errorf("CurrentAssistantResponse = %q, want 안녕", st.CurrentAssistantResponse)
	}
	if n := len(st.Messages); n != 1 || !st.Messages[0].Streaming {
		t.Fatalf("messages while streaming = %+v", st.Messages)
	}

	h.feed(t, sess, `{"type":"response.output_audio_transcript.done","item_id":"item_a","transcript":"안녕"}`)

	st = h.proj.Snapshot()
	last := st.Messages[len(st.Messages)-1]
	if last.Role != projection.RoleAssistant || last.Content != "안녕" || last.Streaming {
		t.Errorf("last message = %+v", last)
	}
	if st.CurrentAssistantResponse != "" {
		t.Errorf("CurrentAssistantResponse = %q, want empty", st.CurrentAssistantResponse)
	}
	if sess.ProviderSessionID() != "sess_1" {
		t.Errorf("ProviderSessionID = %q", sess.ProviderSessionID())
	}

	h.o.Close(sess)
	turns := h.turns.all()
	if len(turns) != 1 {
		t.Fatalf("persisted %d turns, want 1: %+v", len(turns), turns)
	}
	if turns[0] != (turn{"conv-1", "assistant", "안녕"}) {
		t.Errorf("turn = %+v", turns[0])
	}
}

func TestBothFamiliesPersistOnce(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess,
		`{"type":"response.audio_transcript.delta","item_id":"item_b","delta":"Hello"}`,
		`{"type":"response.text.delta","item_id":"item_b","delta":"Hello"}`,
		`{"type":"response.audio_transcript.done","item_id":"item_b","transcript":"Hello"}`,
		`{"type":"response.text.done","item_id":"item_b","text":"Hello"}`,
	)
	h.o.Close(sess)

	turns := h.turns.all()
	if len(turns) != 1 || turns[0].content != "Hello" {
		t.Fatalf("turns = %+v, want one Hello", turns)
	}
	if got := sess.Transcript(); got != "Hello\n" {
		t.Errorf("Transcript = %q", got)
	}
}

func TestEmptyDonePersistsNothing(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess,
		`{"type":"response.output_text.done","item_id":"item_c","text":"ignored"}`,
		`{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_d","transcript":"  "}`,
	)
	h.o.Close(sess)

	if turns := h.turns.all(); len(turns) != 0 {
		t.Errorf("persisted %+v, want nothing", turns)
	}
	for _, m := range h.proj.Snapshot().Messages {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestUserTranscription(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess, `{"type":"conversation.item.input_audio_transcription.delta","item_id":"item_u","delta":"오늘"}`)
	if got := h.proj.Snapshot().CurrentUserInput; got != "오늘" {
		t.Errorf("CurrentUserInput = %q", got)
	}

	h.feed(t, sess, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_u","transcript":"오늘 날씨 어때"}`)

	st := h.proj.Snapshot()
	if st.Status != projection.StatusAssistantTurn || !st.IsSpeaking {
		t.Errorf("status = %q speaking=%v", st.Status, st.IsSpeaking)
	}
	if st.CurrentUserInput != "" {
		t.Errorf("CurrentUserInput = %q, want empty", st.CurrentUserInput)
	}
	found := false
	for _, m := range st.Messages {
		if m.Role == projection.RoleUser && m.Content == "오늘 날씨 어때" {
			found = true
		}
	}
	if !found {
		t.Errorf("user message missing: %+v", st.Messages)
	}

	h.feed(t, sess, `{"type":"response.output_audio.done"}`)
	if got := h.proj.Snapshot().Status; got != projection.StatusUserTurn {
		t.Errorf("after audio done status = %q, want user_turn", got)
	}

	h.o.Close(sess)
	turns := h.turns.all()
	if len(turns) != 1 || turns[0] != (turn{"conv-1", "user", "오늘 날씨 어때"}) {
		t.Errorf("turns = %+v", turns)
	}
}

func TestUserMessagePublishedWithTurnStatus(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)
	defer h.o.Close(sess)

	updates, cancel := h.proj.Subscribe(64)
	h.feed(t, sess, `{"type":"conversation.item.input_audio_transcription.completed","item_id":"item_u","transcript":"안녕하세요"}`)
	cancel()

	seen := false
	for st := range updates {
		for _, m := range st.Messages {
			if m.Role != projection.RoleUser || m.Content != "안녕하세요" {
				continue
			}
			seen = true
			if st.Status != projection.StatusAssistantTurn || !st.IsSpeaking {
				t.Errorf("snapshot has user message with status %q speaking=%v", st.Status, st.IsSpeaking)
			}
		}
	}
	if !seen {
		t.Fatal("no snapshot carried the user message")
	}
}

func TestNewItemReplacesUnfinishedItem(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess,
		`{"type":"response.output_audio_transcript.delta","item_id":"item_a","delta":"첫"}`,
		`{"type":"response.output_audio_transcript.delta","item_id":"item_b","delta":"둘"}`,
	)
	st := h.proj.Snapshot()
	if st.CurrentAssistantResponse != "둘" {
		t.Errorf("CurrentAssistantResponse = %q, want 둘", st.CurrentAssistantResponse)
	}
	if n := len(st.Messages); n != 2 || st.Messages[0].Streaming || !st.Messages[1].Streaming {
		t.Fatalf("messages = %+v", st.Messages)
	}

	h.feed(t, sess,
		`{"type":"response.output_audio_transcript.done","item_id":"item_b","transcript":"둘"}`,
		`{"type":"response.output_audio_transcript.done","item_id":"item_a","transcript":"첫"}`,
	)
	h.o.Close(sess)
	turns := h.turns.all()
	if len(turns) != 1 || turns[0] != (turn{"conv-1", "assistant", "둘"}) {
		t.Errorf("turns = %+v", turns)
	}
	if got := sess.Transcript(); got != "첫\n둘\n" {
		t.Errorf("transcript = %q", got)
	}
}

func TestResponseDoneEndsOpenItem(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)
	defer h.o.Close(sess)

	h.feed(t, sess,
		`{"type":"response.output_text.delta","item_id":"item_a","delta":"중간"}`,
		`{"type":"response.done","response":{"id":"resp_1"}}`,
		`{"type":"response.output_text.delta","item_id":"item_b","delta":"새"}`,
	)
	st := h.proj.Snapshot()
	if st.CurrentAssistantResponse != "새" {
		t.Errorf("CurrentAssistantResponse = %q, want 새", st.CurrentAssistantResponse)
	}
	if n := len(st.Messages); n != 2 || st.Messages[0].Streaming {
		t.Errorf("messages = %+v", st.Messages)
	}
}

func TestProviderErrorReportedOnce(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess,
		`{"type":"session.error","error":"rate limited"}`,
		`{"type":"error","error":{"message":"second"}}`,
	)

	st := h.proj.Snapshot()
	if st.Status != projection.StatusError || st.ErrorMessage != "rate limited" {
		t.Errorf("status = %q message = %q", st.Status, st.ErrorMessage)
	}
	reports := h.reported()
	if len(reports) != 1 || reports[0].message != "rate limited" {
		t.Fatalf("reports = %+v", reports)
	}

	h.o.Close(sess)
	h.o.Close(sess)
	if ch, pc := h.transport.closes(); ch != 1 || pc != 1 {
		t.Errorf("transport closes = %d/%d, want 1/1", ch, pc)
	}
	if n := h.capture.count(); n != 1 {
		t.Errorf("capture stops = %d, want 1", n)
	}
	if n := h.playback.count(); n != 1 {
		t.Errorf("playback closes = %d, want 1", n)
	}
	if got := h.proj.Snapshot().Status; got != projection.StatusDisconnected {
		t.Errorf("status after close = %q", got)
	}
}

func TestCloseNeverOpened(t *testing.T) {
	h := newHarness(t, nil)
	before := h.proj.Version()

	h.o.Close(nil)
	h.o.Close(&Session{})
	sess := h.o.NewSession("conv-1")
	h.o.Close(sess)
	h.o.Close(sess)

	if v := h.proj.Version(); v != before {
		t.Errorf("projection changed: version %d -> %d", before, v)
	}
	if err := h.o.Start(context.Background(), sess, OpenRequest{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

func TestDoubleCloseReleasesOnce(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.o.Close(sess)
	h.o.Close(sess)

	if ch, pc := h.transport.closes(); ch != 1 || pc != 1 {
		t.Errorf("transport closes = %d/%d, want 1/1", ch, pc)
	}
	if n := h.capture.count(); n != 1 {
		t.Errorf("capture stops = %d", n)
	}
	if n := h.playback.count(); n != 1 {
		t.Errorf("playback closes = %d", n)
	}
	st := h.proj.Snapshot()
	if st.Status != projection.StatusDisconnected || st.IsConnected {
		t.Errorf("after close: %+v", st)
	}
	if sess.Status() != projection.StatusDisconnected {
		t.Errorf("session status = %q", sess.Status())
	}
}

func TestClosedPlaybackNotClosedAgain(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)
	h.playback.Close()

	h.o.Close(sess)
	if n := h.playback.count(); n != 1 {
		t.Errorf("playback closes = %d, want 1", n)
	}
}

func TestChannelClosedDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.o.HandleEvent(sess, ChannelClosed{})
	if got := h.proj.Snapshot().Status; got != projection.StatusDisconnected {
		t.Errorf("status = %q", got)
	}
	if _, pc := h.transport.closes(); pc != 1 {
		t.Errorf("peer closes = %d, want 1", pc)
	}
	if len(h.reported()) != 0 {
		t.Error("closing channel reported an error")
	}
	h.o.Close(sess)
}

func TestSessionClosedDisconnects(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.feed(t, sess, `{"type":"session.closed"}`)
	if got := h.proj.Snapshot().Status; got != projection.StatusDisconnected {
		t.Errorf("status = %q, want disconnected", got)
	}
	if _, pc := h.transport.closes(); pc != 1 {
		t.Errorf("peer closes = %d, want 1", pc)
	}
	if len(h.reported()) != 0 {
		t.Error("closed session reported an error")
	}
	h.o.Close(sess)
}

func TestTransportFailedIsTerminal(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.o.HandleEvent(sess, TransportChanged{State: TransportDisconnected})
	if got := h.proj.Snapshot().Status; got == projection.StatusError {
		t.Fatal("transient disconnect treated as fatal")
	}
	h.o.HandleEvent(sess, TransportChanged{State: TransportFailed})
	if got := h.proj.Snapshot().Status; got != projection.StatusError {
		t.Errorf("status = %q, want error", got)
	}
	if len(h.reported()) != 1 {
		t.Errorf("reports = %+v", h.reported())
	}
	h.o.Close(sess)
}

func TestMalformedMessageIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.o.HandleEvent(sess, MalformedMessage{Err: errors.New("bad json")})
	if got := h.proj.Snapshot().Status; got != projection.StatusError {
		t.Errorf("status = %q, want error", got)
	}
	h.o.Close(sess)
}

func TestSendTextNotReady(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.ConnectTimeout = 50 * time.Millisecond })
	h.dialer.openChannel = false

	sess := h.o.NewSession("conv-1")
	if err := h.o.SendText(context.Background(), sess, "hello"); !errors.Is(err, ErrChannelNotReady) {
		t.Errorf("SendText before open = %v", err)
	}
	if err := h.o.SendText(context.Background(), nil, "hello"); !errors.Is(err, ErrChannelNotReady) {
		t.Errorf("SendText(nil) = %v", err)
	}
	if types := h.transport.sentTypes(); len(types) != 0 {
		t.Errorf("sent %v", types)
	}
	h.o.Close(sess)
	if turns := h.turns.all(); len(turns) != 0 {
		t.Errorf("persisted %+v", turns)
	}
}

func TestSendTextWaitsForAck(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)

	h.transport.onSend = func(msg map[string]any) {
		if msg["type"] != "conversation.item.create" {
			return
		}
		item := msg["item"].(map[string]any)
		id := item["id"].(string)
		go func() {
			time.Sleep(10 * time.Millisecond)
			h.o.HandleEvent(sess, ItemAcknowledged{ItemID: "someone_else"})
			h.o.HandleEvent(sess, ItemAcknowledged{ItemID: id})
		}()
	}

	if err := h.o.SendText(context.Background(), sess, " 안녕하세요 "); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	types := h.transport.sentTypes()
	if strings.Join(types, ",") != "conversation.item.create,response.create" {
		t.Errorf("sent = %v", types)
	}

	st := h.proj.Snapshot()
	if last := st.Messages[len(st.Messages)-1]; last.Role != projection.RoleUser || last.Content != "안녕하세요" {
		t.Errorf("last message = %+v", last)
	}
	h.o.Close(sess)
	if turns := h.turns.all(); len(turns) != 1 || turns[0].content != "안녕하세요" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestSendTextAckTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.AckTimeout = 20 * time.Millisecond })
	sess := h.open(t)
	defer h.o.Close(sess)

	if err := h.o.SendText(context.Background(), sess, "hi"); !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("SendText = %v, want ErrAckTimeout", err)
	}
	if types := h.transport.sentTypes(); len(types) != 1 {
		t.Errorf("sent = %v, want only the item", types)
	}
}

func TestSendTextEmpty(t *testing.T) {
	h := newHarness(t, nil)
	sess := h.open(t)
	defer h.o.Close(sess)
	if err := h.o.SendText(context.Background(), sess, "  "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("SendText blank = %v", err)
	}
}

func TestSetupFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		stage Stage
	}{
		{"credential", func(h *harness) { h.creds.err = errors.New("401") }, StageCredential},
		{"media", func(h *harness) { h.captures.err = errors.New("permission denied") }, StageMedia},
		{"negotiation", func(h *harness) { h.dialer.err = errors.New("sdp rejected") }, StageNegotiation},
		{"channel", func(h *harness) { h.dialer.openChannel = false }, StageChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(o *Options) { o.ConnectTimeout = 50 * time.Millisecond })
			tt.setup(h)

			sess, err := h.o.Open(context.Background(), OpenRequest{ConversationID: "conv-1"})
			if sess != nil {
				t.Error("Open returned a session on failure")
			}
			var se *SetupError
			if !errors.As(err, &se) || se.Stage != tt.stage {
				t.Fatalf("err = %v, want stage %s", err, tt.stage)
			}
			if n := len(h.reported()); n != 1 {
				t.Errorf("reported %d errors, want 1", n)
			}
			if got := h.proj.Snapshot().Status; got != projection.StatusError {
				t.Errorf("status = %q, want error", got)
			}

			// Whatever was acquired got released exactly once.
			if tt.stage == StageNegotiation || tt.stage == StageChannel {
				if n := h.capture.count(); n != 1 {
					t.Errorf("capture stops = %d, want 1", n)
				}
				if n := h.playback.count(); n != 1 {
					t.Errorf("playback closes = %d, want 1", n)
				}
			}
			if tt.stage == StageChannel {
				if _, pc := h.transport.closes(); pc != 1 {
					t.Errorf("peer closes = %d, want 1", pc)
				}
			}
			if tt.stage == StageCredential && h.capture.count() != 0 {
				t.Error("capture acquired after credential failure")
			}
		})
	}
}

func TestSetupChannelClosedBeforeOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.openChannel = false
	sess := h.o.NewSession("conv-1")

	h.dialer.onDial = func(req DialRequest) {
		go func() {
			time.Sleep(10 * time.Millisecond)
			req.Emit(ChannelClosed{})
		}()
	}
	err := h.o.Start(context.Background(), sess, OpenRequest{})
	var se *SetupError
	if !errors.As(err, &se) || se.Stage != StageChannel {
		t.Fatalf("err = %v, want channel setup error", err)
	}
}

func TestCloseDuringSetup(t *testing.T) {
	h := newHarness(t, nil)
	h.dialer.openChannel = false
	sess := h.o.NewSession("conv-1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.o.Close(sess)
	}()
	if err := h.o.Start(context.Background(), sess, OpenRequest{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Start = %v, want ErrClosed", err)
	}
	if _, pc := h.transport.closes(); pc != 1 {
		t.Errorf("peer closes = %d, want 1", pc)
	}
	if len(h.reported()) != 0 {
		t.Error("abort reported as error")
	}
}

func TestCloseCancelsPendingSetup(t *testing.T) {
	h := newHarness(t, nil)
	h.creds.block = true
	sess := h.o.NewSession("conv-1")

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.o.Close(sess)
	}()
	done := make(chan error, 1)
	go func() { done <- h.o.Start(context.Background(), sess, OpenRequest{}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Start = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start still waiting for credentials after Close")
	}
	if len(h.reported()) != 0 {
		t.Error("abort reported as error")
	}
}

func TestStartRejectsZeroSession(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.o.Start(context.Background(), &Session{}, OpenRequest{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Start = %v, want ErrInvalidSession", err)
	}
	if err := h.o.Start(context.Background(), nil, OpenRequest{}); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("Start(nil) = %v, want ErrInvalidSession", err)
	}
	h.o.Close(&Session{})
}

func TestInstructionsFromStyle(t *testing.T) {
	h := newHarness(t, nil)
	sess, err := h.o.Open(context.Background(), OpenRequest{StyleID: "counseling"})
	if err != nil {
		t.Fatal(err)
	}
	defer h.o.Close(sess)
	if !strings.Contains(h.creds.instructions, "counselor") {
		t.Errorf("instructions = %.80q", h.creds.instructions)
	}
}

func TestUsageCallback(t *testing.T) {
	usage := make(chan ResponseDone, 1)
	h := newHarness(t, func(o *Options) {
		o.OnUsage = func(sess *Session, u ResponseDone) { usage <- u }
	})
	sess := h.open(t)
	defer h.o.Close(sess)

	h.feed(t, sess, `{"type":"response.done","response":{"id":"resp_1","usage":{"input_tokens":120,"output_tokens":80}}}`)
	select {
	case got := <-usage:
		if got.InputTokens != 120 || got.OutputTokens != 80 || got.ResponseID != "resp_1" {
			t.Errorf("usage = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("usage callback not called")
	}
}

func TestSlowUsageCallbackDoesNotBlockEvents(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	h := newHarness(t, func(o *Options) {
		o.OnUsage = func(sess *Session, u ResponseDone) { <-release }
	})
	sess := h.open(t)
	defer h.o.Close(sess)

	handled := make(chan struct{})
	go func() {
		defer close(handled)
		h.o.HandleEvent(sess, ResponseDone{ResponseID: "resp_1"})
		h.o.HandleEvent(sess, AssistantDelta{Family: FamilyText, ItemID: "item_n", Text: "다음"})
	}()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("event handling blocked on the usage callback")
	}
	if got := h.proj.Snapshot().CurrentAssistantResponse; got != "다음" {
		t.Errorf("CurrentAssistantResponse = %q, want 다음", got)
	}
}

func TestNoConversationIDSkipsPersistence(t *testing.T) {
	h := newHarness(t, nil)
	sess, err := h.o.Open(context.Background(), OpenRequest{})
	if err != nil {
		t.Fatal(err)
	}
	h.feed(t, sess,
		`{"type":"response.output_text.delta","delta":"x"}`,
		`{"type":"response.output_text.done","text":"x"}`,
	)
	h.o.Close(sess)
	if turns := h.turns.all(); len(turns) != 0 {
		t.Errorf("persisted %+v without conversation id", turns)
	}
}
