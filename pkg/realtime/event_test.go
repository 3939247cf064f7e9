package realtime

import (
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		raw  string
		want Event
	}{
		{`{"type":"session.created","session":{"id":"s1"}}`, SessionReady{SessionID: "s1"}},
		{`{"type":"session.updated"}`, SessionReady{}},
		{`{"type":"response.output_text.delta","item_id":"i","delta":"a"}`, AssistantDelta{Family: FamilyText, ItemID: "i", Text: "a"}},
		{`{"type":"response.text.delta","item_id":"i","delta":"a"}`, AssistantDelta{Family: FamilyText, ItemID: "i", Text: "a"}},
		{`{"type":"response.output_audio_transcript.delta","delta":"b"}`, AssistantDelta{Family: FamilyAudioTranscript, Text: "b"}},
		{`{"type":"response.audio_transcript.delta","delta":"b"}`, AssistantDelta{Family: FamilyAudioTranscript, Text: "b"}},
		{`{"type":"response.output_text.done","text":"ab"}`, AssistantDone{Family: FamilyText, Text: "ab"}},
		{`{"type":"response.audio_transcript.done","transcript":"ab"}`, AssistantDone{Family: FamilyAudioTranscript, Text: "ab"}},
		{`{"type":"response.output_audio.done"}`, AssistantAudioDone{}},
		{`{"type":"response.audio.done"}`, AssistantAudioDone{}},
		{`{"type":"conversation.item.input_audio_transcription.delta","item_id":"u","delta":"오"}`, UserDelta{ItemID: "u", Text: "오"}},
		{`{"type":"conversation.item.input_audio_transcription.completed","item_id":"u","transcript":"오늘"}`, UserDone{ItemID: "u", Transcript: "오늘"}},
		{`{"type":"conversation.item.created","item":{"id":"item_1"}}`, ItemAcknowledged{ItemID: "item_1"}},
		{`{"type":"conversation.item.added","item":{"id":"item_2"}}`, ItemAcknowledged{ItemID: "item_2"}},
		{`{"type":"response.done","response":{"id":"r","usage":{"input_tokens":3,"output_tokens":4}}}`, ResponseDone{ResponseID: "r", InputTokens: 3, OutputTokens: 4}},
		{`{"type":"error","error":{"code":"c","message":"m"}}`, ProviderError{Code: "c", Message: "m"}},
		{`{"type":"session.error","error":"rate limited"}`, ProviderError{Message: "rate limited"}},
		{`{"type":"session.error"}`, ProviderError{Message: "unknown provider error"}},
		{`{"type":"session.closed"}`, ChannelClosed{}},
		{`{"type":"rate_limits.updated"}`, Ignored{Type: "rate_limits.updated"}},
		{`{"type":"input_audio_buffer.speech_started"}`, Ignored{Type: "input_audio_buffer.speech_started"}},
	}
	for _, tt := range tests {
		got, err := Decode([]byte(tt.raw))
		if err != nil {
			t.Errorf("Decode(%s): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Decode(%s) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Error("Decode accepted truncated JSON")
	}
}

func TestAssistantUtterance(t *testing.T) {
	var a assistantUtterance

	if text, ok := a.append(FamilyText, "x", "안"); !ok || text != "안" {
		t.Fatalf("append = %q, %v", text, ok)
	}
	if _, ok := a.append(FamilyAudioTranscript, "x", "안"); ok {
		t.Error("other family delta accepted")
	}
	if text, _ := a.append(FamilyText, "x", "녕"); text != "안녕" {
		t.Errorf("accumulated = %q", text)
	}
	if got := a.finish(FamilyAudioTranscript, "x"); got != "" {
		t.Errorf("finish by other family = %q", got)
	}
	if got := a.finish(FamilyText, "x"); got != "안녕" {
		t.Errorf("finish = %q", got)
	}
	if got := a.finish(FamilyText, "x"); got != "" {
		t.Errorf("second finish = %q", got)
	}
	if _, ok := a.append(FamilyAudioTranscript, "x", "late"); ok {
		t.Error("delta for finished item accepted")
	}

	// A new utterance may use the other family.
	if text, ok := a.append(FamilyAudioTranscript, "y", "다음"); !ok || text != "다음" {
		t.Errorf("next utterance = %q, %v", text, ok)
	}
	if a.current() != "다음" {
		t.Errorf("current = %q", a.current())
	}

	// A delta for a new item ends the previous one without returning it.
	a.reset()
	a.append(FamilyAudioTranscript, "a", "첫")
	if text, ok := a.append(FamilyAudioTranscript, "b", "둘"); !ok || text != "둘" {
		t.Errorf("append for new item = %q, %v", text, ok)
	}
	if got := a.finish(FamilyAudioTranscript, "a"); got != "" {
		t.Errorf("finish of replaced item = %q", got)
	}
	if got := a.finish(FamilyAudioTranscript, "b"); got != "둘" {
		t.Errorf("finish = %q, want 둘", got)
	}
	if _, ok := a.append(FamilyAudioTranscript, "a", "늦음"); ok {
		t.Error("delta for replaced item accepted")
	}
}

func TestUserUtterance(t *testing.T) {
	var u userUtterance
	u.append("오늘 ")
	u.append("날씨")
	if got := u.finish(""); got != "오늘 날씨" {
		t.Errorf("finish from deltas = %q", got)
	}
	u.append("partial")
	if got := u.finish("오늘 날씨 어때"); got != "오늘 날씨 어때" {
		t.Errorf("finish with transcript = %q", got)
	}
	if got := u.finish(""); got != "" {
		t.Errorf("finish empty = %q", got)
	}
}
