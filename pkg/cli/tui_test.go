package cli

import (
	"strings"
	"testing"

	"github.com/haivivi/giztalk/pkg/projection"
)

func TestTranscript(t *testing.T) {
	tr := NewTranscript(NewStyles(DefaultTheme))

	lines := tr.Update(projection.State{Status: projection.StatusConnecting})
	if len(lines) != 1 || !strings.Contains(lines[0], "연결 중") {
		t.Fatalf("connecting = %q", lines)
	}
	if lines := tr.Update(projection.State{Status: projection.StatusConnecting}); len(lines) != 0 {
		t.Errorf("unchanged state printed %q", lines)
	}

	st := projection.State{
		Status: projection.StatusAssistantTurn,
		Messages: []projection.Message{
			{Role: projection.RoleUser, Content: "안녕"},
			{Role: projection.RoleAssistant, Content: "안녕하", Streaming: true},
		},
	}
	lines = tr.Update(st)
	if len(lines) != 2 || !strings.Contains(lines[0], "응답 중") || !strings.Contains(lines[1], "안녕") {
		t.Fatalf("first turn = %q", lines)
	}

	st.Messages[1] = projection.Message{Role: projection.RoleAssistant, Content: "안녕하세요!"}
	st.Messages = append(st.Messages, projection.Message{Role: projection.RoleUser, Content: "", Streaming: false})
	lines = tr.Update(st)
	if len(lines) != 1 || !strings.Contains(lines[0], "AI") || !strings.Contains(lines[0], "안녕하세요!") {
		t.Fatalf("completed turn = %q", lines)
	}

	st.Status = projection.StatusError
	st.ErrorMessage = "연결이 끊어졌습니다"
	lines = tr.Update(st)
	if len(lines) != 2 || !strings.Contains(lines[1], "연결이 끊어졌습니다") {
		t.Fatalf("error = %q", lines)
	}
	if lines := tr.Update(st); len(lines) != 0 {
		t.Errorf("error repeated: %q", lines)
	}

	// A reset store starts the transcript over.
	lines = tr.Update(projection.State{Status: projection.StatusError, Messages: []projection.Message{{Role: projection.RoleUser, Content: "다시"}}})
	if len(lines) != 1 || !strings.Contains(lines[0], "다시") {
		t.Errorf("after reset = %q", lines)
	}
}

func TestStatusLabel(t *testing.T) {
	if StatusLabel(projection.StatusUserTurn) != "듣는 중" {
		t.Error("user turn label")
	}
	if StatusLabel("weird") != "weird" {
		t.Error("unknown status should pass through")
	}
}

func TestStylesTable(t *testing.T) {
	out := NewStyles(DefaultTheme).Table([]string{"ID", "이름"}, [][]string{{"counseling", "상담"}})
	for _, want := range []string{"ID", "counseling", "상담"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
