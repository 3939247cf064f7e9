package conversation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/realtime"
	"github.com/haivivi/giztalk/pkg/store/badgerstore"
)

var _ realtime.TurnAppender = (*conversation.Service)(nil)

func newService(t *testing.T) *conversation.Service {
	t.Helper()
	s, err := badgerstore.Open(badgerstore.Options{InMemory: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return conversation.NewService(s, nil)
}

func TestOwnership(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c, err := svc.Create(ctx, "alice", conversation.CreateRequest{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if c.SessionID != "sess-1" {
		t.Errorf("session id = %q", c.SessionID)
	}

	if _, err := svc.AppendItem(ctx, "bob", c.ID, conversation.RoleUser, "hi"); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("AppendItem by other user = %v", err)
	}
	if _, err := svc.Finalize(ctx, "bob", c.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Finalize by other user = %v", err)
	}
	if err := svc.Delete(ctx, "bob", c.ID); !errors.Is(err, conversation.ErrNotFound) {
		t.Errorf("Delete by other user = %v", err)
	}

	it, err := svc.AppendItem(ctx, "alice", c.ID, conversation.RoleUser, "안녕하세요")
	if err != nil {
		t.Fatal(err)
	}
	if it.Sequence != 1 || it.ID == "" {
		t.Errorf("item = %+v", it)
	}

	renamed, err := svc.Rename(ctx, "alice", c.ID, "  인사  ")
	if err != nil {
		t.Fatal(err)
	}
	if renamed.Title != "인사" {
		t.Errorf("title = %q", renamed.Title)
	}
}

func TestAppendValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	c, _ := svc.Create(ctx, "alice", conversation.CreateRequest{})

	for _, tc := range []struct{ role, content string }{
		{"", "x"},
		{"system", "x"},
		{conversation.RoleUser, "   "},
	} {
		if err := svc.AppendTurn(ctx, c.ID, tc.role, tc.content); !errors.Is(err, conversation.ErrInvalidItem) {
			t.Errorf("AppendTurn(%q, %q) = %v", tc.role, tc.content, err)
		}
	}
	if err := svc.AppendTurn(ctx, "", conversation.RoleUser, "x"); !errors.Is(err, conversation.ErrInvalidItem) {
		t.Errorf("AppendTurn without conversation = %v", err)
	}
}

func TestSave(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, _, err := svc.Save(ctx, "alice", conversation.SaveRequest{}); !errors.Is(err, conversation.ErrInvalidItem) {
		t.Fatalf("Save without messages = %v", err)
	}

	id, n, err := svc.Save(ctx, "alice", conversation.SaveRequest{Messages: []conversation.Message{
		{Role: "user", Content: "질문"},
		{Role: "tool", Content: "dropped"},
		{Role: "assistant", Content: "답변"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("saved %d items, want 2", n)
	}
	c, items, err := svc.Items(ctx, "alice", id)
	if err != nil {
		t.Fatal(err)
	}
	if c.Status != conversation.StatusCompleted || c.Title == "" || c.EndedAt == nil {
		t.Errorf("conversation = %+v", c)
	}
	if len(items) != 2 || items[1].Content != "답변" || items[1].Sequence != 2 {
		t.Errorf("items = %+v", items)
	}

	// Saving into an existing conversation appends and completes it.
	active, _ := svc.Create(ctx, "alice", conversation.CreateRequest{})
	if _, _, err := svc.Save(ctx, "alice", conversation.SaveRequest{
		ConversationID: active.ID,
		Title:          "새 제목",
		Messages:       []conversation.Message{{Role: "user", Content: "a"}},
	}); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.Get(ctx, "alice", active.ID)
	if got.Status != conversation.StatusCompleted || got.Title != "새 제목" {
		t.Errorf("updated = %+v", got)
	}
}
