package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/conversation"
)

func newServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body map[string]any)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(account.SessionCookie)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"인증이 필요합니다."}`))
			return
		}
		if u, err := account.DecodeSession(c.Value); err != nil || u.ID != "u1" {
			t.Errorf("session = %+v, %v", u, err)
		}
		body := map[string]any{}
		if r.Body != nil && r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&body)
		}
		handler(w, r, body)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", account.User{ID: "u1", Email: "u1@example.com", Name: "유저"})
}

func TestIssueClientSecret(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if r.URL.Path != "/api/realtime" || body["instructions"] != "한국어로 말하세요" {
			t.Errorf("%s %v", r.URL.Path, body)
		}
		w.Write([]byte(`{"clientSecret":"ek_123"}`))
	})
	secret, err := c.IssueClientSecret(context.Background(), "한국어로 말하세요")
	if err != nil {
		t.Fatal(err)
	}
	if secret != "ek_123" {
		t.Errorf("secret = %q", secret)
	}
}

func TestIssueClientSecretInsufficient(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"크레딧이 부족합니다."}`))
	})
	_, err := c.IssueClientSecret(context.Background(), "x")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusPaymentRequired || apiErr.Message != "크레딧이 부족합니다." {
		t.Fatalf("err = %v", err)
	}
}

func TestConversationCalls(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	c := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/api/conversations/create":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"success":true,"data":{"id":"c1","session_id":"s1","status":"active"}}`))
		case "/api/conversations/save-item":
			if body["conversationId"] != "c1" || body["role"] != "assistant" || body["content"] != "안녕" {
				t.Errorf("save-item body = %v", body)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"success":true,"data":{"id":"i1","conversation_id":"c1","sequence_number":3,"role":"assistant","content":"안녕"}}`))
		case "/api/conversations/finalize":
			w.Write([]byte(`{"success":true}`))
		case "/api/realtime/usage":
			if body["inputTokens"] != float64(1000) {
				t.Errorf("usage body = %v", body)
			}
			w.Write([]byte(`{"newBalance":8,"deducted":2}`))
		case "/api/credits/balance":
			w.Write([]byte(`{"success":true,"credits":8}`))
		}
	})
	ctx := context.Background()

	conv, err := c.CreateConversation(ctx, conversation.CreateRequest{Title: "t"})
	if err != nil || conv.ID != "c1" || conv.Status != conversation.StatusActive {
		t.Fatalf("create = %+v, %v", conv, err)
	}
	it, err := c.AppendItem(ctx, "c1", "assistant", "안녕")
	if err != nil || it.Sequence != 3 {
		t.Fatalf("append = %+v, %v", it, err)
	}
	if err := c.AppendTurn(ctx, "c1", "assistant", "안녕"); err != nil {
		t.Fatal(err)
	}
	if err := c.FinalizeConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	res, err := c.ReportUsage(ctx, UsageReport{ConversationID: "c1", InputTokens: 1000, OutputTokens: 1000})
	if err != nil || res.Applied != 2 || res.NewBalance != 8 {
		t.Fatalf("usage = %+v, %v", res, err)
	}
	if bal, err := c.Balance(ctx); err != nil || bal != 8 {
		t.Fatalf("balance = %v, %v", bal, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 6 {
		t.Errorf("paths = %v", paths)
	}
}

func TestPlainTextError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	err := c.FinalizeConversation(context.Background(), "c1")
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Message != "bad gateway" {
		t.Fatalf("err = %v", err)
	}
}

func TestProfileAndBalance(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch r.URL.Path {
		case "/api/user/profile":
			w.Write([]byte(`{"success":true,"profile":{"age":31,"occupation":"개발자"}}`))
		case "/api/credits/balance":
			w.Write([]byte(`{"success":true,"credits":42.5,"isSuperUser":false}`))
		default:
			http.NotFound(w, r)
		}
	})
	p, err := c.Profile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if p.Age == nil || *p.Age != 31 || p.Occupation != "개발자" {
		t.Errorf("profile = %+v", p)
	}
	bal, err := c.Balance(context.Background())
	if err != nil || bal != 42.5 {
		t.Errorf("balance = %v, %v", bal, err)
	}
}
