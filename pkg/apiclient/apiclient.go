// Package apiclient calls the giztalk HTTP API as a signed-in user. It
// provides the credential and persistence collaborators of a realtime
// session run outside the server process.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haivivi/giztalk/pkg/account"
	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
	"github.com/haivivi/giztalk/pkg/realtime"
)

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("apiclient: %d %s", e.StatusCode, e.Message)
}

// Client is an API client bound to one user session.
type Client struct {
	baseURL    string
	session    string
	httpClient *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// New returns a client for the API at baseURL acting as user.
func New(baseURL string, user account.User, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    account.EncodeSession(user),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ realtime.CredentialIssuer = (*Client)(nil)
	_ realtime.TurnAppender     = (*Client)(nil)
)

// IssueClientSecret asks the server for a realtime client secret.
func (c *Client) IssueClientSecret(ctx context.Context, instructions string) (string, error) {
	var out struct {
		ClientSecret string `json:"clientSecret"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/realtime", map[string]string{"instructions": instructions}, &out); err != nil {
		return "", err
	}
	if out.ClientSecret == "" {
		return "", fmt.Errorf("apiclient: empty client secret")
	}
	return out.ClientSecret, nil
}

// CreateConversation starts an active conversation.
func (c *Client) CreateConversation(ctx context.Context, req conversation.CreateRequest) (*conversation.Conversation, error) {
	var out struct {
		Data conversation.Conversation `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversations/create", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// AppendItem persists one turn and returns it with its sequence number.
func (c *Client) AppendItem(ctx context.Context, conversationID, role, content string) (conversation.Item, error) {
	var out struct {
		Data conversation.Item `json:"data"`
	}
	err := c.do(ctx, http.MethodPost, "/api/conversations/save-item", map[string]string{
		"conversationId": conversationID,
		"role":           role,
		"content":        content,
	}, &out)
	return out.Data, err
}

// AppendTurn is AppendItem without the result.
func (c *Client) AppendTurn(ctx context.Context, conversationID, role, content string) error {
	_, err := c.AppendItem(ctx, conversationID, role, content)
	return err
}

// FinalizeConversation marks the conversation completed.
func (c *Client) FinalizeConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/conversations/finalize", map[string]string{"conversationId": conversationID}, nil)
}

// UsageReport is the token usage of one realtime response.
type UsageReport struct {
	ConversationID string `json:"conversationId"`
	InputTokens    int    `json:"inputTokens"`
	OutputTokens   int    `json:"outputTokens"`
}

// ReportUsage charges the user for a realtime response.
func (c *Client) ReportUsage(ctx context.Context, r UsageReport) (credits.Result, error) {
	var out credits.Result
	err := c.do(ctx, http.MethodPost, "/api/realtime/usage", r, &out)
	return out, err
}

// Balance returns the user's credit balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var out struct {
		Credits float64 `json:"credits"`
	}
	err := c.do(ctx, http.MethodGet, "/api/credits/balance", nil, &out)
	return out.Credits, err
}

// Profile returns the user's profile, used to personalize prompts.
func (c *Client) Profile(ctx context.Context) (account.Profile, error) {
	var out struct {
		Profile account.Profile `json:"profile"`
	}
	err := c.do(ctx, http.MethodGet, "/api/user/profile", nil, &out)
	return out.Profile, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: account.SessionCookie, Value: c.session})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", path, err)
	}
	return nil
}
