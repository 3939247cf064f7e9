package openairealtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultHTTPURL is the default HTTP endpoint for client secrets and SDP
	// exchange.
	DefaultHTTPURL = "https://api.openai.com/v1/realtime"
)

// Client is the server-side OpenAI Realtime API client. It holds the API key
// and mints client secrets for browser or device sessions.
type Client struct {
	config *clientConfig
}

// clientConfig holds the client configuration.
type clientConfig struct {
	apiKey       string
	organization string
	project      string
	httpURL      string
	httpClient   *http.Client
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a new OpenAI Realtime client.
//
// The apiKey is required and can be obtained from:
// https://platform.openai.com/api-keys
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		panic("openai-realtime: API key is required")
	}

	cfg := &clientConfig{
		apiKey:     apiKey,
		httpURL:    DefaultHTTPURL,
		httpClient: http.DefaultClient,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Client{config: cfg}
}

// WithOrganization sets the organization ID for API requests.
func WithOrganization(orgID string) Option {
	return func(c *clientConfig) {
		c.organization = orgID
	}
}

// WithProject sets the project ID for API requests.
func WithProject(projectID string) Option {
	return func(c *clientConfig) {
		c.project = projectID
	}
}

// WithHTTPURL sets the base HTTP URL.
func WithHTTPURL(url string) Option {
	return func(c *clientConfig) {
		c.httpURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// ClientSecret is an ephemeral credential that authorizes exactly one
// realtime session.
type ClientSecret struct {
	Value     string           `json:"value"`
	ExpiresAt int64            `json:"expires_at,omitzero"`
	Session   *SessionResource `json:"session,omitzero"`
}

// CreateClientSecret mints a client secret for the given session
// configuration. A nil config requests a plain gpt-realtime session with the
// alloy voice.
func (c *Client) CreateClientSecret(ctx context.Context, config *SessionConfig) (*ClientSecret, error) {
	if config == nil {
		config = &SessionConfig{}
	}
	sess := *config
	if sess.Type == "" {
		sess.Type = SessionTypeRealtime
	}
	if sess.Model == "" {
		sess.Model = ModelGPTRealtime
	}
	if sess.Audio == nil {
		sess.Audio = &AudioConfig{Output: &AudioOutput{Voice: VoiceAlloy}}
	}

	body, err := json.Marshal(map[string]any{"session": &sess})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.httpURL+"/client_secrets", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.config.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.config.organization != "" {
		req.Header.Set("OpenAI-Organization", c.config.organization)
	}
	if c.config.project != "" {
		req.Header.Set("OpenAI-Project", c.config.project)
	}

	resp, err := c.config.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeHTTPError(resp, "client_secret_failed")
	}

	var secret ClientSecret
	if err := json.NewDecoder(resp.Body).Decode(&secret); err != nil {
		return nil, fmt.Errorf("openai-realtime: decode client secret: %w", err)
	}
	if secret.Value == "" {
		return nil, &Error{Code: "client_secret_failed", Message: "empty client secret", HTTPStatus: resp.StatusCode}
	}
	return &secret, nil
}

// exchangeSDP posts the local offer to the calls endpoint and returns the
// answer SDP.
func exchangeSDP(ctx context.Context, httpClient *http.Client, baseURL, secret, offer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/calls", bytes.NewReader([]byte(offer)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", decodeHTTPError(resp, "sdp_exchange_failed")
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(answer), nil
}

// decodeHTTPError reads an API error body. OpenAI wraps errors as
// {"error": {...}}; anything else is kept verbatim in the message.
func decodeHTTPError(resp *http.Response, code string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var wrapped struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Message != "" {
		wrapped.Error.HTTPStatus = resp.StatusCode
		if wrapped.Error.Code == "" {
			wrapped.Error.Code = code
		}
		return wrapped.Error
	}
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body)),
		HTTPStatus: resp.StatusCode,
	}
}
