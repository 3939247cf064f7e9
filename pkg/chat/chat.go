// Package chat implements the text conversation features on OpenAI chat
// completions: style-prompted replies, conversation titles and structured
// summaries.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"

	"github.com/haivivi/giztalk/pkg/conversation"
	"github.com/haivivi/giztalk/pkg/credits"
	"github.com/haivivi/giztalk/pkg/styles"
)

// Model settings.
const (
	ReplyModel       = openai.ChatModelGPT4oMini
	ReplyTemperature = 0.7
	ReplyMaxTokens   = 1000

	TitleModel       = openai.ChatModelGPT3_5Turbo
	TitleTemperature = 0.5
	TitleMaxTokens   = 30
	TitleMaxMessages = 15
	TitleMaxRunes    = 30
	fallbackRunes    = 20

	SummaryModel       = openai.ChatModelGPT4o
	SummaryTemperature = 0.3
	SummaryMaxTokens   = 2000
	SummaryMinMessages = 4
	SummaryMinChars    = 100
)

var (
	// ErrNoMessages is returned when a request carries no messages.
	ErrNoMessages = errors.New("chat: no messages")

	// ErrTooShort is returned when a conversation is too short to
	// summarize.
	ErrTooShort = errors.New("chat: conversation too short to summarize")

	// ErrEmptyReply is returned when the model returned no choices.
	ErrEmptyReply = errors.New("chat: empty model response")
)

// Debiter charges credits.
type Debiter interface {
	Debit(ctx context.Context, userID string, amount float64, opts credits.Options) (credits.Result, error)
}

// Service generates chat replies, titles and summaries.
type Service struct {
	client openai.Client
	ledger Debiter
	logger *slog.Logger
}

// NewService returns a chat service. ledger may be nil to disable billing.
func NewService(client openai.Client, ledger Debiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, ledger: ledger, logger: logger}
}

// ReplyRequest is a text chat turn.
type ReplyRequest struct {
	Messages       []conversation.Message `json:"messages"`
	StyleID        string                 `json:"conversationStyle"`
	ConversationID string                 `json:"conversationId"`
}

// Reply is the assistant's answer and what it cost.
type Reply struct {
	Message      string  `json:"message"`
	InputTokens  int     `json:"inputTokens"`
	OutputTokens int     `json:"outputTokens"`
	Cost         float64 `json:"cost"`
	Balance      float64 `json:"newBalance"`
}

// Reply answers the conversation using the style's prompt. The user-message
// cost is charged before calling the model and the token cost after.
func (s *Service) Reply(ctx context.Context, userID string, req ReplyRequest) (*Reply, error) {
	if len(req.Messages) == 0 {
		return nil, ErrNoMessages
	}

	out := &Reply{}
	if s.ledger != nil {
		one := 1
		res, err := s.ledger.Debit(ctx, userID, credits.UserMessageCost, credits.Options{
			ConversationID: req.ConversationID,
			Type:           credits.TypeUserMessage,
			MessageCount:   &one,
		})
		if err != nil {
			return nil, err
		}
		out.Cost += res.Applied
		out.Balance = res.NewBalance
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	msgs = append(msgs, openai.SystemMessage(styles.Resolve(req.StyleID)))
	for _, m := range req.Messages {
		switch m.Role {
		case conversation.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       ReplyModel,
		Messages:    msgs,
		Temperature: openai.Float(ReplyTemperature),
		MaxTokens:   openai.Int(ReplyMaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyReply
	}
	out.Message = resp.Choices[0].Message.Content
	out.InputTokens = int(resp.Usage.PromptTokens)
	out.OutputTokens = int(resp.Usage.CompletionTokens)

	if s.ledger != nil {
		tokens := out.InputTokens + out.OutputTokens
		cost := credits.UsageCost(out.InputTokens, out.OutputTokens)
		res, err := s.ledger.Debit(ctx, userID, cost, credits.Options{
			ConversationID: req.ConversationID,
			Type:           credits.TypeAIResponse,
			TokensUsed:     &tokens,
		})
		if err != nil {
			// The reply is already generated; keep it and leave the balance.
			s.logger.Warn("debit for reply failed", "user_id", userID, "cost", cost, "error", err)
		} else {
			out.Cost += res.Applied
			out.Balance = res.NewBalance
		}
	}
	return out, nil
}

// Title generates a short Korean title for the conversation. When the model
// call fails it falls back to the start of the first user message.
func (s *Service) Title(ctx context.Context, messages []conversation.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	head := messages
	if len(head) > TitleMaxMessages {
		head = head[:TitleMaxMessages]
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: TitleModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(titleSystemPrompt),
			openai.UserMessage(fmt.Sprintf(titleUserPrompt, render(head, "AI", "\n"))),
		},
		Temperature: openai.Float(TitleTemperature),
		MaxTokens:   openai.Int(TitleMaxTokens),
	})
	if err == nil && len(resp.Choices) > 0 {
		if title := cleanTitle(resp.Choices[0].Message.Content); title != "" {
			return title, nil
		}
	}
	if err == nil {
		err = ErrEmptyReply
	}
	s.logger.Warn("title generation failed, using fallback", "error", err)
	for _, m := range messages {
		if m.Role == conversation.RoleUser {
			return strings.TrimSpace(truncate(m.Content, fallbackRunes)), nil
		}
	}
	return "", fmt.Errorf("chat: title: %w", err)
}

// Summary writes a structured Korean summary of the conversation.
func (s *Service) Summary(ctx context.Context, messages []conversation.Message) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}
	if len(messages) < SummaryMinMessages {
		return "", ErrTooShort
	}
	text := render(messages, "ChatGPT", "\n\n")
	if utf8.RuneCountInString(text) < SummaryMinChars {
		return "", ErrTooShort
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: SummaryModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(summaryPrompt, text)),
		},
		Temperature: openai.Float(SummaryTemperature),
		MaxTokens:   openai.Int(SummaryMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat: summary: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// render formats messages as "사용자: ..." lines, naming the assistant
// assistantName.
func render(messages []conversation.Message, assistantName, sep string) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		who := assistantName
		if m.Role == conversation.RoleUser {
			who = "사용자"
		}
		lines = append(lines, who+": "+m.Content)
	}
	return strings.Join(lines, sep)
}

func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, `"'`)
	s = strings.TrimRight(s, `"'`)
	return strings.TrimSpace(truncate(s, TitleMaxRunes))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
