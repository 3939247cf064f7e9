package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TurnAppender persists one conversation turn.
type TurnAppender interface {
	AppendTurn(ctx context.Context, conversationID, role, content string) error
}

const (
	bridgeQueueSize     = 64
	bridgeAppendTimeout = 10 * time.Second
)

type pendingTurn struct {
	role    string
	content string
}

// turnBridge forwards finalized turns to the appender on one goroutine, so
// turns of a session are persisted in the order they were finalized.
// Failures are logged and not retried.
type turnBridge struct {
	appender       TurnAppender
	conversationID string
	logger         *slog.Logger

	mu     sync.Mutex
	queue  chan pendingTurn
	closed bool
	done   chan struct{}
}

func newTurnBridge(appender TurnAppender, conversationID string, logger *slog.Logger) *turnBridge {
	b := &turnBridge{
		appender:       appender,
		conversationID: conversationID,
		logger:         logger,
		queue:          make(chan pendingTurn, bridgeQueueSize),
		done:           make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *turnBridge) run() {
	defer close(b.done)
	for t := range b.queue {
		if b.appender == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), bridgeAppendTimeout)
		err := b.appender.AppendTurn(ctx, b.conversationID, t.role, t.content)
		cancel()
		if err != nil {
			b.logger.Warn("persist turn failed", "conversation_id", b.conversationID, "role", t.role, "error", err)
			continue
		}
		b.logger.Debug("turn persisted", "conversation_id", b.conversationID, "role", t.role, "len", len(t.content))
	}
}

// append queues a turn without blocking the caller.
func (b *turnBridge) append(role, content string) {
	if b == nil {
		return
	}
	if b.conversationID == "" {
		b.logger.Warn("no conversation id, turn not persisted", "role", role)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		b.logger.Warn("turn after close dropped", "role", role)
		return
	}
	select {
	case b.queue <- pendingTurn{role: role, content: content}:
	default:
		b.logger.Warn("persistence queue full, turn dropped", "role", role)
	}
}

// close stops accepting turns and waits up to wait for queued turns.
func (b *turnBridge) close(wait time.Duration) {
	if b == nil {
		return
	}
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.queue)
	}
	b.mu.Unlock()

	select {
	case <-b.done:
	case <-time.After(wait):
		b.logger.Warn("persistence still draining after close")
	}
}
