package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"
)

func TestTurnBridgeKeepsOrder(t *testing.T) {
	app := &fakeAppender{}
	b := newTurnBridge(app, "conv-9", slog.Default())
	for i := 0; i < 20; i++ {
		b.append("user", fmt.Sprint(i))
	}
	b.close(time.Second)

	turns := app.all()
	if len(turns) != 20 {
		t.Fatalf("persisted %d, want 20", len(turns))
	}
	for i, tr := range turns {
		if tr.content != fmt.Sprint(i) || tr.conversationID != "conv-9" {
			t.Errorf("turns[%d] = %+v", i, tr)
		}
	}

	b.append("user", "after close")
	b.close(time.Second)
	if n := len(app.all()); n != 20 {
		t.Errorf("turn after close persisted, got %d", n)
	}
}

func TestTurnBridgeFailuresDoNotStop(t *testing.T) {
	app := &fakeAppender{err: errors.New("db down")}
	b := newTurnBridge(app, "conv-9", slog.Default())
	b.append("assistant", "a")
	b.append("assistant", "b")
	b.close(time.Second)

	if n := len(app.all()); n != 2 {
		t.Errorf("attempted %d appends, want 2", n)
	}
}

func TestTurnBridgeNil(t *testing.T) {
	var b *turnBridge
	b.append("user", "x")
	b.close(time.Millisecond)
}
