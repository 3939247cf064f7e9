package projection

import (
	"sync"
	"time"
)

// DefaultDebugLogSize is the number of entries kept by a store's debug log.
const DefaultDebugLogSize = 100

// DebugEntry is one debug log line.
type DebugEntry struct {
	Time    time.Time `json:"timestamp"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// DebugLog keeps the most recent entries and drops the oldest once full.
type DebugLog struct {
	mu         sync.Mutex
	buf        []DebugEntry
	head, tail int64
}

// NewDebugLog returns a log holding at most size entries.
func NewDebugLog(size int) *DebugLog {
	if size < 1 {
		size = 1
	}
	return &DebugLog{buf: make([]DebugEntry, size)}
}

// Add records an entry.
func (l *DebugLog) Add(level, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.tail%int64(len(l.buf))] = DebugEntry{Time: time.Now(), Level: level, Message: message}
	l.tail++
	if l.tail-l.head > int64(len(l.buf)) {
		l.head = l.tail - int64(len(l.buf))
	}
}

// Entries returns the kept entries, oldest first.
func (l *DebugLog) Entries() []DebugEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DebugEntry, 0, l.tail-l.head)
	for i := l.head; i < l.tail; i++ {
		out = append(out, l.buf[i%int64(len(l.buf))])
	}
	return out
}

// Clear drops every entry.
func (l *DebugLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.head = l.tail
}
