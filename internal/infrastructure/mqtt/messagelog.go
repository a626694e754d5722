package mqtt

import (
	"sync"
	"time"
)

// LogEntry is one recorded message, inbound or outbound.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Topic     string    `json:"topic"`
	Message   string    `json:"message"`
}

// MessageLog is a fixed-capacity ring buffer of message traffic.
// When full, the oldest entry is evicted first. Safe for concurrent use.
type MessageLog struct {
	mu       sync.Mutex
	entries  []LogEntry
	capacity int
	start    int // index of oldest entry
	count    int
}

// NewMessageLog creates a message log holding at most capacity entries.
// A non-positive capacity selects the default (1000).
func NewMessageLog(capacity int) *MessageLog {
	if capacity <= 0 {
		capacity = defaultMessageLogSize
	}
	return &MessageLog{
		entries:  make([]LogEntry, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest if the buffer is full.
func (l *MessageLog) Add(topic, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.count) % l.capacity
	l.entries[idx] = LogEntry{
		Timestamp: time.Now().UTC(),
		Topic:     topic,
		Message:   message,
	}

	if l.count < l.capacity {
		l.count++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
}

// Entries returns a copy of the log, oldest first.
func (l *MessageLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LogEntry, l.count)
	for i := 0; i < l.count; i++ {
		out[i] = l.entries[(l.start+i)%l.capacity]
	}
	return out
}

// Len returns the number of entries currently held.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Capacity returns the fixed capacity of the log.
func (l *MessageLog) Capacity() int {
	return l.capacity
}

// Clear discards all entries.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start = 0
	l.count = 0
}
