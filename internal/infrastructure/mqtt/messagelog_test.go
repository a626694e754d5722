package mqtt

import (
	"fmt"
	"testing"
)

func TestMessageLogAdd(t *testing.T) {
	log := NewMessageLog(10)

	log.Add("node/cmd", `{"cmd":"Reset"}`)

	entries := log.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d, want 1", len(entries))
	}
	if entries[0].Topic != "node/cmd" {
		t.Errorf("Topic = %q, want %q", entries[0].Topic, "node/cmd")
	}
	if entries[0].Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestMessageLogEviction(t *testing.T) {
	const capacity = 5
	log := NewMessageLog(capacity)

	for i := 0; i < capacity*3; i++ {
		log.Add("topic", fmt.Sprintf("msg-%d", i))
	}

	if log.Len() != capacity {
		t.Fatalf("Len() = %d, want %d (capacity must never be exceeded)", log.Len(), capacity)
	}

	// Strict arrival order: the survivors are the last `capacity` messages,
	// oldest first.
	entries := log.Entries()
	for i, entry := range entries {
		want := fmt.Sprintf("msg-%d", capacity*2+i)
		if entry.Message != want {
			t.Errorf("entry %d = %q, want %q", i, entry.Message, want)
		}
	}
}

func TestMessageLogClear(t *testing.T) {
	log := NewMessageLog(4)
	log.Add("a", "1")
	log.Add("b", "2")

	log.Clear()

	if log.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", log.Len())
	}

	// Reusable after clearing.
	log.Add("c", "3")
	entries := log.Entries()
	if len(entries) != 1 || entries[0].Message != "3" {
		t.Errorf("Entries() after Clear+Add = %v, want single msg-3", entries)
	}
}

func TestMessageLogDefaultCapacity(t *testing.T) {
	log := NewMessageLog(0)
	if log.Capacity() != defaultMessageLogSize {
		t.Errorf("Capacity() = %d, want %d", log.Capacity(), defaultMessageLogSize)
	}
}

func TestMessageLogConcurrent(t *testing.T) {
	log := NewMessageLog(100)
	done := make(chan struct{})

	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := 0; i < 250; i++ {
				log.Add("topic", fmt.Sprintf("w%d-%d", w, i))
			}
			done <- struct{}{}
		}(w)
	}
	for w := 0; w < 4; w++ {
		<-done
	}

	if log.Len() != 100 {
		t.Errorf("Len() = %d, want 100", log.Len())
	}
}
