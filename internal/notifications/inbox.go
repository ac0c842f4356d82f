package notifications

import (
	"context"
	"sync"
)

// DefaultInboxSize is the number of notifications an Inbox keeps
const DefaultInboxSize = 100

// Inbox keeps the most recent notifications in memory until the view drains
// them. When full, the oldest entry is dropped.
type Inbox struct {
	mu      sync.Mutex
	items   []Notification
	size    int
	dropped int
}

// NewInbox creates an inbox holding at most size notifications
func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{size: size}
}

// Notify implements Notifier
func (i *Inbox) Notify(_ context.Context, n Notification) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.items) == i.size {
		i.items = i.items[1:]
		i.dropped++
	}
	i.items = append(i.items, n)
	return nil
}

// Name implements Notifier
func (i *Inbox) Name() string {
	return "inbox"
}

// Drain returns every pending notification, oldest first, and empties the inbox
func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := i.items
	i.items = nil
	if out == nil {
		return []Notification{}
	}
	return out
}

// Peek returns the pending notifications without removing them
func (i *Inbox) Peek() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()

	out := make([]Notification, len(i.items))
	copy(out, i.items)
	return out
}

// Len is the number of pending notifications
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}

// Dropped is the number of notifications evicted because the inbox was full
func (i *Inbox) Dropped() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.dropped
}
