// Package notify collects server notifications for display and audit.
// The Center is the local notification sink fed by the realtime manager.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Notification is a normalized server notification.
type Notification struct {
	ID      string    `json:"id"`
	Level   string    `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Ts      time.Time `json:"ts"`
}

// Center keeps the most recent notifications in a bounded ring.
// Add is fire-and-forget; the oldest entry is evicted when full.
type Center struct {
	mu       sync.RWMutex
	capacity int
	items    []Notification
}

const defaultCapacity = 100

func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Center{capacity: capacity}
}

// Notify records a notification. Implements the realtime manager's sink.
func (c *Center) Notify(level, title, message string) {
	n := Notification{
		ID:      uuid.New().String(),
		Level:   level,
		Title:   title,
		Message: message,
		Ts:      time.Now(),
	}

	c.mu.Lock()
	c.items = append(c.items, n)
	if len(c.items) > c.capacity {
		c.items = c.items[len(c.items)-c.capacity:]
	}
	c.mu.Unlock()

	log.Info().
		Str("id", n.ID).
		Str("level", n.Level).
		Str("title", n.Title).
		Msg("notification received")
}

// Recent returns up to limit notifications, newest first. limit <= 0 means all.
func (c *Center) Recent(limit int) []Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.items)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Notification, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, c.items[i])
	}
	return out
}

// Len returns the number of stored notifications.
func (c *Center) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear drops all stored notifications.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}
