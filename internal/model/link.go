package model

import (
	"time"

	"github.com/google/uuid"
)

// Link represents a shortened URL record
type Link struct {
	ID          uuid.UUID `json:"id"`
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Clicks      int64     `json:"clicks"`
	ClickLog    []Click   `json:"click_log,omitempty"`
}

// Expired reports whether the link can no longer be resolved at the given instant.
// A link is still valid at exactly its expiry instant.
func (l *Link) Expired(at time.Time) bool {
	return l.ExpiresAt.Before(at)
}

// Click is one recorded redirect
type Click struct {
	At      time.Time `json:"ts"`
	Referer string    `json:"referer,omitempty"`
	IP      string    `json:"ip,omitempty"`
}

// LinkState selects which links an aggregate query covers
type LinkState int

const (
	StateAll LinkState = iota
	StateActive
	StateExpired
)

// LinkFilter narrows Count and SumClicks. At is the reference instant for
// StateActive and StateExpired and is ignored for StateAll.
type LinkFilter struct {
	State LinkState
	At    time.Time
}
