// Package queue carries security events from the auth flow to RabbitMQ and
// back out to the audit log.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a security-relevant action.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventLoginFailed    EventType = "login.failed"
	EventIPBlocked      EventType = "ip.blocked"
	EventLoggedOut      EventType = "user.logged_out"
	EventPasswordChange EventType = "password.changed"
)

// DefaultQueue is the durable queue events are routed to.
const DefaultQueue = "auth.events"

// AuthEvent is published for every security-relevant action. It never
// contains passwords or tokens.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	UserID     uint64    `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	IP         string    `json:"ip,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh id and the current UTC time.
func NewEvent(typ EventType) AuthEvent {
	return AuthEvent{ID: uuid.NewString(), Type: typ, OccurredAt: time.Now().UTC()}
}
