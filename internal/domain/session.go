package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionOwnership    = errors.New("session owned by another user")
	ErrSessionClosed       = errors.New("session is closed")
	ErrIllegalTransition   = errors.New("illegal session status transition")
	ErrInvalidMessageRole  = errors.New("invalid message role")
)

// Constants
const (
	DefaultRecentWindow   = 12
	DefaultSessionTTLDays = 7
)

// SessionStatus is the session's position in the handoff state machine.
type SessionStatus string

const (
	SessionActive         SessionStatus = "active"
	SessionPendingHandoff SessionStatus = "pending_handoff"
	SessionLiveAgent      SessionStatus = "live_agent"
	SessionClosed         SessionStatus = "closed"
)

// allowedTransitions encodes the DAG from spec §4.11: active -> pending_handoff
// -> live_agent -> closed, with direct active -> closed and
// pending_handoff -> closed shortcuts. No backward edges; closed is terminal.
var allowedTransitions = map[SessionStatus]map[SessionStatus]bool{
	SessionActive:         {SessionPendingHandoff: true, SessionClosed: true},
	SessionPendingHandoff: {SessionLiveAgent: true, SessionClosed: true},
	SessionLiveAgent:      {SessionClosed: true},
	SessionClosed:         {},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s == next {
		return true
	}
	return allowedTransitions[s][next]
}

func (s SessionStatus) IsHandoff() bool {
	return s == SessionPendingHandoff || s == SessionLiveAgent
}

// Session is the live metadata record for one user's conversation. It is
// owned by exactly one user and carries the handoff state machine.
type Session struct {
	ID                   string        `json:"session_id"`
	UserID               string        `json:"user_id"`
	Status               SessionStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	LastUpdated          time.Time     `json:"last_updated"`
	MessageCount         int           `json:"message_count"`
	Summary              string        `json:"summary,omitempty"`
	SummaryMessageCount  int           `json:"summary_message_count"`
	FirstName            string        `json:"first_name,omitempty"`
	LastName             string        `json:"last_name,omitempty"`
	GreetingSent         bool          `json:"greeting_sent"`
	AgentID              string        `json:"agent_id,omitempty"`
	EscalatedAt          *time.Time    `json:"escalated_at,omitempty"`
	EscalationReason     string        `json:"escalation_reason,omitempty"`
	ClaimedAt            *time.Time    `json:"claimed_at,omitempty"`
	LastAgentMessageAt   *time.Time    `json:"last_agent_message_at,omitempty"`
}

// NewSessionID derives a human-readable slug from the user-id prefix and the
// current timestamp, per spec §3: "<user-id-prefix>-YY-MM-DD_HH:MM".
func NewSessionID(userID string, now time.Time) string {
	prefix := userID
	if at := indexByte(prefix, '@'); at >= 0 {
		prefix = prefix[:at]
	}
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("%s-%s", prefix, now.Format("06-01-02_15:04"))
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// NewSession initializes a fresh, active session record for userID.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		Status:      SessionActive,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Transition moves the session to next, enforcing the state-machine DAG.
func (s *Session) Transition(next SessionStatus) error {
	if !s.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// Escalate stamps escalation metadata idempotently: if the session is
// already in a handoff status, escalated_at/escalation_reason are left
// unchanged and the caller must not re-enqueue (spec Testable Property 10).
func (s *Session) Escalate(reason string, now time.Time) (alreadyEscalated bool, err error) {
	if s.Status.IsHandoff() {
		return true, nil
	}
	if err := s.Transition(SessionPendingHandoff); err != nil {
		return false, err
	}
	s.EscalatedAt = &now
	s.EscalationReason = reason
	return false, nil
}
