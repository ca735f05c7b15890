package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		name string
		from SessionStatus
		to   SessionStatus
		want bool
	}{
		{"active to pending_handoff", SessionActive, SessionPendingHandoff, true},
		{"active to closed directly", SessionActive, SessionClosed, true},
		{"pending_handoff to live_agent", SessionPendingHandoff, SessionLiveAgent, true},
		{"pending_handoff to closed", SessionPendingHandoff, SessionClosed, true},
		{"live_agent to closed", SessionLiveAgent, SessionClosed, true},
		{"closed is terminal", SessionClosed, SessionActive, false},
		{"no backward edge live_agent to pending_handoff", SessionLiveAgent, SessionPendingHandoff, false},
		{"no backward edge pending_handoff to active", SessionPendingHandoff, SessionActive, false},
		{"no skip active to live_agent", SessionActive, SessionLiveAgent, false},
		{"same state is a no-op transition", SessionActive, SessionActive, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestSession_Transition_RejectsIllegalEdge(t *testing.T) {
	s := NewSession("sid", "user-1", time.Now())
	err := s.Transition(SessionLiveAgent)

	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, SessionActive, s.Status, "status must not change on a rejected transition")
}

func TestSession_Escalate_StampsOnFirstCall(t *testing.T) {
	s := NewSession("sid", "user-1", time.Now())
	now := time.Now()

	already, err := s.Escalate("user requested escalation", now)

	assert.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, SessionPendingHandoff, s.Status)
	assert.NotNil(t, s.EscalatedAt)
	assert.Equal(t, "user requested escalation", s.EscalationReason)
}

func TestSession_Escalate_IsIdempotentOnceInHandoff(t *testing.T) {
	s := NewSession("sid", "user-1", time.Now())
	first := time.Now()
	_, err := s.Escalate("first reason", first)
	assert.NoError(t, err)

	second := first.Add(time.Hour)
	already, err := s.Escalate("second reason", second)

	assert.NoError(t, err)
	assert.True(t, already, "re-escalating an already-handoff session must report alreadyEscalated")
	assert.Equal(t, "first reason", s.EscalationReason, "escalation metadata must not be re-stamped")
	assert.True(t, s.EscalatedAt.Equal(first))
}

func TestSession_Escalate_WorksFromLiveAgentTooWithoutRestamping(t *testing.T) {
	s := NewSession("sid", "user-1", time.Now())
	first := time.Now()
	_, _ = s.Escalate("original reason", first)
	assert.NoError(t, s.Transition(SessionLiveAgent))

	already, err := s.Escalate("new reason", first.Add(time.Minute))

	assert.NoError(t, err)
	assert.True(t, already)
	assert.Equal(t, "original reason", s.EscalationReason)
}

func TestNewSessionID_DerivesPrefixFromEmailLocalPart(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 5, 0, 0, time.UTC)
	id := NewSessionID("jane.doe@example.com", now)

	assert.Equal(t, "jane.doe-26-07-31_14:05", id)
}

func TestNewSessionID_TruncatesLongLocalPartToTwelveChars(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 5, 0, 0, time.UTC)
	id := NewSessionID("a.very.long.local.part@example.com", now)

	assert.Equal(t, "a.very.long.-26-07-31_14:05", id)
}
