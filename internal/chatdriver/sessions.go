package chatdriver

import (
	"context"
	"time"

	"github.com/chatcore/chatcore/internal/apperr"
	"github.com/chatcore/chatcore/internal/domain"
)

// CreateSession creates a fresh session for userID, optionally at a
// caller-supplied id. 409s if that id already belongs to a different user.
func (d *Driver) CreateSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	now := d.now()
	if sessionID == "" {
		sessionID = domain.NewSessionID(userID, now)
	}

	existing, err := d.store.ReadMeta(ctx, sessionID)
	if err != nil {
		return nil, apperr.SessionStore("read session meta", err)
	}
	if existing != nil && existing.UserID != userID {
		return nil, apperr.Conflict("session id already in use by another user")
	}
	if existing != nil {
		return existing, nil
	}

	meta := domain.NewSession(sessionID, userID, now)
	if err := d.persist(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// SessionSummary is the merged active+archived listing row for GET /v1/sessions.
type SessionSummary struct {
	SessionID string              `json:"session_id"`
	Status    domain.SessionStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
	Summary   string              `json:"summary,omitempty"`
}

// ListSessions merges the live index with the archival store when
// includeClosed is set. When q is non-empty, the archived half of the
// listing is narrowed to sessions whose archived messages match q
// (archivestore.SearchSessions) instead of the full per-user history.
func (d *Driver) ListSessions(ctx context.Context, userID string, limit int, includeClosed bool, q string) ([]SessionSummary, error) {
	ids, err := d.store.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, apperr.SessionStore("list sessions", err)
	}

	var out []SessionSummary
	for _, id := range ids {
		meta, err := d.store.ReadMeta(ctx, id)
		if err != nil || meta == nil {
			continue
		}
		out = append(out, SessionSummary{SessionID: meta.ID, Status: meta.Status, CreatedAt: meta.CreatedAt, Summary: meta.Summary})
	}

	if includeClosed && d.archive != nil {
		if q != "" {
			matchIDs, err := d.archive.SearchSessions(ctx, userID, q, limit)
			if err != nil {
				d.log.WithError(err).Warn("search archived sessions failed")
			}
			for _, id := range matchIDs {
				out = append(out, SessionSummary{SessionID: id, Status: domain.SessionClosed})
			}
		} else {
			archived, err := d.archive.ListUserSessions(ctx, userID, limit)
			if err == nil {
				for _, s := range archived {
					out = append(out, SessionSummary{SessionID: s.ID, Status: s.Status, CreatedAt: s.CreatedAt, Summary: s.Summary})
				}
			} else {
				d.log.WithError(err).Warn("list archived sessions failed")
			}
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetMessages returns up to limit messages for sid, owner-checked.
func (d *Driver) GetMessages(ctx context.Context, userID, sid string, limit int) ([]domain.Message, error) {
	meta, err := d.store.ReadMeta(ctx, sid)
	if err != nil {
		return nil, apperr.SessionStore("read session meta", err)
	}
	if meta == nil {
		return nil, apperr.NotFound("unknown session")
	}
	if meta.UserID != userID {
		return nil, apperr.Unauthorized("session owned by another user")
	}
	return d.store.AllMessages(ctx, sid, limit)
}

// CloseSession flushes the buffer to the archival store, removes the
// session from live indices, and unassigns any agent (spec §6).
func (d *Driver) CloseSession(ctx context.Context, userID, sid, summary string) error {
	meta, err := d.store.ReadMeta(ctx, sid)
	if err != nil {
		return apperr.SessionStore("read session meta", err)
	}
	if meta == nil {
		return apperr.NotFound("unknown session")
	}
	if meta.UserID != userID {
		return apperr.Unauthorized("session owned by another user")
	}

	if err := meta.Transition(domain.SessionClosed); err != nil {
		return apperr.Conflict(err.Error())
	}

	messages, err := d.store.AllMessages(ctx, sid, 0)
	if err != nil {
		return apperr.SessionStore("read messages for archive", err)
	}

	if summary != "" {
		meta.Summary = summary
	} else if meta.Summary == "" && len(messages) > 0 {
		d.maybeSummarize(ctx, meta, sid)
	}

	now := d.now()
	if d.archive != nil {
		if err := d.archive.Archive(ctx, meta, messages, now); err != nil {
			return apperr.SessionStore("archive session", err)
		}
	}

	if meta.AgentID != "" {
		if err := d.store.UnassignAgent(ctx, sid, meta.AgentID); err != nil {
			return apperr.SessionStore("unassign agent", err)
		}
	}
	if err := d.store.DequeueEscalation(ctx, sid); err != nil {
		return apperr.SessionStore("dequeue escalation", err)
	}
	if err := d.store.Unregister(ctx, userID, sid); err != nil {
		return apperr.SessionStore("unregister session", err)
	}
	if err := d.store.Delete(ctx, sid); err != nil {
		return apperr.SessionStore("delete live session", err)
	}
	return nil
}

// ListEscalations unions the pending set with (if agentID is given) that
// agent's claimed set.
func (d *Driver) ListEscalations(ctx context.Context, agentID string) ([]string, error) {
	pending, err := d.store.ListEscalations(ctx)
	if err != nil {
		return nil, apperr.SessionStore("list escalations", err)
	}
	if agentID == "" {
		return pending, nil
	}

	claimed, err := d.store.ListAgentSessions(ctx, agentID)
	if err != nil {
		return nil, apperr.SessionStore("list agent sessions", err)
	}

	seen := map[string]bool{}
	var out []string
	for _, id := range append(pending, claimed...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// ClaimEscalation transitions sid to live_agent and assigns agentID. If
// passcode is non-empty and matches the configured admin bypass passcode,
// the claim authenticates as the configured admin bypass email instead of
// agentID, without consulting any agent directory (spec.md §9, admin
// bypass credentials).
func (d *Driver) ClaimEscalation(ctx context.Context, sid, agentID, passcode string) error {
	if passcode != "" && d.cfg.AdminBypassPasscode != "" && passcode == d.cfg.AdminBypassPasscode {
		agentID = d.cfg.AdminBypassEmail
	}

	meta, err := d.store.ReadMeta(ctx, sid)
	if err != nil {
		return apperr.SessionStore("read session meta", err)
	}
	if meta == nil {
		return apperr.NotFound("unknown session")
	}
	if meta.Status != domain.SessionPendingHandoff && meta.Status != domain.SessionLiveAgent {
		return apperr.Conflict("session is not awaiting handoff")
	}

	if err := meta.Transition(domain.SessionLiveAgent); err != nil {
		return apperr.Conflict(err.Error())
	}
	meta.AgentID = agentID
	now := d.now()
	meta.ClaimedAt = &now

	if err := d.store.DequeueEscalation(ctx, sid); err != nil {
		return apperr.SessionStore("dequeue escalation", err)
	}
	if err := d.store.AssignAgent(ctx, sid, agentID); err != nil {
		return apperr.SessionStore("assign agent", err)
	}
	return d.persist(ctx, meta)
}

// PostAgentMessage appends an agent-role message, rejecting a different
// agent than the one who claimed the session.
func (d *Driver) PostAgentMessage(ctx context.Context, sid, agentID, content string) error {
	meta, err := d.store.ReadMeta(ctx, sid)
	if err != nil {
		return apperr.SessionStore("read session meta", err)
	}
	if meta == nil {
		return apperr.NotFound("unknown session")
	}
	if meta.AgentID != "" && meta.AgentID != agentID {
		return apperr.Unauthorized("session claimed by another agent")
	}

	now := d.now()
	if err := d.store.AppendMessage(ctx, sid, domain.NewMessage(domain.RoleAgent, content, now)); err != nil {
		return apperr.SessionStore("append agent message", err)
	}
	meta.MessageCount++
	meta.LastAgentMessageAt = &now
	return d.persist(ctx, meta)
}
