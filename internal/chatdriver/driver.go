// Package chatdriver is the per-turn entry point and session state machine
// (spec §4.11): session lookup/creation, greeting injection, the
// pending_handoff/live_agent short-circuit, graph invocation, escalation
// transition, and the summarization gate.
package chatdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/apperr"
	"github.com/chatcore/chatcore/internal/archivestore"
	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/graph"
	"github.com/chatcore/chatcore/internal/masking"
	"github.com/chatcore/chatcore/internal/sessionstore"
)

const escalationNotice = " A member of our support team will join this conversation shortly."

type Config struct {
	RecentWindow        int
	SummaryMinMessages  int
	SummaryHistoryLimit int
	SummaryMaxChars     int

	AdminBypassEmail    string
	AdminBypassPasscode string

	// NotificationTimeout bounds the escalation-notifier call (spec §5
	// reference default 10s); zero falls back to the reference default
	// since the notification runs detached from the request context.
	NotificationTimeout time.Duration
}

type Result struct {
	SessionID      string
	Answer         string
	Citations      []domain.Citation
	ShouldEscalate bool
	TraceID        string
	CacheHit       bool
	SessionStatus  domain.SessionStatus
}

type Driver struct {
	store    *sessionstore.Store
	archive  *archivestore.Store
	graph    *graph.Coordinator
	notifier collaborators.NotificationSink
	llm      collaborators.LLMChat
	cfg      Config
	log      *logrus.Logger
	now      func() time.Time
}

func New(store *sessionstore.Store, archive *archivestore.Store, g *graph.Coordinator, notifier collaborators.NotificationSink, llm collaborators.LLMChat, cfg Config, log *logrus.Logger) *Driver {
	return &Driver{
		store: store, archive: archive, graph: g, notifier: notifier, llm: llm,
		cfg: cfg, log: log, now: time.Now,
	}
}

// HandleTurn implements the nine steps of spec §4.11 for one (user_id,
// query, session_id?) turn.
func (d *Driver) HandleTurn(ctx context.Context, userID, query, sessionID string) (*Result, error) {
	if userID == "" || query == "" {
		return nil, apperr.InvalidInput("user_id and query are required")
	}

	now := d.now()

	meta, sid, err := d.loadOrCreateSession(ctx, userID, sessionID, now)
	if err != nil {
		return nil, err
	}

	if meta.FirstName == "" && meta.LastName == "" {
		first, last := masking.DeriveName(userID)
		meta.FirstName, meta.LastName = first, last
	}

	if !meta.GreetingSent {
		name := meta.FirstName
		if name == "" {
			name = "there"
		}
		greeting := fmt.Sprintf("Hello %s, how can I assist you today!", name)
		if err := d.store.AppendMessage(ctx, sid, domain.NewMessage(domain.RoleAssistant, greeting, now)); err != nil {
			return nil, apperr.SessionStore("append greeting", err)
		}
		meta.GreetingSent = true
		meta.MessageCount++
	}

	if meta.Status.IsHandoff() {
		if err := d.store.AppendMessage(ctx, sid, domain.NewMessage(domain.RoleUser, query, now)); err != nil {
			return nil, apperr.SessionStore("append user message", err)
		}
		meta.MessageCount++
		meta.LastUpdated = now
		if err := d.persist(ctx, meta); err != nil {
			return nil, err
		}
		return &Result{SessionID: sid, Answer: "", SessionStatus: meta.Status}, nil
	}

	recent, err := d.store.Recent(ctx, sid, d.recentWindow())
	if err != nil {
		return nil, apperr.SessionStore("read recent messages", err)
	}

	state := &domain.TurnState{
		Query:          query,
		UserID:         userID,
		SessionID:      sid,
		RecentMessages: recent,
		Summary:        meta.Summary,
		FirstName:      meta.FirstName,
		LastName:       meta.LastName,
		HasCacheHandle: true,
		TraceID:        uuid.New().String(),
	}

	d.graph.Run(ctx, state)

	if err := d.store.AppendMessage(ctx, sid, domain.NewMessage(domain.RoleUser, query, now)); err != nil {
		return nil, apperr.SessionStore("append user message", err)
	}
	if err := d.store.AppendMessage(ctx, sid, domain.NewMessage(domain.RoleAssistant, state.Answer, now)); err != nil {
		return nil, apperr.SessionStore("append assistant message", err)
	}
	meta.MessageCount += 2

	if state.ShouldEscalate {
		state.Answer += escalationNotice
		already, err := meta.Escalate(state.EscalationReason, now)
		if err != nil {
			return nil, apperr.SessionStore("escalate session", err)
		}
		if !already {
			if err := d.store.EnqueueEscalation(ctx, sid); err != nil {
				return nil, apperr.SessionStore("enqueue escalation", err)
			}
			d.dispatchNotification(ctx, sid, userID, state.EscalationReason, state.Answer)
		}
	}

	d.maybeSummarize(ctx, meta, sid)

	if err := d.persist(ctx, meta); err != nil {
		return nil, err
	}

	return &Result{
		SessionID:      sid,
		Answer:         state.Answer,
		Citations:      state.Citations,
		ShouldEscalate: state.ShouldEscalate,
		TraceID:        state.TraceID,
		CacheHit:       state.CacheHit,
		SessionStatus:  meta.Status,
	}, nil
}

func (d *Driver) loadOrCreateSession(ctx context.Context, userID, sessionID string, now time.Time) (*domain.Session, string, error) {
	if sessionID == "" {
		sid := domain.NewSessionID(userID, now)
		return domain.NewSession(sid, userID, now), sid, nil
	}

	meta, err := d.store.ReadMeta(ctx, sessionID)
	if err != nil {
		return nil, "", apperr.SessionStore("read session meta", err)
	}
	if meta == nil {
		meta = domain.NewSession(sessionID, userID, now)
		return meta, sessionID, nil
	}
	if meta.UserID != userID {
		return nil, "", apperr.Unauthorized("session owned by another user")
	}
	return meta, sessionID, nil
}

func (d *Driver) persist(ctx context.Context, meta *domain.Session) error {
	meta.LastUpdated = d.now()
	if err := d.store.WriteMeta(ctx, meta); err != nil {
		return apperr.SessionStore("write session meta", err)
	}
	if err := d.store.Register(ctx, meta.UserID, meta.ID); err != nil {
		return apperr.SessionStore("register session", err)
	}
	if err := d.store.Touch(ctx, meta.ID); err != nil {
		return apperr.SessionStore("touch session ttl", err)
	}
	return nil
}

func (d *Driver) dispatchNotification(ctx context.Context, sid, userID, reason, answer string) {
	if d.notifier == nil {
		return
	}
	timeout := d.cfg.NotificationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := d.notifier.Notify(notifyCtx, collaborators.EscalationAlert{
			SessionID: sid, UserID: userID, Reason: reason, Answer: answer,
		}); err != nil {
			d.log.WithError(err).Warn("escalation notification failed")
		}
	}()
	_ = ctx
}

func (d *Driver) recentWindow() int {
	if d.cfg.RecentWindow > 0 {
		return d.cfg.RecentWindow
	}
	return domain.DefaultRecentWindow
}
