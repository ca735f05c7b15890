// Package retrieval implements SQL retrieval (§4.4), document retrieval
// and rerank (§4.6), and the parallel fan-out/merge that runs both
// concurrently over deep copies of the turn state (§4.7).
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
	"github.com/chatcore/chatcore/internal/masking"
)

type SQLRetriever struct {
	engine    collaborators.RelationalEngine
	dbTimeout time.Duration
	log       *logrus.Logger
}

// NewSQLRetriever builds a SQLRetriever. dbTimeout bounds the relational
// query (spec §5 reference default 5s); zero disables the bound.
func NewSQLRetriever(engine collaborators.RelationalEngine, dbTimeout time.Duration, log *logrus.Logger) *SQLRetriever {
	return &SQLRetriever{engine: engine, dbTimeout: dbTimeout, log: log}
}

// Retrieve runs the single owner-gated order lookup and folds the result
// into state. Any collaborator failure is swallowed to an empty result
// (RetrievalFailure, spec §7); an unowned order likewise yields no rows and
// no citation (Testable Property 8).
func (r *SQLRetriever) Retrieve(ctx context.Context, state *domain.TurnState) {
	if r.engine == nil || !state.ShouldRetrieveSQL || state.UserID == "" || state.OrderID == "" {
		return
	}

	queryCtx, cancel := withTimeout(ctx, r.dbTimeout)
	defer cancel()
	row, found, err := r.engine.QueryOrderByIDAndUser(queryCtx, state.OrderID, state.UserID)
	if err != nil {
		r.log.WithError(err).Warn("sql retrieval failed, returning empty result")
		return
	}
	if !found {
		return
	}

	email, _ := row["customer_email"].(string)
	maskedEmail := masking.MaskEmail(email, state.Query)

	firstName, _ := row["first_name"].(string)
	lastName, _ := row["last_name"].(string)
	if state.FirstName == "" {
		state.FirstName = firstName
	}
	if state.LastName == "" {
		state.LastName = lastName
	}

	sqlRow := domain.SQLRow{
		Kind:        "order",
		OrderID:     state.OrderID,
		ProductName: stringOf(row["product_name"]),
		Email:       maskedEmail,
		FirstName:   firstName,
		LastName:    lastName,
	}
	if q, ok := row["quantity"].(int); ok {
		sqlRow.Quantity = q
	}
	sqlRow.OrderedAt = formatTimeField(row["ordered_at"])
	sqlRow.DeliveryAt = formatTimeField(row["delivery_at"])

	state.SQLRows = append(state.SQLRows, sqlRow)
	state.Citations = append(state.Citations, domain.OrderCitation(state.OrderID))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func formatTimeField(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02")
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}
