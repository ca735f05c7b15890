package router

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/chatcore/chatcore/internal/domain"
)

func noopLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestRouter_Classify_OrderIDForcesOrderLookup(t *testing.T) {
	r := New(nil, true, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, shouldDocs, shouldEscalate, orderID := r.Classify(context.Background(), "where is order #482")

	assert.Equal(t, domain.QueryOrderLookup, qt)
	assert.Equal(t, "482", orderID)
	assert.True(t, shouldSQL)
	assert.False(t, shouldEscalate)
	assert.False(t, shouldDocs, "order_lookup without policy trigger words should not fetch docs")
}

func TestRouter_Classify_OrderLookupWithoutIDNeedsIdentifier(t *testing.T) {
	r := New(nil, true, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, shouldDocs, shouldEscalate, orderID := r.Classify(context.Background(), "can you check my order status")

	assert.Equal(t, domain.QueryNeedsIdentifier, qt)
	assert.Empty(t, orderID)
	assert.False(t, shouldSQL)
	assert.False(t, shouldDocs)
	assert.False(t, shouldEscalate)
}

func TestRouter_Classify_OrderLookupWithDeliveryTriggerFetchesDocs(t *testing.T) {
	r := New(nil, true, "gpt-4o-mini", 0, noopLogger())

	_, _, shouldDocs, _, _ := r.Classify(context.Background(), "order #12 delivery is late, what's your policy?")

	assert.True(t, shouldDocs)
}

func TestRouter_Classify_DBUnavailableDowngradesOrderLookup(t *testing.T) {
	r := New(nil, false, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, _, _, _ := r.Classify(context.Background(), "where's my order")

	assert.Equal(t, domain.QueryNeedsIdentifier, qt)
	assert.False(t, shouldSQL)
}

func TestRouter_Classify_DBUnavailableDowngradesBillingIssue(t *testing.T) {
	r := New(nil, false, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, shouldDocs, _, _ := r.Classify(context.Background(), "I was charged twice for my invoice")

	assert.Equal(t, domain.QueryPolicyOnly, qt)
	assert.False(t, shouldSQL)
	assert.True(t, shouldDocs)
}

func TestRouter_Classify_Escalation(t *testing.T) {
	r := New(nil, true, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, shouldDocs, shouldEscalate, _ := r.Classify(context.Background(), "let me talk to a supervisor")

	assert.Equal(t, domain.QueryEscalation, qt)
	assert.False(t, shouldSQL)
	assert.False(t, shouldDocs)
	assert.True(t, shouldEscalate)
}

func TestRouter_Classify_Chitchat(t *testing.T) {
	r := New(nil, true, "gpt-4o-mini", 0, noopLogger())

	qt, shouldSQL, shouldDocs, shouldEscalate, orderID := r.Classify(context.Background(), "hello there")

	assert.Equal(t, domain.QueryChitchat, qt)
	assert.False(t, shouldSQL)
	assert.False(t, shouldDocs)
	assert.False(t, shouldEscalate)
	assert.Empty(t, orderID)
}

func TestExtractOrderID(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"whole message bare number", "482", "482"},
		{"whole message hash prefixed", "#482", "482"},
		{"order number phrase", "order number 99", "99"},
		{"order hash phrase", "order #7", "7"},
		{"embedded hash", "my order is #123, please check", "123"},
		{"out of range rejected", "order #1000000", ""},
		{"zero rejected", "order #0", ""},
		{"no id present", "where is my package", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractOrderID(tc.query))
		})
	}
}
