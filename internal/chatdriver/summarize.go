package chatdriver

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatcore/chatcore/internal/collaborators"
	"github.com/chatcore/chatcore/internal/domain"
)

const summaryModel = "gpt-4o-mini"

// maybeSummarize implements the summarization gate (spec §4.11 step 8,
// standardized on buffer-count per the Open Question resolution in §9):
// triggers once message_count clears the threshold and has advanced past
// the last summarized count. Failures leave the summary stale rather than
// failing the turn.
func (d *Driver) maybeSummarize(ctx context.Context, meta *domain.Session, sid string) {
	minMessages := d.cfg.SummaryMinMessages
	if minMessages <= 0 {
		minMessages = 12
	}
	if meta.MessageCount < minMessages || meta.MessageCount <= meta.SummaryMessageCount {
		return
	}
	if d.llm == nil {
		return
	}

	historyLimit := d.cfg.SummaryHistoryLimit
	if historyLimit <= 0 {
		historyLimit = 40
	}
	maxChars := d.cfg.SummaryMaxChars
	if maxChars <= 0 {
		maxChars = 256
	}

	history, err := d.store.AllMessages(ctx, sid, 2*historyLimit)
	if err != nil {
		d.log.WithError(err).Warn("summarization: failed to read history, summary stays stale")
		return
	}

	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	prompt := fmt.Sprintf(
		"Summarize this support conversation in at most %d characters, focusing on the user's goal and any unresolved issue:\n\n%s",
		maxChars, b.String(),
	)

	summary, err := d.llm.Chat(ctx, collaborators.ChatRequest{
		Model: summaryModel,
		Messages: []collaborators.ChatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   120,
	})
	if err != nil {
		d.log.WithError(err).Warn("summarization failed, summary stays stale")
		return
	}

	if len(summary) > maxChars {
		summary = summary[:maxChars]
	}
	meta.Summary = summary
	meta.SummaryMessageCount = meta.MessageCount
}
