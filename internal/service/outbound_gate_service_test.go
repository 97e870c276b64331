package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

func gateRequest(draftText string, override bool) OutboundRequest {
	return OutboundRequest{TicketID: "10", RequesterEmail: "a@x.com", DraftText: draftText, Override: override}
}

func findWarning(d *OutboundDecision, wt WarningType) (Warning, bool) {
	for _, w := range d.Warnings {
		if w.Type == wt {
			return w, true
		}
	}
	return Warning{}, false
}

func TestOutboundGateFifteenMinuteWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)

	first, err := f.gate.CheckOutbound(ctx, gateRequest("hello", false))
	require.NoError(t, err)
	require.True(t, first.Allow)
	assert.Empty(t, first.Warnings)

	f.clock.Advance(14 * time.Minute)
	blocked, err := f.gate.CheckOutbound(ctx, gateRequest("hello again", false))
	require.NoError(t, err)
	assert.False(t, blocked.Allow)
	w, ok := findWarning(blocked, WarningSendWindow)
	require.True(t, ok)
	assert.True(t, w.Blocking)
	assert.Equal(t, "A response was sent to this customer 14 min ago. Wait 1 more minutes or override.", w.Message)
	require.NotNil(t, w.LastSent)
	assert.True(t, w.LastSent.Equal(epoch))
	assert.Len(t, f.events(events.EventOutboundBlocked), 1)

	f.clock.Advance(time.Minute + time.Second)
	allowed, err := f.gate.CheckOutbound(ctx, gateRequest("hello again", false))
	require.NoError(t, err)
	assert.True(t, allowed.Allow)
	_, ok = findWarning(allowed, WarningSendWindow)
	assert.False(t, ok)

	entries, err := f.comms.Since(ctx, "a@x.com", epoch.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.CommSourceAgentResponse, entries[1].Source)
	assert.Equal(t, "email", entries[1].Channel)
	assert.Equal(t, "10", entries[1].TicketID)
}

func TestOutboundGateSaturation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)

	for i := 1; i <= 5; i++ {
		d, err := f.gate.CheckOutbound(ctx, gateRequest("update", false))
		require.NoError(t, err)
		require.True(t, d.Allow, "send %d", i)
		f.clock.Advance(16 * time.Minute)
	}

	blocked, err := f.gate.CheckOutbound(ctx, gateRequest("update", false))
	require.NoError(t, err)
	assert.False(t, blocked.Allow)
	w, ok := findWarning(blocked, WarningSaturation)
	require.True(t, ok)
	assert.True(t, w.Blocking)
	assert.Equal(t, 5, w.Count)
	assert.Equal(t, "Customer has received 5 messages in the last 24h (combined proactive+reactive cap is 5). Override required to send.", w.Message)

	overridden, err := f.gate.CheckOutbound(ctx, gateRequest("update", true))
	require.NoError(t, err)
	assert.True(t, overridden.Allow)
	assert.True(t, overridden.OverrideUsed)
	w, ok = findWarning(overridden, WarningSaturation)
	require.True(t, ok)
	assert.False(t, w.Blocking)

	entries, err := f.comms.Since(ctx, "a@x.com", epoch.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestOutboundGateMissedIssues(t *testing.T) {
	f := newFixture(t)
	f.ticket("10", "a@x.com", "merged", epoch, func(t *domain.Ticket) {
		t.Tags = []string{TagConsolidated, "issue_thread_1_esim", "issue_thread_2_payment", "issue_thread_3_general"}
	})

	d, err := f.gate.CheckOutbound(context.Background(), gateRequest("We have issued a refund for the duplicate payment.", false))
	require.NoError(t, err)
	assert.True(t, d.Allow)
	w, ok := findWarning(d, WarningMissedIssues)
	require.True(t, ok)
	assert.False(t, w.Blocking)
	assert.Equal(t, []domain.IssueCategory{domain.IssueESIM}, w.Missed)
	assert.Equal(t, 3, w.IssueCount)
	assert.Equal(t, 2, w.AddressedCount)
}

func TestOutboundGateMissedIssuesListsCategoryOnce(t *testing.T) {
	f := newFixture(t)
	f.ticket("10", "a@x.com", "merged", epoch, func(t *domain.Ticket) {
		t.Tags = []string{TagConsolidated, "issue_thread_1_esim", "issue_thread_2_esim", "issue_thread_3_payment"}
	})

	d, err := f.gate.CheckOutbound(context.Background(), gateRequest("We have issued a refund for the duplicate payment.", false))
	require.NoError(t, err)
	w, ok := findWarning(d, WarningMissedIssues)
	require.True(t, ok)
	assert.Equal(t, []domain.IssueCategory{domain.IssueESIM}, w.Missed)
	assert.Equal(t, 3, w.IssueCount)
	assert.Equal(t, 1, w.AddressedCount)
}

func TestOutboundGateProactiveCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)

	entry, err := f.gate.RecordProactive(ctx, ProactiveRequest{RecipientEmail: "A@x.com", Channel: "sms", SignalType: "outage", MessageID: "msg-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.CommSourceProactive, entry.Source)
	assert.Equal(t, "a@x.com", entry.Recipient)

	f.clock.Advance(20 * time.Minute)
	d, err := f.gate.CheckOutbound(ctx, gateRequest("Sorry about the outage", false))
	require.NoError(t, err)
	assert.True(t, d.Allow)
	w, ok := findWarning(d, WarningProactiveCollision)
	require.True(t, ok)
	assert.False(t, w.Blocking)
	assert.Equal(t, "A proactive outreach was sent to this customer 20 min ago. Reference it in your response.", w.Message)
	require.NotNil(t, w.Proactive)
	assert.Equal(t, "outage", w.Proactive.SignalType)
}

func TestOutboundGateStoreFailureLogsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticket("10", "a@x.com", "question", epoch)
	f.store.Fail(ticketstore.OpGet, "10", errors.New("zendesk timeout"))

	d, err := f.gate.CheckOutbound(ctx, gateRequest("hi", true))
	require.NoError(t, err)
	assert.False(t, d.Allow)
	assert.Contains(t, d.Error, "zendesk timeout")

	entries, err := f.comms.Since(ctx, "a@x.com", epoch.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOutboundGateRequiresFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.gate.CheckOutbound(context.Background(), OutboundRequest{TicketID: "10"})
	assert.ErrorIs(t, err, ErrMissingField)
	_, err = f.gate.RecordProactive(context.Background(), ProactiveRequest{})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestIssueThreadCategory(t *testing.T) {
	category, ok := issueThreadCategory("issue_thread_1_esim")
	assert.True(t, ok)
	assert.Equal(t, domain.IssueESIM, category)

	_, ok = issueThreadCategory("issue_thread_1")
	assert.False(t, ok)
	_, ok = issueThreadCategory("consolidated_ticket")
	assert.False(t, ok)
}
