package draft

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/reactive-engine/internal/classifier"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

func TestSynthesizeOrdersSectionsByResponsePriority(t *testing.T) {
	d := Synthesize(Input{
		RequesterName: "Ada Lovelace",
		Issues: map[string]domain.IssueCategory{
			"1": domain.IssuePayment,
			"2": domain.IssueESIM,
			"3": domain.IssueNetwork,
		},
		Tickets: []domain.Ticket{
			{ID: "3", Subject: "no signal"},
			{ID: "2", Subject: "eSIM not activating"},
			{ID: "1", Subject: "payment failed"},
		},
	})

	require.Equal(t, []domain.IssueCategory{domain.IssueNetwork, domain.IssueESIM, domain.IssuePayment}, d.Categories)
	assert.True(t, strings.HasPrefix(d.CustomerReply, "Hi Ada,"))

	network := strings.Index(d.CustomerReply, "**Your network connection**")
	esim := strings.Index(d.CustomerReply, "**Your eSIM**")
	payment := strings.Index(d.CustomerReply, "**Your payment**")
	require.True(t, network >= 0 && esim >= 0 && payment >= 0)
	assert.Less(t, network, esim)
	assert.Less(t, esim, payment)
}

func TestSynthesizeCollapsesRepeatedCategories(t *testing.T) {
	d := Synthesize(Input{
		Issues: map[string]domain.IssueCategory{
			"1": domain.IssueNetwork,
			"2": domain.IssueNetwork,
			"3": domain.IssueBilling,
		},
		Tickets: []domain.Ticket{{ID: "1"}, {ID: "2"}, {ID: "3"}},
	})

	assert.Equal(t, 1, strings.Count(d.CustomerReply, "Your network connection"))
	assert.Contains(t, d.CustomerReply, "(reported 2 times)")
	assert.True(t, strings.HasPrefix(d.CustomerReply, "Hi there,"))
	assert.Contains(t, d.InternalNote, "reported 2 times, tickets #1, #2")
}

func TestSynthesizePaymentTemplateBranches(t *testing.T) {
	cases := map[string]string{
		"I got a double charge this month": "duplicate charge",
		"my card was declined":             "was declined",
		"where is my refund":               "refund has been submitted",
		"question about a payment":         "payment history",
	}
	for text, want := range cases {
		d := Synthesize(Input{
			Issues:       map[string]domain.IssueCategory{"1": domain.IssuePayment},
			Tickets:      []domain.Ticket{{ID: "1"}},
			CustomerText: map[string]string{"1": text},
		})
		assert.Contains(t, d.CustomerReply, want, text)
	}
}

func TestSynthesizePortInConflictCode(t *testing.T) {
	d := Synthesize(Input{
		Issues:       map[string]domain.IssueCategory{"1": domain.IssuePortIn},
		Tickets:      []domain.Ticket{{ID: "1"}},
		CustomerText: map[string]string{"1": "port rejected with error 6P"},
	})
	assert.Contains(t, d.CustomerReply, "code 6P")
	assert.Contains(t, d.InternalNote, "conflict_6P template")
}

func TestSynthesizedReplyMentionsEveryCategory(t *testing.T) {
	issues := map[string]domain.IssueCategory{}
	var tickets []domain.Ticket
	for i, category := range []domain.IssueCategory{
		domain.IssueNetwork, domain.IssueESIM, domain.IssuePayment, domain.IssueBilling,
		domain.IssuePortIn, domain.IssueAccount, domain.IssueAirvet,
	} {
		id := string(rune('a' + i))
		issues[id] = category
		tickets = append(tickets, domain.Ticket{ID: id})
	}

	d := Synthesize(Input{Issues: issues, Tickets: tickets})
	for _, category := range d.Categories {
		assert.True(t, classifier.Mentions(d.CustomerReply, category), "reply should mention %s", category)
	}
}

func TestSynthesizeUnlistedTicketIsClassified(t *testing.T) {
	d := Synthesize(Input{
		Tickets: []domain.Ticket{{ID: "9", Subject: "vet appointment for my pet"}},
	})
	assert.Equal(t, []domain.IssueCategory{domain.IssueAirvet}, d.Categories)
}

func TestCustomerTextPrefersRequesterComments(t *testing.T) {
	ticket := domain.Ticket{ID: "1", RequesterID: "77", Subject: "help", Description: "eSIM broken"}
	comments := []domain.Comment{
		{AuthorID: "77", Body: "my eSIM QR code fails", Public: true},
		{AuthorID: "9", Body: "agent reply", Public: true},
		{AuthorID: "77", Body: "private", Public: false},
		{AuthorID: "77", Body: "still failing", Public: true},
	}
	assert.Equal(t, "my eSIM QR code fails\nstill failing", CustomerText(ticket, comments))
	assert.Equal(t, "help eSIM broken", CustomerText(ticket, nil))
}

func TestNoteIncludesReply(t *testing.T) {
	d := Draft{InternalNote: "note", CustomerReply: "reply"}
	assert.Equal(t, "note\n\n### Suggested reply\n\nreply", Note(d))
}
