// Package draft builds the consolidated reply for a merged ticket: one
// customer-facing message with a section per distinct issue, plus an internal
// note describing how it was put together.
package draft

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/reactive-engine/internal/classifier"
	"github.com/spec-kit/reactive-engine/internal/domain"
)

// Input describes the tickets merged into one target.
type Input struct {
	RequesterName string
	// Issues maps ticket id to its classified category.
	Issues  map[string]domain.IssueCategory
	Tickets []domain.Ticket
	// CustomerText maps ticket id to what the customer wrote on it. Missing
	// entries fall back to the ticket's subject and description.
	CustomerText map[string]string
}

// Draft is the synthesized output.
type Draft struct {
	CustomerReply string
	InternalNote  string
	Categories    []domain.IssueCategory
}

type issueGroup struct {
	category  domain.IssueCategory
	ticketIDs []string
	text      []string
}

// Synthesize builds the reply. Sections follow response priority and
// repeated reports of one category collapse into a single section.
func Synthesize(in Input) Draft {
	groups := groupIssues(in)

	var reply strings.Builder
	fmt.Fprintf(&reply, "Hi %s,\n\n", firstName(in.RequesterName))
	if len(groups) > 1 {
		fmt.Fprintf(&reply, "Thanks for bearing with us while we pulled your messages together. You wrote in about %d different things, so I've answered each one below.\n\n", len(groups))
	} else {
		reply.WriteString("Thanks for bearing with us while we pulled your messages together. Here's where things stand.\n\n")
	}

	var note strings.Builder
	note.WriteString("## Draft Reply\n\n")
	fmt.Fprintf(&note, "Generated from %d ticket(s) covering %d issue(s), in response order:\n\n", countTickets(groups), len(groups))

	categories := make([]domain.IssueCategory, 0, len(groups))
	for _, g := range groups {
		categories = append(categories, g.category)
		s := sectionFor(g.category, strings.Join(g.text, "\n"))

		heading := s.Heading
		if n := len(g.ticketIDs); n > 1 {
			heading = fmt.Sprintf("%s (reported %d times)", heading, n)
		}
		fmt.Fprintf(&reply, "**%s**\n%s\n\n", heading, s.Body)
		fmt.Fprintf(&note, "- %s (%s): %s template\n", g.category, ticketList(g.ticketIDs), s.Variant)
	}

	reply.WriteString("Reply here if anything still isn't right and I'll pick it back up.\n\nThanks,\nCustomer Support")
	note.WriteString("\nReview and personalize before sending. The outbound gate checks that every issue is mentioned.")

	return Draft{
		CustomerReply: Normalize(reply.String()),
		InternalNote:  Normalize(note.String()),
		Categories:    categories,
	}
}

// Note formats a draft as the internal comment written on the target ticket.
func Note(d Draft) string {
	return d.InternalNote + "\n\n### Suggested reply\n\n" + d.CustomerReply
}

// CustomerText returns what the requester wrote on a ticket: their public
// comments in order, or the subject and description when there are none.
func CustomerText(t domain.Ticket, comments []domain.Comment) string {
	var parts []string
	for _, c := range comments {
		if c.Public && c.RoleFor(t.RequesterID) == domain.AuthorRoleCustomer && strings.TrimSpace(c.Body) != "" {
			parts = append(parts, c.Body)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(t.Subject + " " + t.Description)
	}
	return strings.Join(parts, "\n")
}

func groupIssues(in Input) []*issueGroup {
	byCategory := make(map[domain.IssueCategory]*issueGroup)
	seen := make(map[string]bool, len(in.Tickets))

	add := func(id string, category domain.IssueCategory, text string) {
		g, ok := byCategory[category]
		if !ok {
			g = &issueGroup{category: category}
			byCategory[category] = g
		}
		g.ticketIDs = append(g.ticketIDs, id)
		g.text = append(g.text, text)
	}

	for _, t := range in.Tickets {
		seen[t.ID] = true
		category, ok := in.Issues[t.ID]
		if !ok {
			category = classifier.ClassifyTicket(t)
		}
		text, ok := in.CustomerText[t.ID]
		if !ok {
			text = t.Subject + " " + t.Description
		}
		add(t.ID, category, text)
	}

	// issues for tickets that were not passed in still get a section
	var extra []string
	for id := range in.Issues {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		add(id, in.Issues[id], in.CustomerText[id])
	}

	groups := make([]*issueGroup, 0, len(byCategory))
	for _, g := range byCategory {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return classifier.ResponseRank(groups[i].category) < classifier.ResponseRank(groups[j].category)
	})
	return groups
}

func countTickets(groups []*issueGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.ticketIDs)
	}
	return n
}

func ticketList(ids []string) string {
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, "#"+id)
	}
	label := "ticket "
	if len(ids) > 1 {
		label = fmt.Sprintf("reported %d times, tickets ", len(ids))
	}
	return label + strings.Join(refs, ", ")
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}
