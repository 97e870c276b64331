package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

func schedulingNote(total int, grace time.Duration) string {
	return fmt.Sprintf("Multiple open tickets detected for this customer (%d total). Consolidation scheduled in %s.",
		total, humanDuration(grace))
}

func historyNote(source domain.Ticket, category domain.IssueCategory, comments []domain.Comment) string {
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			c.CreatedAt.UTC().Format("2006-01-02 15:04 MST"), c.RoleFor(source.RequesterID), c.Body))
	}
	return fmt.Sprintf("---\n**[MERGED] From Ticket #%s (%s)**\n**Subject:** %s\n**Created:** %s\n**Issue:** %s\n\n**Conversation History:**\n%s\n---",
		source.ID, channelOf(source), source.Subject, source.CreatedAt.UTC().Format(time.RFC3339), category,
		strings.Join(lines, "\n\n"))
}

func sourceClosingComment(targetID string) string {
	return fmt.Sprintf("This ticket has been merged into #%s as part of customer ticket consolidation. "+
		"All conversation history has been copied to the target ticket.", targetID)
}

func summaryNote(at time.Time, target domain.Ticket, sources []domain.Ticket, issues map[string]domain.IssueCategory, unique int) string {
	var b strings.Builder
	b.WriteString("## Ticket Consolidation Summary\n\n")
	fmt.Fprintf(&b, "**Consolidated at:** %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Target ticket:** #%s\n", target.ID)
	fmt.Fprintf(&b, "**Source tickets merged:** %d\n", len(sources))
	fmt.Fprintf(&b, "**Total issues identified:** %d\n\n", unique)
	b.WriteString("### Issues Overview\n\n")
	b.WriteString("| # | Subject | Source Ticket | Channel | Priority | Issue |\n")
	b.WriteString("|---|---------|--------------|---------|----------|-------|\n")
	for i, src := range sources {
		subject := src.Subject
		if subject == "" {
			subject = "N/A"
		}
		priority := src.Priority
		if priority == "" {
			priority = domain.TicketPriorityNormal
		}
		category, ok := issues[src.ID]
		if !ok {
			category = domain.IssueGeneral
		}
		fmt.Fprintf(&b, "| %d | %s | #%s | %s | %s | %s |\n", i+1, subject, src.ID, channelOf(src), priority, category)
	}
	b.WriteString("\n### Action Required\nAgent must address ALL issues in a single consolidated response.")
	return b.String()
}

func checklistNote(unique []domain.IssueCategory) string {
	var b strings.Builder
	b.WriteString("## Agent Pre-Response Checklist\n\n")
	b.WriteString("Before responding to this customer, complete the following:\n\n")
	b.WriteString("- [ ] Read ALL merged conversation histories (see internal notes)\n")
	fmt.Fprintf(&b, "- [ ] Identify root cause for EACH issue (%d issues found)\n", len(unique))
	for _, issue := range unique {
		fmt.Fprintf(&b, "  - [ ] %s\n", issue)
	}
	b.WriteString("- [ ] Check if any issue has a proactive outreach already sent (look for proactive_alert tag)\n")
	b.WriteString("- [ ] Determine resolution or next step for EACH issue\n")
	b.WriteString("- [ ] Draft ONE consolidated response covering ALL issues\n")
	b.WriteString("- [ ] Select response channel (email for multi-issue)\n")
	b.WriteString("- [ ] Verify response passes outbound gate\n\n")
	b.WriteString("### Priority Ordering for Response\n")
	b.WriteString("1. Service-impacting (no connectivity, can't make calls)\n")
	b.WriteString("2. Financial (double charges, billing errors)\n")
	b.WriteString("3. Pending actions (port-in, eSIM activation)\n")
	b.WriteString("4. Informational (how-to, status updates)")
	return b.String()
}

func multiIssueNote(unique []domain.IssueCategory) string {
	var b strings.Builder
	b.WriteString("## IMPORTANT: Multiple Different Issues Detected\n\n")
	fmt.Fprintf(&b, "This customer has %d distinct issues across their tickets:\n", len(unique))
	for i, issue := range unique {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, issue)
	}
	b.WriteString("\nYour response MUST address each issue in its own section:\n\n")
	b.WriteString("> **About your [issue 1]:**\n> [diagnosis + resolution]\n>\n")
	b.WriteString("> **About your [issue 2]:**\n> [diagnosis + resolution]\n\n")
	b.WriteString("The outbound gate will verify that all issues are addressed before allowing send.")
	return b.String()
}

func channelOf(t domain.Ticket) string {
	if t.Channel == "" {
		return "unknown"
	}
	return t.Channel
}

// humanDuration renders whole minutes as "2 minutes" and anything else in seconds.
func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
