// Package classifier maps free ticket text onto an issue category by
// keyword containment. Classification is best effort: it is only as good as
// the keyword lists below.
package classifier

import (
	"strings"

	"github.com/spec-kit/reactive-engine/internal/domain"
)

// classificationOrder is the precedence used when text matches several
// categories.
var classificationOrder = []domain.IssueCategory{
	domain.IssueESIM,
	domain.IssuePayment,
	domain.IssuePortIn,
	domain.IssueNetwork,
	domain.IssueAccount,
	domain.IssueBilling,
	domain.IssueAirvet,
}

var keywords = map[domain.IssueCategory][]string{
	domain.IssueESIM:    {"esim", "e-sim", "activation", "qr code", "sim", "provisioning"},
	domain.IssuePayment: {"payment", "charge", "refund", "billing", "card", "declined", "invoice", "double charge"},
	domain.IssuePortIn:  {"port", "transfer number", "keep my number", "porting", "number transfer"},
	domain.IssueNetwork: {"signal", "network", "data", "coverage", "no service", "outage", "slow"},
	domain.IssueAccount: {"login", "password", "account", "email change", "cancel", "suspend"},
	domain.IssueBilling: {"bill", "subscription", "plan", "upgrade", "downgrade", "renewal"},
	domain.IssueAirvet:  {"airvet", "vet", "pet", "veterinary"},
	domain.IssueGeneral: {},
}

// responseOrder ranks categories by operational impact, service-impacting first.
var responseOrder = []domain.IssueCategory{
	domain.IssueNetwork,
	domain.IssueESIM,
	domain.IssuePayment,
	domain.IssueBilling,
	domain.IssuePortIn,
	domain.IssueAccount,
	domain.IssueAirvet,
	domain.IssueGeneral,
}

var gratitudeKeywords = []string{
	"thanks", "thank you", "got it", "perfect", "great",
	"awesome", "appreciate", "that works", "all good", "wonderful",
}

const maxGratitudeLength = 50

// Classify returns the first category whose keywords appear in text, or general.
func Classify(text string) domain.IssueCategory {
	lower := strings.ToLower(text)
	for _, category := range classificationOrder {
		if containsAny(lower, keywords[category]) {
			return category
		}
	}
	return domain.IssueGeneral
}

// ClassifyTicket classifies a ticket from its subject and description.
func ClassifyTicket(t domain.Ticket) domain.IssueCategory {
	return Classify(t.Subject + " " + t.Description)
}

// Keywords returns the keyword list for category. Unknown categories have none.
func Keywords(category domain.IssueCategory) []string {
	return append([]string(nil), keywords[category]...)
}

// Mentions reports whether text contains at least one keyword of category.
func Mentions(text string, category domain.IssueCategory) bool {
	return containsAny(strings.ToLower(text), keywords[category])
}

// Valid reports whether category is one of the known categories.
func Valid(category domain.IssueCategory) bool {
	_, ok := keywords[category]
	return ok
}

// ResponseRank orders a category for reply drafting; lower ranks come first.
func ResponseRank(category domain.IssueCategory) int {
	for i, c := range responseOrder {
		if c == category {
			return i
		}
	}
	return len(responseOrder)
}

// IsGratitude reports whether text is a short acknowledgement such as "thanks, got it".
func IsGratitude(text string) bool {
	if text == "" || len(text) > maxGratitudeLength {
		return false
	}
	return containsAny(strings.ToLower(strings.TrimSpace(text)), gratitudeKeywords)
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}
