package domain

// IssueCategory is the topic a ticket is about, derived from its text.
type IssueCategory string

const (
	IssueESIM    IssueCategory = "esim"
	IssuePayment IssueCategory = "payment"
	IssuePortIn  IssueCategory = "portin"
	IssueNetwork IssueCategory = "network"
	IssueAccount IssueCategory = "account"
	IssueBilling IssueCategory = "billing"
	IssueAirvet  IssueCategory = "airvet"
	IssueGeneral IssueCategory = "general"
)
