package domain

// SubjectType differentiates the callers that hold engine tokens.
type SubjectType string

const (
	// SubjectTypeAgent is a support agent working from the sidebar app.
	SubjectTypeAgent SubjectType = "AGENT"
	// SubjectTypeWebhook is the help desk delivering trigger webhooks.
	SubjectTypeWebhook SubjectType = "WEBHOOK"
	// SubjectTypeSystem is an internal integration such as the proactive outreach job.
	SubjectTypeSystem SubjectType = "SYSTEM"
)
