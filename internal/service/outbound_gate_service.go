package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/classifier"
	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/repository"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

// WarningType identifies an outbound gate check.
type WarningType string

const (
	WarningSendWindow         WarningType = "15min_window"
	WarningMissedIssues       WarningType = "missed_issues"
	WarningProactiveCollision WarningType = "proactive_collision"
	WarningSaturation         WarningType = "saturation"
)

const (
	defaultSendWindow      = 15 * time.Minute
	defaultProactiveWindow = 30 * time.Minute
	defaultSaturationLimit = 5
	outboundChannel        = "email"
)

// OutboundRequest is a reply an agent is about to send.
type OutboundRequest struct {
	TicketID       string
	RequesterEmail string
	DraftText      string
	Override       bool
}

// Warning is one gate finding. Only the fields relevant to Type are set.
type Warning struct {
	Type     WarningType
	Message  string
	Blocking bool

	LastSent       *time.Time
	Missed         []domain.IssueCategory
	IssueCount     int
	AddressedCount int
	Proactive      *domain.CommEntry
	Count          int
}

// OutboundDecision is the gate verdict.
type OutboundDecision struct {
	Allow        bool
	Warnings     []Warning
	TicketID     string
	OverrideUsed bool
	Error        string
}

// ProactiveRequest records a send made by the proactive outreach system.
type ProactiveRequest struct {
	RecipientEmail string
	TicketID       string
	Channel        string
	SignalType     string
	MessageID      string
}

// OutboundGateService is the last check before a reply reaches a customer.
type OutboundGateService struct {
	comms      repository.CommsLogRepository
	store      ticketstore.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger

	sendWindow      time.Duration
	proactiveWindow time.Duration
	saturationSpan  time.Duration
	saturationLimit int

	recipients keyedMutex
}

// OutboundGateDependencies bundles collaborators for the gate.
type OutboundGateDependencies struct {
	CommsLog        repository.CommsLogRepository
	Store           ticketstore.Store
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Clock           clock.Clock
	Logger          *zap.Logger
	SendWindow      time.Duration
	ProactiveWindow time.Duration
	SaturationSpan  time.Duration
	SaturationLimit int
}

// NewOutboundGateService constructs the gate.
func NewOutboundGateService(deps OutboundGateDependencies) *OutboundGateService {
	g := &OutboundGateService{
		comms:           deps.CommsLog,
		store:           deps.Store,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		clock:           deps.Clock,
		logger:          deps.Logger,
		sendWindow:      deps.SendWindow,
		proactiveWindow: deps.ProactiveWindow,
		saturationSpan:  deps.SaturationSpan,
		saturationLimit: deps.SaturationLimit,
	}
	if g.clock == nil {
		g.clock = clock.Real()
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	g.logger = g.logger.Named("outbound_gate")
	if g.sendWindow <= 0 {
		g.sendWindow = defaultSendWindow
	}
	if g.proactiveWindow <= 0 {
		g.proactiveWindow = defaultProactiveWindow
	}
	if g.saturationSpan <= 0 {
		g.saturationSpan = repository.DefaultCommsRetention
	}
	if g.saturationLimit <= 0 {
		g.saturationLimit = defaultSaturationLimit
	}
	return g
}

// CheckOutbound runs every gate check and logs the send when it is allowed.
// Blocking checks that an override bypasses are still reported, with
// Blocking unset.
func (g *OutboundGateService) CheckOutbound(ctx context.Context, req OutboundRequest) (*OutboundDecision, error) {
	recipient := normalizeEmail(req.RequesterEmail)
	ticketID := strings.TrimSpace(req.TicketID)
	if ticketID == "" || recipient == "" {
		return nil, missing("ticket_id", "requester_email")
	}
	log := g.logger.With(zap.String("requester_email", recipient), zap.String("ticket_id", ticketID))

	unlock := g.recipients.Lock(recipient)
	defer unlock()

	decision := &OutboundDecision{TicketID: ticketID, OverrideUsed: req.Override}
	fail := func(err error) (*OutboundDecision, error) {
		log.Error("outbound gate check failed", zap.Error(err))
		g.metrics.GateDecision("error")
		decision.Allow = false
		decision.Error = err.Error()
		return decision, nil
	}

	now := g.clock.Now()
	recent, err := g.comms.Since(ctx, recipient, now.Add(-g.saturationSpan))
	if err != nil {
		return fail(fmt.Errorf("read comms log: %w", err))
	}
	ticket, err := g.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fail(fmt.Errorf("get ticket %s: %w", ticketID, err))
	}

	blocked := false
	if w, ok := g.windowCheck(now, recent); ok {
		w.Blocking = !req.Override
		blocked = blocked || w.Blocking
		decision.Warnings = append(decision.Warnings, w)
	}
	if w, ok := completenessCheck(ticket, req.DraftText); ok {
		decision.Warnings = append(decision.Warnings, w)
	}
	if w, ok := g.proactiveCheck(now, recent); ok {
		decision.Warnings = append(decision.Warnings, w)
	}
	if w, ok := g.saturationCheck(recent); ok {
		w.Blocking = !req.Override
		blocked = blocked || w.Blocking
		decision.Warnings = append(decision.Warnings, w)
	}

	types := warningTypes(decision.Warnings)
	if blocked {
		log.Info("outbound send blocked", zap.Strings("reasons", types))
		g.metrics.GateDecision("blocked", types...)
		g.publish(ctx, events.New(events.EventOutboundBlocked, ticketID, events.Actor{Type: domain.SubjectTypeAgent}, now,
			events.OutboundBlockedPayload{RequesterEmail: recipient, Reasons: blockingTypes(decision.Warnings)}))
		return decision, nil
	}

	entry := &domain.CommEntry{
		Recipient: recipient,
		Channel:   outboundChannel,
		Source:    domain.CommSourceAgentResponse,
		TicketID:  ticketID,
	}
	if err := g.comms.Append(ctx, entry); err != nil {
		return fail(fmt.Errorf("append comms log: %w", err))
	}
	decision.Allow = true
	outcome := "allowed"
	if req.Override && len(types) > 0 {
		outcome = "overridden"
	}
	g.metrics.GateDecision(outcome, types...)
	log.Info("outbound send allowed", zap.Bool("override", req.Override), zap.Strings("warnings", types))
	return decision, nil
}

func (g *OutboundGateService) windowCheck(now time.Time, recent []domain.CommEntry) (Warning, bool) {
	cutoff := now.Add(-g.sendWindow)
	var last *domain.CommEntry
	for i := range recent {
		if recent[i].DispatchedAt.After(cutoff) {
			last = &recent[i]
		}
	}
	if last == nil {
		return Warning{}, false
	}
	elapsed := now.Sub(last.DispatchedAt)
	minutesAgo := int(math.Round(elapsed.Minutes()))
	remaining := int(math.Ceil((g.sendWindow - elapsed).Minutes()))
	sent := last.DispatchedAt
	return Warning{
		Type: WarningSendWindow,
		Message: fmt.Sprintf("A response was sent to this customer %d min ago. Wait %d more minutes or override.",
			minutesAgo, remaining),
		LastSent: &sent,
	}, true
}

func completenessCheck(ticket *domain.Ticket, draftText string) (Warning, bool) {
	if strings.TrimSpace(draftText) == "" || !ticket.HasTag(TagConsolidated) {
		return Warning{}, false
	}
	var threads, unaddressed int
	var missed []domain.IssueCategory
	seen := make(map[domain.IssueCategory]bool)
	for _, tag := range ticket.Tags {
		category, ok := issueThreadCategory(tag)
		if !ok {
			continue
		}
		threads++
		if category == domain.IssueGeneral || classifier.Mentions(draftText, category) {
			continue
		}
		unaddressed++
		if !seen[category] {
			seen[category] = true
			missed = append(missed, category)
		}
	}
	if len(missed) == 0 {
		return Warning{}, false
	}
	// counts are per thread, missed is per category
	return Warning{
		Type:           WarningMissedIssues,
		Message:        "Your response may not address all customer issues.",
		Missed:         missed,
		IssueCount:     threads,
		AddressedCount: threads - unaddressed,
	}, true
}

// issueThreadCategory extracts "esim" from "issue_thread_1_esim".
func issueThreadCategory(tag string) (domain.IssueCategory, bool) {
	if !strings.HasPrefix(tag, TagIssueThreadPrefix) {
		return "", false
	}
	parts := strings.Split(tag, "_")
	if len(parts) < 4 {
		return "", false
	}
	return domain.IssueCategory(strings.Join(parts[3:], "_")), true
}

func (g *OutboundGateService) proactiveCheck(now time.Time, recent []domain.CommEntry) (Warning, bool) {
	cutoff := now.Add(-g.proactiveWindow)
	var latest *domain.CommEntry
	for i := range recent {
		if recent[i].Source == domain.CommSourceProactive && recent[i].DispatchedAt.After(cutoff) {
			latest = &recent[i]
		}
	}
	if latest == nil {
		return Warning{}, false
	}
	details := *latest
	return Warning{
		Type: WarningProactiveCollision,
		Message: fmt.Sprintf("A proactive outreach was sent to this customer %d min ago. Reference it in your response.",
			int(math.Round(now.Sub(latest.DispatchedAt).Minutes()))),
		Proactive: &details,
	}, true
}

func (g *OutboundGateService) saturationCheck(recent []domain.CommEntry) (Warning, bool) {
	if len(recent) < g.saturationLimit {
		return Warning{}, false
	}
	return Warning{
		Type: WarningSaturation,
		Message: fmt.Sprintf("Customer has received %d messages in the last 24h (combined proactive+reactive cap is %d). Override required to send.",
			len(recent), g.saturationLimit),
		Count: len(recent),
	}, true
}

// RecordProactive logs a send made outside the agent workflow so later gate
// checks can see it.
func (g *OutboundGateService) RecordProactive(ctx context.Context, req ProactiveRequest) (*domain.CommEntry, error) {
	recipient := normalizeEmail(req.RecipientEmail)
	if recipient == "" {
		return nil, missing("recipient_email")
	}
	channel := strings.TrimSpace(req.Channel)
	if channel == "" {
		channel = outboundChannel
	}
	unlock := g.recipients.Lock(recipient)
	defer unlock()

	entry := &domain.CommEntry{
		Recipient:  recipient,
		Channel:    channel,
		Source:     domain.CommSourceProactive,
		TicketID:   strings.TrimSpace(req.TicketID),
		SignalType: req.SignalType,
		MessageID:  req.MessageID,
	}
	if err := g.comms.Append(ctx, entry); err != nil {
		g.logger.Error("record proactive send failed", zap.String("requester_email", recipient), zap.Error(err))
		return nil, fmt.Errorf("append comms log: %w", err)
	}
	return entry, nil
}

func (g *OutboundGateService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, g.dispatcher, g.logger, event)
}

func warningTypes(warnings []Warning) []string {
	out := make([]string, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, string(w.Type))
	}
	return out
}

func blockingTypes(warnings []Warning) []string {
	var out []string
	for _, w := range warnings {
		if w.Blocking {
			out = append(out, string(w.Type))
		}
	}
	return out
}
