package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/reactive-engine/internal/classifier"
	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

// Tags written by webhook handling.
const (
	TagVIPHandling          = "vip_handling"
	TagSilentDuplicateClose = "silent_duplicate_close"
)

const (
	defaultDeliveryWindow  = 10 * time.Minute
	defaultDuplicateWindow = 10 * time.Minute
	deliveryCacheSize      = 4096
	emptyReply             = "(empty)"
)

var vipTags = []string{"vip", "high_value", "influencer"}

const vipGuidanceNote = `## VIP Customer Alert

This is a VIP customer. Apply enhanced handling:

- **Priority:** Automatically set to HIGH (minimum)
- **SLA:** Respond within 2 hours
- **Tone:** Executive-level empathy, acknowledge their loyalty
- **Authority:** You have retention authority. Offer service credits up to $50 without L2 approval
- **Follow-up:** Schedule a personal follow-up within 24 hours after resolution
- **Escalation:** If unresolved within 4 hours, auto-escalate to L2 with VIP flag`

// UpdateAction names what TicketUpdated did.
type UpdateAction string

const (
	UpdateActionNone          UpdateAction = "none"
	UpdateActionRedirected    UpdateAction = "redirected"
	UpdateActionAutoPending   UpdateAction = "auto_pending"
	UpdateActionAgentNotified UpdateAction = "agent_notified"
)

// UpdateResult describes the reaction to a ticket update.
type UpdateResult struct {
	Action       UpdateAction
	TicketID     string
	SourceTicket string
	TargetTicket string
	Message      string
	Error        string
}

// VIPResult describes a VIP check.
type VIPResult struct {
	IsVIP    bool
	TicketID string
	Priority domain.TicketPriority
	Error    string
}

// DuplicateResult describes a duplicate-subject check.
type DuplicateResult struct {
	IsDuplicate    bool
	TicketID       string
	ClosedTicket   string
	OriginalTicket string
	Error          string
}

// StatusReport summarizes coordination state.
type StatusReport struct {
	Status        string
	PendingMerges int
	ActiveLocks   int
	Timestamp     time.Time
	Error         string
}

// ReactiveService handles help desk webhooks on top of the merge
// coordinator and the lock table.
type ReactiveService struct {
	store      ticketstore.Store
	merges     *MergeService
	locks      *LockService
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger

	deliveryWindow  time.Duration
	duplicateWindow time.Duration

	deliveryMu sync.Mutex
	deliveries *lru.Cache[string, time.Time]
}

// ReactiveDependencies bundles collaborators for webhook handling.
type ReactiveDependencies struct {
	Store           ticketstore.Store
	Merges          *MergeService
	Locks           *LockService
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Clock           clock.Clock
	Logger          *zap.Logger
	DeliveryWindow  time.Duration
	DuplicateWindow time.Duration
}

// NewReactiveService constructs the service.
func NewReactiveService(deps ReactiveDependencies) (*ReactiveService, error) {
	cache, err := lru.New[string, time.Time](deliveryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("delivery cache init: %w", err)
	}
	s := &ReactiveService{
		store:           deps.Store,
		merges:          deps.Merges,
		locks:           deps.Locks,
		dispatcher:      deps.Dispatcher,
		metrics:         deps.Metrics,
		clock:           deps.Clock,
		logger:          deps.Logger,
		deliveryWindow:  deps.DeliveryWindow,
		duplicateWindow: deps.DuplicateWindow,
		deliveries:      cache,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("reactive")
	if s.deliveryWindow <= 0 {
		s.deliveryWindow = defaultDeliveryWindow
	}
	if s.duplicateWindow <= 0 {
		s.duplicateWindow = defaultDuplicateWindow
	}
	return s, nil
}

// TicketCreated handles the ticket-created webhook. Repeated deliveries for
// the same ticket inside the delivery window are acknowledged without work.
func (s *ReactiveService) TicketCreated(ctx context.Context, ticketID, requesterEmail string) (*ScheduleResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" || strings.TrimSpace(requesterEmail) == "" {
		return nil, missing("ticket_id", "requester_email")
	}
	if s.seenDelivery(ticketID) {
		s.metrics.WebhookDuplicate()
		s.logger.Info("duplicate ticket-created delivery ignored", zap.String("ticket_id", ticketID))
		return &ScheduleResult{
			Action:   ScheduleActionNone,
			Message:  "Duplicate delivery ignored",
			TicketID: ticketID,
		}, nil
	}
	result, err := s.merges.ScheduleMerge(ctx, requesterEmail, ticketID)
	if err != nil || result.Error != "" {
		s.forgetDelivery(ticketID)
	}
	return result, err
}

// seenDelivery reports whether ticketID was delivered within the window and
// records this delivery otherwise.
func (s *ReactiveService) seenDelivery(ticketID string) bool {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()
	now := s.clock.Now()
	if ts, ok := s.deliveries.Get(ticketID); ok {
		if now.Sub(ts) < s.deliveryWindow {
			return true
		}
		s.deliveries.Remove(ticketID)
	}
	s.deliveries.Add(ticketID, now)
	return false
}

func (s *ReactiveService) forgetDelivery(ticketID string) {
	s.deliveryMu.Lock()
	defer s.deliveryMu.Unlock()
	s.deliveries.Remove(ticketID)
}

// TicketUpdated reacts to a new comment on a ticket: replies to merged
// sources are redirected, short thank-you replies park the ticket, and
// agents holding a lock on a consolidated ticket are warned.
func (s *ReactiveService) TicketUpdated(ctx context.Context, ticketID string) (*UpdateResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, missing("ticket_id")
	}
	log := s.logger.With(zap.String("ticket_id", ticketID))
	result := &UpdateResult{Action: UpdateActionNone, TicketID: ticketID}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return s.updateFailed(log, result, fmt.Errorf("get ticket: %w", err)), nil
	}

	merged := ticket.HasTag(ticketstore.TagMergedSource)
	if merged {
		if targetID := mergedInto(ticket.Tags); targetID != "" {
			if err := s.redirect(ctx, ticket, targetID); err != nil {
				return s.updateFailed(log, result, err), nil
			}
			log.Info("reply redirected to consolidated ticket", zap.String("target_ticket", targetID))
			s.publish(ctx, events.New(events.EventReplyRedirected, ticketID, events.Actor{Type: domain.SubjectTypeWebhook}, s.clock.Now(),
				events.ReplyRedirectedPayload{TargetTicket: targetID}))
			result.Action = UpdateActionRedirected
			result.SourceTicket = ticketID
			result.TargetTicket = targetID
			result.Message = "Reply redirected to active consolidated ticket"
			return result, nil
		}
	}

	consolidated := ticket.HasTag(TagConsolidated)
	if consolidated || !merged {
		comments, err := s.store.GetComments(ctx, ticketID)
		if err != nil {
			return s.updateFailed(log, result, fmt.Errorf("get comments: %w", err)), nil
		}
		if latest, ok := lastComment(comments); ok &&
			latest.RoleFor(ticket.RequesterID) == domain.AuthorRoleCustomer && classifier.IsGratitude(latest.Body) {
			pending := domain.TicketStatusPending
			if _, err := s.store.UpdateTicket(ctx, ticketID, domain.TicketUpdate{Status: &pending}); err != nil {
				return s.updateFailed(log, result, fmt.Errorf("set pending: %w", err)), nil
			}
			note := fmt.Sprintf("Customer acknowledged with: \"%s\". Auto-set to pending. Will auto-solve in 24h if no further replies.", latest.Body)
			if err := ticketstore.AddInternalNote(ctx, s.store, ticketID, note); err != nil {
				return s.updateFailed(log, result, fmt.Errorf("note ticket: %w", err)), nil
			}
			log.Info("gratitude reply, ticket set to pending")
			result.Action = UpdateActionAutoPending
			result.Message = "Gratitude reply detected. Ticket set to pending."
			return result, nil
		}
	}

	if consolidated {
		holder, err := s.locks.Holder(ctx, ticketID)
		if err != nil {
			return s.updateFailed(log, result, fmt.Errorf("read lock: %w", err)), nil
		}
		if holder != nil {
			note := ":warning: **NEW CUSTOMER REPLY arrived while you were working on this ticket!** " +
				"Please review the latest comment before sending your response."
			if err := ticketstore.AddInternalNote(ctx, s.store, ticketID, note); err != nil {
				return s.updateFailed(log, result, fmt.Errorf("note ticket: %w", err)), nil
			}
			log.Info("lock holder notified of new reply", zap.String("agent_id", holder.AgentID))
			result.Action = UpdateActionAgentNotified
			result.Message = "Agent working on ticket notified of new reply"
			return result, nil
		}
	}
	return result, nil
}

func (s *ReactiveService) redirect(ctx context.Context, source *domain.Ticket, targetID string) error {
	comments, err := s.store.GetComments(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("get comments: %w", err)
	}
	body := emptyReply
	if latest, ok := lastComment(comments); ok && latest.Body != "" {
		body = latest.Body
	}
	note := fmt.Sprintf(":warning: **Customer replied to merged ticket #%s.**\nTheir message: \"%s\"\n"+
		"This has been redirected here from the closed source ticket.", source.ID, body)
	if err := ticketstore.AddInternalNote(ctx, s.store, targetID, note); err != nil {
		return fmt.Errorf("note target %s: %w", targetID, err)
	}
	if err := ticketstore.AddInternalNote(ctx, s.store, source.ID,
		fmt.Sprintf("Customer reply redirected to active ticket #%s.", targetID)); err != nil {
		return fmt.Errorf("note source: %w", err)
	}
	return nil
}

func (s *ReactiveService) updateFailed(log *zap.Logger, result *UpdateResult, err error) *UpdateResult {
	log.Error("ticket update handling failed", zap.Error(err))
	result.Error = err.Error()
	return result
}

// VIPCheck raises VIP tickets to at least high priority and adds handling
// guidance once.
func (s *ReactiveService) VIPCheck(ctx context.Context, ticketID string) (*VIPResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, missing("ticket_id")
	}
	log := s.logger.With(zap.String("ticket_id", ticketID))
	result := &VIPResult{TicketID: ticketID}

	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		log.Error("vip check failed", zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}
	result.Priority = ticket.Priority
	if !hasAnyTag(ticket, vipTags) {
		return result, nil
	}
	result.IsVIP = true

	if ticket.Priority.Rank() < domain.TicketPriorityHigh.Rank() {
		high := domain.TicketPriorityHigh
		if _, err := s.store.UpdateTicket(ctx, ticketID, domain.TicketUpdate{Priority: &high}); err != nil {
			log.Error("raise vip priority failed", zap.Error(err))
			result.Error = err.Error()
			return result, nil
		}
		result.Priority = high
	}
	if !ticket.HasTag(TagVIPHandling) {
		if _, err := s.store.UpdateTicket(ctx, ticketID, domain.TicketUpdate{
			Tags: unionTags(ticket.Tags, []string{TagVIPHandling}),
		}); err != nil {
			log.Error("tag vip ticket failed", zap.Error(err))
			result.Error = err.Error()
			return result, nil
		}
		if err := ticketstore.AddInternalNote(ctx, s.store, ticketID, vipGuidanceNote); err != nil {
			log.Error("vip guidance note failed", zap.Error(err))
			result.Error = err.Error()
			return result, nil
		}
		log.Info("vip handling applied")
	}
	return result, nil
}

// CheckDuplicate silently solves ticketID when the requester opened another
// ticket with the same subject within the duplicate window. An empty
// subject is read from the ticket itself.
func (s *ReactiveService) CheckDuplicate(ctx context.Context, ticketID, requesterEmail, subject string) (*DuplicateResult, error) {
	ticketID = strings.TrimSpace(ticketID)
	email := normalizeEmail(requesterEmail)
	if ticketID == "" || email == "" {
		return nil, missing("ticket_id", "requester_email")
	}
	log := s.logger.With(zap.String("ticket_id", ticketID), zap.String("requester_email", email))
	result := &DuplicateResult{TicketID: ticketID}
	fail := func(err error) (*DuplicateResult, error) {
		log.Error("duplicate check failed", zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}

	if strings.TrimSpace(subject) == "" {
		ticket, err := s.store.GetTicket(ctx, ticketID)
		if err != nil {
			return fail(fmt.Errorf("get ticket: %w", err))
		}
		subject = ticket.Subject
	}
	wanted := normalizeSubject(subject)
	if wanted == "" {
		return result, nil
	}

	open, err := s.store.SearchOpenByRequester(ctx, email)
	if err != nil {
		return fail(fmt.Errorf("search open tickets: %w", err))
	}
	cutoff := s.clock.Now().Add(-s.duplicateWindow)
	var original *domain.Ticket
	for i := range open {
		t := &open[i]
		if t.ID != ticketID && normalizeSubject(t.Subject) == wanted && t.CreatedAt.After(cutoff) {
			original = t
			break
		}
	}
	if original == nil {
		return result, nil
	}

	current, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fail(fmt.Errorf("get ticket: %w", err))
	}
	solved := domain.TicketStatusSolved
	if _, err := s.store.UpdateTicket(ctx, ticketID, domain.TicketUpdate{
		Status: &solved,
		Tags:   unionTags(current.Tags, []string{TagSilentDuplicateClose}),
		Comment: &domain.CommentInput{
			Body: fmt.Sprintf("Duplicate of #%s - same subject within %s. Silently closed.", original.ID, humanDuration(s.duplicateWindow)),
		},
	}); err != nil {
		return fail(fmt.Errorf("close duplicate: %w", err))
	}
	log.Info("duplicate ticket closed", zap.String("original_ticket", original.ID))
	result.IsDuplicate = true
	result.ClosedTicket = ticketID
	result.OriginalTicket = original.ID
	return result, nil
}

// Status reports pending merges and active locks.
// Status is "degraded" when the lock table cannot be read.
func (s *ReactiveService) Status(ctx context.Context) StatusReport {
	report := StatusReport{
		Status:        "ok",
		PendingMerges: s.merges.PendingCount(ctx),
		Timestamp:     s.clock.Now().UTC(),
	}
	locks, err := s.locks.ActiveCount(ctx)
	if err != nil {
		report.Status = "degraded"
		report.Error = err.Error()
		return report
	}
	report.ActiveLocks = locks
	return report
}

func (s *ReactiveService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.logger, event)
}

func mergedInto(tags []string) string {
	for _, tag := range tags {
		if strings.HasPrefix(tag, TagMergedIntoPrefix) {
			return strings.TrimPrefix(tag, TagMergedIntoPrefix)
		}
	}
	return ""
}

func lastComment(comments []domain.Comment) (domain.Comment, bool) {
	if len(comments) == 0 {
		return domain.Comment{}, false
	}
	return comments[len(comments)-1], true
}

func hasAnyTag(t *domain.Ticket, tags []string) bool {
	for _, tag := range tags {
		if t.HasTag(tag) {
			return true
		}
	}
	return false
}

func normalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}
