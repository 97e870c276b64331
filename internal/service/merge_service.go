package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/reactive-engine/internal/classifier"
	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/draft"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/repository"
	"github.com/spec-kit/reactive-engine/internal/scheduler"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
)

// Tags written by the merge coordinator.
const (
	TagMergePending      = "merge_pending"
	TagSuppressAutoAck   = "suppress_auto_ack"
	TagConsolidated      = "consolidated_ticket"
	TagMergedIntoPrefix  = "merged_into_"
	TagMergedCountPrefix = "merged_count_"
	TagIssueThreadPrefix = "issue_thread_"
)

const (
	defaultGracePeriod    = 2 * time.Minute
	defaultMergeTimeout   = time.Minute
	commentFetchLimit     = 4
	defaultHistoryListing = 20
)

// ScheduleAction names the outcome of a ticket-created notification.
type ScheduleAction string

const (
	ScheduleActionNone      ScheduleAction = "none"
	ScheduleActionScheduled ScheduleAction = "merge_scheduled"
)

// ScheduleResult describes what ScheduleMerge did.
type ScheduleResult struct {
	Action      ScheduleAction
	Message     string
	TicketID    string
	TicketCount int
	TicketIDs   []string
	Deadline    time.Time
	Error       string
}

// MergeService consolidates a requester's concurrent open tickets into one.
type MergeService struct {
	store      ticketstore.Store
	scheduler  *scheduler.Scheduler
	pending    repository.PendingMergeRepository
	history    repository.MergeHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	clock      clock.Clock
	logger     *zap.Logger
	grace      time.Duration
	timeout    time.Duration

	// mergeLocks serializes merge bodies; recordLocks serializes the timer
	// table together with its pending record.
	mergeLocks  keyedMutex
	recordLocks keyedMutex
}

// MergeDependencies bundles collaborators for the merge service.
type MergeDependencies struct {
	Store        ticketstore.Store
	Scheduler    *scheduler.Scheduler
	PendingRepo  repository.PendingMergeRepository
	HistoryRepo  repository.MergeHistoryRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Clock        clock.Clock
	Logger       *zap.Logger
	GracePeriod  time.Duration
	MergeTimeout time.Duration
}

// NewMergeService constructs the service. HistoryRepo may be nil.
func NewMergeService(deps MergeDependencies) *MergeService {
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}
	sched := deps.Scheduler
	if sched == nil {
		sched = scheduler.New(c)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	grace := deps.GracePeriod
	if grace <= 0 {
		grace = defaultGracePeriod
	}
	timeout := deps.MergeTimeout
	if timeout <= 0 {
		timeout = defaultMergeTimeout
	}
	return &MergeService{
		store:      deps.Store,
		scheduler:  sched,
		pending:    deps.PendingRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		clock:      c,
		logger:     logger.Named("merge"),
		grace:      grace,
		timeout:    timeout,
	}
}

// ScheduleMerge reacts to a new ticket. When the requester has other open
// tickets it marks the new one and (re)arms the grace-period timer.
func (s *MergeService) ScheduleMerge(ctx context.Context, requesterEmail, ticketID string) (*ScheduleResult, error) {
	email := normalizeEmail(requesterEmail)
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" || email == "" {
		return nil, missing("ticket_id", "requester_email")
	}
	log := s.logger.With(zap.String("requester_email", email), zap.String("ticket_id", ticketID))

	open, err := s.store.SearchOpenByRequester(ctx, email)
	if err != nil {
		log.Error("search open tickets failed", zap.Error(err))
		return &ScheduleResult{Action: ScheduleActionNone, TicketID: ticketID, Error: err.Error()}, nil
	}
	others := make([]string, 0, len(open))
	for _, t := range open {
		if t.ID != ticketID {
			others = append(others, t.ID)
		}
	}
	if len(others) == 0 {
		log.Debug("single open ticket, nothing to consolidate")
		return &ScheduleResult{
			Action:   ScheduleActionNone,
			Message:  "Single ticket, no consolidation needed",
			TicketID: ticketID,
		}, nil
	}
	total := len(others) + 1

	if err := s.markPending(ctx, ticketID, total); err != nil {
		log.Error("mark ticket merge pending failed", zap.Error(err))
		return &ScheduleResult{Action: ScheduleActionNone, TicketID: ticketID, Error: err.Error()}, nil
	}

	task, replaced, err := s.arm(ctx, email, ticketID)
	if err != nil {
		// the timer is armed; only the shared record is missing
		log.Warn("persist pending merge failed", zap.Error(err))
	}
	s.metrics.MergeScheduled()

	ids := append([]string{ticketID}, others...)
	s.publish(ctx, events.New(events.EventMergeScheduled, ticketID, events.Actor{Type: domain.SubjectTypeWebhook}, task.ScheduledAt,
		events.MergeScheduledPayload{RequesterEmail: email, TicketIDs: ids, Deadline: task.Deadline, Rescheduled: replaced}))
	log.Info("merge scheduled", zap.Int("ticket_count", total), zap.Bool("rescheduled", replaced), zap.Time("deadline", task.Deadline))

	return &ScheduleResult{
		Action:      ScheduleActionScheduled,
		Message:     fmt.Sprintf("Merge scheduled in %s for %s", humanDuration(s.grace), email),
		TicketID:    ticketID,
		TicketCount: total,
		TicketIDs:   ids,
		Deadline:    task.Deadline,
	}, nil
}

func (s *MergeService) markPending(ctx context.Context, ticketID string, total int) error {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	if _, err := s.store.UpdateTicket(ctx, ticketID, domain.TicketUpdate{
		Tags: unionTags(ticket.Tags, []string{TagMergePending}),
	}); err != nil {
		return fmt.Errorf("tag ticket %s: %w", ticketID, err)
	}
	if err := ticketstore.AddInternalNote(ctx, s.store, ticketID, schedulingNote(total, s.grace)); err != nil {
		return fmt.Errorf("note ticket %s: %w", ticketID, err)
	}
	return nil
}

func (s *MergeService) arm(ctx context.Context, email, ticketID string) (scheduler.Task, bool, error) {
	unlock := s.recordLocks.Lock(email)
	defer unlock()

	task, replaced := s.scheduler.Schedule(email, s.grace, func() { s.fire(email) })
	if s.pending == nil {
		return task, replaced, nil
	}
	err := s.pending.Put(ctx, domain.PendingMerge{
		RequesterEmail: email,
		TicketID:       ticketID,
		ScheduledAt:    task.ScheduledAt,
		Deadline:       task.Deadline,
	}, s.grace+s.timeout)
	return task, replaced, err
}

// fire runs on the timer goroutine once the grace period elapses.
func (s *MergeService) fire(email string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.clearRecord(ctx, email)
	s.execute(ctx, email, events.SystemActor)
}

// clearRecord drops the pending record unless a newer timer was armed meanwhile.
func (s *MergeService) clearRecord(ctx context.Context, email string) {
	unlock := s.recordLocks.Lock(email)
	defer unlock()
	if _, armed := s.scheduler.Pending(email); armed || s.pending == nil {
		return
	}
	if err := s.pending.Delete(ctx, email); err != nil {
		s.logger.Warn("delete pending merge failed", zap.String("requester_email", email), zap.Error(err))
	}
}

// ForceMerge cancels any pending timer for the requester and merges now.
func (s *MergeService) ForceMerge(ctx context.Context, requesterEmail string) (*domain.MergeResult, error) {
	email := normalizeEmail(requesterEmail)
	if email == "" {
		return nil, missing("requester_email")
	}
	unlock := s.recordLocks.Lock(email)
	if s.scheduler.Cancel(email) {
		s.logger.Info("pending merge cancelled by forced merge", zap.String("requester_email", email))
	}
	if s.pending != nil {
		if err := s.pending.Delete(ctx, email); err != nil {
			s.logger.Warn("delete pending merge failed", zap.String("requester_email", email), zap.Error(err))
		}
	}
	unlock()
	return s.execute(ctx, email, events.Actor{Type: domain.SubjectTypeAgent}), nil
}

// ExecuteMerge merges the requester's open tickets without touching any pending timer.
func (s *MergeService) ExecuteMerge(ctx context.Context, requesterEmail string) *domain.MergeResult {
	return s.execute(ctx, normalizeEmail(requesterEmail), events.SystemActor)
}

// PendingCount returns the number of requesters with an armed merge timer.
func (s *MergeService) PendingCount(ctx context.Context) int {
	if s.pending != nil {
		records, err := s.pending.List(ctx)
		if err == nil {
			return len(records)
		}
		s.logger.Warn("list pending merges failed", zap.Error(err))
	}
	return s.scheduler.Len()
}

// Pending returns the pending merge for the requester, if any.
func (s *MergeService) Pending(ctx context.Context, requesterEmail string) (*domain.PendingMerge, error) {
	email := normalizeEmail(requesterEmail)
	if email == "" {
		return nil, missing("requester_email")
	}
	if s.pending != nil {
		return s.pending.Get(ctx, email)
	}
	task, ok := s.scheduler.Pending(email)
	if !ok {
		return nil, nil
	}
	return &domain.PendingMerge{RequesterEmail: email, ScheduledAt: task.ScheduledAt, Deadline: task.Deadline}, nil
}

// History lists executed merges for the requester, newest first.
func (s *MergeService) History(ctx context.Context, requesterEmail string, limit int) ([]domain.MergeRecord, error) {
	email := normalizeEmail(requesterEmail)
	if email == "" {
		return nil, missing("requester_email")
	}
	if s.history == nil {
		return nil, ErrHistoryUnavailable
	}
	if limit <= 0 {
		limit = defaultHistoryListing
	}
	return s.history.ListByRequester(ctx, email, limit)
}

type mergePlan struct {
	target   domain.Ticket
	sources  []domain.Ticket
	all      []domain.Ticket
	issues   map[string]domain.IssueCategory
	unique   []domain.IssueCategory
	comments map[string][]domain.Comment
}

func (s *MergeService) execute(ctx context.Context, email string, actor events.Actor) *domain.MergeResult {
	unlock := s.mergeLocks.Lock(email)
	defer unlock()

	log := s.logger.With(zap.String("requester_email", email))
	result, err := s.merge(ctx, email, log)
	if err != nil {
		log.Error("merge aborted", zap.Error(err))
		s.metrics.MergeExecuted("failed")
		s.publish(ctx, events.New(events.EventMergeFailed, result.TargetTicket, actor, s.clock.Now(),
			events.MergeFailedPayload{RequesterEmail: email, Error: err.Error()}))
		result.Error = err.Error()
		return result
	}
	if result.Action == domain.MergeActionNone {
		s.metrics.MergeExecuted("none")
		return result
	}
	s.metrics.MergeExecuted("merged")
	s.publish(ctx, events.New(events.EventMergeExecuted, result.TargetTicket, actor, s.clock.Now(),
		events.MergeExecutedPayload{
			RequesterEmail: email,
			SourceTickets:  result.SourceTickets,
			UniqueIssues:   result.UniqueIssues,
			Priority:       result.Priority,
			Assignee:       result.Assignee,
		}))
	return result
}

// merge performs the consolidation. The returned result is never nil, even
// alongside an error, so callers can report how far it got.
func (s *MergeService) merge(ctx context.Context, email string, log *zap.Logger) (*domain.MergeResult, error) {
	result := &domain.MergeResult{Action: domain.MergeActionNone}
	if email == "" {
		return result, missing("requester_email")
	}

	open, err := s.store.SearchOpenByRequester(ctx, email)
	if err != nil {
		return result, fmt.Errorf("search open tickets: %w", err)
	}
	if len(open) < 2 {
		log.Debug("not enough open tickets to merge", zap.Int("open", len(open)))
		result.Message = "Not enough tickets to merge"
		return result, nil
	}

	plan := planMerge(open)
	result.TargetTicket = plan.target.ID
	log = log.With(zap.String("target_ticket", plan.target.ID))
	log.Info("merging tickets", zap.Int("sources", len(plan.sources)))

	if plan.comments, err = s.fetchComments(ctx, plan.all); err != nil {
		return result, err
	}

	for _, src := range plan.sources {
		if err := s.absorbSource(ctx, plan, src); err != nil {
			return result, err
		}
		result.SourceTickets = append(result.SourceTickets, src.ID)
	}

	priority := highestPriority(plan.all)
	assignee := latestAssignee(plan.all)
	update := domain.TicketUpdate{
		Tags:     consolidatedTags(plan),
		Priority: &priority,
	}
	if assignee != "" {
		update.AssigneeID = &assignee
	}
	if _, err := s.store.UpdateTicket(ctx, plan.target.ID, update); err != nil {
		return result, fmt.Errorf("update target %s: %w", plan.target.ID, err)
	}

	notes := []string{
		summaryNote(s.clock.Now(), plan.target, plan.sources, plan.issues, len(plan.unique)),
		checklistNote(plan.unique),
	}
	if len(plan.unique) > 1 {
		notes = append(notes, multiIssueNote(plan.unique))
	}
	notes = append(notes, draft.Note(s.synthesize(plan)))
	for _, note := range notes {
		if err := ticketstore.AddInternalNote(ctx, s.store, plan.target.ID, note); err != nil {
			return result, fmt.Errorf("note target %s: %w", plan.target.ID, err)
		}
	}

	result.Action = domain.MergeActionMerged
	result.Message = fmt.Sprintf("Merged %d ticket(s) into #%s", len(plan.sources), plan.target.ID)
	result.Issues = plan.issues
	result.UniqueIssues = plan.unique
	result.Priority = priority
	result.Assignee = assignee

	s.record(ctx, email, result, log)
	log.Info("merge complete", zap.Strings("source_tickets", result.SourceTickets), zap.Int("unique_issues", len(plan.unique)))
	return result, nil
}

func planMerge(open []domain.Ticket) mergePlan {
	all := append([]domain.Ticket(nil), open...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	plan := mergePlan{
		target:  all[0],
		sources: all[1:],
		all:     all,
		issues:  make(map[string]domain.IssueCategory, len(all)),
	}
	seen := make(map[domain.IssueCategory]bool)
	for _, t := range all {
		category := classifier.ClassifyTicket(t)
		plan.issues[t.ID] = category
		if !seen[category] {
			seen[category] = true
			plan.unique = append(plan.unique, category)
		}
	}
	return plan
}

func (s *MergeService) fetchComments(ctx context.Context, tickets []domain.Ticket) (map[string][]domain.Comment, error) {
	fetched := make([][]domain.Comment, len(tickets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(commentFetchLimit)
	for i := range tickets {
		i := i
		g.Go(func() error {
			comments, err := s.store.GetComments(gctx, tickets[i].ID)
			if err != nil {
				return fmt.Errorf("comments for %s: %w", tickets[i].ID, err)
			}
			fetched[i] = comments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Comment, len(tickets))
	for i, t := range tickets {
		out[t.ID] = fetched[i]
	}
	return out, nil
}

// absorbSource copies a source's history onto the target and closes the source.
func (s *MergeService) absorbSource(ctx context.Context, plan mergePlan, src domain.Ticket) error {
	note := historyNote(src, plan.issues[src.ID], plan.comments[src.ID])
	if err := ticketstore.AddInternalNote(ctx, s.store, plan.target.ID, note); err != nil {
		return fmt.Errorf("copy history of %s: %w", src.ID, err)
	}

	// Zendesk refuses a direct solve from some states, so go through pending.
	pending := domain.TicketStatusPending
	tags := unionTags(src.Tags, []string{ticketstore.TagMergedSource, TagMergedIntoPrefix + plan.target.ID})
	if _, err := s.store.UpdateTicket(ctx, src.ID, domain.TicketUpdate{Status: &pending, Tags: tags}); err != nil {
		return fmt.Errorf("mark source %s: %w", src.ID, err)
	}
	solved := domain.TicketStatusSolved
	if _, err := s.store.UpdateTicket(ctx, src.ID, domain.TicketUpdate{
		Status:  &solved,
		Comment: &domain.CommentInput{Body: sourceClosingComment(plan.target.ID)},
	}); err != nil {
		return fmt.Errorf("solve source %s: %w", src.ID, err)
	}
	return nil
}

func (s *MergeService) synthesize(plan mergePlan) draft.Draft {
	text := make(map[string]string, len(plan.all))
	for _, t := range plan.all {
		text[t.ID] = draft.CustomerText(t, plan.comments[t.ID])
	}
	return draft.Synthesize(draft.Input{
		RequesterName: plan.target.RequesterName,
		Issues:        plan.issues,
		Tickets:       plan.all,
		CustomerText:  text,
	})
}

func (s *MergeService) record(ctx context.Context, email string, result *domain.MergeResult, log *zap.Logger) {
	if s.history == nil {
		return
	}
	rec := &domain.MergeRecord{
		RequesterEmail: email,
		TargetTicket:   result.TargetTicket,
		SourceTickets:  result.SourceTickets,
		Issues:         result.Issues,
		Priority:       result.Priority,
		Assignee:       result.Assignee,
		ExecutedAt:     s.clock.Now(),
	}
	if err := s.history.Create(ctx, rec); err != nil {
		log.Warn("persist merge record failed", zap.Error(err))
	}
}

func (s *MergeService) publish(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, s.logger, event)
}

func consolidatedTags(plan mergePlan) []string {
	var tags []string
	for _, t := range plan.all {
		tags = unionTags(tags, t.Tags)
	}
	kept := tags[:0]
	for _, tag := range tags {
		if tag != TagMergePending && tag != TagSuppressAutoAck {
			kept = append(kept, tag)
		}
	}
	extra := []string{TagConsolidated, fmt.Sprintf("%s%d", TagMergedCountPrefix, len(plan.sources))}
	for i, t := range plan.all {
		extra = append(extra, fmt.Sprintf("%s%d_%s", TagIssueThreadPrefix, i+1, plan.issues[t.ID]))
	}
	return unionTags(kept, extra)
}

// highestPriority falls back to normal only when no ticket carries a known
// priority.
func highestPriority(tickets []domain.Ticket) domain.TicketPriority {
	var best domain.TicketPriority
	for _, t := range tickets {
		if t.Priority.Rank() > best.Rank() {
			best = t.Priority
		}
	}
	if best.Rank() == 0 {
		return domain.TicketPriorityNormal
	}
	return best
}

func latestAssignee(tickets []domain.Ticket) string {
	var (
		assignee string
		latest   time.Time
	)
	for _, t := range tickets {
		if t.AssigneeID == "" {
			continue
		}
		if assignee == "" || t.UpdatedAt.After(latest) {
			assignee = t.AssigneeID
			latest = t.UpdatedAt
		}
	}
	return assignee
}

// unionTags appends the tags of extra missing from base, keeping first-seen order.
func unionTags(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, tag := range list {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
