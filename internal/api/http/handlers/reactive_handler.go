package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/reactive-engine/internal/api/dto"
	"github.com/spec-kit/reactive-engine/internal/auth"
	"github.com/spec-kit/reactive-engine/internal/domain"
	"github.com/spec-kit/reactive-engine/internal/service"
	apperrors "github.com/spec-kit/reactive-engine/pkg/util/errorutil"
)

// ReactiveHandler exposes the engine's webhook and sidebar endpoints.
type ReactiveHandler struct {
	reactive *service.ReactiveService
	merges   *service.MergeService
	gate     *service.OutboundGateService
	locks    *service.LockService
}

// NewReactiveHandler constructs handler.
func NewReactiveHandler(reactive *service.ReactiveService, merges *service.MergeService, gate *service.OutboundGateService, locks *service.LockService) *ReactiveHandler {
	return &ReactiveHandler{reactive: reactive, merges: merges, gate: gate, locks: locks}
}

// TicketCreated POST /api/reactive/ticket-created.
func (h *ReactiveHandler) TicketCreated(c *fiber.Ctx) error {
	var req dto.TicketCreatedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.reactive.TicketCreated(c.UserContext(), req.TicketID.String(), req.RequesterEmail)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(scheduleResponse(res))
}

// Merge POST /api/reactive/merge.
func (h *ReactiveHandler) Merge(c *fiber.Ctx) error {
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.merges.ForceMerge(c.UserContext(), req.RequesterEmail)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.MergeResponse{
		Action:        res.Action,
		Message:       res.Message,
		TargetTicket:  res.TargetTicket,
		SourceTickets: res.SourceTickets,
		Issues:        res.Issues,
		UniqueIssues:  res.UniqueIssues,
		Priority:      res.Priority,
		Assignee:      res.Assignee,
		Error:         res.Error,
	})
}

// TicketUpdated POST /api/reactive/ticket-updated.
func (h *ReactiveHandler) TicketUpdated(c *fiber.Ctx) error {
	var req dto.TicketUpdatedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.reactive.TicketUpdated(c.UserContext(), req.TicketID.String())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.UpdateResponse{
		Action:       string(res.Action),
		TicketID:     res.TicketID,
		SourceTicket: res.SourceTicket,
		TargetTicket: res.TargetTicket,
		Message:      res.Message,
		Error:        res.Error,
	})
}

// OutboundGate POST /api/reactive/outbound-gate.
func (h *ReactiveHandler) OutboundGate(c *fiber.Ctx) error {
	var req dto.OutboundGateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	decision, err := h.gate.CheckOutbound(c.UserContext(), service.OutboundRequest{
		TicketID:       req.TicketID.String(),
		RequesterEmail: req.RequesterEmail,
		DraftText:      req.AgentResponse,
		Override:       req.Override,
	})
	if err != nil {
		return mapServiceError(err)
	}
	warnings := make([]dto.WarningResponse, 0, len(decision.Warnings))
	for _, w := range decision.Warnings {
		warnings = append(warnings, warningResponse(w))
	}
	return c.JSON(dto.GateResponse{
		Allow:        decision.Allow,
		Warnings:     warnings,
		TicketID:     decision.TicketID,
		OverrideUsed: decision.OverrideUsed,
		Error:        decision.Error,
	})
}

// ProactiveSent POST /api/reactive/proactive-sent.
func (h *ReactiveHandler) ProactiveSent(c *fiber.Ctx) error {
	var req dto.ProactiveSentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	entry, err := h.gate.RecordProactive(c.UserContext(), service.ProactiveRequest{
		RecipientEmail: req.RecipientEmail,
		TicketID:       req.TicketID.String(),
		Channel:        req.Channel,
		SignalType:     req.SignalType,
		MessageID:      req.MessageID,
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.ProactiveSentResponse{Logged: true, Entry: *entry})
}

// Lock POST /api/reactive/lock.
func (h *ReactiveHandler) Lock(c *fiber.Ctx) error {
	var req dto.LockRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agentID := strings.TrimSpace(req.AgentID)
	// agent tokens can only lock on their own behalf
	if principal, ok := auth.PrincipalFromContext(c); ok && principal.SubjectType == domain.SubjectTypeAgent {
		if agentID != "" && agentID != principal.SubjectID {
			return apperrors.NewForbidden("agent_id does not match token", map[string]any{"agent_id": agentID})
		}
		agentID = principal.SubjectID
	}
	res, err := h.locks.AcquireLock(c.UserContext(), req.TicketID.String(), agentID)
	if err != nil {
		return mapServiceError(err)
	}
	resp := dto.LockResponse{
		Locked:   res.Locked,
		TicketID: res.TicketID,
		AgentID:  res.AgentID,
		Message:  res.Message,
		LockedBy: res.LockedBy,
		Error:    res.Error,
	}
	if res.LockedBy != "" {
		age := res.LockAgeMinutes
		resp.LockAgeMinutes = &age
	}
	return c.JSON(resp)
}

// VIPCheck POST /api/reactive/vip-check.
func (h *ReactiveHandler) VIPCheck(c *fiber.Ctx) error {
	var req dto.VIPCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.reactive.VIPCheck(c.UserContext(), req.TicketID.String())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.VIPResponse{IsVIP: res.IsVIP, TicketID: res.TicketID, Priority: res.Priority, Error: res.Error})
}

// CheckDuplicate POST /api/reactive/check-duplicate.
func (h *ReactiveHandler) CheckDuplicate(c *fiber.Ctx) error {
	var req dto.CheckDuplicateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.reactive.CheckDuplicate(c.UserContext(), req.TicketID.String(), req.RequesterEmail, req.Subject)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(dto.DuplicateResponse{
		IsDuplicate:    res.IsDuplicate,
		TicketID:       res.TicketID,
		ClosedTicket:   res.ClosedTicket,
		OriginalTicket: res.OriginalTicket,
		Error:          res.Error,
	})
}

// Merges GET /api/reactive/merges?requester_email=.
func (h *ReactiveHandler) Merges(c *fiber.Ctx) error {
	email := c.Query("requester_email")
	limit := c.QueryInt("limit", 0)

	pending, err := h.merges.Pending(c.UserContext(), email)
	if err != nil {
		return mapServiceError(err)
	}
	historyEnabled := true
	records, err := h.merges.History(c.UserContext(), email, limit)
	if errors.Is(err, service.ErrHistoryUnavailable) {
		historyEnabled = false
	} else if err != nil {
		return mapServiceError(err)
	}

	history := make([]dto.MergeRecordResponse, 0, len(records))
	for _, rec := range records {
		history = append(history, dto.MergeRecordResponse{
			ID:            rec.ID,
			TargetTicket:  rec.TargetTicket,
			SourceTickets: rec.SourceTickets,
			Issues:        rec.Issues,
			Priority:      rec.Priority,
			Assignee:      rec.Assignee,
			ExecutedAt:    rec.ExecutedAt,
		})
	}
	return c.JSON(dto.MergesResponse{
		RequesterEmail: strings.ToLower(strings.TrimSpace(email)),
		Pending:        pending,
		HistoryEnabled: historyEnabled,
		History:        history,
	})
}

// Status GET /api/reactive/status.
func (h *ReactiveHandler) Status(c *fiber.Ctx) error {
	report := h.reactive.Status(c.UserContext())
	return c.JSON(dto.StatusResponse{
		Status:        report.Status,
		PendingMerges: report.PendingMerges,
		ActiveLocks:   report.ActiveLocks,
		Timestamp:     report.Timestamp,
		Error:         report.Error,
	})
}

func scheduleResponse(res *service.ScheduleResult) dto.ScheduleResponse {
	resp := dto.ScheduleResponse{
		Action:      string(res.Action),
		Message:     res.Message,
		TicketID:    res.TicketID,
		TicketCount: res.TicketCount,
		TicketIDs:   res.TicketIDs,
		Error:       res.Error,
	}
	if !res.Deadline.IsZero() {
		deadline := res.Deadline.UTC()
		resp.Deadline = &deadline
	}
	return resp
}

func warningResponse(w service.Warning) dto.WarningResponse {
	resp := dto.WarningResponse{
		Type:             string(w.Type),
		Message:          w.Message,
		Blocking:         w.Blocking,
		LastSent:         w.LastSent,
		Missed:           w.Missed,
		IssueCount:       w.IssueCount,
		ProactiveDetails: w.Proactive,
		Count:            w.Count,
	}
	if w.Type == service.WarningMissedIssues {
		addressed := w.AddressedCount
		resp.AddressedCount = &addressed
	}
	return resp
}

func mapServiceError(err error) error {
	if errors.Is(err, service.ErrMissingField) {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	return err
}
