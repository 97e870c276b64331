package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	validation := NewValidationError("ticket_id required", map[string]any{"field": "ticket_id"})
	wrapped := fmt.Errorf("handler: %w", validation)
	assert.Equal(t, http.StatusBadRequest, ToDomainError(wrapped).HTTPStatus)
	assert.Equal(t, "VALIDATION_FAILED", ToDomainError(wrapped).Code)

	forbidden := ToDomainError(fiber.NewError(http.StatusForbidden, "subject not permitted"))
	assert.Equal(t, "FORBIDDEN", forbidden.Code)
	assert.Equal(t, "subject not permitted", forbidden.Message)

	denied := ToDomainError(NewForbidden("agent_id does not match token", nil))
	assert.Equal(t, http.StatusForbidden, denied.HTTPStatus)
	assert.Equal(t, "FORBIDDEN", denied.Code)

	notFound := ToDomainError(fiber.ErrNotFound)
	assert.Equal(t, "NOT_FOUND", notFound.Code)

	timeout := ToDomainError(fmt.Errorf("search: %w", context.DeadlineExceeded))
	assert.Equal(t, http.StatusGatewayTimeout, timeout.HTTPStatus)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
	assert.Equal(t, "internal server error", internal.Message)
	assert.ErrorContains(t, internal, "boom")

	assert.Nil(t, ToDomainError(nil))
}
