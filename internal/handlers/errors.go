package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/quotesync/internal/durable"
	"github.com/charlesng35/quotesync/internal/migration"
	"github.com/charlesng35/quotesync/internal/queue"
	"github.com/charlesng35/quotesync/internal/services"
	appErrors "github.com/charlesng35/quotesync/pkg/errors"
	"github.com/charlesng35/quotesync/pkg/response"
)

// writeError maps data-layer errors onto API errors.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, durable.ErrDuplicateKey):
		response.Error(c, appErrors.NewConflict("a record with the same key already exists").WithInternal(err))
	case errors.Is(err, services.ErrInvalidRecord):
		response.Error(c, appErrors.NewValidation(formatValidationError(err)).
			WithDetails(validationDetails(err)).
			WithInternal(err))
	case errors.Is(err, services.ErrOwnerRequired),
		errors.Is(err, services.ErrRecordIDRequired),
		errors.Is(err, migration.ErrOwnerRequired):
		response.Error(c, appErrors.NewBadRequest(err.Error()))
	case errors.Is(err, services.ErrRecordNotFound),
		errors.Is(err, queue.ErrEntryNotFound):
		response.Error(c, appErrors.NewNotFound(err.Error()))
	case errors.Is(err, services.ErrNotInitialised):
		response.Error(c, appErrors.ErrServiceUnavailable.WithInternal(err))
	default:
		_ = c.Error(err)
		response.Error(c, appErrors.Wrap(err, "request failed"))
	}
}
