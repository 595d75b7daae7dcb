package httpapi

import (
	"errors"
	"net/http"

	"callflow-platform/internal/audit"
	"callflow-platform/internal/auth"
	"callflow-platform/internal/callflow"
	"callflow-platform/internal/editor"
	"callflow-platform/internal/flowstore"
	"callflow-platform/internal/interpreter"
	"callflow-platform/internal/numbers"
	"callflow-platform/internal/reporting"
	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Flows       *flowstore.Service
	Numbers     numbers.Inventory
	Editor      *editor.Service
	Interpreter *interpreter.Interpreter
	Reporting   *reporting.Service
	Audit       *audit.Service
}

func ownerFrom(c *gin.Context) (string, bool) {
	ownerID, err := auth.OwnerID(c.Request.Context())
	if err != nil || ownerID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "owner_id required"})
		return "", false
	}
	return ownerID, true
}

func (h Handlers) ready(c *gin.Context, ok bool, what string) bool {
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
	}
	return ok
}

// statusFor maps service errors onto HTTP statuses. Anything unknown is a 500
// and its message is not echoed.
func statusFor(err error) (int, bool) {
	var verr *callflow.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, true
	case errors.Is(err, flowstore.ErrInvalidArgument),
		errors.Is(err, reporting.ErrInvalidRequest),
		errors.Is(err, editor.ErrUnknownType),
		errors.Is(err, editor.ErrDanglingEdge),
		errors.Is(err, editor.ErrInvalidPatch):
		return http.StatusBadRequest, true
	case errors.Is(err, flowstore.ErrNotFound),
		errors.Is(err, editor.ErrSessionNotFound),
		errors.Is(err, editor.ErrBlockNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, flowstore.ErrConflict),
		errors.Is(err, editor.ErrSessionBusy),
		errors.Is(err, editor.ErrNotEditing),
		errors.Is(err, editor.ErrSaveInFlight),
		errors.Is(err, editor.ErrDuplicateBlock),
		errors.Is(err, editor.ErrNumberClaimed):
		return http.StatusConflict, true
	case errors.Is(err, editor.ErrNumberNotOwned):
		return http.StatusForbidden, true
	case errors.Is(err, editor.ErrNameRequired),
		errors.Is(err, editor.ErrNumberRequired),
		errors.Is(err, editor.ErrNoBlocks):
		return http.StatusUnprocessableEntity, true
	default:
		return http.StatusInternalServerError, false
	}
}

func errorBody(err error) gin.H {
	body := gin.H{"error": err.Error()}
	var verr *callflow.ValidationError
	if errors.As(err, &verr) {
		body["code"] = verr.Code
		if verr.BlockID != "" {
			body["block_id"] = verr.BlockID
		}
	}
	return body
}

func respondError(c *gin.Context, err error) {
	status, known := statusFor(err)
	if !known {
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, errorBody(err))
}
