// README: Base handler utilities (JSON helpers, error mapping, service ports).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"dispatch/internal/apperr"
	"dispatch/internal/http/middleware"
	"dispatch/internal/types"
)

type errorResponse struct {
	Error       string     `json:"error"`
	Step        string     `json:"step,omitempty"`
	Recalculate []types.ID `json:"recalculate,omitempty"`
}

// isValidID accepts the uuids issued by types.NewID.
func isValidID(v string) bool {
	return uuid.Validate(v) == nil
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeServiceError maps the shared error kinds onto status codes.
// Persistence and unknown failures are logged and hidden from the caller.
func writeServiceError(c *gin.Context, log logrus.FieldLogger, err error) {
	var step *apperr.StepError
	switch {
	case errors.As(err, &step):
		log.WithError(err).WithField("step", step.Step).Error("workflow partially applied")
		writeJSON(c, http.StatusInternalServerError, errorResponse{
			Error:       "partially applied; recalculate the listed trips",
			Step:        step.Step,
			Recalculate: step.Recalculate,
		})
	case errors.Is(err, apperr.ErrValidation):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// pathID reads a path parameter and rejects malformed ids with a 400.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeError(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

// tenantOf returns the request tenant; a missing tenant means the router was built without auth.
func tenantOf(c *gin.Context) (types.ID, bool) {
	tenant := middleware.CallerTenant(c)
	if tenant == "" {
		writeError(c, http.StatusUnauthorized, "no tenant on request")
		return "", false
	}
	return tenant, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
