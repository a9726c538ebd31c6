package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketflow/assessment"
	"marketflow/assistant"
	"marketflow/auth"
	"marketflow/catalog"
	"marketflow/chat"
	"marketflow/notification"
	"marketflow/profile"
	"marketflow/support"
)

var errForbidden = errors.New("forbidden")

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, errorEnvelope{Error: apiError{Message: msg, Code: code}})
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// errorStatus maps domain errors to an HTTP status and envelope code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, assessment.ErrNotFound),
		errors.Is(err, chat.ErrNotFound),
		errors.Is(err, support.ErrNotFound),
		errors.Is(err, notification.ErrNotFound),
		errors.Is(err, profile.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, assessment.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, support.ErrBadStatus):
		return http.StatusConflict, "invalid_status"
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, chat.ErrNotParticipant),
		errors.Is(err, support.ErrForbidden),
		errors.Is(err, errForbidden),
		errors.Is(err, auth.ErrRoleNotAllowed):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, assessment.ErrInvalidStatus),
		errors.Is(err, assessment.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidInput),
		errors.Is(err, chat.ErrInvalidInput),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrSelfChat),
		errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrRoleMismatch),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, profile.ErrInvalidInput),
		errors.Is(err, profile.ErrUnsupportedRole),
		errors.Is(err, support.ErrInvalidInput),
		errors.Is(err, notification.ErrInvalidInput),
		errors.Is(err, assistant.ErrEmptyPrompt),
		errors.Is(err, assistant.ErrInvalidSession):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// fail writes err as an envelope. Unmapped errors are logged and hidden
// behind a generic message.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
		respondError(c, status, code, errors.New("internal error"))
		return
	}
	respondError(c, status, code, err)
}
