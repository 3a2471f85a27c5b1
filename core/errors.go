package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	SessionErrorBadInput           = "SESSION_BAD_INPUT"
	SessionErrorBackendUnavailable = "SESSION_BACKEND_UNAVAILABLE"
	SessionErrorTokenInvalid       = "SESSION_TOKEN_INVALID"
	SessionErrorInternal           = "SESSION_INTERNAL_ERROR"
)

func sessionErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureSessionErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrInvalidSessionToken) {
		return newSessionError(err.Error(), goerrors.CategoryAuth, SessionErrorTokenInvalid)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "storage") && (strings.Contains(msg, "unavailable") || strings.Contains(msg, "not configured") || strings.Contains(msg, "factory")):
		return newSessionError(err.Error(), goerrors.CategoryExternal, SessionErrorBackendUnavailable)
	case strings.Contains(msg, "not configured"):
		return newSessionError(err.Error(), goerrors.CategoryInternal, SessionErrorInternal)
	case strings.Contains(msg, "dsn"), strings.Contains(msg, "driver"), strings.Contains(msg, "dialect"):
		return newSessionError(err.Error(), goerrors.CategoryBadInput, SessionErrorBadInput)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must not"):
		return newSessionError(err.Error(), goerrors.CategoryBadInput, SessionErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureSessionErrorEnvelope(mapped)
}

func newSessionError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureSessionErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureSessionErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = sessionHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultSessionTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultSessionTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return SessionErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return SessionErrorTokenInvalid
	case goerrors.CategoryExternal:
		return SessionErrorBackendUnavailable
	default:
		return SessionErrorInternal
	}
}

func sessionHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
