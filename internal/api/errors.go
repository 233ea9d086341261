package api

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest       = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrForbidden        = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrInternalServer   = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrValidation       = &AppError{Code: http.StatusBadRequest, Message: "validation error"}
	ErrQuotaExceeded    = &AppError{Code: http.StatusTooManyRequests, Message: "daily generation limit reached"}
	ErrUpstream         = &AppError{Code: http.StatusBadGateway, Message: "keyword service is unavailable, please try again"}
	ErrOriginNotAllowed = &AppError{Code: http.StatusForbidden, Message: "origin not allowed"}
	ErrTimeout          = &AppError{Code: http.StatusServiceUnavailable, Message: "request timed out"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func HandleError(w http.ResponseWriter, err error) {
	HandleErrorWithUsage(w, err, nil)
}

// HandleErrorWithUsage writes err like HandleError and attaches the
// caller's quota snapshot to the body.
func HandleErrorWithUsage(w http.ResponseWriter, err error, usage any) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Code, Response{Error: appErr.Message, Usage: usage})
		return
	}
	writeJSON(w, http.StatusInternalServerError, Response{Error: ErrInternalServer.Message, Usage: usage})
}
