// Package utils provides utility functions and helpers for the application.
// This file implements the response envelope shared by every API endpoint.
//
// Every response carries success and message at the top level. Failures add a
// machine-readable code, and endpoints that return data put it beside them
// (userId, username, expiresAt) rather than under a nested object, because the
// portal front end reads those fields directly.
package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fleetportal/passreset/internal/constants"
)

// Response represents a standardized API response.
type Response struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Code      string         `json:"code,omitempty"`
	UserID    int64          `json:"userId,omitempty"`
	Username  string         `json:"username,omitempty"`
	ExpiresAt *time.Time     `json:"expiresAt,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// JSON sends a response envelope. The success flag follows the status code.
func JSON(w http.ResponseWriter, statusCode int, resp Response) {
	resp.Success = statusCode >= 200 && statusCode < 300
	SendJSON(w, statusCode, resp)
}

// Success sends a 200 response carrying only a message.
func Success(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, Response{Message: message})
}

// Error sends an error response with the given status code and error information.
func Error(w http.ResponseWriter, statusCode int, code, message string, details map[string]any) {
	SendJSON(w, statusCode, Response{
		Success: false,
		Message: message,
		Code:    code,
		Details: details,
	})
}

// ErrorFromAppError sends an error response based on an AppError.
func ErrorFromAppError(w http.ResponseWriter, err *AppError) {
	details := err.Details
	if details == nil && err.Field != "" {
		details = map[string]any{err.Field: err.Message}
	}

	Error(w, err.StatusCode, err.ErrorCode(), err.Message, details)
}

// HandleError converts any error into a response. Server-side failures are
// logged with their internal detail, which never reaches the client.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := ParseError(err)

	if appErr.StatusCode >= http.StatusInternalServerError {
		event := log.Error().Err(err).Str("code", appErr.ErrorCode())
		if r != nil {
			event = event.Str("method", r.Method).Str("path", r.URL.Path)
		}
		event.Str("dev_info", appErr.DevInfo).Msg("Request failed")
	} else if errors.Is(appErr, ErrRateLimited) {
		log.Warn().Str("code", appErr.ErrorCode()).Msg("Request rate limited")
	}

	ErrorFromAppError(w, appErr)
}

// SendJSON is a helper function to send JSON data with proper headers.
func SendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		if _, err := w.Write([]byte(`{"success":false,"message":"Failed to generate response","code":"internal_error"}`)); err != nil {
			log.Error().Err(err).Msg("Failed to write error response")
		}
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if _, err = w.Write(jsonData); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// BadRequest sends a 400 response with the given message.
func BadRequest(w http.ResponseWriter, message string, details map[string]any) {
	Error(w, http.StatusBadRequest, constants.CodeValidationError, message, details)
}

// Unauthorized sends a 401 Unauthorized response with the given message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = constants.MsgAuthRequired
	}
	Error(w, http.StatusUnauthorized, constants.CodeUnauthorized, message, nil)
}

// NotFound sends a 404 Not Found response with the given message.
func NotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = constants.MsgResourceNotFound
	}
	Error(w, http.StatusNotFound, constants.CodeNotFound, message, nil)
}

// MethodNotAllowed sends a 405 Method Not Allowed response.
func MethodNotAllowed(w http.ResponseWriter) {
	Error(w, http.StatusMethodNotAllowed, constants.CodeMethodNotAllowed, constants.MsgMethodNotAllowed, nil)
}

// InternalServerError sends a 500 response. The error is logged, not exposed.
func InternalServerError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("Internal server error")
	Error(w, http.StatusInternalServerError, constants.CodeInternalError, constants.MsgInternalServerError, nil)
}
