package api

import (
	"encoding/json"
	"net/http"

	"vip/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  string(errors.CodeOf(err)),
	}

	if vipErr, ok := err.(*errors.VipError); ok {
		resp.Error = vipErr.Message
		resp.Details = vipErr.Details
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// WriteVipError writes a VipError with automatic status code mapping
func WriteVipError(w http.ResponseWriter, err *errors.VipError) {
	WriteError(w, err, MapErrorToStatus(err.Code))
}

// MapErrorToStatus maps error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ValidationFailed:
		return http.StatusUnprocessableEntity // 422
	case errors.BadRequest:
		return http.StatusBadRequest // 400
	case errors.Unauthorized:
		return http.StatusUnauthorized // 401
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.RateLimited:
		return http.StatusTooManyRequests // 429
	case errors.DispatchUnavailable:
		return http.StatusServiceUnavailable // 503
	case errors.PipelineFailure:
		return http.StatusInternalServerError // 500
	case errors.InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteText writes a plain text response
func WriteText(w http.ResponseWriter, text string, status int) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string, err error) {
	WriteVipError(w, errors.New(errors.BadRequest, message, err))
}

// NotFound writes a 404 Not Found error
func NotFound(w http.ResponseWriter, message string) {
	WriteVipError(w, errors.New(errors.NotFound, message, nil))
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteVipError(w, errors.New(errors.InternalError, message, err))
}
