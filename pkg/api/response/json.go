// Package response writes JSON bodies for the admin API.
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes data with statusCode. A nil data writes headers only.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	// Headers are already out; nothing useful can be sent on failure.
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes an ErrorResponse.
func Error(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	ErrorWithDetails(w, statusCode, code, message, nil, requestID)
}

// ErrorWithDetails writes an ErrorResponse carrying per-field details.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, code, message string, details map[string]any, requestID string) {
	JSON(w, statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: requestID,
		},
	})
}
