// Package rest implements the collection API: attribute filter parsing,
// query binding, paging with navigation hrefs, two-pass reference expansion
// and the v1 and v2 controllers.
package rest

import (
	"encoding/json"
	"net/http"

	"github.com/metagrid-platform/metagrid/internal/data"
)

// ErrorMessage is one element of the wire error body
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorResponse is the wire error body
type ErrorResponse struct {
	Errors []ErrorMessage `json:"errors"`
}

// statusFor maps an error kind to its HTTP status code
func statusFor(err error) int {
	switch data.KindOf(err) {
	case data.KindValidation, data.KindQuery, data.KindUnknownAttribute:
		return http.StatusBadRequest
	case data.KindPermissionDenied:
		return http.StatusForbidden
	case data.KindUnknownEntity:
		return http.StatusNotFound
	case data.KindUnsupported:
		return http.StatusNotImplemented
	case data.KindDataAccess:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// RenderError writes the error body with the status mapped from the error
// kind
func RenderError(w http.ResponseWriter, err error) {
	RenderErrorStatus(w, statusFor(err), err)
}

// RenderErrorStatus writes the error body with an explicit status. Batch
// endpoints use it to keep the source-compatible no-content status while
// still reporting the failure messages.
func RenderErrorStatus(w http.ResponseWriter, status int, err error) {
	var messages []ErrorMessage
	var derr *data.Error
	if data.AsError(err, &derr) && len(derr.Messages) > 0 {
		for _, msg := range derr.Messages {
			messages = append(messages, ErrorMessage{Message: msg, Code: derr.Kind.String()})
		}
	} else {
		code := ""
		if data.AsError(err, &derr) {
			code = derr.Kind.String()
		}
		messages = []ErrorMessage{{Message: err.Error(), Code: code}}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(&ErrorResponse{Errors: messages})
}

// RenderJSON writes a JSON response body
func RenderJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
