package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/happy-carpenter/carpenter-go/apierror"
)

// errorFromStatus maps a non-2xx response to the client error taxonomy.
// Validation bodies are DRF-shaped: a JSON object keyed by field name with
// a list of messages per field, plus the occasional "detail" string.
func errorFromStatus(status int, body []byte) *apierror.Error {
	switch {
	case status == http.StatusUnauthorized:
		return apierror.New(apierror.AuthRequired, detailMessage(body)).WithStatus(status)
	case status == http.StatusNotFound || status == http.StatusConflict:
		return apierror.New(apierror.ConflictOrNotFound, detailMessage(body)).WithStatus(status)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apierror.New(apierror.ValidationError, detailMessage(body)).
			WithStatus(status).
			WithFields(fieldErrors(body))
	default:
		return apierror.New(apierror.Unexpected, fmt.Sprintf("server returned %d", status)).WithStatus(status)
	}
}

// fieldErrors extracts per-field validation messages, verbatim.
func fieldErrors(body []byte) map[string][]string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil
	}
	fields := make(map[string][]string, len(raw))
	for field, value := range raw {
		var messages []string
		if err := json.Unmarshal(value, &messages); err == nil {
			fields[field] = messages
			continue
		}
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			fields[field] = []string{single}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func detailMessage(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}
