// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/taskboard/taskboard/internal/validate"
)

// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("request body too large")

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// decodeObject reads a JSON object into a field map.
// An empty body decodes to an empty object; anything after the object
// other than whitespace is malformed.
func decodeObject(r io.Reader) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(r)

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, badBody(err)
	}
	if raw == nil {
		// literal null body
		return nil, badBody(nil)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, badBody(err)
	}
	return raw, nil
}

// badBody maps a body read failure to ErrBodyTooLarge or a non-field error.
func badBody(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrBodyTooLarge
	}
	return validate.Errors{validate.NonFieldKey: {validate.MsgBadJSON}}
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
