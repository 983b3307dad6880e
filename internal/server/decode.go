package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/shineum/contact-relay/internal/contact"
)

// ParseError reports a request body that could not be read as a submission.
// It is distinct from a ValidationError: the body never got that far.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// decodeSubmission reads a JSON, urlencoded or multipart body capped at
// maxBytes. A missing Content-Type is read as JSON.
func decodeSubmission(w http.ResponseWriter, r *http.Request, honeypotField string, maxBytes int64) (contact.Submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return contact.Submission{}, &ParseError{Reason: "invalid Content-Type header", Err: err}
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json", "text/plain":
		return decodeJSON(r.Body, honeypotField)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return contact.Submission{}, bodyError("invalid form body", err)
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return contact.Submission{}, bodyError("invalid multipart body", err)
		}
	default:
		return contact.Submission{}, &ParseError{Reason: fmt.Sprintf("unsupported Content-Type %q", mediaType)}
	}

	return contact.Submission{
		Name:     r.PostForm.Get("name"),
		Email:    r.PostForm.Get("email"),
		Subject:  r.PostForm.Get("subject"),
		Message:  r.PostForm.Get("message"),
		Honeypot: r.PostForm.Get(honeypotField),
	}, nil
}

func decodeJSON(body io.Reader, honeypotField string) (contact.Submission, error) {
	dec := json.NewDecoder(body)

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return contact.Submission{}, &ParseError{Reason: "request body is empty"}
		}
		return contact.Submission{}, bodyError("invalid JSON body", err)
	}
	if raw == nil {
		return contact.Submission{}, &ParseError{Reason: "request body must be a JSON object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return contact.Submission{}, &ParseError{Reason: "unexpected data after JSON object"}
	}

	return contact.Submission{
		Name:     stringField(raw, "name"),
		Email:    stringField(raw, "email"),
		Subject:  stringField(raw, "subject"),
		Message:  stringField(raw, "message"),
		Honeypot: honeypotValue(raw[honeypotField]),
	}, nil
}

// stringField returns raw[key] when it is a string. Other JSON types read as
// empty and fail validation like a missing field.
func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return s
}

// honeypotValue reads the trap field. null, false and 0 are what serializers
// send for an untouched input and read as empty; any other value is filled in.
func honeypotValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
		return "true"
	case float64:
		if val == 0 {
			return ""
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}

func bodyError(reason string, err error) *ParseError {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &ParseError{Reason: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
	}
	return &ParseError{Reason: reason, Err: err}
}
