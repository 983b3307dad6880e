// Package contact validates and sanitizes contact-form submissions.
package contact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Field limits, in Unicode code points.
const (
	MaxNameLength    = 100
	MaxEmailLength   = 254
	MaxSubjectLength = 200
	MaxMessageLength = 5000

	MinNameLength    = 2
	MinMessageLength = 10
)

// DefaultSubject is used when the submitter leaves the subject empty.
const DefaultSubject = "Portfolio Contact Form"

// Address atoms exclude whitespace and the RFC 5322 specials that would let
// one value read as several addresses once it lands in To or Reply-To.
var emailPattern = regexp.MustCompile(`(?i)^[^\s@,;<>"()\[\]\\:]+@[^\s@,;<>"()\[\]\\:]+\.[a-z]{2,}$`)

// Submission is a raw, untrusted form submission.
type Submission struct {
	Name     string
	Email    string
	Subject  string
	Message  string
	Honeypot string
}

// CleanSubmission is a validated submission. Every field is trimmed,
// length-capped and free of control characters (Message keeps \n and \t).
type CleanSubmission struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// Code identifies which validation rule failed.
type Code string

const (
	InvalidName    Code = "invalid_name"
	InvalidEmail   Code = "invalid_email"
	InvalidMessage Code = "invalid_message"
)

// ValidationError is returned when client input breaks a rule.
type ValidationError struct {
	Code    Code
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ErrSpam is returned when the honeypot field is filled in. Callers should
// answer as if the submission succeeded and send nothing.
var ErrSpam = errors.New("honeypot field is not empty")

// Options tune Validate. The zero value uses DefaultSubject.
type Options struct {
	DefaultSubject string
}

// Validate checks s against the form rules, first failure wins, and returns
// the normalized submission. It has no side effects.
func Validate(s Submission, opts Options) (CleanSubmission, error) {
	if strings.TrimSpace(s.Honeypot) != "" {
		return CleanSubmission{}, ErrSpam
	}

	name := cleanLine(s.Name)
	if runeLen(name) < MinNameLength {
		return CleanSubmission{}, &ValidationError{
			Code:    InvalidName,
			Field:   "name",
			Message: fmt.Sprintf("must be at least %d characters", MinNameLength),
		}
	}

	addr := cleanLine(s.Email)
	if runeLen(addr) > MaxEmailLength || !emailPattern.MatchString(addr) {
		return CleanSubmission{}, &ValidationError{
			Code:    InvalidEmail,
			Field:   "email",
			Message: "must be a valid email address",
		}
	}

	message := cleanText(s.Message)
	if runeLen(message) < MinMessageLength {
		return CleanSubmission{}, &ValidationError{
			Code:    InvalidMessage,
			Field:   "message",
			Message: fmt.Sprintf("must be at least %d characters", MinMessageLength),
		}
	}

	subject := cleanLine(s.Subject)
	if subject == "" {
		subject = opts.DefaultSubject
		if subject == "" {
			subject = DefaultSubject
		}
		subject = cleanLine(subject)
	}

	return CleanSubmission{
		Name:    truncate(name, MaxNameLength),
		Email:   strings.ToLower(addr),
		Subject: truncate(subject, MaxSubjectLength),
		Message: truncate(message, MaxMessageLength),
	}, nil
}

// cleanLine normalizes a single-line field: line breaks and tabs collapse to
// one space, other control characters are dropped, and the result is trimmed.
func cleanLine(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		switch {
		case r == '\r' || r == '\n' || r == '\t':
			pendingSpace = true
			continue
		case unicode.IsControl(r):
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// cleanText normalizes a multi-line field: CRLF and CR become LF, tabs and
// line feeds are kept, other control characters are dropped.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// StripControl removes every control character and trims the result, then
// caps it at limit code points. It is meant for request metadata such as
// the user agent.
func StripControl(s string, limit int) string {
	return truncate(cleanLine(s), limit)
}

func runeLen(s string) int {
	return len([]rune(s))
}

// truncate keeps the first limit code points of s.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
