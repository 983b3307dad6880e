// Package delivery sends the owner notification with a single fallback hop
// and the submitter confirmation on a best-effort basis.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shineum/contact-relay/internal/email"
	"github.com/shineum/contact-relay/internal/provider"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 20 * time.Second

// Outcome is the result of one send attempt.
type Outcome struct {
	OK        bool
	Provider  string
	MessageID string
	Err       error
}

// ErrorDetail renders the attempt error, or "" on success.
func (o Outcome) ErrorDetail() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Result is the outcome of one submission. OK reflects the owner
// notification only.
type Result struct {
	OK            bool
	Owner         Outcome
	OwnerAttempts []Outcome
	// Submitter is nil when no confirmation was attempted.
	Submitter *Outcome
}

// Error reports that every provider failed the owner notification.
type Error struct {
	Attempts []Outcome
}

func (e *Error) Error() string {
	return fmt.Sprintf("owner notification failed on %d provider(s): %v", len(e.Attempts), e.Unwrap())
}

// Unwrap joins the individual attempt errors.
func (e *Error) Unwrap() error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Provider, a.Err))
		}
	}
	return errors.Join(errs...)
}

// Err returns a *Error when the owner notification failed, nil otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &Error{Attempts: r.OwnerAttempts}
}

// Orchestrator runs deliveries over a provider chain. It holds no mutable
// state and is safe for concurrent use.
type Orchestrator struct {
	chain   provider.Chain
	timeout time.Duration
}

// New creates an Orchestrator. A non-positive timeout selects DefaultTimeout.
func New(chain provider.Chain, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{chain: chain, timeout: timeout}
}

// Deliver sends owner on the primary provider, retrying once on the fallback
// if the primary fails. When the owner message is accepted, submitter goes out
// on the provider that accepted it; its failure never changes Result.OK.
func (o *Orchestrator) Deliver(ctx context.Context, owner, submitter *email.Message) Result {
	var res Result

	used := o.chain.Primary
	out := o.attempt(ctx, used, owner)
	res.OwnerAttempts = append(res.OwnerAttempts, out)

	if !out.OK && o.chain.Fallback != nil {
		slog.WarnContext(ctx, "primary provider failed, trying fallback",
			"provider", out.Provider,
			"fallback", o.chain.Fallback.Name(),
			"error", out.Err,
		)
		used = o.chain.Fallback
		out = o.attempt(ctx, used, owner)
		res.OwnerAttempts = append(res.OwnerAttempts, out)
	}

	res.Owner = out
	res.OK = out.OK

	if !res.OK {
		slog.ErrorContext(ctx, "owner notification failed",
			"attempts", len(res.OwnerAttempts),
			"error", res.Err(),
		)
		return res
	}

	slog.InfoContext(ctx, "owner notification sent",
		"provider", out.Provider,
		"message_id", out.MessageID,
	)

	if submitter == nil {
		return res
	}

	conf := o.attempt(ctx, used, submitter)
	res.Submitter = &conf
	if conf.OK {
		slog.InfoContext(ctx, "confirmation sent",
			"provider", conf.Provider,
			"message_id", conf.MessageID,
		)
	} else {
		slog.WarnContext(ctx, "confirmation failed",
			"provider", conf.Provider,
			"error", conf.Err,
		)
	}
	return res
}

// attempt performs one bounded send and never panics on provider errors.
func (o *Orchestrator) attempt(ctx context.Context, p provider.Provider, msg *email.Message) Outcome {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	receipt, err := p.Send(callCtx, msg)

	slog.DebugContext(ctx, "provider call finished",
		"provider", p.Name(),
		"duration", time.Since(start),
		"ok", err == nil,
	)

	if err != nil {
		return Outcome{Provider: p.Name(), Err: err}
	}
	return Outcome{OK: true, Provider: p.Name(), MessageID: receipt.MessageID}
}
