// Package server exposes the contact form endpoint over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/shineum/contact-relay/internal/compose"
	"github.com/shineum/contact-relay/internal/config"
	"github.com/shineum/contact-relay/internal/contact"
	"github.com/shineum/contact-relay/internal/delivery"
	"github.com/shineum/contact-relay/internal/email"
)

const (
	msgAccepted       = "Thank you! Your message has been sent."
	msgMisconfigured  = "The contact form is not configured. Please try again later."
	msgDeliveryFailed = "Your message could not be delivered. Please try again later."

	contactAllow = "POST, OPTIONS"
)

// Deliverer sends a composed owner/submitter pair.
type Deliverer interface {
	Deliver(ctx context.Context, owner, submitter *email.Message) delivery.Result
}

// Options wires a Handler.
type Options struct {
	Config    *config.Config
	Composer  *compose.Composer
	Deliverer Deliverer
	// Primary and Fallback are the provider names reported by /healthz.
	Primary  string
	Fallback string
}

// Handler routes the contact endpoint and the health check.
type Handler struct {
	cfg       *config.Config
	composer  *compose.Composer
	deliverer Deliverer
	primary   string
	fallback  string
	router    chi.Router
}

// NewHandler builds the router.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		cfg:       opts.Config,
		composer:  opts.Composer,
		deliverer: opts.Deliverer,
		primary:   opts.Primary,
		fallback:  opts.Fallback,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(recoverer)

	if origins := h.cfg.Server.AllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.handleHealth)
	r.Post(h.cfg.Server.Path, h.handleContact)
	r.Options(h.cfg.Server.Path, h.handleOptions)
	r.MethodNotAllowed(h.handleMethodNotAllowed)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "")
	})

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sub, err := decodeSubmission(w, r, h.cfg.Contact.HoneypotField, h.cfg.Server.MaxBodyBytes)
	if err != nil {
		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			slog.ErrorContext(ctx, "failed to read submission", "error", err)
			writeInternal(w)
			return
		}
		slog.InfoContext(ctx, "rejected malformed submission", "error", err)
		writeError(w, http.StatusBadRequest, parseErr.Reason, "bad_request")
		return
	}

	clean, err := contact.Validate(sub, contact.Options{DefaultSubject: h.cfg.Contact.DefaultSubject})
	if err != nil {
		var validationErr *contact.ValidationError
		switch {
		case errors.Is(err, contact.ErrSpam):
			slog.InfoContext(ctx, "honeypot triggered, dropping submission", "client_ip", clientIP(r))
			writeJSON(w, http.StatusOK, successResponse{OK: true, Message: msgAccepted})
		case errors.As(err, &validationErr):
			slog.InfoContext(ctx, "submission failed validation",
				"field", validationErr.Field,
				"code", validationErr.Code,
			)
			writeError(w, http.StatusBadRequest, validationErr.Field+" "+validationErr.Message, string(validationErr.Code))
		default:
			slog.ErrorContext(ctx, "unexpected validation error", "error", err)
			writeInternal(w)
		}
		return
	}

	if err := h.cfg.RequireRecipients(); err != nil {
		slog.ErrorContext(ctx, "contact form misconfigured", "error", err)
		writeError(w, http.StatusInternalServerError, msgMisconfigured, "misconfigured")
		return
	}

	owner, submitter, err := h.composer.Compose(clean, compose.Meta{
		ClientIP:    clientIP(r),
		UserAgent:   r.UserAgent(),
		Referer:     r.Referer(),
		SubmittedAt: time.Now(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to compose messages", "error", err)
		writeInternal(w)
		return
	}
	// A client hanging up must not abort a send already underway.
	ctx = context.WithoutCancel(ctx)
	slog.InfoContext(ctx, "submission accepted", "reference", owner.Headers[compose.ReferenceHeader])

	res := h.deliverer.Deliver(ctx, owner, submitter)
	if !res.OK {
		writeError(w, http.StatusBadGateway, msgDeliveryFailed, "delivery_failed")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{OK: true, Message: msgAccepted})
}

func (h *Handler) handleOptions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", contactAllow)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allow := contactAllow
	if r.URL.Path == "/healthz" {
		allow = http.MethodGet
	}
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Provider: h.primary,
		Fallback: h.fallback,
	})
}

// clientIP strips the port RealIP leaves on direct connections.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
