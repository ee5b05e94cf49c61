package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-labelwatch/core"
)

const DefaultPath = "/webhooks/github"

type HTTPConfig struct {
	Path               string
	RateLimitPerMinute int
	Logger             core.Logger
}

// HTTPConfigFrom maps service configuration onto the handler settings.
func HTTPConfigFrom(cfg core.WebhookConfig) HTTPConfig {
	return HTTPConfig{Path: cfg.Path, RateLimitPerMinute: cfg.RateLimitPerMinute}
}

type deliveryResponse struct {
	Success       bool   `json:"success"`
	Type          string `json:"type,omitempty"`
	AffectedUsers int    `json:"affectedUsers"`
	RepositoryID  int64  `json:"repositoryId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

// NewHTTPHandler exposes the ingress as POST <path>, throttled per client IP.
func NewHTTPHandler(ingress *Ingress, cfg HTTPConfig) http.Handler {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = DefaultPath
	}
	logger := core.ResolveLogger("labelwatch.webhooks.http", nil, cfg.Logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(cfg.RateLimitPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post(path, func(w http.ResponseWriter, req *http.Request) {
			limit := ingress.MaxPayloadBytes()
			body, err := io.ReadAll(io.LimitReader(req.Body, limit+1))
			if err != nil {
				writeError(w, core.MalformedPayload(err))
				return
			}
			processed, err := ingress.ProcessDelivery(req.Context(), body, req.Header)
			if err != nil {
				if status := statusFor(err); status >= http.StatusInternalServerError {
					core.Log(req.Context(), logger, core.LevelError, "webhook processing failed", map[string]any{
						"error": err.Error(),
					})
				}
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, deliveryResponse{
				Success:       true,
				Type:          string(processed.Outcome),
				AffectedUsers: processed.AffectedUsers,
				RepositoryID:  processed.RepositoryID,
				Reason:        processed.FilterReason,
			})
		})
	})
	return r
}

// statusFor maps boundary failures to 400 and everything else to 500.
func statusFor(err error) int {
	mapped := core.MapError(err)
	switch mapped.TextCode {
	case core.ErrorAuthenticationFailed,
		core.ErrorPayloadTooLarge,
		core.ErrorMalformedPayload,
		core.ErrorMissingHeader,
		core.ErrorBadInput:
		return http.StatusBadRequest
	}
	switch mapped.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryAuth:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	status := statusFor(err)
	message := mapped.Message
	if status >= http.StatusInternalServerError {
		message = "internal error"
	}
	writeJSON(w, status, deliveryResponse{Success: false, Error: message, Code: mapped.TextCode})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
