package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/accruals-router/internal/config"
	"github.com/kirillkom/accruals-router/internal/core/domain"
	"github.com/kirillkom/accruals-router/internal/core/ports"
	"github.com/kirillkom/accruals-router/internal/observability/metrics"
)

const serviceName = "api"

// StatusChangePublisher hands operator edits to the lifecycle worker.
type StatusChangePublisher interface {
	PublishStatusChange(ctx context.Context, change domain.StatusChange) error
}

type Router struct {
	cfg     config.Config
	intake  ports.DocumentIntake
	changes StatusChangePublisher
	metrics *metrics.HTTPServerMetrics
}

// NewRouter builds the trigger API. httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	intake ports.DocumentIntake,
	changes StatusChangePublisher,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		intake:  intake,
		changes: changes,
		metrics: httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	intake := backpressureMiddleware(http.HandlerFunc(rt.runIntake), rt.cfg.APIMaxConcurrentIntakes, rt.cfg.APIBackpressureWait)
	mux.Handle("POST /v1/companies/{company}/intake", intake)
	mux.HandleFunc("POST /v1/companies/{company}/status-changes", rt.enqueueStatusChange)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type intakeRequest struct {
	Messages                       []domain.MailMessage `json:"messages"`
	AlreadyProcessedMessageIDs     []string             `json:"already_processed_message_ids"`
	AlreadyProcessedCanonicalNames []string             `json:"already_processed_canonical_names"`
}

func (rt *Router) runIntake(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.PathValue("company"))
	if company == "" {
		writeError(w, r, http.StatusBadRequest, "company is required")
		return
	}

	var req intakeRequest
	if !decodeJSON(w, r, rt.cfg.MaxRequestBytes, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, r, http.StatusBadRequest, "messages are required")
		return
	}

	result, err := rt.intake.Intake(r.Context(), domain.IntakeRequest{
		Company:                        company,
		Messages:                       req.Messages,
		AlreadyProcessedMessageIDs:     req.AlreadyProcessedMessageIDs,
		AlreadyProcessedCanonicalNames: req.AlreadyProcessedCanonicalNames,
	})
	if rt.metrics != nil {
		rt.metrics.RecordIntakeRun(serviceName, result.Cancelled, err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statusChangeRequest struct {
	Field     domain.ChangedField `json:"field"`
	Row       int                 `json:"row"`
	OldValue  string              `json:"old_value"`
	NewValue  string              `json:"new_value"`
	Reason    string              `json:"reason"`
	ChangedBy string              `json:"changed_by"`
}

func (rt *Router) enqueueStatusChange(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.PathValue("company"))
	var req statusChangeRequest
	if !decodeJSON(w, r, rt.cfg.MaxRequestBytes, &req) {
		return
	}
	if req.Field != domain.FieldStatus && req.Field != domain.FieldRelevance {
		writeError(w, r, http.StatusBadRequest, "field must be status or relevance")
		return
	}
	if req.Row <= 0 {
		writeError(w, r, http.StatusBadRequest, "row must be positive")
		return
	}

	change := domain.StatusChange{
		Company:   company,
		Field:     req.Field,
		Row:       req.Row,
		OldValue:  strings.TrimSpace(req.OldValue),
		NewValue:  strings.TrimSpace(req.NewValue),
		Reason:    strings.TrimSpace(req.Reason),
		ChangedBy: strings.TrimSpace(req.ChangedBy),
	}
	if err := rt.changes.PublishStatusChange(r.Context(), change); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, change)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, out any) bool {
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
	writeError(w, r, status, err.Error())
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
