package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/service"
	"grandgold-errcache/pkg/apierror"
	"grandgold-errcache/pkg/response"
)

const (
	maxBodyBytes    = 1 << 20
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// ErrorsHandler exposes the error cache to remote front ends.
type ErrorsHandler struct {
	svc      *service.SuppressionService
	validate *validator.Validate
	log      *slog.Logger
}

// NewErrorsHandler creates a new errors handler.
func NewErrorsHandler(svc *service.SuppressionService) *ErrorsHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &ErrorsHandler{
		svc:      svc,
		validate: v,
		log:      slog.With("component", "ErrorsHandler"),
	}
}

// operationRequest identifies a data-fetching call.
type operationRequest struct {
	Operation string         `json:"operation" validate:"required,max=256"`
	Variables map[string]any `json:"variables"`
}

// reportRequest carries the outcome of a call. A null error is a success.
type reportRequest struct {
	Operation string         `json:"operation" validate:"required,max=256"`
	Variables map[string]any `json:"variables"`
	Error     *string        `json:"error" validate:"omitempty,max=4096"`
}

// decode reads a JSON body into dst and validates it. Numbers are kept as
// json.Number so large identifiers keep their exact key.
func (h *ErrorsHandler) decode(r *http.Request, dst interface{}) *apierror.Error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return apierror.BadRequest("invalid JSON body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return apierror.FromValidation(err)
	}
	return nil
}

// writeError maps service errors onto API errors.
func (h *ErrorsHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errorcache.ErrUnserializableVariables):
		response.Error(w, apierror.BadRequest(err.Error()))
	case errors.Is(err, errorcache.ErrEntryNotFound):
		response.Error(w, apierror.NotFound("no cached error for this operation"))
	case errors.Is(err, service.ErrDecisionLogDisabled):
		response.Error(w, apierror.ServiceUnavailable(err.Error()))
	default:
		h.log.Error("error cache request failed", "error", err)
		response.Error(w, apierror.ServiceUnavailable("error cache store unavailable"))
	}
}

// Report handles POST /api/v1/errors/report
func (h *ErrorsHandler) Report(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req reportRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	response.OK(w, h.svc.Report(r.Context(), req.Operation, req.Variables, req.Error))
}

// Dismiss handles POST /api/v1/errors/dismiss
func (h *ErrorsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req operationRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	key, err := h.svc.Dismiss(r.Context(), req.Operation, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"key":       key,
		"dismissed": true,
	})
}

// CheckRetry handles POST /api/v1/errors/retry/check
func (h *ErrorsHandler) CheckRetry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req operationRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	advice, err := h.svc.CheckRetry(r.Context(), req.Operation, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"key":          advice.Key,
		"should_retry": advice.Allowed,
		"retry_count":  advice.RetryCount,
		"delay_ms":     advice.Delay.Milliseconds(),
	})
}

// RecordRetry handles POST /api/v1/errors/retry
func (h *ErrorsHandler) RecordRetry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req operationRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	advice, err := h.svc.RecordRetry(r.Context(), req.Operation, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"key":         advice.Key,
		"recorded":    advice.Allowed,
		"retry_count": advice.RetryCount,
		"delay_ms":    advice.Delay.Milliseconds(),
	})
}

// Inspect handles POST /api/v1/errors/inspect
func (h *ErrorsHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req operationRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	key, entry, err := h.svc.Inspect(r.Context(), req.Operation, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"key":   key,
		"entry": entry,
	})
}

// Clear handles POST /api/v1/errors/clear
func (h *ErrorsHandler) Clear(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req operationRequest
	if apiErr := h.decode(r, &req); apiErr != nil {
		response.Error(w, apiErr)
		return
	}

	key, err := h.svc.Clear(r.Context(), req.Operation, req.Variables)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"key":     key,
		"cleared": true,
	})
}

// ClearAll handles DELETE /api/v1/errors
func (h *ErrorsHandler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{"cleared": "all"})
}

// Log handles GET /api/v1/errors/log?key=&limit=
func (h *ErrorsHandler) Log(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(w, apierror.ValidationError("invalid query",
				apierror.FieldError{Field: "limit", Message: "must be a positive integer"}))
			return
		}
		limit = min(n, maxLogLimit)
	}

	decisions, err := h.svc.Recent(r.Context(), r.URL.Query().Get("key"), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}
