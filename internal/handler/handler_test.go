package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandgold-errcache/internal/errorcache"
	"grandgold-errcache/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func newErrorsHandler(t *testing.T) *ErrorsHandler {
	t.Helper()
	cache := errorcache.New(errorcache.NewMemoryStore())
	return NewErrorsHandler(service.NewSuppressionService(cache, nil, nil, true))
}

func call(t *testing.T, h http.HandlerFunc, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(method, target, strings.NewReader(body)))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestReportEndpoint(t *testing.T) {
	h := newErrorsHandler(t)
	body := `{"operation":"GetOrders","variables":{"page":1,"id":12345678901234567890},"error":"Network error"}`

	rec, env := call(t, h.Report, http.MethodPost, "/api/v1/errors/report", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict service.Verdict
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.True(t, verdict.Visible)
	assert.Equal(t, errorcache.ReasonFirstSeen, verdict.Reason)
	assert.Equal(t, `GetOrders:{"id":12345678901234567890,"page":1}`, verdict.Key)

	_, env = call(t, h.Report, http.MethodPost, "/api/v1/errors/report", body)
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.False(t, verdict.Visible)
	assert.Equal(t, errorcache.ReasonDuplicate, verdict.Reason)

	_, env = call(t, h.Report, http.MethodPost, "/api/v1/errors/report",
		`{"operation":"GetOrders","variables":{"id":12345678901234567890,"page":1},"error":null}`)
	require.NoError(t, json.Unmarshal(env.Data, &verdict))
	assert.Equal(t, errorcache.ReasonSuccess, verdict.Reason)
}

func TestReportValidation(t *testing.T) {
	h := newErrorsHandler(t)

	rec, env := call(t, h.Report, http.MethodPost, "/api/v1/errors/report", `{"error":"boom"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "operation", env.Error.Details[0].Field)

	rec, env = call(t, h.Report, http.MethodPost, "/api/v1/errors/report", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestDismissAndInspect(t *testing.T) {
	h := newErrorsHandler(t)
	op := `{"operation":"GetOrders"}`

	rec, env := call(t, h.Inspect, http.MethodPost, "/api/v1/errors/inspect", op)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	rec, _ = call(t, h.Dismiss, http.MethodPost, "/api/v1/errors/dismiss", op)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = call(t, h.Inspect, http.MethodPost, "/api/v1/errors/inspect", op)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Key   string           `json:"key"`
		Entry errorcache.Entry `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "GetOrders:", out.Key)
	assert.True(t, out.Entry.Dismissed)
}

func TestRetryEndpoints(t *testing.T) {
	h := newErrorsHandler(t)
	op := `{"operation":"GetOrders"}`

	_, env := call(t, h.CheckRetry, http.MethodPost, "/api/v1/errors/retry/check", op)
	var check map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &check))
	assert.Equal(t, true, check["should_retry"])
	assert.Equal(t, float64(1000), check["delay_ms"])

	call(t, h.Report, http.MethodPost, "/api/v1/errors/report", `{"operation":"GetOrders","error":"boom"}`)

	_, env = call(t, h.RecordRetry, http.MethodPost, "/api/v1/errors/retry", op)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, false, rec["recorded"], "first retry is due one second after the failure")
	assert.Equal(t, float64(0), rec["retry_count"])
}

func TestClearEndpoints(t *testing.T) {
	h := newErrorsHandler(t)

	call(t, h.Report, http.MethodPost, "/api/v1/errors/report", `{"operation":"GetOrders","error":"boom"}`)
	call(t, h.Report, http.MethodPost, "/api/v1/errors/report", `{"operation":"GetUsers","error":"boom"}`)

	rec, _ := call(t, h.Clear, http.MethodPost, "/api/v1/errors/clear", `{"operation":"GetOrders"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, h.Inspect, http.MethodPost, "/api/v1/errors/inspect", `{"operation":"GetOrders"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, h.ClearAll, http.MethodDelete, "/api/v1/errors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = call(t, h.Inspect, http.MethodPost, "/api/v1/errors/inspect", `{"operation":"GetUsers"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogWithoutDecisionLog(t *testing.T) {
	h := newErrorsHandler(t)

	rec, env := call(t, h.Log, http.MethodGet, "/api/v1/errors/log", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)

	rec, env = call(t, h.Log, http.MethodGet, "/api/v1/errors/log?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestReady(t *testing.T) {
	rec, env := call(t, New(fakePinger{}, "errcache", "test").Ready, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	rec, env = call(t, New(fakePinger{err: errors.New("dial tcp: refused")}, "errcache", "test").Ready, http.MethodGet, "/api/v1/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var ready ReadyResponse
	require.NoError(t, json.Unmarshal(env.Data, &ready))
	assert.False(t, ready.Ready)
	assert.Equal(t, "dial tcp: refused", ready.Checks[1].Error)
}

func TestStatus(t *testing.T) {
	_, env := call(t, New(nil, "errcache", "test").Status, http.MethodGet, "/api/status", "")

	var status StatusResponse
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "errcache", status.Service)
	assert.Equal(t, "ok", status.Status)
}
