package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdaf-lab/hermes/internal/agent"
	"github.com/nwdaf-lab/hermes/internal/engine"
	"github.com/nwdaf-lab/hermes/internal/models"
)

type notificationStub struct {
	calls int
	err   error
}

func (s *notificationStub) Name() string         { return "stub" }
func (s *notificationStub) Categories() []string { return []string{models.CategoryTrace, models.CategoryPerformance} }
func (s *notificationStub) HandleNotification(_ context.Context, category string, n models.Notification) (agent.Result, error) {
	s.calls++
	if s.err != nil {
		return agent.Result{}, s.err
	}
	return agent.Result{Message: category + " notification processed", Forwarded: len(n.FileInfoList)}, nil
}

type ingesterStub struct {
	body []byte
	err  error
}

func (s *ingesterStub) Ingest(_ context.Context, body []byte) (engine.ReceiveResult, error) {
	s.body = body
	if s.err != nil {
		return engine.ReceiveResult{}, s.err
	}
	return engine.ReceiveResult{EventID: "e1"}, nil
}

type panickingStub struct{ notificationStub }

func (s *panickingStub) HandleNotification(context.Context, string, models.Notification) (agent.Result, error) {
	panic("descriptor index out of range")
}

type panickingIngester struct{}

func (panickingIngester) Ingest(context.Context, []byte) (engine.ReceiveResult, error) {
	panic("nil working set")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestEmptyFileInfoListIsRejected(t *testing.T) {
	stub := &notificationStub{}
	router := NewAgentRouter(stub, quietLogger())

	for _, body := range []string{`{"fileInfoList":[]}`, `{}`, `{"fileInfoList":{"a":1}}`, `garbage`} {
		rec := post(t, router, "/handle_trace_file_notification", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.Equal(t, "Invalid notification format", decodeBody(t, rec)["detail"])
	}
	assert.Zero(t, stub.calls)
}

func TestNotificationRoutesPerCategory(t *testing.T) {
	stub := &notificationStub{}
	router := NewAgentRouter(stub, quietLogger())

	rec := post(t, router, "/handle_performance_file_notification", `{"fileInfoList":[{"fileLocation":"http://r/f/1"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Performance notification processed", body["message"])
	assert.EqualValues(t, 1, body["forwarded"])

	rec = post(t, router, "/handle_analytics_file_notification", `{"fileInfoList":[{"fileLocation":"x"}]}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationHandlerErrorIsClientError(t *testing.T) {
	router := NewAgentRouter(&notificationStub{err: agent.ErrInvalidNotification}, quietLogger())
	rec := post(t, router, "/handle_trace_file_notification", `{"fileInfoList":[{"fileLocation":"x"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestReceiveEndpoints(t *testing.T) {
	stub := &ingesterStub{}
	router := NewEngineRouter(stub, nil, quietLogger())

	for _, path := range []string{"/receive_shared_data", "/receive"} {
		rec := post(t, router, path, `{"_id":"e1"}`)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "success", decodeBody(t, rec)["status"])
		assert.JSONEq(t, `{"_id":"e1"}`, string(stub.body))
	}
}

func TestReceiveInvalidEvent(t *testing.T) {
	router := NewEngineRouter(&ingesterStub{err: engine.ErrInvalidEvent}, nil, quietLogger())
	rec := post(t, router, "/receive_shared_data", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid event format", decodeBody(t, rec)["detail"])

	router = NewEngineRouter(&ingesterStub{err: errors.New("boom")}, nil, quietLogger())
	rec = post(t, router, "/receive", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestHealthz(t *testing.T) {
	router := NewEngineRouter(&ingesterStub{}, nil, quietLogger())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthzReportsStoreOutage(t *testing.T) {
	var calls int
	ready := func(context.Context) error {
		calls++
		return errors.New("no primary")
	}
	router := NewEngineRouter(&ingesterStub{}, ready, quietLogger())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", decodeBody(t, rec)["status"])
	assert.Equal(t, 1, calls)
}

func TestAgentPanicIsClientError(t *testing.T) {
	router := NewAgentRouter(&panickingStub{}, quietLogger())
	rec := post(t, router, "/handle_trace_file_notification", `{"fileInfoList":[{"fileLocation":"x"}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid notification format", decodeBody(t, rec)["detail"])
}

func TestEnginePanicIsInternalError(t *testing.T) {
	router := NewEngineRouter(panickingIngester{}, nil, quietLogger())
	rec := post(t, router, "/receive", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal error", decodeBody(t, rec)["detail"])
}
