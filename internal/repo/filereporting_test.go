package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSubscribePostsRequest(t *testing.T) {
	client := NewFileReportingClient("http://reporting:8080/", "/fileDataReportingMnS/v1/subscriptions/", "/fileDataReportingMnS/v1/files", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if req.URL.String() != "http://reporting:8080/fileDataReportingMnS/v1/subscriptions/" {
			t.Fatalf("unexpected url: %s", req.URL)
		}
		var body models.SubscriptionRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Filter.FileDataType != "Trace" || !strings.HasSuffix(body.ConsumerReference, "/handle_trace_file_notification") {
			t.Fatalf("unexpected subscription: %+v", body)
		}
		return jsonResponse(http.StatusCreated, `{"subscriptionId":"s1"}`), nil
	}))

	err := client.Subscribe(context.Background(), models.SubscriptionRequest{
		ConsumerReference: "http://agent:5557/handle_trace_file_notification",
		Filter:            models.SubscriptionFilter{FileDataType: "Trace"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubscribeRejectsNonCreated(t *testing.T) {
	client := NewFileReportingClient("http://reporting:8080", "/subs/", "/files", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	}))

	err := client.Subscribe(context.Background(), models.SubscriptionRequest{Filter: models.SubscriptionFilter{FileDataType: "Trace"}})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusOK {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFetchFile(t *testing.T) {
	client := NewFileReportingClient("http://reporting:8080", "/subs/", "/files", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.Method != http.MethodGet || req.URL.Path != "/files/abc" {
			t.Fatalf("unexpected request %s %s", req.Method, req.URL)
		}
		return jsonResponse(http.StatusOK, `{"_id":"abc","fileInfo":{"fileDataType":"Trace"}}`), nil
	}))

	doc, err := client.FetchFile(context.Background(), "http://reporting:8080/files/abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Contains(doc, []byte(`"_id":"abc"`)) {
		t.Fatalf("unexpected document: %s", doc)
	}

	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `not found`), nil
	}))
	if _, err := client.FetchFile(context.Background(), "http://reporting:8080/files/missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
}

func TestUploadFileReturnsID(t *testing.T) {
	client := NewFileReportingClient("http://reporting:8080", "/subs/", "/fileDataReportingMnS/v1/files", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/fileDataReportingMnS/v1/files" {
			t.Fatalf("unexpected path %s", req.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["fileComponent"] != "UDM" || body["fileFormat"] != "JSON" {
			t.Fatalf("unexpected upload body: %v", body)
		}
		content, ok := body["fileContent"].(map[string]any)
		if !ok || content["eventId"] != "UDM_UE_REACHABILITY" {
			t.Fatalf("unexpected content: %v", body["fileContent"])
		}
		return jsonResponse(http.StatusCreated, `{"fileId":"f-77"}`), nil
	}))

	id, err := client.UploadFile(context.Background(), models.DerivedFile{
		FileDataType:  models.CategoryProprietary,
		FileComponent: models.NetworkFunctionUDM,
		FileContent:   models.UDMContent{EventID: "UDM_UE_REACHABILITY", Supi: "imsi-1"},
		FileFormat:    "JSON",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "f-77" {
		t.Fatalf("expected f-77, got %s", id)
	}
}

func TestUploadWithoutBaseURL(t *testing.T) {
	client := NewFileReportingClient("", "/subs/", "/files", time.Second)
	if _, err := client.UploadFile(context.Background(), models.DerivedFile{}); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestEngineClientForward(t *testing.T) {
	var got map[string]any
	client := NewEngineClient("http://engine:8081/receive_shared_data", time.Second)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"status":"success"}`), nil
	}))
	if err := client.Forward(context.Background(), map[string]any{"_id": "e1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["_id"] != "e1" {
		t.Fatalf("unexpected forwarded body: %v", got)
	}

	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, `{"detail":"Invalid event format"}`), nil
	}))
	if err := client.Forward(context.Background(), map[string]any{}); err == nil {
		t.Fatalf("expected error on 422")
	}
}

func TestResolvePathKeepsTrailingSlash(t *testing.T) {
	if got := resolvePath("http://h:1/base", "/subs/"); got != "http://h:1/base/subs/" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := resolvePath("http://h:1", "files"); got != "http://h:1/files" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := resolvePath("", "files"); got != "" {
		t.Fatalf("expected empty url, got %s", got)
	}
}

func TestClientsUseTunedTransport(t *testing.T) {
	clients := map[string]*http.Client{
		"file reporting": NewFileReportingClient("http://reporting", "/subs", "/files", 3*time.Second).httpClient,
		"engine":         NewEngineClient("http://engine/receive_shared_data", 3*time.Second).httpClient,
	}
	for name, client := range clients {
		if client.Timeout != 3*time.Second {
			t.Fatalf("%s: expected 3s timeout, got %s", name, client.Timeout)
		}
		tr, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("%s: expected *http.Transport, got %T", name, client.Transport)
		}
		if tr.TLSHandshakeTimeout != 5*time.Second || tr.IdleConnTimeout != 90*time.Second || tr.Proxy == nil {
			t.Fatalf("%s: transport not tuned: %+v", name, tr)
		}
	}
}
