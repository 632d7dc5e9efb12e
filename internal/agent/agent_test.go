package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nwdaf-lab/hermes/internal/config"
	"github.com/nwdaf-lab/hermes/internal/models"
)

type fakeReporting struct {
	mu            sync.Mutex
	files         map[string]string
	subscribeErrs []error
	subscriptions []models.SubscriptionRequest
	fetched       []string
}

func (f *fakeReporting) Subscribe(_ context.Context, req models.SubscriptionRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, req)
	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		return err
	}
	return nil
}

func (f *fakeReporting) FetchFile(_ context.Context, location string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, location)
	body, ok := f.files[location]
	if !ok {
		return nil, errors.New("status 404")
	}
	return json.RawMessage(body), nil
}

type fakeForwarder struct {
	err      error
	payloads []any
}

func (f *fakeForwarder) Forward(_ context.Context, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fileDoc(id string, excep models.AnomalyType) string {
	return `{"_id":"` + id + `","fileInfo":{"fileLocation":"http://r/files/` + id + `","fileDataType":"Trace","fileSize":12},` +
		`"eventNotifications":[{"event":"ABNORMAL_BEHAVIOUR","timeStampGen":"2024-05-01T12:00:00Z",` +
		`"abnorBehavrs":[{"supis":["imsi-1"],"excep":{"excepId":"` + string(excep) + `","excepLevel":3}}]}]}`
}

func physicalLayerAgent(t *testing.T, reporting Reporting, fwd Forwarder) *Agent {
	t.Helper()
	a, err := New(config.AgentConfig{
		Name:         "physical-layer-inspector",
		AdvertiseURL: "http://localhost:5557/",
		Categories:   []string{models.CategoryTrace},
		Filter:       config.AgentFilterConfig{Kind: config.FilterOnly, Anomalies: []string{string(models.AnomalyUnexpectedRadioLinkFailure)}},
		Forward:      config.ForwardRaw,
	}, config.RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}, reporting, fwd, quietLogger())
	require.NoError(t, err)
	return a
}

func notification(locations ...string) models.Notification {
	var n models.Notification
	for _, loc := range locations {
		n.FileInfoList = append(n.FileInfoList, models.FileInfo{FileLocation: loc})
	}
	return n
}

func TestHandleNotificationForwardsRelevantFile(t *testing.T) {
	reporting := &fakeReporting{files: map[string]string{
		"http://r/files/a": fileDoc("a", models.AnomalyUnexpectedRadioLinkFailure),
	}}
	fwd := &fakeForwarder{}
	a := physicalLayerAgent(t, reporting, fwd)

	res, err := a.HandleNotification(context.Background(), models.CategoryTrace, notification("http://r/files/a"))
	require.NoError(t, err)
	assert.Equal(t, "Trace notification processed", res.Message)
	assert.Equal(t, 1, res.Forwarded)

	require.Len(t, fwd.payloads, 1)
	doc, ok := fwd.payloads[0].(Document)
	require.True(t, ok)
	assert.NotContains(t, doc, "fileInfo")
	assert.JSONEq(t, `"a"`, string(doc["_id"]))
}

func TestHandleNotificationIgnoresIrrelevantFile(t *testing.T) {
	reporting := &fakeReporting{files: map[string]string{
		"http://r/files/b": fileDoc("b", models.AnomalySuspicionOfDDoSAttack),
	}}
	fwd := &fakeForwarder{}
	a := physicalLayerAgent(t, reporting, fwd)

	res, err := a.HandleNotification(context.Background(), models.CategoryTrace, notification("http://r/files/b"))
	require.NoError(t, err)
	assert.Equal(t, "Non-relevant Trace file ignored", res.Message)
	assert.Equal(t, 1, res.Ignored)
	assert.Empty(t, fwd.payloads)
}

func TestHandleNotificationContinuesAfterRejection(t *testing.T) {
	reporting := &fakeReporting{files: map[string]string{
		"http://r/files/b": fileDoc("b", models.AnomalySuspicionOfDDoSAttack),
		"http://r/files/a": fileDoc("a", models.AnomalyUnexpectedRadioLinkFailure),
	}}
	fwd := &fakeForwarder{}
	a := physicalLayerAgent(t, reporting, fwd)

	res, err := a.HandleNotification(context.Background(), models.CategoryTrace,
		notification("http://r/files/b", "", "http://r/files/missing", "http://r/files/a"))
	require.NoError(t, err)
	assert.Equal(t, "Trace notification processed", res.Message)
	assert.Equal(t, 1, res.Forwarded)
	assert.Equal(t, 1, res.Ignored)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, []string{"http://r/files/b", "http://r/files/missing", "http://r/files/a"}, reporting.fetched)
}

func TestHandleNotificationForwardFailureIsSkipped(t *testing.T) {
	reporting := &fakeReporting{files: map[string]string{
		"http://r/files/a": fileDoc("a", models.AnomalyUnexpectedRadioLinkFailure),
	}}
	a := physicalLayerAgent(t, reporting, &fakeForwarder{err: errors.New("engine down")})

	res, err := a.HandleNotification(context.Background(), models.CategoryTrace, notification("http://r/files/a"))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Forwarded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, "Trace notification processed", res.Message)
}

func TestHandleNotificationRejectsEmptyList(t *testing.T) {
	a := physicalLayerAgent(t, &fakeReporting{}, &fakeForwarder{})
	_, err := a.HandleNotification(context.Background(), models.CategoryTrace, models.Notification{})
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func TestDecodeNotification(t *testing.T) {
	n, err := DecodeNotification([]byte(`{"fileInfoList":[{"fileLocation":"http://r/files/a","fileSize":10}]}`))
	require.NoError(t, err)
	require.Len(t, n.FileInfoList, 1)
	assert.Equal(t, "http://r/files/a", n.FileInfoList[0].FileLocation)

	for _, body := range []string{`{}`, `{"fileInfoList":{}}`, `{"fileInfoList":[]}`, `not json`, `{"fileInfoList":"x"}`} {
		_, err := DecodeNotification([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidNotification, body)
	}
}

func TestSubscribeRetriesAndBuildsConsumerReference(t *testing.T) {
	reporting := &fakeReporting{subscribeErrs: []error{errors.New("unavailable")}}
	a := physicalLayerAgent(t, reporting, &fakeForwarder{})

	require.NoError(t, a.Subscribe(context.Background()))
	require.Len(t, reporting.subscriptions, 2)
	req := reporting.subscriptions[1]
	assert.Equal(t, "http://localhost:5557/handle_trace_file_notification", req.ConsumerReference)
	assert.Equal(t, models.CategoryTrace, req.Filter.FileDataType)
}

func TestSubscribeGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("unavailable")
	reporting := &fakeReporting{subscribeErrs: []error{boom, boom, boom, boom}}
	a := physicalLayerAgent(t, reporting, &fakeForwarder{})

	err := a.Subscribe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, reporting.subscriptions, 3)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.AgentConfig{Name: "x", Categories: []string{"Trace"}, Filter: config.AgentFilterConfig{Kind: "nope"}},
		config.RetryConfig{}, &fakeReporting{}, &fakeForwarder{}, nil)
	assert.Error(t, err)

	_, err = New(config.AgentConfig{Name: "x"}, config.RetryConfig{}, &fakeReporting{}, &fakeForwarder{}, nil)
	assert.Error(t, err)
}
