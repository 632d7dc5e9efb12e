package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nwdaf-lab/hermes/internal/models"
)

// ErrInvalidEvent marks a request body that cannot be correlated.
var ErrInvalidEvent = errors.New("invalid anomaly event")

// EventStore persists events and serves the rolling window.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.AnomalyEvent) error
	RecentEvents(ctx context.Context, since time.Time) ([]models.AnomalyEvent, error)
}

// FileUploader publishes derived files.
type FileUploader interface {
	UploadFile(ctx context.Context, file models.DerivedFile) (string, error)
}

// WindowLock serializes evaluation across engine instances.
type WindowLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Options tunes an Engine. Zero values select the defaults.
type Options struct {
	Window        time.Duration
	Serialize     bool
	UploadTimeout time.Duration
	StoreTimeout  time.Duration
	Lock          WindowLock
	Now           func() time.Time
	NewID         func() string
}

// ReceiveResult summarises one Receive call.
type ReceiveResult struct {
	EventID         string
	Correlations    []models.Correlation
	Persisted       bool
	DerivedFunction models.NetworkFunction
	DerivedFileID   string
	UploadFailed    bool
}

// Engine scores incoming events against the rolling window, persists them
// and publishes derived files for correlated events.
type Engine struct {
	correlator *Correlator
	store      EventStore
	uploader   FileUploader
	logger     *slog.Logger
	opts       Options
	// window holds one token; taking it serializes read-correlate-insert.
	window chan struct{}
}

// New constructs an Engine.
func New(rules *RuleSet, store EventStore, uploader FileUploader, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Window <= 0 {
		opts.Window = 60 * time.Minute
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Engine{
		correlator: NewCorrelator(rules),
		store:      store,
		uploader:   uploader,
		logger:     logger,
		opts:       opts,
		window:     make(chan struct{}, 1),
	}
}

// DecodeEvent parses a forwarded body. Both the raw document and the
// {event_type, event_data:{fileContent}} envelope are accepted.
func DecodeEvent(data []byte) (*models.AnomalyEvent, error) {
	var probe struct {
		EventType string `json:"event_type"`
		EventData *struct {
			ID          string          `json:"_id"`
			FileContent json.RawMessage `json:"fileContent"`
		} `json:"event_data"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	body := data
	envelopeID := ""
	if probe.EventData != nil {
		if len(probe.EventData.FileContent) == 0 {
			return nil, fmt.Errorf("%w: envelope without fileContent", ErrInvalidEvent)
		}
		body = probe.EventData.FileContent
		envelopeID = probe.EventData.ID
	}

	var event models.AnomalyEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if event.ID == "" {
		event.ID = envelopeID
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	event.NormalizeTimestamps()
	return &event, nil
}

// Receive correlates, persists and derives one event. A persistence or upload
// failure is logged and reported in the result. Errors are returned for an
// invalid event, or when ctx ends before the correlation window is free; in
// that case nothing has been stored. Once the window is taken the event is
// processed to completion even if ctx is cancelled.
func (e *Engine) Receive(ctx context.Context, event *models.AnomalyEvent) (ReceiveResult, error) {
	if event == nil {
		return ReceiveResult{}, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	event.NormalizeTimestamps()
	if event.ID == "" {
		event.ID = e.opts.NewID()
	}

	started := e.opts.Now()
	e.logger.Debug("processing start", "event_id", event.ID, "type", event.Type(), "at", started)

	release := func() {}
	if e.opts.Serialize {
		var err error
		release, err = e.lock(ctx)
		if err != nil {
			return ReceiveResult{EventID: event.ID}, fmt.Errorf("wait for correlation window: %w", err)
		}
	}
	work := context.WithoutCancel(ctx)

	result, now := e.correlateAndStore(work, event)
	release()

	if len(result.Correlations) > 0 {
		e.publish(work, event, result.Correlations, now, &result)
	}

	e.logger.Debug("processing end", "event_id", event.ID, "correlations", len(result.Correlations),
		"duration", e.opts.Now().Sub(started))
	return result, nil
}

func (e *Engine) correlateAndStore(ctx context.Context, event *models.AnomalyEvent) (ReceiveResult, time.Time) {
	result := ReceiveResult{EventID: event.ID}
	now := e.opts.Now()
	cutoff := now.Add(-e.opts.Window)

	loadCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	candidates, err := e.store.RecentEvents(loadCtx, cutoff)
	cancel()
	if err != nil {
		e.logger.Warn("load working set failed", "event_id", event.ID, "error", err)
		candidates = nil
	}

	correlations := e.correlator.Correlate(event, candidates, cutoff)
	event.CorrelationData = correlations
	result.Correlations = correlations

	insertCtx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	err = e.store.InsertEvent(insertCtx, event)
	cancel()
	if err != nil {
		e.logger.Error("failed to persist event", "event_id", event.ID, "error", err)
	} else {
		result.Persisted = true
	}
	return result, now
}

func (e *Engine) publish(ctx context.Context, event *models.AnomalyEvent, correlations []models.Correlation, now time.Time, result *ReceiveResult) {
	file, err := Derive(event, correlations, now)
	if err != nil {
		e.logger.Error("derive file failed", "event_id", event.ID, "error", err)
		return
	}
	if file == nil {
		e.logger.Debug("no owning function for event type", "event_id", event.ID, "type", event.Type())
		return
	}
	result.DerivedFunction = file.FileComponent
	if e.uploader == nil {
		return
	}

	uploadCtx, cancel := context.WithTimeout(ctx, e.opts.UploadTimeout)
	defer cancel()
	fileID, err := e.uploader.UploadFile(uploadCtx, *file)
	if err != nil {
		result.UploadFailed = true
		e.logger.Error("failed to upload derived file", "event_id", event.ID, "function", file.FileComponent, "error", err)
		return
	}
	result.DerivedFileID = fileID
	e.logger.Info("uploaded derived file", "event_id", event.ID, "function", file.FileComponent, "file_id", fileID)
}

// lock takes the in-process window token and, when configured, the shared
// window lock. It gives up when ctx ends first. A shared lock failure degrades
// to in-process serialization.
func (e *Engine) lock(ctx context.Context) (func(), error) {
	select {
	case e.window <- struct{}{}:
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
	unlock := func() { <-e.window }
	if e.opts.Lock == nil {
		return unlock, nil
	}
	release, err := e.opts.Lock.Acquire(ctx)
	if err != nil {
		e.logger.Warn("shared window lock unavailable", "error", err)
		return unlock, nil
	}
	return func() {
		release()
		unlock()
	}, nil
}
