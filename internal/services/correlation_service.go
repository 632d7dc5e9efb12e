package services

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nwdaf-lab/hermes/internal/engine"
	"github.com/nwdaf-lab/hermes/internal/metrics"
	"github.com/nwdaf-lab/hermes/internal/models"
	"github.com/nwdaf-lab/hermes/internal/utils"
)

// Receiver is the engine behaviour the service wraps.
type Receiver interface {
	Receive(ctx context.Context, event *models.AnomalyEvent) (engine.ReceiveResult, error)
}

// CorrelationService is the facade between the HTTP surface and the engine.
type CorrelationService struct {
	logger    *slog.Logger
	engine    Receiver
	latencies *utils.LatencyTracker
	received  atomic.Int64
}

// latencyLogEvery is how many successful receives pass between p95 log lines.
const latencyLogEvery = 20

// NewCorrelationService constructs the correlation service facade.
func NewCorrelationService(logger *slog.Logger, receiver Receiver) *CorrelationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelationService{
		logger:    logger,
		engine:    receiver,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Ingest decodes a forwarded body and runs it through the engine. Decoding
// failures wrap engine.ErrInvalidEvent.
func (s *CorrelationService) Ingest(ctx context.Context, body []byte) (engine.ReceiveResult, error) {
	event, err := engine.DecodeEvent(body)
	if err != nil {
		metrics.ObserveReceive(0, metrics.OutcomeError)
		s.logger.Warn("rejected event", slog.Any("error", err))
		return engine.ReceiveResult{}, utils.NewAppError("ingest", "decode event", err)
	}
	return s.receive(ctx, event)
}

func (s *CorrelationService) receive(ctx context.Context, event *models.AnomalyEvent) (engine.ReceiveResult, error) {
	start := time.Now()
	result, err := s.engine.Receive(ctx, event)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveReceive(duration, metrics.OutcomeError)
		s.logger.Error("receive failed", slog.Any("error", err))
		return result, utils.NewAppError("receive", "correlate event", err)
	}

	metrics.ObserveReceive(duration, metrics.OutcomeSuccess)
	for _, c := range result.Correlations {
		metrics.ObserveCorrelation(c.RuleName, c.Score)
	}
	if !result.Persisted {
		metrics.ObservePersistFailure()
	}
	if result.DerivedFileID != "" || result.UploadFailed {
		outcome := metrics.OutcomeSuccess
		if result.UploadFailed {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveDerivedFile(string(result.DerivedFunction), outcome)
	}

	s.latencies.Observe(duration)
	if n := s.received.Add(1); n%latencyLogEvery == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("receive latency", slog.Duration("p95", p95),
			slog.Int("samples", s.latencies.Count()), slog.Int64("received", n))
	}
	return result, nil
}
