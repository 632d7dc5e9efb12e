package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/nwdaf-lab/hermes/internal/config"
	"github.com/nwdaf-lab/hermes/internal/metrics"
	"github.com/nwdaf-lab/hermes/internal/models"
)

// ErrInvalidNotification marks a notification body without a usable
// fileInfoList.
var ErrInvalidNotification = errors.New("invalid notification")

// Subscriber registers file-ready subscriptions.
type Subscriber interface {
	Subscribe(ctx context.Context, req models.SubscriptionRequest) error
}

// Fetcher downloads an announced file.
type Fetcher interface {
	FetchFile(ctx context.Context, location string) (json.RawMessage, error)
}

// Reporting is the slice of the file data reporting service an agent uses.
type Reporting interface {
	Subscriber
	Fetcher
}

// Forwarder hands accepted documents to the correlation engine.
type Forwarder interface {
	Forward(ctx context.Context, payload any) error
}

// Result summarises one handled notification.
type Result struct {
	Message   string `json:"message"`
	Forwarded int    `json:"forwarded"`
	Ignored   int    `json:"ignored"`
	Skipped   int    `json:"skipped"`
}

// Agent subscribes to file categories, filters announced files and forwards
// the relevant ones.
type Agent struct {
	name         string
	categories   []string
	advertiseURL string
	strategy     Strategy
	reporting    Reporting
	forwarder    Forwarder
	retry        config.RetryConfig
	logger       *slog.Logger
	now          func() time.Time
}

// New builds an agent from its configuration.
func New(cfg config.AgentConfig, retry config.RetryConfig, reporting Reporting, forwarder Forwarder, logger *slog.Logger) (*Agent, error) {
	if reporting == nil || forwarder == nil {
		return nil, fmt.Errorf("agent %s: reporting client and forwarder are required", cfg.Name)
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("agent %s: at least one category is required", cfg.Name)
	}
	strategy, err := StrategyFor(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		name:         cfg.Name,
		categories:   append([]string(nil), cfg.Categories...),
		advertiseURL: strings.TrimRight(cfg.AdvertiseURL, "/"),
		strategy:     strategy,
		reporting:    reporting,
		forwarder:    forwarder,
		retry:        retry,
		logger:       logger.With("agent", cfg.Name),
		now:          time.Now,
	}, nil
}

// Name returns the configured agent name.
func (a *Agent) Name() string { return a.name }

// Categories returns the file categories the agent handles.
func (a *Agent) Categories() []string { return append([]string(nil), a.categories...) }

// NotificationPath is the callback route for a category.
func NotificationPath(category string) string {
	return "/handle_" + strings.ToLower(category) + "_file_notification"
}

// Subscribe registers one subscription per category, retrying each with
// bounded exponential backoff. Failures are logged and returned together.
func (a *Agent) Subscribe(ctx context.Context) error {
	var result *multierror.Error
	for _, category := range a.categories {
		req := models.SubscriptionRequest{
			ConsumerReference: a.advertiseURL + NotificationPath(category),
			Filter:            models.SubscriptionFilter{FileDataType: category},
		}
		op := func() error { return a.reporting.Subscribe(ctx, req) }
		if err := backoff.Retry(op, backoff.WithContext(a.retryPolicy(), ctx)); err != nil {
			a.logger.Error("subscription failed", "category", category, "error", err)
			metrics.ObserveSubscription(a.name, category, metrics.OutcomeError)
			result = multierror.Append(result, fmt.Errorf("subscribe %s: %w", category, err))
			continue
		}
		metrics.ObserveSubscription(a.name, category, metrics.OutcomeSuccess)
		a.logger.Info("subscribed", "category", category, "consumer_reference", req.ConsumerReference)
	}
	return result.ErrorOrNil()
}

func (a *Agent) retryPolicy() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if a.retry.InitialInterval > 0 {
		policy.InitialInterval = a.retry.InitialInterval
	}
	if a.retry.MaxInterval > 0 {
		policy.MaxInterval = a.retry.MaxInterval
	}
	policy.MaxElapsedTime = 0
	attempts := a.retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return backoff.WithMaxRetries(policy, uint64(attempts-1))
}

// DecodeNotification parses a notification body. A missing, non-list or
// empty fileInfoList is rejected with ErrInvalidNotification.
func DecodeNotification(data []byte) (models.Notification, error) {
	var probe struct {
		FileInfoList json.RawMessage `json:"fileInfoList"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	raw := bytes.TrimSpace(probe.FileInfoList)
	if len(raw) == 0 || raw[0] != '[' {
		return models.Notification{}, fmt.Errorf("%w: fileInfoList must be a list", ErrInvalidNotification)
	}
	var n models.Notification
	if err := json.Unmarshal(raw, &n.FileInfoList); err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if len(n.FileInfoList) == 0 {
		return models.Notification{}, fmt.Errorf("%w: fileInfoList is empty", ErrInvalidNotification)
	}
	return n, nil
}

// HandleNotification fetches every announced file, filters it and forwards
// the relevant ones. A rejected file does not stop the batch.
func (a *Agent) HandleNotification(ctx context.Context, category string, n models.Notification) (Result, error) {
	if len(n.FileInfoList) == 0 {
		metrics.ObserveNotification(a.name, category, metrics.OutcomeError)
		return Result{}, fmt.Errorf("%w: fileInfoList is empty", ErrInvalidNotification)
	}
	started := a.now()
	a.logger.Debug("processing start", "category", category, "files", len(n.FileInfoList), "at", started)

	var res Result
	for _, info := range n.FileInfoList {
		outcome := a.handleFile(ctx, category, info)
		metrics.ObserveFile(a.name, category, outcome)
		switch outcome {
		case metrics.ResultForwarded:
			res.Forwarded++
		case metrics.ResultIgnored:
			res.Ignored++
		default:
			res.Skipped++
		}
	}

	if res.Forwarded == 0 && res.Ignored > 0 {
		res.Message = fmt.Sprintf("Non-relevant %s file ignored", category)
	} else {
		res.Message = fmt.Sprintf("%s notification processed", category)
	}
	metrics.ObserveNotification(a.name, category, metrics.OutcomeSuccess)
	a.logger.Debug("processing end", "category", category, "forwarded", res.Forwarded,
		"ignored", res.Ignored, "skipped", res.Skipped, "duration", a.now().Sub(started))
	return res, nil
}

func (a *Agent) handleFile(ctx context.Context, category string, info models.FileInfo) string {
	if info.FileLocation == "" {
		a.logger.Warn("file location missing in file information", "category", category)
		return metrics.ResultSkipped
	}

	raw, err := a.reporting.FetchFile(ctx, info.FileLocation)
	if err != nil {
		a.logger.Error("failed to fetch file", "location", info.FileLocation, "error", err)
		return metrics.ResultFetchFailed
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		a.logger.Error("fetched file is not a JSON object", "location", info.FileLocation, "error", err)
		return metrics.ResultFetchFailed
	}

	anomaly := exceptionID(doc)
	if !a.strategy.Filter(anomaly) {
		a.logger.Info("ignoring non-relevant file", "location", info.FileLocation, "excep_id", anomaly)
		return metrics.ResultIgnored
	}

	payload, err := a.strategy.Forward(category, doc)
	if err != nil {
		a.logger.Error("failed to build forward payload", "location", info.FileLocation, "error", err)
		return metrics.ResultForwardFailed
	}
	if err := a.forwarder.Forward(ctx, payload); err != nil {
		a.logger.Error("failed to send data to engine", "location", info.FileLocation, "error", err)
		return metrics.ResultForwardFailed
	}
	a.logger.Info("forwarded file", "location", info.FileLocation, "excep_id", anomaly)
	return metrics.ResultForwarded
}
