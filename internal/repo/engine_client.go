package repo

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// EngineClient forwards accepted documents to the correlation engine.
type EngineClient struct {
	url        string
	httpClient *http.Client
}

// NewEngineClient targets the engine receive endpoint at url.
func NewEngineClient(url string, timeout time.Duration) *EngineClient {
	return &EngineClient{url: url, httpClient: newHTTPClient(timeout)}
}

// Forward posts payload to the engine; only a 200 reply counts as delivered.
func (c *EngineClient) Forward(ctx context.Context, payload any) error {
	if c == nil || c.url == "" {
		return fmt.Errorf("engine URL not configured")
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.url, payload, http.StatusOK, nil); err != nil {
		return fmt.Errorf("forward to engine: %w", err)
	}
	return nil
}
