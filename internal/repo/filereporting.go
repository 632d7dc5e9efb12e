package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nwdaf-lab/hermes/internal/models"
)

// FileReportingClient talks to the file data reporting service: the
// subscription registry and the file store.
type FileReportingClient struct {
	baseURL           string
	subscriptionsPath string
	filesPath         string
	httpClient        *http.Client
}

// NewFileReportingClient constructs a client for the service at baseURL.
func NewFileReportingClient(baseURL, subscriptionsPath, filesPath string, timeout time.Duration) *FileReportingClient {
	return &FileReportingClient{
		baseURL:           strings.TrimRight(baseURL, "/"),
		subscriptionsPath: subscriptionsPath,
		filesPath:         filesPath,
		httpClient:        newHTTPClient(timeout),
	}
}

// Subscribe registers a callback for one file category.
func (c *FileReportingClient) Subscribe(ctx context.Context, req models.SubscriptionRequest) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("file reporting base URL not configured")
	}
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.subscriptionsURL(), req, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", req.Filter.FileDataType, err)
	}
	return nil
}

// FetchFile retrieves the raw document stored at location.
func (c *FileReportingClient) FetchFile(ctx context.Context, location string) (json.RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("file reporting client not initialised")
	}
	var doc json.RawMessage
	if err := doJSON(ctx, c.httpClient, http.MethodGet, location, nil, http.StatusOK, &doc); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	return doc, nil
}

// UploadFile publishes a derived file and returns the identifier assigned to it.
func (c *FileReportingClient) UploadFile(ctx context.Context, file models.DerivedFile) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("file reporting base URL not configured")
	}
	var resp models.UploadResponse
	if err := doJSON(ctx, c.httpClient, http.MethodPost, c.filesURL(), file, http.StatusCreated, &resp); err != nil {
		return "", fmt.Errorf("upload %s file: %w", file.FileComponent, err)
	}
	return resp.FileID, nil
}

func (c *FileReportingClient) subscriptionsURL() string {
	return resolvePath(c.baseURL, c.subscriptionsPath)
}

func (c *FileReportingClient) filesURL() string { return resolvePath(c.baseURL, c.filesPath) }
