package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const CivitaiApiBaseUrl = "https://civitai.com/api/v1"

// maintenanceHint is shown when a 200 response is not the JSON we expect.
const maintenanceHint = "Civitai might be under maintenance, try again later."

// Client fetches model and version records from the Civitai REST API.
// It makes exactly one request per call; retrying is the caller's decision.
type Client struct {
	BaseURL    string
	ApiKey     string
	HttpClient *http.Client
}

// NewClient creates a new API client. An empty baseURL means the public API.
func NewClient(apiKey string, httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = CivitaiApiBaseUrl
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ApiKey:     apiKey,
		HttpClient: httpClient,
	}
}

// GetModel fetches /models/{id}.
func (c *Client) GetModel(ctx context.Context, modelID string) (*models.Model, error) {
	var model models.Model
	if err := c.getJSON(ctx, fmt.Sprintf("%s/models/%s", c.BaseURL, modelID), &model); err != nil {
		return nil, err
	}
	return &model, nil
}

// GetModelVersion fetches /model-versions/{id}.
func (c *Client) GetModelVersion(ctx context.Context, versionID string) (*models.ModelVersion, error) {
	var version models.ModelVersion
	if err := c.getJSON(ctx, fmt.Sprintf("%s/model-versions/%s", c.BaseURL, versionID), &version); err != nil {
		return nil, err
	}
	return &version, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errs.Unexpectedf(err, "creating request for %s", reqURL)
	}
	req.Header.Set("Accept", "application/json")
	if c.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ApiKey)
	}

	log.Debugf("Requesting URL: %s", reqURL)
	resp, err := c.HttpClient.Do(req)
	if err != nil {
		log.WithError(err).Debugf("Request to %s failed", reqURL)
		return errs.APIf(0, reqURL, "request failed").Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little of the body so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return statusError(resp.StatusCode, reqURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.APIf(resp.StatusCode, reqURL, "reading response body").Wrap(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Debugf("Response body causing unmarshal error: %.512s", string(body))
		return errs.Unexpectedf(err, "decoding response from %s", reqURL).WithHint(maintenanceHint)
	}
	return nil
}

func statusError(status int, reqURL string) error {
	e := errs.APIf(status, reqURL, "request failed with status %d %s", status, http.StatusText(status))
	switch {
	case status == http.StatusNotFound:
		return e.Wrap(ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return e.Wrap(ErrUnauthorized)
	case status == http.StatusTooManyRequests:
		return e.Wrap(ErrRateLimited)
	case status >= 500:
		return e.Wrap(ErrServerError)
	}
	return e
}
