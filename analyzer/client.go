package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"scorevera/tradeline"
)

// HTTPClient posts reports to a remote analyzer service at
// {baseURL}/v1/analyze and decodes {"items": [...]}.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type analyzeResponse struct {
	Items []tradeline.Candidate `json:"items"`
}

func (c *HTTPClient) Analyze(ctx context.Context, pdf []byte) ([]tradeline.Candidate, error) {
	if err := Check(pdf); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(pdf))
	if err != nil {
		return nil, fmt.Errorf("analyzer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer: post report: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnsupportedMediaType:
		return nil, &UnsupportedFormatError{ContentType: "application/pdf"}
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return nil, &SizeLimitError{Size: int64(len(pdf)), Limit: MaxReportBytes}
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analyzer: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("analyzer: decode response: %w", err)
	}
	return out.Items, nil
}

// ErrUnavailable is returned when no analyzer endpoint is configured.
var ErrUnavailable = errors.New("analyzer: no analyzer configured")

// Disabled rejects every report after the upload gate.
type Disabled struct{}

func (Disabled) Analyze(_ context.Context, pdf []byte) ([]tradeline.Candidate, error) {
	if err := Check(pdf); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
