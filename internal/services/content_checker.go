package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPContentChecker calls an external content-quality API. Failures come
// back as errors so the QC job retries instead of silently passing.
type HTTPContentChecker struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPContentChecker(baseURL, apiKey string) *HTTPContentChecker {
	return &HTTPContentChecker{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

type contentCheckRequest struct {
	Text        string   `json:"text"`
	ActionItems []string `json:"action_items"`
}

type contentCheckResponse struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

func (c *HTTPContentChecker) Check(ctx context.Context, text string, actionItems []string) (bool, []string, error) {
	payload, err := json.Marshal(contentCheckRequest{Text: text, ActionItems: actionItems})
	if err != nil {
		return false, nil, fmt.Errorf("encode check request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/check", bytes.NewReader(payload))
	if err != nil {
		return false, nil, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil, fmt.Errorf("content check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return false, nil, fmt.Errorf("content check: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded contentCheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false, nil, fmt.Errorf("decode check response: %w", err)
	}
	return decoded.Passed, decoded.Reasons, nil
}

// StructuralOnlyChecker passes everything that cleared structural validation.
// Used when no external checker is configured.
type StructuralOnlyChecker struct{}

func (StructuralOnlyChecker) Check(ctx context.Context, text string, actionItems []string) (bool, []string, error) {
	return true, nil, nil
}
