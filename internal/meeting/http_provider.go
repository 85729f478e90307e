package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider provisions meetings against a REST meeting API.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

type createMeetingRequest struct {
	Topic           string `json:"topic"`
	StartAt         string `json:"start_at"`
	DurationMinutes int    `json:"duration_minutes"`
}

type createMeetingResponse struct {
	ID      string `json:"id"`
	JoinURL string `json:"join_url"`
}

func (p *HTTPProvider) CreateMeeting(ctx context.Context, topic string, startAt time.Time, durationMinutes int) (*Meeting, error) {
	payload, err := json.Marshal(createMeetingRequest{
		Topic:           topic,
		StartAt:         startAt.UTC().Format(time.RFC3339),
		DurationMinutes: durationMinutes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode meeting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/meetings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build meeting request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("create meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded createMeetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode meeting response: %w", err)
	}
	if decoded.ID == "" {
		return nil, fmt.Errorf("meeting response missing id")
	}
	return &Meeting{Ref: decoded.ID, JoinURL: decoded.JoinURL}, nil
}

func (p *HTTPProvider) DeleteMeeting(ctx context.Context, meetingRef string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/v1/meetings/"+meetingRef, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	defer resp.Body.Close()

	// Deleting an already-gone meeting is fine.
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("delete meeting: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
