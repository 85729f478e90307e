// Package calendar reads busy time from an external calendar API for the
// combined-availability computation.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/consultapp/ConsultAppBack/internal/interval"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

type busyIntervalDTO struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

func (c *Client) BusyIntervals(ctx context.Context, userID int64, start, end time.Time) ([]interval.Interval, error) {
	query := url.Values{}
	query.Set("user_id", strconv.FormatInt(userID, 10))
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/busy?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build busy request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("fetch busy intervals: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Busy []busyIntervalDTO `json:"busy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode busy response: %w", err)
	}

	intervals := make([]interval.Interval, 0, len(decoded.Busy))
	for _, dto := range decoded.Busy {
		intervals = append(intervals, interval.Interval{Start: dto.StartAt, End: dto.EndAt})
	}
	return intervals, nil
}

// NoopSource reports no external busy time. Used when no calendar API is
// configured.
type NoopSource struct{}

func (NoopSource) BusyIntervals(ctx context.Context, userID int64, start, end time.Time) ([]interval.Interval, error) {
	return nil, nil
}
