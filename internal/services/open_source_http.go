package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fitos/notify/pkg/httpclient"
)

// HTTPOpenSource reads opened events from the analytics service:
//
//	GET {base}/users/{id}/opens?since=RFC3339 -> {"opens":[{"opened_at":"..."}]}
type HTTPOpenSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPOpenSource constructs an HTTPOpenSource. A nil client gets the
// retrying client from pkg/httpclient.
func NewHTTPOpenSource(baseURL, apiKey string, client *http.Client) (*HTTPOpenSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("analytics source: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("analytics source: parse base url: %w", err)
	}
	if client == nil {
		client = httpclient.New(30 * time.Second)
	}
	return &HTTPOpenSource{baseURL: baseURL, apiKey: apiKey, client: client}, nil
}

type openEventsResponse struct {
	Opens []struct {
		OpenedAt time.Time `json:"opened_at"`
	} `json:"opens"`
}

func (s *HTTPOpenSource) OpenTimes(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	endpoint := fmt.Sprintf("%s/users/%s/opens?since=%s",
		s.baseURL, url.PathEscape(userID), url.QueryEscape(since.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ensureContext(ctx), http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("analytics source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analytics source: request opens: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("analytics source: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload openEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("analytics source: decode opens: %w", err)
	}

	out := make([]time.Time, 0, len(payload.Opens))
	for _, open := range payload.Opens {
		if open.OpenedAt.Before(since) {
			continue
		}
		out = append(out, open.OpenedAt.UTC())
	}
	return out, nil
}
