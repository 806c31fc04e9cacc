// Package upstream pages through the activity events API.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pbi-manager/activity-sync/activity/internal/metrics"
	"github.com/pbi-manager/activity-sync/activity/internal/models"
)

// RawRecord is one upstream event object as decoded from JSON.
type RawRecord map[string]any

// timeLayout renders query bounds with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z"

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 512

type page struct {
	Entities        []RawRecord `json:"activityEventEntities"`
	LastResultSet   bool        `json:"lastResultSet"`
	ContinuationURI string      `json:"continuationUri"`
}

// RequestError describes one failed page request.
type RequestError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("GET %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("GET %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Fetcher walks the paginated events API for one window.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given events endpoint.
func NewFetcher(baseURL string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FetchAll returns every record between start and end. The first request
// carries the window as query parameters; later requests follow the
// continuation URI verbatim. A failed request stops paging and is returned
// alongside the records collected so far.
func (f *Fetcher) FetchAll(ctx context.Context, start, end time.Time, token string) ([]RawRecord, []models.FailedRequest) {
	var (
		records []RawRecord
		failed  []models.FailedRequest
	)

	target, err := f.firstPageURL(start, end)
	if err != nil {
		return nil, []models.FailedRequest{{URL: f.baseURL, Error: err.Error()}}
	}

	for {
		p, err := f.fetchPage(ctx, target, token)
		if err != nil {
			metrics.FailedRequestsTotal.Inc()
			f.logger.WarnContext(ctx, "activity events request failed",
				slog.String("url", target),
				slog.String("error", err.Error()),
			)
			failed = append(failed, models.FailedRequest{URL: target, Error: err.Error()})
			break
		}
		metrics.PagesFetchedTotal.Inc()

		records = append(records, p.Entities...)

		if p.LastResultSet || p.ContinuationURI == "" {
			break
		}
		target = p.ContinuationURI
	}

	return records, failed
}

func (f *Fetcher) firstPageURL(start, end time.Time) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse events url: %w", err)
	}
	q := u.Query()
	q.Set("startDateTime", quote(start))
	q.Set("endDateTime", quote(end))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func quote(t time.Time) string {
	return "'" + t.UTC().Format(timeLayout) + "'"
}

func (f *Fetcher) fetchPage(ctx context.Context, target, token string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &RequestError{URL: target, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.RequestDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, &RequestError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &RequestError{URL: target, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	// Numbers stay json.Number so integer attributes keep their exact text.
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var p page
	if err := dec.Decode(&p); err != nil {
		return nil, &RequestError{URL: target, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &p, nil
}
