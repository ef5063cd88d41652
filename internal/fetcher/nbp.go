package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nbp-rate-archive/internal/table"
)

// ClientOptions parameterise the NBP table API client.
type ClientOptions struct {
	BaseURL     string
	Table       string
	Timeout     time.Duration
	Retries     int
	BackoffBase time.Duration
	UserAgent   string
}

// Client fetches exchange-rate tables from the NBP API.
type Client struct {
	opts    ClientOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewClient constructs an NBP table API client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if opts.Table == "" {
		opts.Table = "A"
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.nbp.pl/api"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "nbp_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRange requests every table published in [start, end], both ends
// inclusive.
func (c *Client) FetchRange(ctx context.Context, start, end time.Time) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/exchangerates/tables/%s/%s/%s/?format=json",
		c.baseURL, c.opts.Table,
		start.Format(table.DateLayout), end.Format(table.DateLayout))
	return c.fetch(ctx, url)
}

// FetchDay requests the single table published on day, if any.
func (c *Client) FetchDay(ctx context.Context, day time.Time) ([]json.RawMessage, error) {
	url := fmt.Sprintf("%s/exchangerates/tables/%s/%s/?format=json",
		c.baseURL, c.opts.Table, day.Format(table.DateLayout))
	return c.fetch(ctx, url)
}

// fetch runs the bounded retry loop: retries+1 attempts with exponential
// backoff from the base delay. Only transport errors and 5xx responses are
// retried; 404 is "nothing published" and returns immediately.
func (c *Client) fetch(ctx context.Context, url string) ([]json.RawMessage, error) {
	delay := c.opts.BackoffBase
	attempts := 0

	var lastErr error
	for attempt := 0; attempt <= c.opts.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Err(lastErr).Dur("backoff", delay).Int("attempt", attempt).
				Str("url", url).Msg("retrying after transient fault")
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		attempts++
		entries, retryable, err := c.attempt(ctx, url)
		if err == nil {
			return entries, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, &TransientError{Attempts: attempts, Err: lastErr}
}

// attempt issues one request and classifies the outcome:
//
//	404         -> ErrNoData, done
//	5xx / net   -> retryable
//	other != 200 -> not retryable, surfaced as transient
//	bad body    -> MalformedError, done
func (c *Client) attempt(ctx context.Context, url string) ([]json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "nbparchive/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNoData
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("nbp api error (%d): %s", resp.StatusCode, trimBody(body))
	case resp.StatusCode != http.StatusOK:
		return nil, false, &TransientError{Attempts: 1,
			Err: fmt.Errorf("nbp api error (%d): %s", resp.StatusCode, trimBody(body))}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, false, &MalformedError{Err: err}
	}

	return entries, false, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func trimBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

var _ TableFetcher = (*Client)(nil)
