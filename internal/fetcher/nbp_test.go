package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return d
}

func TestFetchRangeSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"effectiveDate":"2024-03-01","rates":[]},{"effectiveDate":"2024-03-04","rates":[]}]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	entries, err := c.FetchRange(context.Background(), day(t, "2024-03-01"), day(t, "2024-03-05"))
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 个条目, 实际 %d", len(entries))
	}
	if !strings.Contains(gotPath, "/exchangerates/tables/A/2024-03-01/2024-03-05/") {
		t.Fatalf("range path incorrect: %s", gotPath)
	}
}

func TestFetchDayPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	if _, err := c.FetchDay(context.Background(), day(t, "2024-03-01")); err != nil {
		t.Fatalf("FetchDay failed: %v", err)
	}
	if !strings.Contains(gotPath, "/exchangerates/tables/A/2024-03-01/") {
		t.Fatalf("day path incorrect: %s", gotPath)
	}
}

func TestFetchNotFoundNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, Retries: 3, BackoffBase: time.Millisecond}, noopLogger())

	_, err := c.FetchDay(context.Background(), day(t, "2024-03-02"))
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("404 应返回 ErrNoData, 实际 %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("404 不应重试, 实际请求 %d 次", got)
	}
}

func TestFetchRetryBound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	const retries = 2
	base := 5 * time.Millisecond
	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, Retries: retries, BackoffBase: base}, noopLogger())

	started := time.Now()
	_, err := c.FetchRange(context.Background(), day(t, "2024-03-01"), day(t, "2024-03-05"))
	elapsed := time.Since(started)

	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if transient.Attempts != retries+1 {
		t.Fatalf("expected %d attempts, got %d", retries+1, transient.Attempts)
	}
	if got := atomic.LoadInt32(&hits); got != retries+1 {
		t.Fatalf("server saw %d requests, expected %d", got, retries+1)
	}
	// Backoff doubles from the base delay: 5ms + 10ms at minimum.
	if minimum := base + 2*base; elapsed < minimum {
		t.Fatalf("backoff too short: %v < %v", elapsed, minimum)
	}
}

func TestFetchMalformedBody(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, Retries: 3, BackoffBase: time.Millisecond}, noopLogger())

	_, err := c.FetchDay(context.Background(), day(t, "2024-03-01"))
	var malformed *MalformedError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedError, got %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("malformed body 不应重试, 实际请求 %d 次", got)
	}
}

func TestFetchContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second, Retries: 5, BackoffBase: time.Hour}, noopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchDay(ctx, day(t, "2024-03-01"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}

func TestEntriesDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"table":"A","effectiveDate":"2024-03-01","rates":[{"currency":"dolar amerykański","code":"USD","mid":4.05}]}]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	entries, err := c.FetchDay(context.Background(), day(t, "2024-03-01"))
	if err != nil {
		t.Fatalf("FetchDay failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	var probe struct {
		EffectiveDate string `json:"effectiveDate"`
	}
	if err := json.Unmarshal(entries[0], &probe); err != nil {
		t.Fatalf("entry should stay valid JSON: %v", err)
	}
	if probe.EffectiveDate != "2024-03-01" {
		t.Fatalf("unexpected effectiveDate: %s", probe.EffectiveDate)
	}
}
