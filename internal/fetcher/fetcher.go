package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TableFetcher retrieves raw daily table payloads from the upstream API.
// Implementations never split windows; callers are responsible for keeping
// the requested span within the API's per-request day limit.
type TableFetcher interface {
	// FetchRange requests every table published in [start, end], both ends
	// inclusive.
	FetchRange(ctx context.Context, start, end time.Time) ([]json.RawMessage, error)
	// FetchDay requests the single table published on day, if any.
	FetchDay(ctx context.Context, day time.Time) ([]json.RawMessage, error)
}

// ErrNoData signals an upstream 404: nothing was published for the requested
// window. Not a failure; weekends and holidays produce it routinely.
var ErrNoData = errors.New("fetcher: no data published for requested window")

// TransientError reports a network or server fault that persisted through
// the bounded retry loop.
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetcher: transient failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MalformedError reports a response body that is not valid structured data.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("fetcher: malformed response: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }
