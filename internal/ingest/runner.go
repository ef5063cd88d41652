package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"nbp-rate-archive/internal/archive"
	"nbp-rate-archive/internal/fetcher"
	"nbp-rate-archive/internal/reconcile"
	"nbp-rate-archive/internal/table"
)

// ErrRunFailed reports that scheduled work completed but at least one write
// or unrecoverable fetch failed. The CLI turns it into a non-zero exit code.
var ErrRunFailed = errors.New("ingest: run completed with failures")

// Options tune one ingestion run.
type Options struct {
	StartDate    time.Time
	ChunkDays    int
	LookbackDays int
	// Force reruns the full backfill even when the completion marker exists.
	Force bool
}

// Runner drives one sequential ingestion run: legacy migration, then full
// backfill (when the marker is absent), then recent catch-up. Every failure
// is recovered locally; the run always completes all scheduled work.
type Runner struct {
	opts    Options
	fetcher fetcher.TableFetcher
	store   *archive.Store
	recon   *reconcile.Reconciler
	logger  zerolog.Logger

	// Now supplies the local clock; the NBP publication calendar follows
	// Warsaw time.
	Now func() time.Time
}

// NewRunner constructs a Runner. recon may be nil to skip the migration pass.
func NewRunner(opts Options, f fetcher.TableFetcher, store *archive.Store, recon *reconcile.Reconciler, logger zerolog.Logger) *Runner {
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = 93
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 7
	}
	return &Runner{
		opts:    opts,
		fetcher: f,
		store:   store,
		recon:   recon,
		logger:  logger.With().Str("component", "ingest").Logger(),
		Now:     time.Now,
	}
}

// Run executes the full pipeline. It returns ErrRunFailed when the overall
// success flag was cleared, the context error on cancellation, nil otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if r.recon != nil {
		r.recon.Run()
	}

	today := r.today()
	ok := true

	if r.opts.Force || !r.store.MarkerExists() {
		clean, err := r.Backfill(ctx, r.opts.StartDate, today)
		if err != nil {
			return err
		}
		if clean {
			if err := r.store.WriteMarker(r.Now()); err != nil {
				r.logger.Error().Err(err).Msg("marker write failed")
				ok = false
			}
		} else {
			// Marker stays absent so the next run retries the whole
			// range; per-date idempotence makes the rerun cheap.
			ok = false
		}
	} else {
		r.logger.Info().Msg("backfill marker present; skipping full backfill")
	}

	clean, err := r.catchUp(ctx, today)
	if err != nil {
		return err
	}
	if !clean {
		ok = false
	}

	if !ok {
		return ErrRunFailed
	}
	return nil
}

// window is one bounded sub-range of dates fetched via a single request.
type window struct {
	from, to time.Time
}

// tile splits [start, end] into inclusive windows of at most span days:
// exactly ceil(D/span) windows, no date covered twice, none skipped.
func tile(start, end time.Time, span int) []window {
	var out []window
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 0, span) {
		to := cur.AddDate(0, 0, span-1)
		if to.After(end) {
			to = end
		}
		out = append(out, window{from: cur, to: to})
	}
	return out
}

// Backfill sweeps [start, end] chunk by chunk. A failed chunk is logged and
// skipped, never aborting the sweep. The returned flag is true only when
// every chunk either succeeded or had nothing published.
func (r *Runner) Backfill(ctx context.Context, start, end time.Time) (bool, error) {
	if start.After(end) {
		return true, nil
	}

	windows := tile(start, end, r.opts.ChunkDays)
	r.logger.Info().
		Str("from", start.Format(table.DateLayout)).
		Str("to", end.Format(table.DateLayout)).
		Int("chunks", len(windows)).
		Msg("starting full backfill")

	clean := true
	for _, w := range windows {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		entries, err := r.fetcher.FetchRange(ctx, w.from, w.to)
		switch {
		case errors.Is(err, fetcher.ErrNoData):
			r.logger.Info().
				Str("from", w.from.Format(table.DateLayout)).
				Str("to", w.to.Format(table.DateLayout)).
				Msg("no tables published in chunk")
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return false, err
		case err != nil:
			r.logger.Error().Err(err).
				Str("from", w.from.Format(table.DateLayout)).
				Str("to", w.to.Format(table.DateLayout)).
				Msg("chunk fetch failed; advancing to next chunk")
			clean = false
			continue
		}

		if !r.ingestEntries(entries) {
			clean = false
		}
	}

	r.logger.Info().Bool("clean", clean).Msg("backfill sweep finished")
	return clean, nil
}

// catchUp ingests the trailing lookback window: one range call first, then a
// per-day probe from most to least recent when the range yields nothing. The
// range endpoint does not guarantee non-empty responses, hence the fallback.
func (r *Runner) catchUp(ctx context.Context, today time.Time) (bool, error) {
	from := today.AddDate(0, 0, -(r.opts.LookbackDays - 1))
	clean := true

	entries, err := r.fetcher.FetchRange(ctx, from, today)
	switch {
	case err == nil && len(entries) > 0:
		return r.ingestEntries(entries), nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, err
	case err != nil && !errors.Is(err, fetcher.ErrNoData):
		r.logger.Warn().Err(err).Msg("recent window fetch failed; probing individual days")
		clean = false
	}

	for day := today; !day.Before(from); day = day.AddDate(0, 0, -1) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		entries, err := r.fetcher.FetchDay(ctx, day)
		switch {
		case errors.Is(err, fetcher.ErrNoData):
			// Non-publishing day (weekend/holiday).
			r.logger.Debug().Str("day", day.Format(table.DateLayout)).Msg("no table published")
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return false, err
		case err != nil:
			r.logger.Error().Err(err).Str("day", day.Format(table.DateLayout)).Msg("day probe failed")
			clean = false
			continue
		}

		if !r.ingestEntries(entries) {
			clean = false
		}
		// First day that yielded data ends the probe.
		break
	}

	return clean, nil
}

// ingestEntries normalizes and stores each raw table entry. Malformed
// entries are diverted to quarantine without blocking their siblings; only
// write failures clear the returned flag.
func (r *Runner) ingestEntries(entries []json.RawMessage) bool {
	clean := true
	for _, raw := range entries {
		tbl, err := table.Normalize(raw, r.logger)
		if err != nil {
			r.logger.Warn().Err(err).Msg("rejected table entry; quarantining")
			if _, qerr := r.store.Quarantine("bad-entry.json", raw); qerr != nil {
				r.logger.Error().Err(qerr).Msg("quarantine write failed")
				clean = false
			}
			continue
		}

		if r.store.Exists(tbl.Date) {
			r.logger.Debug().Str("date", tbl.Date.Format(table.DateLayout)).Msg("artifact exists; skipping")
			continue
		}

		if err := r.store.Write(tbl); err != nil {
			clean = false
		}
	}
	return clean
}

// today truncates the local clock to a calendar date at UTC midnight.
func (r *Runner) today() time.Time {
	y, m, d := r.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
