package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"nbp-rate-archive/internal/archive"
	"nbp-rate-archive/internal/config"
	"nbp-rate-archive/internal/fetcher"
	"nbp-rate-archive/internal/ingest"
	"nbp-rate-archive/internal/reconcile"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newStore() *archive.Store {
	return archive.NewStore(a.Config.Archive.Root, a.Config.Archive.Compress, a.Logger)
}

func (a *App) newFetcher() fetcher.TableFetcher {
	return fetcher.NewClient(fetcher.ClientOptions{
		BaseURL:     a.Config.NBP.BaseURL,
		Table:       a.Config.NBP.Table,
		Timeout:     a.Config.NBP.RequestTimeout,
		Retries:     a.Config.NBP.Retries,
		BackoffBase: a.Config.NBP.BackoffBase,
		UserAgent:   a.Config.NBP.UserAgent,
	}, a.Logger)
}

func (a *App) newRunner(force bool) (*ingest.Runner, error) {
	loc, err := a.Config.Location()
	if err != nil {
		return nil, err
	}

	store := a.newStore()
	runner := ingest.NewRunner(ingest.Options{
		StartDate:    a.Config.StartDate(),
		ChunkDays:    a.Config.NBP.MaxChunkDays,
		LookbackDays: a.Config.Ingest.LookbackDays,
		Force:        force,
	}, a.newFetcher(), store, reconcile.New(store, a.Logger), a.Logger)

	runner.Now = func() time.Time { return time.Now().In(loc) }
	return runner, nil
}

// Run executes one full ingestion run: migration, backfill-or-skip, catch-up.
func (a *App) Run(ctx context.Context, force bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner, err := a.newRunner(force)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("root", a.Config.Archive.Root).Msg("starting ingestion run")
	err = runner.Run(ctx)
	switch {
	case err == nil:
		a.Logger.Info().Msg("ingestion run complete")
		return nil
	case errors.Is(err, context.Canceled):
		a.Logger.Warn().Msg("ingestion run cancelled")
		return err
	default:
		a.Logger.Error().Err(err).Msg("ingestion run finished with failures")
		return err
	}
}

// BackfillOptions configure the explicit backfill command.
type BackfillOptions struct {
	From *time.Time
	To   *time.Time
}

// Backfill 对指定日期范围执行一次分块回填，忽略完成标记。
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner, err := a.newRunner(true)
	if err != nil {
		return err
	}

	start := a.Config.StartDate()
	if opts.From != nil {
		start = *opts.From
	}
	end := dateOnly(time.Now().UTC())
	if opts.To != nil {
		end = *opts.To
	}
	if start.After(end) {
		return fmt.Errorf("回填范围为空，请检查 --from/--to")
	}

	clean, err := runner.Backfill(ctx, start, end)
	if err != nil {
		return err
	}
	if !clean {
		return errors.New("部分 chunk 回填失败，请检查日志")
	}
	return nil
}

// Migrate runs only the legacy layout reconciliation pass.
func (a *App) Migrate(ctx context.Context) error {
	store := a.newStore()
	sum := reconcile.New(store, a.Logger).Run()
	if sum.Failures > 0 {
		return fmt.Errorf("migration pass had %d failure(s)", sum.Failures)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
