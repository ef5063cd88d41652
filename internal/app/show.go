package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"nbp-rate-archive/internal/table"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Date *time.Time
}

// Show prints one archived date's table, defaulting to the most recent.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store := a.newStore()

	day := time.Time{}
	if opts.Date != nil {
		day = *opts.Date
	} else {
		latest, ok := a.latestDate()
		if !ok {
			fmt.Fprintln(os.Stdout, "archive is empty")
			return nil
		}
		day = latest
	}

	if !store.Exists(day) {
		return fmt.Errorf("no artifact for %s", day.Format(table.DateLayout))
	}

	tbl, err := store.Read(day)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "table for %s (%d quotes)\n", tbl.Date.Format(table.DateLayout), len(tbl.Quotes))

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Code\tCurrency\tMid\tBid\tAsk")
	for _, q := range tbl.Quotes {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			q.Code, q.Currency,
			priceString(q.Mid), priceString(q.Bid), priceString(q.Ask))
	}
	return writer.Flush()
}

// latestDate scans year shards newest-first for the most recent artifact.
func (a *App) latestDate() (time.Time, bool) {
	store := a.newStore()
	strategy := store.Strategy()

	entries, err := os.ReadDir(store.Root())
	if err != nil {
		return time.Time{}, false
	}

	var years []string
	for _, e := range entries {
		if e.IsDir() && strategy.Matches(e.Name()) {
			years = append(years, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))

	for _, year := range years {
		files, err := os.ReadDir(filepath.Join(store.Root(), year))
		if err != nil {
			continue
		}

		var best time.Time
		found := false
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if day, ok := strategy.FileDate(f.Name()); ok {
				if !found || day.After(best) {
					best = day
					found = true
				}
			}
		}
		if found {
			return best, true
		}
	}
	return time.Time{}, false
}
