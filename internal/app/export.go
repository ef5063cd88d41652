package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"nbp-rate-archive/internal/table"
)

// ExportOptions hold parameters for exporting one currency's history.
type ExportOptions struct {
	Code      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// exportPoint is one date's quote for the selected currency.
type exportPoint struct {
	Date  time.Time
	Quote table.RateQuote
}

// Export renders a currency's archived history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Code == "" {
		return errors.New("--code must be provided")
	}
	code := strings.ToUpper(opts.Code)

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := dateOnly(time.Now().UTC())
	if opts.To != nil {
		to = *opts.To
	}
	from := to.AddDate(-1, 0, 0)
	if opts.From != nil {
		from = *opts.From
	}
	if from.After(to) {
		return errors.New("from must not be after to")
	}

	store := a.newStore()
	points := make([]exportPoint, 0, 256)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !store.Exists(day) {
			continue
		}

		tbl, err := store.Read(day)
		if err != nil {
			a.Logger.Warn().Err(err).Str("date", day.Format(table.DateLayout)).
				Msg("skipping unreadable artifact")
			continue
		}

		for _, q := range tbl.Quotes {
			if strings.EqualFold(q.Code, code) {
				points = append(points, exportPoint{Date: day, Quote: q})
				break
			}
		}
	}

	if len(points) == 0 {
		a.Logger.Info().Str("code", code).Msg("no quotes found for export window")
		return nil
	}

	downsampled := downsamplePoints(points, opts.MaxPoints)
	a.Logger.Info().Str("code", code).Int("total", len(points)).
		Int("exported", len(downsampled)).Msg("exporting quotes")

	if opts.CSVPath != "" {
		if err := writePointsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writePointsPNG(opts.PNGPath, code, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePoints(points []exportPoint, max int) []exportPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]exportPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writePointsCSV(path string, points []exportPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "code", "currency", "mid", "bid", "ask"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Date.Format(table.DateLayout),
			p.Quote.Code,
			p.Quote.Currency,
			priceString(p.Quote.Mid),
			priceString(p.Quote.Bid),
			priceString(p.Quote.Ask),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePointsPNG(path, code string, points []exportPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, 0, len(points))
	mid := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Quote.Mid == nil {
			continue
		}
		x = append(x, p.Date)
		mid = append(mid, p.Quote.Mid.InexactFloat64())
	}
	if len(x) < 2 {
		return errors.New("not enough mid quotes to chart")
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Mid rate (PLN per " + code + ")",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    code + " mid",
				XValues: x,
				YValues: mid,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
