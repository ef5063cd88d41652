package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrNoDate indicates the payload carried no usable date field.
	ErrNoDate = errors.New("table: payload has no date field")
)

// rawEntry mirrors the loosely-typed upstream table object. The date is
// accepted under "effectiveDate" (NBP API) or "date" (the archive's own
// serialized form, which lets legacy artifacts be re-read the same way).
type rawEntry struct {
	EffectiveDate string            `json:"effectiveDate"`
	Date          string            `json:"date"`
	Rates         []json.RawMessage `json:"rates"`
}

type rawQuote struct {
	Currency string           `json:"currency"`
	Code     string           `json:"code"`
	Mid      *json.RawMessage `json:"mid"`
	Bid      *json.RawMessage `json:"bid"`
	Ask      *json.RawMessage `json:"ask"`
}

// Normalize validates one raw table payload into a DailyTable. A missing or
// unparsable date rejects the whole payload; malformed or price-less quote
// records are dropped and logged without aborting the table. Output ordering
// matches input ordering.
func Normalize(payload []byte, logger zerolog.Logger) (DailyTable, error) {
	var entry rawEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return DailyTable{}, fmt.Errorf("table: decode entry: %w", err)
	}

	day, err := entryDate(entry)
	if err != nil {
		return DailyTable{}, err
	}

	quotes := make([]RateQuote, 0, len(entry.Rates))
	for i, raw := range entry.Rates {
		quote, err := normalizeQuote(raw)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Str("date", day.Format(DateLayout)).
				Msg("dropping malformed quote record")
			continue
		}
		if !quote.HasPrice() {
			logger.Debug().Str("code", quote.Code).Str("date", day.Format(DateLayout)).
				Msg("dropping quote without any price field")
			continue
		}
		quotes = append(quotes, quote)
	}

	return DailyTable{Date: day, Quotes: quotes}, nil
}

func entryDate(entry rawEntry) (time.Time, error) {
	value := entry.EffectiveDate
	if value == "" {
		value = entry.Date
	}
	if value == "" {
		return time.Time{}, ErrNoDate
	}

	day, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("table: parse date %q: %w", value, err)
	}
	return day.UTC(), nil
}

func normalizeQuote(raw json.RawMessage) (RateQuote, error) {
	var rq rawQuote
	if err := json.Unmarshal(raw, &rq); err != nil {
		return RateQuote{}, fmt.Errorf("quote is not a structured record: %w", err)
	}

	quote := RateQuote{Currency: rq.Currency, Code: rq.Code}

	var err error
	if quote.Mid, err = parsePrice(rq.Mid); err != nil {
		return RateQuote{}, fmt.Errorf("mid: %w", err)
	}
	if quote.Bid, err = parsePrice(rq.Bid); err != nil {
		return RateQuote{}, fmt.Errorf("bid: %w", err)
	}
	if quote.Ask, err = parsePrice(rq.Ask); err != nil {
		return RateQuote{}, fmt.Errorf("ask: %w", err)
	}

	return quote, nil
}

func parsePrice(raw *json.RawMessage) (*decimal.Decimal, error) {
	if raw == nil || string(*raw) == "null" {
		return nil, nil
	}
	var d decimal.Decimal
	if err := json.Unmarshal(*raw, &d); err != nil {
		return nil, fmt.Errorf("parse price %s: %w", string(*raw), err)
	}
	return &d, nil
}
