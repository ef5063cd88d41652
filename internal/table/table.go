package table

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used by the NBP API and by the
// artifact serialization.
const DateLayout = "2006-01-02"

// RateQuote is one currency's validated quote for a date. At least one of
// the price fields is guaranteed present.
type RateQuote struct {
	Currency string           `json:"currency"`
	Code     string           `json:"code"`
	Mid      *decimal.Decimal `json:"mid,omitempty"`
	Bid      *decimal.Decimal `json:"bid,omitempty"`
	Ask      *decimal.Decimal `json:"ask,omitempty"`
}

// HasPrice reports whether any price field survived extraction.
func (q RateQuote) HasPrice() bool {
	return q.Mid != nil || q.Bid != nil || q.Ask != nil
}

// DailyTable is one calendar date's full quote table, quotes in upstream
// publication order.
type DailyTable struct {
	Date   time.Time
	Quotes []RateQuote
}
