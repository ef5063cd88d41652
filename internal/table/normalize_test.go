package table

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestNormalizeQuoteFiltering(t *testing.T) {
	payload := []byte(`{
		"effectiveDate": "2024-03-01",
		"rates": [
			{"currency": "dolar amerykański", "code": "USD", "mid": 4.05},
			{"currency": "bez ceny", "code": "XXX"},
			{"currency": "euro", "code": "EUR", "bid": 4.30, "ask": 4.38}
		]
	}`)

	tbl, err := Normalize(payload, noopLogger())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	if len(tbl.Quotes) != 2 {
		t.Fatalf("期望保留 2 条报价, 实际 %d", len(tbl.Quotes))
	}
	if tbl.Quotes[0].Code != "USD" || tbl.Quotes[1].Code != "EUR" {
		t.Fatalf("输出顺序应与输入一致: %s, %s", tbl.Quotes[0].Code, tbl.Quotes[1].Code)
	}
	if tbl.Quotes[0].Mid == nil || tbl.Quotes[0].Mid.String() != "4.05" {
		t.Fatalf("USD mid incorrect: %v", tbl.Quotes[0].Mid)
	}
	if tbl.Quotes[1].Mid != nil {
		t.Fatal("EUR should have no mid")
	}
	if tbl.Quotes[1].Bid == nil || tbl.Quotes[1].Ask == nil {
		t.Fatal("bid/ask-only quote must be retained")
	}
}

func TestNormalizeDateKeySpellings(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
		date    string
	}{
		{"effectiveDate key", `{"effectiveDate":"2024-03-01","rates":[]}`, false, "2024-03-01"},
		{"date key", `{"date":"2024-03-04","rates":[]}`, false, "2024-03-04"},
		{"effectiveDate wins", `{"effectiveDate":"2024-03-01","date":"2023-01-01","rates":[]}`, false, "2024-03-01"},
		{"no date", `{"rates":[]}`, true, ""},
		{"unparsable date", `{"effectiveDate":"01.03.2024","rates":[]}`, true, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tbl, err := Normalize([]byte(tc.payload), noopLogger())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected rejection")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if got := tbl.Date.Format(DateLayout); got != tc.date {
				t.Fatalf("date = %s, want %s", got, tc.date)
			}
		})
	}
}

func TestNormalizeMissingDateError(t *testing.T) {
	_, err := Normalize([]byte(`{"rates":[]}`), noopLogger())
	if !errors.Is(err, ErrNoDate) {
		t.Fatalf("expected ErrNoDate, got %v", err)
	}
}

func TestNormalizeMalformedQuoteRecords(t *testing.T) {
	payload := []byte(`{
		"effectiveDate": "2024-03-01",
		"rates": [
			4.05,
			"USD",
			{"currency": "euro", "code": "EUR", "mid": "not-a-number"},
			{"currency": "frank szwajcarski", "code": "CHF", "mid": 4.55}
		]
	}`)

	tbl, err := Normalize(payload, noopLogger())
	if err != nil {
		t.Fatalf("malformed quotes 不应使整张表失败: %v", err)
	}
	if len(tbl.Quotes) != 1 {
		t.Fatalf("expected 1 surviving quote, got %d", len(tbl.Quotes))
	}
	if tbl.Quotes[0].Code != "CHF" {
		t.Fatalf("surviving quote = %s, want CHF", tbl.Quotes[0].Code)
	}
}

func TestNormalizeNotAnObject(t *testing.T) {
	if _, err := Normalize([]byte(`["just","strings"]`), noopLogger()); err == nil {
		t.Fatal("non-object payload must be rejected")
	}
}

func TestNormalizeQuotedPriceAccepted(t *testing.T) {
	// Legacy artifacts serialized prices as quoted strings; both shapes decode.
	payload := []byte(`{"date":"2022-06-01","rates":[{"currency":"euro","code":"EUR","mid":"4.5787"}]}`)

	tbl, err := Normalize(payload, noopLogger())
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(tbl.Quotes) != 1 || tbl.Quotes[0].Mid == nil || tbl.Quotes[0].Mid.String() != "4.5787" {
		t.Fatalf("quoted mid not decoded: %+v", tbl.Quotes)
	}
}
