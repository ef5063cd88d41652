package archive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nbp-rate-archive/internal/table"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(table.DateLayout, value)
	if err != nil {
		t.Fatalf("bad test date %q: %v", value, err)
	}
	return d
}

func sampleTable(t *testing.T, date string) table.DailyTable {
	t.Helper()
	mid := decimal.RequireFromString("4.05")
	return table.DailyTable{
		Date: mustDate(t, date),
		Quotes: []table.RateQuote{
			{Currency: "dolar amerykański", Code: "USD", Mid: &mid},
		},
	}
}

func TestYearShardsLayout(t *testing.T) {
	plain := NewYearShards(false)
	if got := plain.PathFor("docs/exc", mustDate(t, "2024-03-01")); got != filepath.Join("docs/exc", "2024", "01_03_2024.json") {
		t.Fatalf("unexpected path: %s", got)
	}

	gz := NewYearShards(true)
	if got := gz.PathFor("docs/exc", mustDate(t, "2024-03-01")); !strings.HasSuffix(got, "01_03_2024.json.gz") {
		t.Fatalf("unexpected compressed path: %s", got)
	}

	if !plain.Matches("2024") {
		t.Fatal("year directory must match canonical layout")
	}
	for _, name := range []string{"exc", "quarantine", "202", "20245"} {
		if plain.Matches(name) {
			t.Fatalf("%q 不应匹配 canonical layout", name)
		}
	}

	day, ok := plain.FileDate("01_03_2024.json")
	if !ok || day.Format(table.DateLayout) != "2024-03-01" {
		t.Fatalf("FileDate roundtrip failed: %v %v", day, ok)
	}
	if _, ok := plain.FileDate("01_03_2024.json.conflict-20240301T000000"); ok {
		t.Fatal("suffixed conflict file must not parse as an artifact")
	}
	if day, ok := plain.FileDate("01_03_2024.json.gz"); !ok || day.Format(table.DateLayout) != "2024-03-01" {
		t.Fatal("compressed artifact name must parse")
	}
}

func TestWriteReadRoundtrip(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, false, noopLogger())
	tbl := sampleTable(t, "2024-03-01")

	if store.Exists(tbl.Date) {
		t.Fatal("artifact must not exist before write")
	}
	if err := store.Write(tbl); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !store.Exists(tbl.Date) {
		t.Fatal("artifact must exist after write")
	}

	raw, err := os.ReadFile(store.PathFor(tbl.Date))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, `"date":"2024-03-01"`) {
		t.Fatalf("artifact missing date field: %s", content)
	}
	if !strings.Contains(content, `"mid":4.05`) {
		t.Fatalf("prices must serialize as bare numbers: %s", content)
	}

	got, err := store.Read(tbl.Date)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got.Quotes) != 1 || got.Quotes[0].Code != "USD" {
		t.Fatalf("roundtrip lost quotes: %+v", got.Quotes)
	}
	if !got.Quotes[0].Mid.Equal(*tbl.Quotes[0].Mid) {
		t.Fatalf("mid changed: %s", got.Quotes[0].Mid)
	}

	// A crash-free write leaves no temp files behind.
	leftovers, _ := filepath.Glob(filepath.Join(root, "2024", ".*tmp*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestWriteCompressed(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, true, noopLogger())
	tbl := sampleTable(t, "2024-03-01")

	if err := store.Write(tbl); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	path := store.PathFor(tbl.Date)
	if !strings.HasSuffix(path, ".json.gz") {
		t.Fatalf("compressed store must use .json.gz: %s", path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(raw) < 2 || raw[0] != 0x1f || raw[1] != 0x8b {
		t.Fatal("artifact is not gzip-compressed")
	}

	got, err := store.Read(tbl.Date)
	if err != nil {
		t.Fatalf("read back compressed artifact: %v", err)
	}
	if len(got.Quotes) != 1 {
		t.Fatalf("roundtrip lost quotes: %+v", got.Quotes)
	}
}

func TestActivityLogAppends(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, false, noopLogger())

	if err := store.Write(sampleTable(t, "2024-03-01")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := store.Write(sampleTable(t, "2024-03-04")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(root, ActivityLogFile))
	if err != nil {
		t.Fatalf("activity log missing: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 2 {
		t.Fatalf("期望 2 行活动日志, 实际 %d", len(lines))
	}
	if !strings.HasSuffix(lines[0], store.PathFor(mustDate(t, "2024-03-01"))) {
		t.Fatalf("first line should reference first artifact: %s", lines[0])
	}
}

func TestMarker(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, false, noopLogger())

	if store.MarkerExists() {
		t.Fatal("marker must be absent initially")
	}
	if err := store.WriteMarker(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	if !store.MarkerExists() {
		t.Fatal("marker must exist after write")
	}

	raw, err := os.ReadFile(filepath.Join(root, MarkerFile))
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if strings.TrimSpace(string(raw)) != "2024-03-01T12:00:00Z" {
		t.Fatalf("marker content unexpected: %q", raw)
	}
}

func TestQuarantineCollisionSuffix(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, false, noopLogger())

	first, err := store.Quarantine("bad-entry.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}
	second, err := store.Quarantine("bad-entry.json", []byte(`{"b":2}`))
	if err != nil {
		t.Fatalf("quarantine: %v", err)
	}

	if first == second {
		t.Fatal("collision must produce a distinct name")
	}
	if !strings.HasSuffix(second, ".1") {
		t.Fatalf("expected numeric suffix, got %s", second)
	}
}
