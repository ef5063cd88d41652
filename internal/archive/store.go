package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nbp-rate-archive/internal/table"
)

const (
	// MarkerFile records that the full historical range has been ingested
	// at least once. Lives at the archive root; never cleared automatically.
	MarkerFile = ".backfill-complete"
	// ActivityLogFile is the append-only write journal at the archive root.
	// Advisory only; the ingestion logic never reads it back.
	ActivityLogFile = "activity.log"
	// QuarantineDirName holds records and files that could not be
	// confidently classified or dated.
	QuarantineDirName = "quarantine"
)

func init() {
	// Artifact prices serialize as bare JSON numbers, matching the upstream
	// payload shape.
	decimal.MarshalJSONWithoutQuotes = true
}

// Store is the idempotent, sharded artifact store. Existence is tested by
// path, never by content; writes go through a temp file and atomic rename.
type Store struct {
	root     string
	strategy PathStrategy
	compress bool
	logger   zerolog.Logger
}

// NewStore builds a Store over the archive root using the canonical layout.
func NewStore(root string, compress bool, logger zerolog.Logger) *Store {
	return &Store{
		root:     root,
		strategy: NewYearShards(compress),
		compress: compress,
		logger:   logger.With().Str("component", "artifact_store").Logger(),
	}
}

// Root returns the archive root directory.
func (s *Store) Root() string { return s.root }

// Strategy exposes the canonical path strategy.
func (s *Store) Strategy() PathStrategy { return s.strategy }

// PathFor resolves the canonical artifact path for a date.
func (s *Store) PathFor(day time.Time) string {
	return s.strategy.PathFor(s.root, day)
}

// Exists reports whether an artifact is already present for the date.
// Existence at the resolved path is taken as proof of a prior successful
// write.
func (s *Store) Exists(day time.Time) bool {
	_, err := os.Stat(s.PathFor(day))
	return err == nil
}

type artifact struct {
	Date  string            `json:"date"`
	Rates []table.RateQuote `json:"rates"`
}

// Write serializes the table and commits it atomically under the canonical
// path. The year directory is created on demand. Failures are logged and
// surfaced, never swallowed.
func (s *Store) Write(tbl table.DailyTable) error {
	path := s.PathFor(tbl.Date)

	data, err := json.Marshal(artifact{
		Date:  tbl.Date.Format(table.DateLayout),
		Rates: tbl.Quotes,
	})
	if err != nil {
		return fmt.Errorf("archive: encode artifact: %w", err)
	}

	if s.compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return fmt.Errorf("archive: compress artifact: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("archive: compress artifact: %w", err)
		}
		data = buf.Bytes()
	}

	if err := writeAtomic(path, data); err != nil {
		s.logger.Error().Err(err).Str("path", path).Msg("artifact write failed")
		return fmt.Errorf("archive: write %s: %w", path, err)
	}

	if err := s.logActivity(path); err != nil {
		// The activity log is advisory; a failed append does not undo a
		// committed artifact.
		s.logger.Warn().Err(err).Str("path", path).Msg("activity log append failed")
	}

	s.logger.Info().Str("path", path).Int("quotes", len(tbl.Quotes)).Msg("artifact written")
	return nil
}

// Read decodes the artifact for a date back into a DailyTable.
func (s *Store) Read(day time.Time) (table.DailyTable, error) {
	return DecodeFile(s.PathFor(day), s.logger)
}

// MarkerExists reports whether a completed full backfill has been recorded.
func (s *Store) MarkerExists() bool {
	_, err := os.Stat(filepath.Join(s.root, MarkerFile))
	return err == nil
}

// WriteMarker records completion of a full backfill.
func (s *Store) WriteMarker(completedAt time.Time) error {
	path := filepath.Join(s.root, MarkerFile)
	if err := writeAtomic(path, []byte(completedAt.UTC().Format(time.RFC3339)+"\n")); err != nil {
		return fmt.Errorf("archive: write marker: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("backfill marker written")
	return nil
}

// QuarantineDir returns the quarantine area, created on demand.
func (s *Store) QuarantineDir() (string, error) {
	dir := filepath.Join(s.root, QuarantineDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("archive: create quarantine dir: %w", err)
	}
	return dir, nil
}

// Quarantine persists an unclassifiable raw payload for later inspection.
func (s *Store) Quarantine(name string, payload []byte) (string, error) {
	dir, err := s.QuarantineDir()
	if err != nil {
		return "", err
	}

	path := AvailablePath(filepath.Join(dir, name))
	if err := writeAtomic(path, payload); err != nil {
		return "", fmt.Errorf("archive: quarantine %s: %w", name, err)
	}

	s.logger.Warn().Str("path", path).Msg("payload quarantined")
	return path, nil
}

func (s *Store) logActivity(artifactPath string) error {
	logPath := filepath.Join(s.root, ActivityLogFile)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\n", time.Now().UTC().Format(time.RFC3339), artifactPath)
	return err
}

// writeAtomic commits data via a temp file in the destination directory and
// an atomic rename, so readers never observe a partial artifact. A crash
// mid-write leaves at worst an orphaned temp file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// AvailablePath returns path itself when free, else the first numeric-suffix
// variant (path.1, path.2, ...) that does not collide.
func AvailablePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

// DecodeFile reads one artifact file, transparently decompressing gzip, and
// normalizes it through the same validation path as upstream payloads.
func DecodeFile(path string, logger zerolog.Logger) (table.DailyTable, error) {
	data, err := ReadFileBytes(path)
	if err != nil {
		return table.DailyTable{}, err
	}
	return table.Normalize(data, logger)
}

// ReadFileBytes returns a file's decoded contents, gunzipping when the gzip
// magic number is present.
func ReadFileBytes(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("archive: gunzip %s: %w", path, err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return data, nil
}
