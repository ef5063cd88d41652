package archive

import (
	"path/filepath"
	"regexp"
	"time"
)

// PathStrategy is the versioned path-resolution seam: it alone decides where
// a date's artifact lives and which top-level directories belong to the
// canonical layout. Layout evolution means a new implementation plus a
// reconciler pass, never conditionals in the write path.
type PathStrategy interface {
	// PathFor maps a calendar date to its canonical artifact path.
	PathFor(root string, day time.Time) string
	// Matches reports whether a top-level directory name belongs to this
	// layout.
	Matches(name string) bool
	// FileDate extracts the calendar date encoded in an artifact file name.
	FileDate(name string) (time.Time, bool)
}

const fileDateLayout = "02_01_2006"

var (
	yearDirPattern  = regexp.MustCompile(`^\d{4}$`)
	fileDatePattern = regexp.MustCompile(`^(\d{2}_\d{2}_\d{4})\.json(\.gz)?$`)
)

// YearShards is the current canonical layout:
// <root>/<year>/<dd_mm_yyyy>.json[.gz].
type YearShards struct {
	Ext string
}

// NewYearShards builds the canonical strategy for the given compression
// setting.
func NewYearShards(compress bool) YearShards {
	ext := ".json"
	if compress {
		ext = ".json.gz"
	}
	return YearShards{Ext: ext}
}

// PathFor maps a date to <root>/<year>/<dd_mm_yyyy>.<ext>.
func (s YearShards) PathFor(root string, day time.Time) string {
	return filepath.Join(root, day.Format("2006"), day.Format(fileDateLayout)+s.Ext)
}

// Matches accepts four-digit year directories.
func (s YearShards) Matches(name string) bool {
	return yearDirPattern.MatchString(name)
}

// FileDate parses a dd_mm_yyyy-named artifact file, compressed or not.
func (s YearShards) FileDate(name string) (time.Time, bool) {
	m := fileDatePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	day, err := time.Parse(fileDateLayout, m[1])
	if err != nil {
		return time.Time{}, false
	}
	return day.UTC(), true
}

var _ PathStrategy = YearShards{}
