package reconcile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"nbp-rate-archive/internal/archive"
)

// Summary counts the outcomes of one reconciliation pass.
type Summary struct {
	Scanned     int
	Relocated   int
	Duplicates  int
	Replaced    int
	Conflicts   int
	Quarantined int
	RemovedDirs int
	Failures    int
}

// action is the resolution chosen for one legacy file.
type action int

const (
	actionQuarantine action = iota // date undeterminable
	actionRelocate                 // destination empty
	actionDedupe                   // destination byte-identical
	actionReplace                  // destination differs, source strictly newer
	actionConflict                 // destination differs, destination newer or mtimes unavailable
)

// decide is the §-ordered resolution table. Ordering matters: the first
// matching row wins.
func decide(dated, dstExists, identical, srcNewer bool) action {
	switch {
	case !dated:
		return actionQuarantine
	case !dstExists:
		return actionRelocate
	case identical:
		return actionDedupe
	case srcNewer:
		return actionReplace
	default:
		return actionConflict
	}
}

// Reconciler migrates artifacts left under obsolete sharding layouts into
// the canonical tree. It runs once per invocation, before any ingestion,
// and is never fatal: unresolvable files land in quarantine and divergent
// content is always preserved under a different name.
type Reconciler struct {
	store  *archive.Store
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Reconciler over the store's archive root.
func New(store *archive.Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.With().Str("component", "reconciler").Logger(),
		now:    time.Now,
	}
}

// Run scans the archive root and resolves every legacy file. Per-file
// failures are logged and counted, never propagated.
func (r *Reconciler) Run() Summary {
	var sum Summary

	entries, err := os.ReadDir(r.store.Root())
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error().Err(err).Msg("cannot read archive root")
			sum.Failures++
		}
		return sum
	}

	strategy := r.store.Strategy()
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strategy.Matches(name) || name == archive.QuarantineDirName {
			continue
		}
		r.migrateDir(filepath.Join(r.store.Root(), name), &sum)
	}

	if sum.Scanned > 0 || sum.RemovedDirs > 0 {
		r.logger.Info().
			Int("scanned", sum.Scanned).
			Int("relocated", sum.Relocated).
			Int("duplicates", sum.Duplicates).
			Int("replaced", sum.Replaced).
			Int("conflicts", sum.Conflicts).
			Int("quarantined", sum.Quarantined).
			Int("removed_dirs", sum.RemovedDirs).
			Int("failures", sum.Failures).
			Msg("legacy migration pass complete")
	}
	return sum
}

func (r *Reconciler) migrateDir(dir string, sum *Summary) {
	var files []string
	var subdirs []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("walk error in legacy directory")
			sum.Failures++
			return nil
		}
		if d.IsDir() {
			if path != dir {
				subdirs = append(subdirs, path)
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("dir", dir).Msg("cannot walk legacy directory")
		sum.Failures++
		return
	}

	for _, file := range files {
		sum.Scanned++
		r.resolveFile(file, sum)
	}

	// Deepest first, then the legacy directory itself; removal only
	// succeeds when nothing was left behind.
	sort.Slice(subdirs, func(i, j int) bool { return len(subdirs[i]) > len(subdirs[j]) })
	for _, sub := range subdirs {
		if os.Remove(sub) == nil {
			sum.RemovedDirs++
		}
	}
	if os.Remove(dir) == nil {
		sum.RemovedDirs++
		r.logger.Info().Str("dir", dir).Msg("removed empty legacy directory")
	}
}

func (r *Reconciler) resolveFile(src string, sum *Summary) {
	day, dated := r.fileDate(src)

	var dst string
	dstExists := false
	identical := false
	srcNewer := false

	if dated {
		dst = r.store.PathFor(day)
		if _, err := os.Stat(dst); err == nil {
			dstExists = true
			identical = r.sameBytes(src, dst)
			if !identical {
				srcNewer = r.strictlyNewer(src, dst)
			}
		}
	}

	switch decide(dated, dstExists, identical, srcNewer) {
	case actionQuarantine:
		r.quarantineFile(src, sum)
	case actionRelocate:
		if err := moveFile(src, dst); err != nil {
			r.logger.Error().Err(err).Str("src", src).Str("dst", dst).Msg("relocation failed")
			sum.Failures++
			return
		}
		sum.Relocated++
		r.logger.Info().Str("src", src).Str("dst", dst).Msg("relocated legacy artifact")
	case actionDedupe:
		if err := os.Remove(src); err != nil {
			r.logger.Error().Err(err).Str("src", src).Msg("duplicate removal failed")
			sum.Failures++
			return
		}
		sum.Duplicates++
		r.logger.Info().Str("src", src).Str("dst", dst).Msg("removed byte-identical duplicate")
	case actionReplace:
		backup := archive.AvailablePath(dst + ".bak-" + r.stamp())
		if err := os.Rename(dst, backup); err != nil {
			r.logger.Error().Err(err).Str("dst", dst).Msg("backup of existing artifact failed")
			sum.Failures++
			return
		}
		if err := moveFile(src, dst); err != nil {
			r.logger.Error().Err(err).Str("src", src).Str("dst", dst).Msg("replacement failed")
			sum.Failures++
			return
		}
		sum.Replaced++
		r.logger.Info().Str("src", src).Str("dst", dst).Str("backup", backup).
			Msg("replaced artifact with newer legacy content")
	case actionConflict:
		aside := archive.AvailablePath(dst + ".conflict-" + r.stamp())
		if err := moveFile(src, aside); err != nil {
			r.logger.Error().Err(err).Str("src", src).Str("aside", aside).Msg("conflict move failed")
			sum.Failures++
			return
		}
		sum.Conflicts++
		r.logger.Warn().Str("src", src).Str("aside", aside).Str("dst", dst).
			Msg("divergent legacy artifact preserved with conflict suffix")
	}
}

// fileDate extracts the date from the filename, falling back to the decoded
// content's date field.
func (r *Reconciler) fileDate(path string) (time.Time, bool) {
	if day, ok := r.store.Strategy().FileDate(filepath.Base(path)); ok {
		return day, true
	}

	tbl, err := archive.DecodeFile(path, zerolog.Nop())
	if err != nil {
		return time.Time{}, false
	}
	return tbl.Date, true
}

func (r *Reconciler) quarantineFile(src string, sum *Summary) {
	dir, err := r.store.QuarantineDir()
	if err != nil {
		r.logger.Error().Err(err).Str("src", src).Msg("quarantine dir unavailable")
		sum.Failures++
		return
	}

	dst := archive.AvailablePath(filepath.Join(dir, filepath.Base(src)))
	if err := moveFile(src, dst); err != nil {
		r.logger.Error().Err(err).Str("src", src).Str("dst", dst).Msg("quarantine move failed")
		sum.Failures++
		return
	}
	sum.Quarantined++
	r.logger.Warn().Str("src", src).Str("dst", dst).Msg("undatable file quarantined")
}

func (r *Reconciler) sameBytes(a, b string) bool {
	ab, err := os.ReadFile(a)
	if err != nil {
		return false
	}
	bb, err := os.ReadFile(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// strictlyNewer reports whether src's mtime is strictly after dst's.
// Unavailable timestamps count as not newer, which routes the file to the
// conflict rule and leaves the canonical artifact untouched.
func (r *Reconciler) strictlyNewer(src, dst string) bool {
	si, err := os.Stat(src)
	if err != nil {
		return false
	}
	di, err := os.Stat(dst)
	if err != nil {
		return false
	}
	return si.ModTime().After(di.ModTime())
}

func (r *Reconciler) stamp() string {
	return r.now().UTC().Format("20060102T150405")
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	return os.Rename(src, dst)
}
