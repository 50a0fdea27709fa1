package ledger

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"time"

	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
	"vahanfetch/pkg/vahan"
)

// Store is the durable completion ledger. It holds one boolean entry per
// incomplete branch boundary: month leaves while a year is in progress, year
// keys while a category is in progress, and so on. Marking a leaf complete
// rolls completion upward and deletes every subsumed finer entry, so the
// ledger stays bounded by incomplete branches rather than total leaves.
//
// The store is owned by the single-threaded orchestrator and is not safe for
// concurrent use.
type Store struct {
	path    string
	years   []string
	entries map[string]bool
	log     logger.Logger

	// Now is the clock used to decide which years count toward category
	// promotion. Overridable in tests.
	Now func() time.Time
}

// NewStore creates a ledger store over the given file path. years is the
// tracked year list; only years up to the current calendar year participate
// in category promotion.
func NewStore(path string, years []string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{
		path:    path,
		years:   years,
		entries: make(map[string]bool),
		log:     log,
		Now:     time.Now,
	}
}

// Load reads the ledger file if it exists. Unparseable entries are dropped
// with a warning rather than failing the run; reconciliation against the
// artifact store restores anything lost.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Newf(errs.ErrorTypeStorage, "failed to read ledger: %v", err)
	}

	raw := make(map[string]bool)
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.WarnWithFields("ledger file unreadable, starting empty", map[string]interface{}{
			"path":  s.path,
			"error": err.Error(),
		})
		return nil
	}

	for key, done := range raw {
		if !done {
			continue
		}
		if _, err := ParseKey(key); err != nil {
			s.log.WarnWithFields("dropping malformed ledger entry", map[string]interface{}{
				"key": key,
			})
			continue
		}
		s.entries[key] = true
	}

	s.log.InfoWithFields("ledger loaded", map[string]interface{}{
		"path":    s.path,
		"entries": len(s.entries),
	})
	return nil
}

// IsComplete reports whether the key, or any coarser branch containing it,
// is recorded complete. A key with a year or month but no category is a
// synthesized query: it is complete only when every category is.
func (s *Store) IsComplete(k Key) bool {
	if k.Category == "" && k.Year != "" {
		for _, c := range vahan.Categories {
			q := k
			q.Category = c
			if !s.IsComplete(q) {
				return false
			}
		}
		return true
	}

	if s.entries[k.String()] {
		return true
	}
	for _, a := range k.Ancestors() {
		if s.entries[a.String()] {
			return true
		}
	}
	return false
}

// MarkComplete records a month leaf and rolls completion upward: all twelve
// months promote to the year, all tracked non-future years promote to the
// category, all four categories promote to the sub-region. Promotion deletes
// the subsumed finer entries. Every mark is flushed durably before returning.
func (s *Store) MarkComplete(k Key) error {
	if !k.IsLeaf() || !k.Valid() {
		return errs.Newf(errs.ErrorTypeStorage, "cannot mark non-leaf key %q complete", k.String())
	}
	if s.IsComplete(k) {
		return nil
	}

	s.entries[k.String()] = true
	s.promote(k)
	return s.Flush()
}

func (s *Store) promote(k Key) {
	yearKey := Key{State: k.State, RTO: k.RTO, Category: k.Category, Year: k.Year}
	if !s.entries[yearKey.String()] && s.allMonthsRecorded(yearKey) {
		s.collapse(yearKey)
	}

	catKey := Key{State: k.State, RTO: k.RTO, Category: k.Category}
	if !s.entries[catKey.String()] && s.allYearsRecorded(catKey) {
		s.collapse(catKey)
	}

	rtoKey := Key{State: k.State, RTO: k.RTO}
	if !s.entries[rtoKey.String()] && s.allCategoriesRecorded(rtoKey) {
		s.collapse(rtoKey)
	}
}

// collapse records a coarse key and deletes every entry it subsumes
func (s *Store) collapse(k Key) {
	for key := range s.entries {
		parsed, err := ParseKey(key)
		if err != nil {
			continue
		}
		if k != parsed && k.Subsumes(parsed) {
			delete(s.entries, key)
		}
	}
	s.entries[k.String()] = true
	s.log.DebugWithFields("ledger promoted", map[string]interface{}{
		"key": k.String(),
	})
}

func (s *Store) allMonthsRecorded(yearKey Key) bool {
	for _, m := range vahan.Months {
		leaf := yearKey
		leaf.Month = m
		if !s.entries[leaf.String()] {
			return false
		}
	}
	return true
}

func (s *Store) allYearsRecorded(catKey Key) bool {
	current := s.Now().Year()
	counted := 0
	for _, y := range s.years {
		n, err := strconv.Atoi(y)
		if err != nil || n > current {
			continue
		}
		counted++
		yearKey := catKey
		yearKey.Year = y
		if !s.entries[yearKey.String()] {
			return false
		}
	}
	return counted > 0
}

func (s *Store) allCategoriesRecorded(rtoKey Key) bool {
	for _, c := range vahan.Categories {
		catKey := rtoKey
		catKey.Category = c
		if !s.entries[catKey.String()] {
			return false
		}
	}
	return true
}

// Reconcile merges an artifact scan into the loaded ledger before any
// network activity. The scan is authoritative: leaves it found complete are
// marked (with promotion), and leaf entries it found incomplete are removed.
// Coarser promoted entries are left alone; the scan re-derives them from the
// leaves they cover.
func (s *Store) Reconcile(scanned map[Key]bool) error {
	changed := 0
	for k, complete := range scanned {
		if !k.IsLeaf() {
			continue
		}
		if complete {
			if !s.IsComplete(k) {
				s.entries[k.String()] = true
				s.promote(k)
				changed++
			}
		} else if s.entries[k.String()] {
			delete(s.entries, k.String())
			changed++
		}
	}

	if changed == 0 {
		return nil
	}
	s.log.InfoWithFields("ledger reconciled against artifacts", map[string]interface{}{
		"changes": changed,
	})
	return s.Flush()
}

// Flush writes the ledger durably: full serialize to a temporary file,
// sync, then atomic replace. A crash never leaves a partial ledger visible.
func (s *Store) Flush() error {
	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to create temporary ledger file: %v", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.entries); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to encode ledger: %v", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to sync ledger file: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to close ledger file: %v", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to replace ledger file: %v", err)
	}
	return nil
}

// Reset clears the ledger in memory and on disk
func (s *Store) Reset() error {
	s.entries = make(map[string]bool)
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errs.Newf(errs.ErrorTypeStorage, "failed to delete ledger: %v", err)
	}
	s.log.Info("ledger reset")
	return nil
}

// Entries returns the recorded keys in sorted order
func (s *Store) Entries() []string {
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary counts recorded entries per granularity
type Summary struct {
	RTOs       int
	Categories int
	Years      int
	Months     int
}

// Summarize tallies the ledger by key granularity
func (s *Store) Summarize() Summary {
	var sum Summary
	for key := range s.entries {
		k, err := ParseKey(key)
		if err != nil {
			continue
		}
		switch {
		case k.Month != "":
			sum.Months++
		case k.Year != "":
			sum.Years++
		case k.Category != "":
			sum.Categories++
		default:
			sum.RTOs++
		}
	}
	return sum
}
