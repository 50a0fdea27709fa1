package artifact

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/ledger"
	"vahanfetch/pkg/logger"
	"vahanfetch/pkg/vahan"
)

// PlaceholderText marks an artifact synthesized for a period the server has
// no data for. The parse stage and the placeholder sweep both key off it.
const PlaceholderText = "No data available - blank file created due to missing month ID."

// placeholderBody is a minimal panel document carrying the marker, so
// downstream consumers see the same structure as a real fragment
const placeholderBody = `<div class="ui-panel ui-widget ui-widget-content ui-corner-all">
    <div class="ui-panel-content ui-widget-content">
        <p>` + PlaceholderText + `</p>
    </div>
</div>
`

// rtoNamesFile is the sidecar listing every sub-region display name seen
const rtoNamesFile = "rtos.txt"

// Store persists fetched fragments and placeholders under a fixed directory
// layout: <root>/<state>/<rto>/<year>/<month>/<category>/<panel>.html.
// Artifacts are written once and never mutated in normal operation.
type Store struct {
	root string
	log  logger.Logger
}

// NewStore creates an artifact store rooted at the raw directory
func NewStore(root string, log logger.Logger) *Store {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Store{root: root, log: log}
}

// Path returns the artifact location for a month leaf and panel
func (s *Store) Path(k ledger.Key, panel vahan.Panel) string {
	return filepath.Join(
		s.root,
		k.State,
		k.RTO,
		k.Year,
		strings.ToLower(k.Month),
		k.Category.DirName(),
		panel.File+".html",
	)
}

// Exists reports whether the panel artifact is already on disk
func (s *Store) Exists(k ledger.Key, panel vahan.Panel) bool {
	_, err := os.Stat(s.Path(k, panel))
	return err == nil
}

// Write persists a fetched fragment. A fragment without the expected result
// container is rejected as structurally bad rather than stored.
func (s *Store) Write(k ledger.Key, panel vahan.Panel, html string) error {
	if !strings.Contains(html, vahan.ResultPanelMarker) {
		return errs.Newf(errs.ErrorTypeStructural, "fragment for %s/%s lacks result panel", k.String(), panel.File)
	}
	return s.writeFile(s.Path(k, panel), html)
}

// WritePlaceholder persists the fixed no-data body for a panel
func (s *Store) WritePlaceholder(k ledger.Key, panel vahan.Panel) error {
	return s.writeFile(s.Path(k, panel), placeholderBody)
}

// writeFile creates the leaf directory and writes the content through a
// temporary file so a crash never leaves a partial artifact visible
func (s *Store) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to create artifact directory: %v", err)
	}

	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to create artifact file: %v", err)
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to write artifact: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to close artifact file: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to replace artifact file: %v", err)
	}
	return nil
}

// Scan walks the artifact tree and reports, per month leaf, whether the full
// panel set for its category is present. The ledger reconciles against this
// before any network activity.
func (s *Store) Scan() (map[ledger.Key]bool, error) {
	leaves := make(map[ledger.Key]bool)

	states, err := readDirNames(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return leaves, nil
		}
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to scan artifacts: %v", err)
	}

	for _, state := range states {
		rtos, _ := readDirNames(filepath.Join(s.root, state))
		for _, rto := range rtos {
			years, _ := readDirNames(filepath.Join(s.root, state, rto))
			for _, year := range years {
				months, _ := readDirNames(filepath.Join(s.root, state, rto, year))
				for _, month := range months {
					marker := strings.ToUpper(month)
					if vahan.MonthNumber(marker) == 0 {
						continue
					}
					dirs, _ := readDirNames(filepath.Join(s.root, state, rto, year, month))
					for _, dir := range dirs {
						category, ok := vahan.CategoryForDir(dir)
						if !ok {
							continue
						}
						k := ledger.LeafKey(state, rto, category, year, marker)
						leaves[k] = s.allPanelsPresent(k)
					}
				}
			}
		}
	}
	return leaves, nil
}

func (s *Store) allPanelsPresent(k ledger.Key) bool {
	for _, panel := range k.Category.Panels() {
		if !s.Exists(k, panel) {
			return false
		}
	}
	return true
}

func readDirNames(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// DeletePlaceholders removes every placeholder artifact under the root so a
// subsequent reconciled run refetches those periods. Returns the number of
// files removed.
func (s *Store) DeletePlaceholders() (int, error) {
	removed := 0
	err := filepath.Walk(s.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.WarnWithFields("could not read artifact during placeholder sweep", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		if !strings.Contains(string(data), PlaceholderText) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return removed, errs.Newf(errs.ErrorTypeStorage, "placeholder sweep failed: %v", err)
	}

	s.log.InfoWithFields("placeholder artifacts removed", map[string]interface{}{
		"count": removed,
	})
	return removed, nil
}

// AppendRTONames merges sub-region display names into the sorted sidecar
// file. Names already present are kept; the file is rewritten whole.
func (s *Store) AppendRTONames(names []string) error {
	path := filepath.Join(s.root, rtoNamesFile)

	existing := make(map[string]bool)
	if data, err := os.ReadFile(path); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				existing[line] = true
			}
		}
	}

	for _, name := range names {
		if name = strings.TrimSpace(name); name != "" {
			existing[name] = true
		}
	}

	merged := make([]string, 0, len(existing))
	for name := range existing {
		merged = append(merged, name)
	}
	sort.Strings(merged)

	return s.writeFile(path, strings.Join(merged, "\n")+"\n")
}
