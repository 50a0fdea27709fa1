package records

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"vahanfetch/pkg/config"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/logger"
)

const (
	combinedCSVName     = "vehicle-statistics.csv.gz"
	processedCountsFile = ".processed.json"
)

var csvHeader = []string{"State", "RTO", "RTO Name", "Year", "Month", "Metric", "Name", "Count"}

// Parser turns the raw artifact tree into the combined long-format dataset.
// It is a pure downstream stage: artifacts in, records out, no network.
type Parser struct {
	rawDir        string
	dataDir       string
	processedPath string
	log           logger.Logger
}

// NewParser creates a parser over the configured directories
func NewParser(cfg *config.Config) *Parser {
	return &Parser{
		rawDir:        cfg.Output.RawDirectory,
		dataDir:       cfg.Output.DataDirectory,
		processedPath: processedCountsFile,
		log:           logger.GetLogger(),
	}
}

// Run parses every artifact directory not yet fully processed and merges the
// result into the combined dataset. Directories are tracked by parsed-file
// count, so a directory that gained artifacts since the last run is
// reprocessed while untouched ones are skipped.
func (p *Parser) Run() error {
	if err := os.MkdirAll(p.dataDir, 0755); err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to create data directory: %v", err)
	}

	rtoNames := LoadRTONames(filepath.Join(p.rawDir, "rtos.txt"))
	counts := p.loadProcessedCounts()

	groups, err := p.groupArtifacts()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var fresh []Record
	updated := false
	for _, key := range keys {
		files := groups[key]
		if counts[key] >= len(files) {
			p.log.DebugWithFields("directory already processed", map[string]interface{}{
				"dir": key,
			})
			continue
		}

		p.log.InfoWithFields("processing directory", map[string]interface{}{
			"dir":   key,
			"files": len(files),
		})
		recs, parsed := p.processGroup(files, rtoNames)
		fresh = append(fresh, recs...)
		counts[key] = parsed
		updated = true
	}

	if !updated {
		p.log.Info("no new data to process")
		return nil
	}

	existing, err := p.readCombined()
	if err != nil {
		return err
	}
	merged := dedupe(append(existing, fresh...))
	sortRecords(merged)

	if err := p.writeCombined(merged); err != nil {
		return err
	}
	if err := p.saveProcessedCounts(counts); err != nil {
		return err
	}

	p.log.InfoWithFields("processing complete", map[string]interface{}{
		"records": len(merged),
	})
	return nil
}

// groupArtifacts collects every artifact path keyed by its
// <state>/<rto>/<year> directory
func (p *Parser) groupArtifacts() (map[string][]string, error) {
	groups := make(map[string][]string)
	err := filepath.Walk(p.rawDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		rel, err := filepath.Rel(p.rawDir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 5 {
			return nil
		}
		key := strings.Join(parts[:3], "/")
		groups[key] = append(groups[key], path)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to walk artifacts: %v", err)
	}
	return groups, nil
}

// processGroup parses one directory's artifacts and emits long-format
// records. Within a metric, months missing a name another month has get an
// explicit zero, so every (leaf, name) cell is present in the output.
func (p *Parser) processGroup(files []string, rtoNames map[string]string) ([]Record, int) {
	type parsed struct {
		meta  metadata
		pairs map[string]int64
	}
	byMetric := make(map[string][]parsed)
	parsedCount := 0

	sort.Strings(files)
	for _, file := range files {
		meta, err := pathMetadata(file, rtoNames)
		if err != nil {
			p.log.WarnWithFields("skipping artifact with unrecognized path", map[string]interface{}{
				"path": file,
			})
			continue
		}
		pairs, err := parseArtifact(file, meta)
		if err != nil {
			p.log.WarnWithFields("skipping unreadable artifact", map[string]interface{}{
				"path":  file,
				"error": err.Error(),
			})
			continue
		}
		if len(pairs) == 0 {
			// placeholder or empty panel
			continue
		}
		byMetric[meta.Metric] = append(byMetric[meta.Metric], parsed{meta: meta, pairs: pairs})
		parsedCount++
	}

	var records []Record
	for _, group := range byMetric {
		names := make(map[string]bool)
		for _, item := range group {
			for name := range item.pairs {
				names[name] = true
			}
		}
		allNames := make([]string, 0, len(names))
		for name := range names {
			allNames = append(allNames, name)
		}
		sort.Strings(allNames)

		for _, item := range group {
			for _, name := range allNames {
				records = append(records, Record{
					State:   item.meta.State,
					RTO:     item.meta.RTO,
					RTOName: item.meta.RTOName,
					Year:    item.meta.Year,
					Month:   item.meta.Month,
					Metric:  item.meta.Metric,
					Name:    name,
					Count:   item.pairs[name],
				})
			}
		}
	}
	return records, parsedCount
}

type recordKey struct {
	State   string
	RTO     int
	RTOName string
	Year    int
	Month   int
	Metric  string
	Name    string
}

// dedupe keeps the first record per key; earlier entries (the previously
// combined dataset) win over reprocessed ones
func dedupe(records []Record) []Record {
	seen := make(map[recordKey]bool, len(records))
	out := records[:0]
	for _, r := range records {
		k := recordKey{r.State, r.RTO, r.RTOName, r.Year, r.Month, r.Metric, r.Name}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}
	return out
}

func sortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch {
		case a.State != b.State:
			return a.State < b.State
		case a.RTO != b.RTO:
			return a.RTO < b.RTO
		case a.Year != b.Year:
			return a.Year < b.Year
		case a.Month != b.Month:
			return a.Month < b.Month
		case a.Metric != b.Metric:
			return a.Metric < b.Metric
		default:
			return a.Name < b.Name
		}
	})
}

// readCombined loads the previously written dataset, if any
func (p *Parser) readCombined() ([]Record, error) {
	path := filepath.Join(p.dataDir, combinedCSVName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to open combined dataset: %v", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to read combined dataset: %v", err)
	}
	defer gz.Close()

	reader := csv.NewReader(gz)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to parse combined dataset: %v", err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 || len(row) != len(csvHeader) {
			continue
		}
		rto, _ := strconv.Atoi(row[1])
		year, _ := strconv.Atoi(row[3])
		month, _ := strconv.Atoi(row[4])
		count, _ := strconv.ParseInt(row[7], 10, 64)
		records = append(records, Record{
			State:   row[0],
			RTO:     rto,
			RTOName: row[2],
			Year:    year,
			Month:   month,
			Metric:  row[5],
			Name:    row[6],
			Count:   count,
		})
	}
	return records, nil
}

// writeCombined writes the dataset through a temporary file and atomic
// replace
func (p *Parser) writeCombined(records []Record) error {
	path := filepath.Join(p.dataDir, combinedCSVName)
	tempPath := path + ".tmp"

	file, err := os.Create(tempPath)
	if err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to create dataset file: %v", err)
	}

	gz := gzip.NewWriter(file)
	writer := csv.NewWriter(gz)

	write := func() error {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range records {
			row := []string{
				r.State,
				strconv.Itoa(r.RTO),
				r.RTOName,
				strconv.Itoa(r.Year),
				strconv.Itoa(r.Month),
				r.Metric,
				r.Name,
				strconv.FormatInt(r.Count, 10),
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		return gz.Close()
	}

	if err := write(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to write dataset: %v", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to close dataset file: %v", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errs.Newf(errs.ErrorTypeStorage, "failed to replace dataset file: %v", err)
	}
	return nil
}

func (p *Parser) loadProcessedCounts() map[string]int {
	counts := make(map[string]int)
	data, err := os.ReadFile(p.processedPath)
	if err != nil {
		return counts
	}
	if err := json.Unmarshal(data, &counts); err != nil {
		p.log.WarnWithFields("processed-counts file unreadable, reprocessing everything", map[string]interface{}{
			"path": p.processedPath,
		})
		return make(map[string]int)
	}
	return counts
}

func (p *Parser) saveProcessedCounts(counts map[string]int) error {
	data, err := json.MarshalIndent(counts, "", "  ")
	if err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to encode processed counts: %v", err)
	}
	if err := os.WriteFile(p.processedPath, data, 0644); err != nil {
		return errs.Newf(errs.ErrorTypeStorage, "failed to save processed counts: %v", err)
	}
	return nil
}
