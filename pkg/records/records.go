package records

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	errs "vahanfetch/pkg/errors"
	"vahanfetch/pkg/vahan"
)

// Record is one long-format observation emitted by the parse stage
type Record struct {
	State   string
	RTO     int
	RTOName string
	Year    int
	Month   int
	Metric  string
	Name    string
	Count   int64
}

// metricLabels maps <category dir>/<panel file> to the published metric name
var metricLabels = map[string]string{
	"registration/class":        "Registration Class",
	"registration/category":     "Registration Category",
	"registration/fuel":         "Registration Fuel",
	"registration/standard":     "Registration Standard",
	"registration/manufacturer": "Registration Manufacturer",
	"transaction/transaction":   "Transaction",
	"revenue/fee":               "Revenue (Fee)",
	"revenue/tax":               "Revenue (Tax)",
	"permit/type":               "Permit Type",
	"permit/category":           "Permit Category",
	"permit/purpose":            "Permit Purpose",
}

// LoadRTONames reads the sub-region sidecar into a code -> display name map.
// Lines look like "OFFICE NAME - KA01(active)"; the name itself may contain
// dashes, so the split runs from the right.
func LoadRTONames(path string) map[string]string {
	mapping := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return mapping
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, " - ") || !strings.Contains(line, "(") {
			continue
		}
		idx := strings.LastIndex(line, " - ")
		name := strings.TrimSpace(line[:idx])
		codePart := line[idx+len(" - "):]
		code := strings.TrimSpace(strings.SplitN(codePart, "(", 2)[0])
		if code != "" && name != "" {
			mapping[code] = name
		}
	}
	return mapping
}

// metadata carries the leaf coordinates recovered from an artifact path
type metadata struct {
	State   string
	RTO     int
	RTOName string
	Year    int
	Month   int
	Metric  string
}

// pathMetadata recovers leaf coordinates from an artifact path of the form
// .../<state>/<rto>/<year>/<month>/<category>/<panel>.html
func pathMetadata(path string, rtoNames map[string]string) (metadata, error) {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 6 {
		return metadata{}, errs.Newf(errs.ErrorTypeStorage, "artifact path too shallow: %s", path)
	}
	tail := parts[len(parts)-6:]

	rto, err := strconv.Atoi(tail[1])
	if err != nil {
		return metadata{}, errs.Newf(errs.ErrorTypeStorage, "non-numeric sub-region in path %s", path)
	}
	year, err := strconv.Atoi(tail[2])
	if err != nil {
		return metadata{}, errs.Newf(errs.ErrorTypeStorage, "non-numeric year in path %s", path)
	}
	month := vahan.MonthNumber(strings.ToUpper(tail[3]))
	if month == 0 {
		return metadata{}, errs.Newf(errs.ErrorTypeStorage, "unknown month in path %s", path)
	}

	metricKey := tail[4] + "/" + strings.TrimSuffix(tail[5], ".html")
	metric, ok := metricLabels[metricKey]
	if !ok {
		return metadata{}, errs.Newf(errs.ErrorTypeStorage, "unknown panel in path %s", path)
	}

	state := tail[0]
	code := state + tail[1]
	name, ok := rtoNames[code]
	if !ok {
		name = code
	}

	return metadata{
		State:   state,
		RTO:     rto,
		RTOName: name,
		Year:    year,
		Month:   month,
		Metric:  metric,
	}, nil
}

// cleanCell normalizes a table cell: chart links and formatting characters
// stripped, surrounding whitespace removed
func cleanCell(s string) string {
	s = strings.ReplaceAll(s, "Click Here For Month Wise Chart", "")
	s = strings.ReplaceAll(s, `"`, "")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

// parseCount converts a cleaned cell to a count. Fractional ".00" suffixes
// from revenue tables are dropped; an empty cell counts as zero.
func parseCount(s string) (int64, bool) {
	s = strings.ReplaceAll(s, ".00", "")
	if s == "" {
		s = "0"
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseArtifact extracts the name -> count pairs from one panel artifact.
// Placeholders and malformed fragments yield no pairs, which the caller
// treats as nothing to emit rather than a failure. Transaction tables carry
// a leading serial-number column the other panels lack.
func parseArtifact(path string, meta metadata) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to open artifact: %v", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, errs.Newf(errs.ErrorTypeStorage, "failed to parse artifact %s: %v", path, err)
	}

	tables := doc.Find("table")
	if tables.Length() < 2 {
		return nil, nil
	}

	isTransaction := meta.Metric == "Transaction"
	pairs := make(map[string]int64)

	tables.Eq(1).Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if isTransaction {
			if cells.Length() < 3 {
				return
			}
			serial := strings.TrimSpace(cells.Eq(0).Text())
			if _, err := strconv.Atoi(serial); err != nil {
				return
			}
			name := cleanCell(cells.Eq(1).Text())
			count, ok := parseCount(cleanCell(cells.Eq(2).Text()))
			if name != "" && ok {
				pairs[name] = count
			}
			return
		}
		if cells.Length() < 2 {
			return
		}
		name := cleanCell(cells.Eq(0).Text())
		count, ok := parseCount(cleanCell(cells.Eq(1).Text()))
		if name != "" && ok {
			pairs[name] = count
		}
	})

	return pairs, nil
}
