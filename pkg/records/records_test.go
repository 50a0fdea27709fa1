package records

import (
	"compress/gzip"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"vahanfetch/pkg/config"
)

func TestLoadRTONames(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rtos.txt")
	body := `RTO BENGALURU CENTRAL - KA1(active)
TC OFFICE - STA OFFICE - KL99( date )
no code line
RTO JAIPUR - RJ267(active)
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	mapping := LoadRTONames(path)
	if len(mapping) != 3 {
		t.Fatalf("expected 3 mappings, got %d: %v", len(mapping), mapping)
	}
	if mapping["KA1"] != "RTO BENGALURU CENTRAL" {
		t.Errorf("KA1 mapped to %q", mapping["KA1"])
	}
	// Dashes inside the name must survive the right-hand split
	if mapping["KL99"] != "TC OFFICE - STA OFFICE" {
		t.Errorf("KL99 mapped to %q", mapping["KL99"])
	}
	if mapping["RJ267"] != "RTO JAIPUR" {
		t.Errorf("RJ267 mapped to %q", mapping["RJ267"])
	}
}

func TestPathMetadata(t *testing.T) {
	names := map[string]string{"KA1": "RTO BENGALURU CENTRAL"}
	meta, err := pathMetadata("raw/KA/1/2023/mar/registration/fuel.html", names)
	if err != nil {
		t.Fatalf("pathMetadata: %v", err)
	}
	if meta.State != "KA" || meta.RTO != 1 || meta.Year != 2023 || meta.Month != 3 {
		t.Errorf("unexpected coordinates: %+v", meta)
	}
	if meta.RTOName != "RTO BENGALURU CENTRAL" {
		t.Errorf("unexpected name: %q", meta.RTOName)
	}
	if meta.Metric != "Registration Fuel" {
		t.Errorf("unexpected metric: %q", meta.Metric)
	}

	// Unknown code falls back to state+number
	meta, err = pathMetadata("raw/DL/7/2022/jan/revenue/tax.html", nil)
	if err != nil {
		t.Fatalf("pathMetadata: %v", err)
	}
	if meta.RTOName != "DL7" || meta.Metric != "Revenue (Tax)" {
		t.Errorf("unexpected fallback metadata: %+v", meta)
	}

	if _, err := pathMetadata("raw/KA/1/2023/mar/registration/unknown.html", nil); err == nil {
		t.Error("unknown panel should be rejected")
	}
}

const fuelArtifact = `<div class="ui-panel ui-widget ui-widget-content ui-corner-all">
<table><tr><td>heading</td></tr></table>
<table>
<tr><th>PETROL Click Here For Month Wise Chart</th><td>1,234</td></tr>
<tr><th>DIESEL</th><td>567.00</td></tr>
<tr><th>ELECTRIC</th><td></td></tr>
<tr><td>lonely</td></tr>
</table>
</div>`

const transactionArtifact = `<div class="ui-panel ui-widget ui-widget-content ui-corner-all">
<table><tr><td>heading</td></tr></table>
<table>
<tr><th>S.No</th><th>Transaction</th><th>Count</th></tr>
<tr><td>1</td><td>New Registration</td><td>100</td></tr>
<tr><td>2</td><td>Transfer of Ownership</td><td>50</td></tr>
</table>
</div>`

func TestParseArtifactRegularPanel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuel.html")
	if err := os.WriteFile(path, []byte(fuelArtifact), 0644); err != nil {
		t.Fatal(err)
	}

	pairs, err := parseArtifact(path, metadata{Metric: "Registration Fuel"})
	if err != nil {
		t.Fatalf("parseArtifact: %v", err)
	}
	if pairs["PETROL"] != 1234 {
		t.Errorf("PETROL = %d, want 1234", pairs["PETROL"])
	}
	if pairs["DIESEL"] != 567 {
		t.Errorf("DIESEL = %d, want 567 after dropping the decimal suffix", pairs["DIESEL"])
	}
	if pairs["ELECTRIC"] != 0 {
		t.Errorf("empty count should read as zero, got %d", pairs["ELECTRIC"])
	}
}

func TestParseArtifactTransactionPanel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transaction.html")
	if err := os.WriteFile(path, []byte(transactionArtifact), 0644); err != nil {
		t.Fatal(err)
	}

	pairs, err := parseArtifact(path, metadata{Metric: "Transaction"})
	if err != nil {
		t.Fatalf("parseArtifact: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %v", pairs)
	}
	if pairs["New Registration"] != 100 || pairs["Transfer of Ownership"] != 50 {
		t.Errorf("unexpected pairs: %v", pairs)
	}
}

func TestParseArtifactPlaceholderYieldsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "class.html")
	body := `<div class="ui-panel ui-widget ui-widget-content ui-corner-all"><p>No data available - blank file created due to missing month ID.</p></div>`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	pairs, err := parseArtifact(path, metadata{Metric: "Registration Class"})
	if err != nil {
		t.Fatalf("parseArtifact: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("placeholder should yield no pairs, got %v", pairs)
	}
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.Output.RawDirectory = filepath.Join(dir, "raw")
	cfg.Output.DataDirectory = filepath.Join(dir, "data")

	p := NewParser(cfg)
	p.processedPath = filepath.Join(dir, ".processed.json")
	return p
}

func writeArtifact(t *testing.T, rawDir, rel, body string) {
	t.Helper()
	path := filepath.Join(rawDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func readCombinedCSV(t *testing.T, p *Parser) [][]string {
	t.Helper()
	file, err := os.Open(filepath.Join(p.dataDir, combinedCSVName))
	if err != nil {
		t.Fatalf("opening combined dataset: %v", err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()
	rows, err := csv.NewReader(gz).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestParserRunEmitsLongFormat(t *testing.T) {
	p := newTestParser(t)

	marFuel := `<div><table><tr><td>h</td></tr></table><table>
<tr><th>PETROL</th><td>10</td></tr>
<tr><th>DIESEL</th><td>5</td></tr>
</table></div>`
	aprFuel := `<div><table><tr><td>h</td></tr></table><table>
<tr><th>PETROL</th><td>7</td></tr>
</table></div>`

	writeArtifact(t, p.rawDir, "KA/1/2023/mar/registration/fuel.html", marFuel)
	writeArtifact(t, p.rawDir, "KA/1/2023/apr/registration/fuel.html", aprFuel)
	writeArtifact(t, p.rawDir, "rtos.txt", "RTO BENGALURU CENTRAL - KA1(active)\n")

	if err := p.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows := readCombinedCSV(t, p)
	// header + 2 names x 2 months
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d: %v", len(rows), rows)
	}

	byKey := make(map[string]string)
	for _, row := range rows[1:] {
		byKey[row[4]+"/"+row[6]] = row[7]
	}
	if byKey["3/PETROL"] != "10" || byKey["3/DIESEL"] != "5" {
		t.Errorf("march rows wrong: %v", byKey)
	}
	if byKey["4/PETROL"] != "7" {
		t.Errorf("april petrol wrong: %v", byKey)
	}
	// April has no diesel row in the source; the month still gets a zero
	if byKey["4/DIESEL"] != "0" {
		t.Errorf("april diesel should be zero-filled, got %q", byKey["4/DIESEL"])
	}

	for _, row := range rows[1:] {
		if row[2] != "RTO BENGALURU CENTRAL" {
			t.Errorf("sub-region name not resolved: %v", row)
		}
	}
}

func TestParserRunSkipsProcessedDirectories(t *testing.T) {
	p := newTestParser(t)

	body := `<div><table><tr><td>h</td></tr></table><table><tr><th>PETROL</th><td>10</td></tr></table></div>`
	writeArtifact(t, p.rawDir, "KA/1/2023/mar/registration/fuel.html", body)

	if err := p.Run(); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first, err := os.Stat(filepath.Join(p.dataDir, combinedCSVName))
	if err != nil {
		t.Fatal(err)
	}

	if err := p.Run(); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second, err := os.Stat(filepath.Join(p.dataDir, combinedCSVName))
	if err != nil {
		t.Fatal(err)
	}
	if !second.ModTime().Equal(first.ModTime()) {
		t.Error("second run should not rewrite an unchanged dataset")
	}

	// A new artifact in the directory forces reprocessing without
	// duplicating the existing records
	writeArtifact(t, p.rawDir, "KA/1/2023/apr/registration/fuel.html", body)
	if err := p.Run(); err != nil {
		t.Fatalf("third Run: %v", err)
	}
	rows := readCombinedCSV(t, p)
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d: %v", len(rows), rows)
	}
}
