package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vahanfetch/pkg/vahan"
)

func testStore(t *testing.T, years []string) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".completed.json")
	s := NewStore(path, years, nil)
	s.Now = func() time.Time {
		return time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	}
	return s
}

func markAllMonths(t *testing.T, s *Store, state, rto string, category vahan.Category, year string) {
	t.Helper()
	for _, m := range vahan.Months {
		if err := s.MarkComplete(LeafKey(state, rto, category, year, m)); err != nil {
			t.Fatalf("MarkComplete(%s %s): %v", year, m, err)
		}
	}
}

func TestMarkCompleteRecordsLeaf(t *testing.T) {
	s := testStore(t, []string{"2023"})

	leaf := LeafKey("KA", "KA01", vahan.CategoryRegistration, "2023", "MAR")
	if err := s.MarkComplete(leaf); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	if !s.IsComplete(leaf) {
		t.Error("leaf should be complete after marking")
	}
	if s.IsComplete(LeafKey("KA", "KA01", vahan.CategoryRegistration, "2023", "APR")) {
		t.Error("sibling month should not be complete")
	}
}

func TestMarkCompleteRejectsNonLeaf(t *testing.T) {
	s := testStore(t, []string{"2023"})
	err := s.MarkComplete(Key{State: "KA", RTO: "KA01", Category: vahan.CategoryRegistration, Year: "2023"})
	if err == nil {
		t.Fatal("marking a year-granularity key should fail")
	}
}

func TestYearPromotionCollapsesMonths(t *testing.T) {
	// 2022 stays incomplete so promotion stops at the year level
	s := testStore(t, []string{"2023", "2022"})

	markAllMonths(t, s, "KA", "KA01", vahan.CategoryRegistration, "2023")

	entries := s.Entries()
	if len(entries) != 1 || entries[0] != "KA:KA01:regn:2023" {
		t.Fatalf("expected single year entry, got %v", entries)
	}
	if !s.IsComplete(LeafKey("KA", "KA01", vahan.CategoryRegistration, "2023", "JUL")) {
		t.Error("months should remain complete through the year entry")
	}
}

func TestCategoryPromotionSkipsFutureYears(t *testing.T) {
	// Clock is fixed to 2026; the 2027 year in the tracked list must not
	// block promotion.
	s := testStore(t, []string{"2027", "2026", "2025"})

	markAllMonths(t, s, "KA", "KA01", vahan.CategoryTransaction, "2026")
	markAllMonths(t, s, "KA", "KA01", vahan.CategoryTransaction, "2025")

	entries := s.Entries()
	if len(entries) != 1 || entries[0] != "KA:KA01:trans" {
		t.Fatalf("expected single category entry, got %v", entries)
	}
}

func TestFullPromotionToSubRegion(t *testing.T) {
	s := testStore(t, []string{"2026"})

	for _, c := range vahan.Categories {
		markAllMonths(t, s, "KA", "KA01", c, "2026")
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0] != "KA:KA01" {
		t.Fatalf("expected single sub-region entry, got %v", entries)
	}
	if !s.IsComplete(LeafKey("KA", "KA01", vahan.CategoryPermit, "2026", "FEB")) {
		t.Error("every leaf under the sub-region should report complete")
	}
	if s.IsComplete(Key{State: "KA", RTO: "KA02"}) {
		t.Error("a different sub-region must not report complete")
	}
}

func TestSynthesizedYearQuery(t *testing.T) {
	s := testStore(t, []string{"2026"})

	for _, c := range []vahan.Category{vahan.CategoryRegistration, vahan.CategoryTransaction, vahan.CategoryRevenue} {
		markAllMonths(t, s, "KA", "KA01", c, "2026")
	}

	yearQuery := Key{State: "KA", RTO: "KA01", Year: "2026"}
	if s.IsComplete(yearQuery) {
		t.Error("year query should be incomplete while one category remains")
	}

	markAllMonths(t, s, "KA", "KA01", vahan.CategoryPermit, "2026")
	if !s.IsComplete(yearQuery) {
		t.Error("year query should be complete once all categories are")
	}
}

func TestFlushAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".completed.json")
	s := NewStore(path, []string{"2023"}, nil)

	leaf := LeafKey("MH", "MH12", vahan.CategoryRevenue, "2023", "AUG")
	if err := s.MarkComplete(leaf); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	reloaded := NewStore(path, []string{"2023"}, nil)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.IsComplete(leaf) {
		t.Error("leaf should survive a flush and reload")
	}
}

func TestLoadToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".completed.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, []string{"2023"}, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("Load should tolerate corruption, got: %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Error("corrupt file should yield an empty ledger")
	}
}

func TestLoadDropsMalformedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".completed.json")
	body := `{"KA:KA01:regn:2023:MAR": true, "garbage": true, "KA:KA01:bogus:2023": true}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, []string{"2023"}, nil)
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 1 || entries[0] != "KA:KA01:regn:2023:MAR" {
		t.Errorf("expected only the well-formed entry, got %v", entries)
	}
}

func TestReconcileScanWins(t *testing.T) {
	s := testStore(t, []string{"2026"})

	stale := LeafKey("KA", "KA01", vahan.CategoryRegistration, "2026", "JAN")
	if err := s.MarkComplete(stale); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	found := LeafKey("KA", "KA01", vahan.CategoryRegistration, "2026", "FEB")
	scan := map[Key]bool{
		stale: false, // artifacts missing on disk
		found: true,  // full panel set present but never recorded
	}
	if err := s.Reconcile(scan); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if s.IsComplete(stale) {
		t.Error("entry without artifacts should have been removed")
	}
	if !s.IsComplete(found) {
		t.Error("scanned-complete leaf should have been marked")
	}
}

func TestReconcilePromotes(t *testing.T) {
	s := testStore(t, []string{"2026", "2025"})

	scan := make(map[Key]bool)
	for _, m := range vahan.Months {
		scan[LeafKey("DL", "DL01", vahan.CategoryTransaction, "2026", m)] = true
	}
	if err := s.Reconcile(scan); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 1 || entries[0] != "DL:DL01:trans:2026" {
		t.Fatalf("expected promotion to a single year entry, got %v", entries)
	}
}

func TestResetClearsEverything(t *testing.T) {
	s := testStore(t, []string{"2026"})
	if err := s.MarkComplete(LeafKey("KA", "KA01", vahan.CategoryPermit, "2026", "JUN")); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(s.Entries()) != 0 {
		t.Error("reset should clear all entries")
	}
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		t.Error("reset should remove the ledger file")
	}
}

func TestSummarize(t *testing.T) {
	s := testStore(t, []string{"2027", "2026"})

	s.entries["KA:KA01"] = true
	s.entries["KA:KA02:regn"] = true
	s.entries["KA:KA03:trans:2026"] = true
	s.entries["KA:KA03:trans:2027:JAN"] = true

	sum := s.Summarize()
	if sum.RTOs != 1 || sum.Categories != 1 || sum.Years != 1 || sum.Months != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}
