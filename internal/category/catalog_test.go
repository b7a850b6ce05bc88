package category

import (
	"os"
	"path/filepath"
	"testing"

	"budman/internal/models"
)

func testCatalog() *Catalog {
	c := NewCatalog("boa")
	entries := []struct {
		fullName string
		pattern  string
		payee    string
	}{
		{"Food.Groceries", `(?i)COSTCO|KROGER`, ""},
		{"Housing.Utilities.Electric", `(?i)DUKE ENERGY`, "Duke Energy"},
		{"Housing.Mortgage", `(?i)ROUNDPOINT`, "RoundPoint"},
		{ChecksToCategorize, `(?i)Check\s*x*\d{1,6}`, ""},
	}
	for _, e := range entries {
		cat := models.NewCategory(e.fullName, e.pattern)
		cat.Payee = e.payee
		c.Categories = append(c.Categories, cat)
	}
	return c
}

func TestCatalogSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CatalogFilename("boa"))

	original := testCatalog()
	if err := original.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Name != "boa" {
		t.Errorf("expected name boa, got %s", loaded.Name)
	}
	if len(loaded.Categories) != len(original.Categories) {
		t.Fatalf("expected %d categories, got %d", len(original.Categories), len(loaded.Categories))
	}
	// Order must survive the roundtrip: rule precedence depends on it
	for i, cat := range loaded.Categories {
		if cat.FullName != original.Categories[i].FullName {
			t.Errorf("position %d: expected %s, got %s", i, original.Categories[i].FullName, cat.FullName)
		}
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing catalog")
	}
}

func TestLoadCatalogCorruptJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("expected error for corrupt catalog")
	}
}

func TestCatalogRuleSet(t *testing.T) {
	rs, err := testCatalog().RuleSet()
	if err != nil {
		t.Fatalf("rule set failed: %v", err)
	}
	if rs.Len() != 4 {
		t.Errorf("expected 4 rules, got %d", rs.Len())
	}

	m := rs.Match("DUKE ENERGY BILL PAY")
	if m.Category != "Housing.Utilities.Electric" {
		t.Errorf("unexpected category %s", m.Category)
	}
	if m.Payee != "Duke Energy" {
		t.Errorf("expected payee from catalog entry, got %q", m.Payee)
	}
}

func TestCatalogRuleSetBrokenPattern(t *testing.T) {
	c := NewCatalog("boa")
	c.Categories = append(c.Categories, &models.Category{FullName: "X", Pattern: "(bad"})
	if _, err := c.RuleSet(); err == nil {
		t.Fatal("expected error for broken catalog pattern")
	}
}

func TestCatalogPayeeCategories(t *testing.T) {
	m := testCatalog().PayeeCategories()
	if len(m) != 2 {
		t.Fatalf("expected 2 payee mappings, got %d", len(m))
	}
	if m["Duke Energy"] != "Housing.Utilities.Electric" {
		t.Errorf("unexpected mapping %q", m["Duke Energy"])
	}
	if m["RoundPoint"] != "Housing.Mortgage" {
		t.Errorf("unexpected mapping %q", m["RoundPoint"])
	}
}

func TestCatalogAdd(t *testing.T) {
	c := NewCatalog("boa")

	cat := &models.Category{FullName: "Food.Groceries", Pattern: "COSTCO"}
	if err := c.Add(cat); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if cat.ID != models.CategoryID("Food.Groceries") {
		t.Errorf("expected ID derived on add, got %s", cat.ID)
	}
	if cat.Level1 != "Food" || cat.Level2 != "Groceries" {
		t.Errorf("expected levels derived on add, got %q %q", cat.Level1, cat.Level2)
	}

	if err := c.Add(&models.Category{FullName: "", Pattern: "X"}); err == nil {
		t.Error("expected error adding invalid category")
	}
}

func TestManagerLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CatalogFilename("boa"))
	if err := testCatalog().Save(path); err != nil {
		t.Fatal(err)
	}

	m := NewManager(dir, nil)

	rs1, err := m.RuleSet("boa")
	if err != nil {
		t.Fatalf("rule set failed: %v", err)
	}
	rs2, err := m.RuleSet("boa")
	if err != nil {
		t.Fatalf("rule set failed: %v", err)
	}
	if rs1 != rs2 {
		t.Error("expected cached rule set on second access")
	}

	if _, err := m.RuleSet("merrill"); err == nil {
		t.Error("expected error for institution with no catalog")
	}

	m.Invalidate("boa")
	rs3, err := m.RuleSet("boa")
	if err != nil {
		t.Fatalf("rule set failed after invalidate: %v", err)
	}
	if rs3 == rs1 {
		t.Error("expected fresh rule set after invalidate")
	}
}

func TestManagerSeedCatalog(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, nil)

	path, err := m.SeedCatalog("boa")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected catalog file at %s: %v", path, err)
	}

	catalog, err := m.Catalog("boa")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(catalog.Categories) == 0 {
		t.Fatal("expected seeded categories")
	}
	// The check catch-all must come last so specific rules win
	last := catalog.Categories[len(catalog.Categories)-1]
	if last.FullName != ChecksToCategorize {
		t.Errorf("expected %s last, got %s", ChecksToCategorize, last.FullName)
	}

	// Seeding again must not overwrite an existing catalog
	catalog.Categories = catalog.Categories[:1]
	if err := catalog.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SeedCatalog("boa"); err != nil {
		t.Fatalf("re-seed failed: %v", err)
	}
	m.Invalidate("boa")
	reloaded, err := m.Catalog("boa")
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Categories) != 1 {
		t.Errorf("expected existing catalog preserved, got %d categories", len(reloaded.Categories))
	}
}

func TestDefaultCatalogCompiles(t *testing.T) {
	rs, err := DefaultCatalog("boa").RuleSet()
	if err != nil {
		t.Fatalf("starter catalog must compile: %v", err)
	}

	m := rs.Match("COSTCO WHSE #0423")
	if m.Category != "Food.Groceries" {
		t.Errorf("expected starter grocery rule to match, got %s", m.Category)
	}

	m = rs.Match("Check x0042")
	if m.Category != ChecksToCategorize {
		t.Errorf("expected check catch-all, got %s", m.Category)
	}
}
