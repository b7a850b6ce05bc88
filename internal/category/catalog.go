package category

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"budman/internal/models"
	"budman/pkg/errors"
	"budman/pkg/logger"
)

// Catalog is one institution's category catalog: an ordered list of
// categories, each carrying its match pattern. Order matters, so the JSON
// form is an array, never a map.
type Catalog struct {
	Name       string             `json:"name"`
	Categories []*models.Category `json:"categories"`
}

// NewCatalog creates an empty catalog for an institution
func NewCatalog(name string) *Catalog {
	return &Catalog{Name: name}
}

// Add appends a category to the catalog, deriving ID and levels from the
// full name when they are not already set.
func (c *Catalog) Add(cat *models.Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	if cat.ID == "" {
		cat.ID = models.CategoryID(cat.FullName)
	}
	if cat.Level1 == "" {
		cat.Level1, cat.Level2, cat.Level3 = models.SplitCategoryLevels(cat.FullName)
	}
	c.Categories = append(c.Categories, cat)
	return nil
}

// RuleSet builds and compiles the ordered rule set for the catalog
func (c *Catalog) RuleSet() (*RuleSet, error) {
	rules := make([]Rule, 0, len(c.Categories))
	for _, cat := range c.Categories {
		rules = append(rules, Rule{
			Pattern:   cat.Pattern,
			Category:  cat.FullName,
			Payee:     cat.Payee,
			Essential: cat.Essential,
		})
	}
	rs := NewRuleSet(rules)
	if err := rs.Compile(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", c.Name, err)
	}
	return rs, nil
}

// PayeeCategories returns the payee → category map derived from catalog
// entries that name a payee. The check register pass uses it to resolve
// rewritten checks.
func (c *Catalog) PayeeCategories() map[string]string {
	m := make(map[string]string)
	for _, cat := range c.Categories {
		if cat.Payee != "" {
			m[cat.Payee] = cat.FullName
		}
	}
	return m
}

// Find returns the catalog entry with the given full name, or nil
func (c *Catalog) Find(fullName string) *models.Category {
	for _, cat := range c.Categories {
		if cat.FullName == fullName {
			return cat
		}
	}
	return nil
}

// LoadCatalog reads a catalog from a JSON file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}

	var catalog Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	for _, cat := range catalog.Categories {
		if err := cat.Validate(); err != nil {
			return nil, errors.ValidationError(errors.CodeInvalidCategory, "categories", cat.FullName, err).
				WithContext("catalog", path)
		}
	}

	return &catalog, nil
}

// Save writes the catalog as pretty JSON
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encoding catalog", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}

// CatalogFilename returns the conventional catalog filename for an
// institution key, e.g. "boa_categories.json".
func CatalogFilename(fiKey string) string {
	return fiKey + "_categories.json"
}

// Manager loads per-institution catalogs from a directory and caches their
// compiled rule sets
type Manager struct {
	dir      string
	catalogs map[string]*Catalog
	compiled map[string]*RuleSet
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewManager creates a catalog manager rooted at dir
func NewManager(dir string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Manager{
		dir:      dir,
		catalogs: make(map[string]*Catalog),
		compiled: make(map[string]*RuleSet),
		logger:   log.WithComponent("catalog"),
	}
}

// Catalog returns the catalog for an institution key, loading it on first use
func (m *Manager) Catalog(fiKey string) (*Catalog, error) {
	m.mu.RLock()
	if catalog, ok := m.catalogs[fiKey]; ok {
		m.mu.RUnlock()
		return catalog, nil
	}
	m.mu.RUnlock()

	path := filepath.Join(m.dir, CatalogFilename(fiKey))
	catalog, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logger.Fields{
		"fi":         fiKey,
		"categories": len(catalog.Categories),
	}).Debug("Loaded category catalog")

	m.mu.Lock()
	m.catalogs[fiKey] = catalog
	m.mu.Unlock()

	return catalog, nil
}

// RuleSet returns the compiled rule set for an institution key, compiling
// and caching it on first use
func (m *Manager) RuleSet(fiKey string) (*RuleSet, error) {
	m.mu.RLock()
	if rs, ok := m.compiled[fiKey]; ok {
		m.mu.RUnlock()
		return rs, nil
	}
	m.mu.RUnlock()

	catalog, err := m.Catalog(fiKey)
	if err != nil {
		return nil, err
	}

	rs, err := catalog.RuleSet()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.compiled[fiKey] = rs
	m.mu.Unlock()

	return rs, nil
}

// Invalidate drops the cached catalog and rule set for an institution so the
// next access reloads from disk
func (m *Manager) Invalidate(fiKey string) {
	m.mu.Lock()
	delete(m.catalogs, fiKey)
	delete(m.compiled, fiKey)
	m.mu.Unlock()
}

// SeedCatalog writes the starter catalog for an institution key if no
// catalog file exists yet, returning the catalog path
func (m *Manager) SeedCatalog(fiKey string) (string, error) {
	path := filepath.Join(m.dir, CatalogFilename(fiKey))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	catalog := DefaultCatalog(fiKey)
	if err := catalog.Save(path); err != nil {
		return "", err
	}

	m.logger.WithFields(logger.Fields{
		"fi":   fiKey,
		"path": path,
	}).Info("Seeded starter category catalog")

	return path, nil
}

// DefaultCatalog builds the starter rule set seeded into new catalogs. The
// check catch-all stays last so every specific rule gets a chance first.
func DefaultCatalog(fiKey string) *Catalog {
	catalog := NewCatalog(fiKey)

	starters := []struct {
		fullName  string
		pattern   string
		payee     string
		essential bool
	}{
		{"Food.Groceries", `(?i)\b(COSTCO WHSE|TRADER JOE|WHOLEFDS|KROGER|SAFEWAY|PUBLIX|ALDI)\b`, "", true},
		{"Food.Restaurants", `(?i)\b(MCDONALD|CHIPOTLE|STARBUCKS|DOORDASH|GRUBHUB|UBER\s*EATS)\b`, "", false},
		{"Auto.Fuel", `(?i)\b(SHELL OIL|CHEVRON|EXXON|MOBIL|BP#|SUNOCO)\b`, "", true},
		{"Housing.Utilities.Electric", `(?i)\b(DUKE ENERGY|PG&E|GEORGIA POWER|CON\s*EDISON)\b`, "", true},
		{"Housing.Utilities.Internet", `(?i)\b(COMCAST|XFINITY|SPECTRUM|AT&T U-VERSE|VERIZON FIOS)\b`, "", true},
		{"Entertainment.Streaming", `(?i)\b(NETFLIX|SPOTIFY|HULU|DISNEY\s*PLUS|MAX\.COM|PRIME VIDEO)\b`, "", false},
		{"Income.Salary", `(?i)\b(DIRECT DEP|PAYROLL|DIR DEP)\b`, "", false},
		{"Banking.Transfers", `(?i)\b(ONLINE TRANSFER|ZELLE|WIRE TYPE|FID BKG SVC)\b`, "", false},
		{"Banking.Fees", `(?i)\b(MONTHLY FEE|SERVICE FEE|OVERDRAFT|ATM FEE)\b`, "", false},
		{ChecksToCategorize, `(?i)Check\s*x*\d{1,6}`, "", false},
	}

	for _, s := range starters {
		cat := models.NewCategory(s.fullName, s.pattern)
		cat.Payee = s.payee
		cat.Essential = s.essential
		catalog.Categories = append(catalog.Categories, cat)
	}

	return catalog
}
