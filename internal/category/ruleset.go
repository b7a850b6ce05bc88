package category

import (
	"regexp"
	"sort"

	"budman/internal/models"
	"budman/pkg/errors"
)

// FallbackCategory is assigned to transactions no rule matches. Rows in this
// bucket stay in the working area until a rule is added or they are resolved
// by hand.
const FallbackCategory = "Other"

// Rule maps a description-matching regular expression to a budget category.
// Rules are ordered; the first matching rule wins.
type Rule struct {
	Pattern   string `json:"pattern"`
	Category  string `json:"category"`
	Payee     string `json:"payee,omitempty"`
	Essential bool   `json:"essential,omitempty"`
}

type compiledRule struct {
	re    *regexp.Regexp
	rule  Rule
	index int
}

// RuleSet is an ordered, compiled collection of categorization rules
type RuleSet struct {
	rules    []Rule
	compiled []compiledRule
}

// NewRuleSet creates a rule set from an ordered list of rules. Compile must
// be called before Match.
func NewRuleSet(rules []Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// Compile compiles every rule pattern eagerly so a broken pattern is reported
// up front with its rule index rather than surfacing mid-run.
func (rs *RuleSet) Compile() error {
	compiled := make([]compiledRule, 0, len(rs.rules))
	for i, rule := range rs.rules {
		if rule.Category == "" {
			return errors.ValidationError(errors.CodeInvalidCategory, "category", rule.Pattern, nil).
				WithContext("rule_index", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return errors.ValidationError(errors.CodeInvalidPattern, "pattern", rule.Pattern, err).
				WithContext("rule_index", i).
				WithContext("category", rule.Category)
		}
		compiled = append(compiled, compiledRule{re: re, rule: rule, index: i})
	}
	rs.compiled = compiled
	return nil
}

// Len returns the number of rules in the set
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the ordered rules backing the set
func (rs *RuleSet) Rules() []Rule {
	return rs.rules
}

// Match holds the result of matching one transaction description
type Match struct {
	Category  string
	Payee     string
	Essential bool
	Rule      int
	Matched   bool
}

// Match finds the first rule whose pattern matches the description. An
// unmatched description falls back to FallbackCategory with rule index -1.
func (rs *RuleSet) Match(description string) Match {
	for _, cr := range rs.compiled {
		if cr.re.MatchString(description) {
			return Match{
				Category:  cr.rule.Category,
				Payee:     cr.rule.Payee,
				Essential: cr.rule.Essential,
				Rule:      cr.index,
				Matched:   true,
			}
		}
	}
	return Match{Category: FallbackCategory, Rule: -1}
}

// Categorize matches the transaction description and fills the derived
// columns: category, levels, payee, essential, debit/credit, year-month and
// rule index. It returns the match for reporting.
func (rs *RuleSet) Categorize(tx *models.Transaction) Match {
	m := rs.Match(tx.OriginalDescription)

	tx.BudgetCategory = m.Category
	tx.Level1, tx.Level2, tx.Level3 = models.SplitCategoryLevels(m.Category)
	tx.Payee = m.Payee
	tx.Essential = m.Essential
	tx.DebitOrCredit = tx.Type()
	tx.YearMonth = tx.FormatYearMonth()
	tx.Rule = m.Rule

	return m
}

// Histogram counts categorization results per category for one run
type Histogram struct {
	counts map[string]int
	total  int
}

// NewHistogram creates an empty histogram
func NewHistogram() *Histogram {
	return &Histogram{counts: make(map[string]int)}
}

// Add records one categorized transaction
func (h *Histogram) Add(category string) {
	h.counts[category]++
	h.total++
}

// Count returns the number of transactions recorded for a category
func (h *Histogram) Count(category string) int {
	return h.counts[category]
}

// Total returns the number of transactions recorded
func (h *Histogram) Total() int {
	return h.total
}

// Unmatched returns the number of transactions in the fallback bucket
func (h *Histogram) Unmatched() int {
	return h.counts[FallbackCategory]
}

// CategoryCount is one histogram entry
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Sorted returns histogram entries ordered by count descending, ties broken
// by category name for stable output.
func (h *Histogram) Sorted() []CategoryCount {
	entries := make([]CategoryCount, 0, len(h.counts))
	for category, count := range h.counts {
		entries = append(entries, CategoryCount{Category: category, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Category < entries[j].Category
	})
	return entries
}
