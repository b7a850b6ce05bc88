package category

import (
	"sort"
	"strings"

	"budman/internal/models"
)

// Tree is the level hierarchy derived from a catalog: level1 names mapping to
// level2 names mapping to level3 names. Built for display and CSV export.
type Tree struct {
	levels map[string]map[string]map[string]bool
}

// ExtractTree derives the category tree from a catalog
func ExtractTree(catalog *Catalog) *Tree {
	t := &Tree{levels: make(map[string]map[string]map[string]bool)}
	for _, cat := range catalog.Categories {
		t.add(cat)
	}
	return t
}

func (t *Tree) add(cat *models.Category) {
	l1, l2, l3 := cat.Level1, cat.Level2, cat.Level3
	if l1 == "" {
		l1, l2, l3 = models.SplitCategoryLevels(cat.FullName)
	}
	if l1 == "" {
		return
	}
	if t.levels[l1] == nil {
		t.levels[l1] = make(map[string]map[string]bool)
	}
	if l2 == "" {
		return
	}
	if t.levels[l1][l2] == nil {
		t.levels[l1][l2] = make(map[string]bool)
	}
	if l3 != "" {
		t.levels[l1][l2][l3] = true
	}
}

// Level1 returns the sorted level-1 names
func (t *Tree) Level1() []string {
	return sortedKeys(t.levels)
}

// Render writes the tree as indented text, two spaces per level, down to
// maxLevel (1-3). A maxLevel outside that range renders all three levels.
func (t *Tree) Render(maxLevel int) string {
	if maxLevel < 1 || maxLevel > 3 {
		maxLevel = 3
	}

	var b strings.Builder
	for _, l1 := range sortedKeys(t.levels) {
		b.WriteString(l1)
		b.WriteString("\n")
		if maxLevel < 2 {
			continue
		}
		for _, l2 := range sortedKeys(t.levels[l1]) {
			b.WriteString("  ")
			b.WriteString(l2)
			b.WriteString("\n")
			if maxLevel < 3 {
				continue
			}
			for _, l3 := range sortedKeys(t.levels[l1][l2]) {
				b.WriteString("    ")
				b.WriteString(l3)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// CSV returns the tree as rows, one per full category name, under a
// header row of Budget Category, Level1, Level2, Level3.
func (t *Tree) CSV() [][]string {
	rows := [][]string{{"Budget Category", "Level1", "Level2", "Level3"}}

	for _, l1 := range sortedKeys(t.levels) {
		l2s := t.levels[l1]
		if len(l2s) == 0 {
			rows = append(rows, []string{l1, l1, "", ""})
			continue
		}
		for _, l2 := range sortedKeys(l2s) {
			l3s := l2s[l2]
			if len(l3s) == 0 {
				rows = append(rows, []string{l1 + "." + l2, l1, l2, ""})
				continue
			}
			for _, l3 := range sortedKeys(l3s) {
				rows = append(rows, []string{l1 + "." + l2 + "." + l3, l1, l2, l3})
			}
		}
	}

	return rows
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
