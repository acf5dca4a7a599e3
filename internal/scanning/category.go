package scanning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is a spending category
type Category string

const (
	Food     Category = "Food"
	Travel   Category = "Travel"
	Shopping Category = "Shopping"
	Bills    Category = "Bills"
	Misc     Category = "Misc"
)

// Categories lists every category in tie-break order
func Categories() []Category {
	return []Category{Food, Travel, Shopping, Bills, Misc}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// KeywordWeight adds Weight to a category whenever Keyword appears in the text
type KeywordWeight struct {
	Keyword string `yaml:"keyword"`
	Weight  int    `yaml:"weight"`
}

// CategoryRule holds the starting score and keyword weights of one category
type CategoryRule struct {
	Category Category        `yaml:"name"`
	Baseline int             `yaml:"baseline"`
	Keywords []KeywordWeight `yaml:"keywords"`
}

// KeywordTable is the full scoring configuration of a Classifier
type KeywordTable struct {
	Categories []CategoryRule `yaml:"categories"`
}

// DefaultKeywordTable returns the built-in keyword weights. Misc is the
// catch-all and starts at 1 so a winner always exists.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{Categories: []CategoryRule{
		{Category: Food, Keywords: []KeywordWeight{
			{"restaurant", 10}, {"bhavan", 10}, {"cafe", 8}, {"food", 5}, {"hotel", 5},
			{"swiggy", 5}, {"zomato", 5}, {"pongal", 3}, {"vadai", 3}, {"roast", 3}, {"tea", 2},
		}},
		{Category: Travel, Keywords: []KeywordWeight{
			{"uber", 10}, {"ola", 10}, {"taxi", 8}, {"flight", 8}, {"fuel", 5}, {"gas", 5}, {"metro", 3},
		}},
		{Category: Shopping, Keywords: []KeywordWeight{
			{"walmart", 10}, {"target", 10}, {"amazon", 10}, {"dmart", 8}, {"market", 5},
		}},
		{Category: Bills, Keywords: []KeywordWeight{
			{"bill", 2}, {"invoice", 2}, {"electricity", 10}, {"phone", 8}, {"bill no", -5},
		}},
		{Category: Misc, Baseline: 1},
	}}
}

// LoadKeywordTable reads a YAML keyword table from path
func LoadKeywordTable(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, fmt.Errorf("reading keyword table: %w", err)
	}

	var table KeywordTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return KeywordTable{}, fmt.Errorf("parsing keyword table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return KeywordTable{}, err
	}
	return table, nil
}

// Validate checks that every rule names a known category at most once, that
// keywords are non-empty and that exactly one category has a positive baseline
func (t KeywordTable) Validate() error {
	seen := make(map[Category]bool, len(t.Categories))
	fallbacks := 0
	for _, rule := range t.Categories {
		if !rule.Category.Valid() {
			return fmt.Errorf("unknown category %q", rule.Category)
		}
		if seen[rule.Category] {
			return fmt.Errorf("category %q listed twice", rule.Category)
		}
		seen[rule.Category] = true

		if rule.Baseline < 0 {
			return fmt.Errorf("category %q has a negative baseline", rule.Category)
		}
		if rule.Baseline > 0 {
			fallbacks++
		}
		for _, kw := range rule.Keywords {
			if strings.TrimSpace(kw.Keyword) == "" {
				return fmt.Errorf("category %q has an empty keyword", rule.Category)
			}
		}
	}
	if fallbacks != 1 {
		return fmt.Errorf("exactly one category needs a positive baseline, found %d", fallbacks)
	}
	return nil
}

// Score is one entry of a category scoreboard
type Score struct {
	Category Category
	Points   int
}

// Classifier assigns a category to recognized text by keyword scoring
type Classifier struct {
	rules map[Category]CategoryRule
}

// NewClassifier creates a Classifier from a validated keyword table
func NewClassifier(table KeywordTable) (*Classifier, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid keyword table: %w", err)
	}

	rules := make(map[Category]CategoryRule, len(table.Categories))
	for _, rule := range table.Categories {
		kws := make([]KeywordWeight, len(rule.Keywords))
		for i, kw := range rule.Keywords {
			kws[i] = KeywordWeight{Keyword: strings.ToLower(kw.Keyword), Weight: kw.Weight}
		}
		rule.Keywords = kws
		rules[rule.Category] = rule
	}
	return &Classifier{rules: rules}, nil
}

// Scores returns the scoreboard for text in tie-break order. Each keyword
// counts once when present, however often it occurs.
func (c *Classifier) Scores(text string) []Score {
	text = strings.ToLower(text)

	board := make([]Score, 0, len(Categories()))
	for _, cat := range Categories() {
		rule := c.rules[cat]
		points := rule.Baseline
		for _, kw := range rule.Keywords {
			if strings.Contains(text, kw.Keyword) {
				points += kw.Weight
			}
		}
		board = append(board, Score{Category: cat, Points: points})
	}
	return board
}

// Classify returns the highest scoring category; ties go to the category
// listed first by Categories
func (c *Classifier) Classify(text string) Category {
	board := c.Scores(text)
	best := board[0]
	for _, s := range board[1:] {
		if s.Points > best.Points {
			best = s
		}
	}
	return best.Category
}
