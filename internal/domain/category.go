package domain

import (
	"regexp"
	"strings"
)

// OtherDepartment receives every product no source path or keyword rule could place.
const OtherDepartment = "other"

// CategoryDeclaration is one node of the static department/category declaration.
type CategoryDeclaration struct {
	Name          string                `yaml:"name"`
	Slug          string                `yaml:"slug"`
	ImageURL      string                `yaml:"imageUrl"`
	Subcategories []CategoryDeclaration `yaml:"subcategories"`
}

// KeywordRule maps a title phrase to a department and, optionally, a named node inside it.
// Category narrows the search to one branch ("drills" or "drills/hammer-drills").
type KeywordRule struct {
	Pattern     string `yaml:"pattern"`
	Department  string `yaml:"department"`
	Category    string `yaml:"category"`
	Subcategory string `yaml:"subcategory"`
}

type TaxonomyDeclaration struct {
	Departments []CategoryDeclaration `yaml:"departments"`
	Rules       []KeywordRule         `yaml:"rules"`
}

type CategorizationMethod string

const (
	CategorizedBySource   CategorizationMethod = "source"
	CategorizedByRule     CategorizationMethod = "rule"
	CategorizedByFallback CategorizationMethod = "fallback"
)

type Categorization struct {
	CategoryID   string
	CategoryPath []string
	Subcategory  string
	Method       CategorizationMethod
	Warnings     []TaxonomyWarning
}

var (
	slugStripRegex    = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugCollapseRegex = regexp.MustCompile(`[\s-]+`)
)

// Slugify lowercases s, drops punctuation and joins words with single hyphens.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugStripRegex.ReplaceAllString(s, "")
	s = slugCollapseRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
