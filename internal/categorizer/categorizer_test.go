package categorizer_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"orangecatalog/pipeline/internal/categorizer"
	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/extractor"
	"orangecatalog/pipeline/internal/merger"
	"orangecatalog/pipeline/internal/taxonomy"
)

const rulesYAML = `
departments:
  - name: Tools
    subcategories:
      - name: Drills
        subcategories:
          - name: Hammer Drills
          - name: Impact Drivers
      - name: Sanders
  - name: Appliances
    subcategories:
      - name: Refrigerators
        subcategories:
          - name: French Door
          - name: Side By Side
rules:
  - pattern: drill
    department: tools
    category: drills
  - pattern: impact driver
    department: tools
    subcategory: Impact Drivers
  - pattern: hammer drill
    department: tools
    subcategory: Hammer Drills
  - pattern: french door
    department: appliances
    category: refrigerators
    subcategory: French Door
  - pattern: sander
    department: tools
    subcategory: Sanders
`

func newCategorizer(t *testing.T) *categorizer.Categorizer {
	t.Helper()
	decl, err := taxonomy.ParseDeclaration([]byte(rulesYAML))
	if err != nil {
		t.Fatalf("ParseDeclaration() error = %v", err)
	}
	c, err := categorizer.New(decl)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCategorize(t *testing.T) {
	c := newCategorizer(t)

	tests := []struct {
		name            string
		title           string
		paths           [][]string
		wantID          string
		wantSubcategory string
		wantMethod      domain.CategorizationMethod
		wantWarnings    int
	}{
		{
			name:            "keyword rule",
			title:           "RYOBI 18V Impact Driver",
			wantID:          "tools/drills/impact-drivers",
			wantSubcategory: "Impact Drivers",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "multi-word rule beats earlier single word",
			title:           "Bosch 1/2 in. Hammer Drill",
			wantID:          "tools/drills/hammer-drills",
			wantSubcategory: "Hammer Drills",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "single word fallback",
			title:           "Cordless Drill Driver Kit",
			wantID:          "tools/drills",
			wantSubcategory: "Drills",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "plural phrase",
			title:           "Set of 2 Orbital Sanders",
			wantID:          "tools/sanders",
			wantSubcategory: "Sanders",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "declared source path wins over title",
			title:           "RYOBI Impact Driver",
			paths:           [][]string{{"appliances", "refrigerators"}},
			wantID:          "appliances/refrigerators",
			wantSubcategory: "Refrigerators",
			wantMethod:      domain.CategorizedBySource,
		},
		{
			name:            "breadcrumb leaf name case-insensitive",
			title:           "Whirlpool 25 cu. ft. Refrigerator",
			paths:           [][]string{{"Home", "Appliances", "Refrigerators", "side by side"}},
			wantID:          "appliances/refrigerators/side-by-side",
			wantSubcategory: "Side By Side",
			wantMethod:      domain.CategorizedBySource,
		},
		{
			name:       "department path without a matching rule has no subcategory",
			title:      "Mystery item",
			paths:      [][]string{{"tools"}},
			wantID:     "tools",
			wantMethod: domain.CategorizedBySource,
		},
		{
			name:            "department path narrows keyword inference",
			title:           "RYOBI 18V Impact Driver",
			paths:           [][]string{{"tools"}},
			wantID:          "tools/drills/impact-drivers",
			wantSubcategory: "Impact Drivers",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "rules outside the source department are ignored",
			title:           "French Door Drill Guide",
			paths:           [][]string{{"Home", "Tools"}},
			wantID:          "tools/drills",
			wantSubcategory: "Drills",
			wantMethod:      domain.CategorizedByRule,
		},
		{
			name:            "folder slug names a leaf",
			title:           "DEWALT 20V MAX XR Brushless DCF887B",
			paths:           [][]string{{"impact-drivers"}},
			wantID:          "tools/drills/impact-drivers",
			wantSubcategory: "Impact Drivers",
			wantMethod:      domain.CategorizedBySource,
		},
		{
			name:            "breadcrumb leaf under a partial path",
			title:           "Samsung 28 cu. ft. Refrigerator",
			paths:           [][]string{{"Home", "Appliances", "French Door"}},
			wantID:          "appliances/refrigerators/french-door",
			wantSubcategory: "French Door",
			wantMethod:      domain.CategorizedBySource,
		},
		{
			name:       "no match goes to other",
			title:      "Patio Umbrella",
			wantID:     "other",
			wantMethod: domain.CategorizedByFallback,
		},
		{
			name:         "undeclared department is reported",
			title:        "Garden Hose 50 ft.",
			paths:        [][]string{{"garden", "hoses"}},
			wantID:       "other",
			wantMethod:   domain.CategorizedByFallback,
			wantWarnings: 1,
		},
		{
			name:            "undeclared department still allows keyword inference",
			title:           "Garden Hammer Drill Stand",
			paths:           [][]string{{"garden"}},
			wantID:          "tools/drills/hammer-drills",
			wantSubcategory: "Hammer Drills",
			wantMethod:      domain.CategorizedByRule,
			wantWarnings:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &domain.CanonicalProduct{ProductID: "1", SourceCategoryPaths: tt.paths}
			p.Title = tt.title

			got := c.Categorize(p)

			if got.CategoryID != tt.wantID {
				t.Errorf("CategoryID = %q, want %q", got.CategoryID, tt.wantID)
			}
			if got.Subcategory != tt.wantSubcategory {
				t.Errorf("Subcategory = %q, want %q", got.Subcategory, tt.wantSubcategory)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", got.Method, tt.wantMethod)
			}
			if len(got.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %+v, want %d", got.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestCategorizeDiscoveredFolders(t *testing.T) {
	c := newCategorizer(t)

	root := t.TempDir()
	pages := map[string]string{
		"Impact Drivers/page.json": `{"products": [{"productId": "1", "title": "DEWALT 20V MAX XR Brushless DCF887B"}]}`,
		"Tools/page.json":          `{"products": [{"productId": "2", "title": "RYOBI 18V Impact Driver"}]}`,
	}
	for rel, body := range pages {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	sources, err := extractor.Discover(root)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	extracted, failures, err := extractor.New(extractor.NewParser(""), 2).ExtractAll(context.Background(), sources)
	if err != nil || len(failures) > 0 {
		t.Fatalf("ExtractAll() failures = %v, error = %v", failures, err)
	}
	products, _ := merger.New(merger.Options{}).Merge(extracted)

	want := map[string]struct {
		id     string
		method domain.CategorizationMethod
	}{
		"1": {"tools/drills/impact-drivers", domain.CategorizedBySource},
		"2": {"tools/drills/impact-drivers", domain.CategorizedByRule},
	}
	if len(products) != len(want) {
		t.Fatalf("Merge() returned %d products, want %d", len(products), len(want))
	}
	for _, p := range products {
		got := c.Categorize(p)
		if got.CategoryID != want[p.ProductID].id || got.Method != want[p.ProductID].method {
			t.Errorf("product %s from %v = %s (%s), want %s (%s)", p.ProductID, p.SourceCategoryPaths,
				got.CategoryID, got.Method, want[p.ProductID].id, want[p.ProductID].method)
		}
		if len(got.Warnings) != 0 {
			t.Errorf("product %s warnings = %+v", p.ProductID, got.Warnings)
		}
	}
}

func TestCategorizeIsDeterministic(t *testing.T) {
	c := newCategorizer(t)
	p := &domain.CanonicalProduct{ProductID: "1"}
	p.Title = "Samsung French Door Refrigerator"

	first := c.Categorize(p)
	for i := 0; i < 10; i++ {
		if got := c.Categorize(p); !reflect.DeepEqual(got, first) {
			t.Fatalf("Categorize() run %d = %+v, want %+v", i, got, first)
		}
	}

	categorizer.Apply(p, first)
	if p.CategoryID != "appliances/refrigerators/french-door" || p.Subcategory != "French Door" {
		t.Errorf("Apply() left %q / %q", p.CategoryID, p.Subcategory)
	}
	if !reflect.DeepEqual(p.CategoryPath, []string{"appliances", "refrigerators", "french-door"}) {
		t.Errorf("CategoryPath = %v", p.CategoryPath)
	}
}

func TestNewRejectsUnknownTargets(t *testing.T) {
	tests := []struct {
		name string
		rule domain.KeywordRule
	}{
		{name: "unknown department", rule: domain.KeywordRule{Pattern: "hose", Department: "garden"}},
		{name: "unknown subcategory", rule: domain.KeywordRule{Pattern: "drill", Department: "tools", Subcategory: "Drill Bits"}},
		{name: "empty pattern", rule: domain.KeywordRule{Pattern: " ", Department: "tools"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decl := &domain.TaxonomyDeclaration{
				Departments: []domain.CategoryDeclaration{{Name: "Tools", Slug: "tools"}},
				Rules:       []domain.KeywordRule{tt.rule},
			}
			if _, err := categorizer.New(decl); !errors.Is(err, categorizer.ErrInvalidRule) {
				t.Errorf("New() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestShippedTaxonomyCompiles(t *testing.T) {
	decl, err := taxonomy.LoadDeclaration("../../taxonomy.yaml")
	if err != nil {
		t.Fatalf("LoadDeclaration() error = %v", err)
	}
	c, err := categorizer.New(decl)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		title  string
		wantID string
	}{
		{title: "Milwaukee M18 FUEL Hammer Drill", wantID: "tools/power-tools/hammer-drills"},
		{title: "Samsung 28 cu. ft. French Door Refrigerator", wantID: "appliances/refrigerators/french-door-refrigerators"},
		{title: "Hunter 52 in. Ceiling Fan", wantID: "lighting/ceiling-fans"},
		{title: "Weber Spirit Gas Grill", wantID: "outdoors/grills"},
		{title: "Scotts Grass Seed", wantID: "other"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			p := &domain.CanonicalProduct{ProductID: "1"}
			p.Title = tt.title
			if got := c.Categorize(p); got.CategoryID != tt.wantID {
				t.Errorf("Categorize() = %q, want %q", got.CategoryID, tt.wantID)
			}
		})
	}
}
