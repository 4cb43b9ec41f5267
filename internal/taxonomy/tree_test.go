package taxonomy_test

import (
	"errors"
	"reflect"
	"testing"

	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/taxonomy"
)

const declarationYAML = `
departments:
  - name: Tools
    imageUrl: images/categories/tools.jpg
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
rules:
  - pattern: impact driver
    department: tools
    subcategory: Impact Drivers
`

func loadDeclaration(t *testing.T) *domain.TaxonomyDeclaration {
	t.Helper()
	decl, err := taxonomy.ParseDeclaration([]byte(declarationYAML))
	if err != nil {
		t.Fatalf("ParseDeclaration() error = %v", err)
	}
	return decl
}

func product(id, brand, categoryID string) *domain.CanonicalProduct {
	p := &domain.CanonicalProduct{ProductID: id, CategoryID: categoryID}
	p.Brand = brand
	return p
}

func TestParseDeclaration(t *testing.T) {
	decl := loadDeclaration(t)

	var ids []string
	taxonomy.Walk(decl, func(ref taxonomy.NodeRef) { ids = append(ids, ref.ID) })

	want := []string{
		"tools", "tools/drills", "tools/drills/hammer-drills", "tools/drills/impact-drivers", "tools/sanders",
		"appliances", "appliances/refrigerators", "appliances/refrigerators/french-door",
		"other",
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("Walk() ids = %v, want %v", ids, want)
	}
	if len(decl.Rules) != 1 || decl.Rules[0].Subcategory != "Impact Drivers" {
		t.Errorf("rules = %+v", decl.Rules)
	}
}

func TestParseDeclarationRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "duplicate ids", yaml: "departments:\n  - name: Tools\n  - name: tools\n"},
		{name: "missing name", yaml: "departments:\n  - slug: tools\n"},
		{name: "bad slug", yaml: "departments:\n  - name: Tools\n    slug: Power Tools\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := taxonomy.ParseDeclaration([]byte(tt.yaml))
			if !errors.Is(err, taxonomy.ErrInvalidDeclaration) {
				t.Errorf("ParseDeclaration() error = %v, want ErrInvalidDeclaration", err)
			}
		})
	}
}

func TestBuildCountPolicies(t *testing.T) {
	products := []*domain.CanonicalProduct{
		product("1", "RYOBI", "tools/drills"),
		product("2", "DEWALT", "tools/drills"),
		product("3", "RYOBI", "tools/drills"),
		product("4", "Milwaukee", "tools/drills/hammer-drills"),
		product("5", "Bosch", "tools/drills/hammer-drills"),
	}

	tests := []struct {
		policy     taxonomy.CountPolicy
		wantDrills int
		wantTools  int
		wantHammer int
	}{
		{policy: taxonomy.CountRollup, wantDrills: 5, wantTools: 5, wantHammer: 2},
		{policy: taxonomy.CountDirect, wantDrills: 3, wantTools: 0, wantHammer: 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			tree, warnings := taxonomy.Build(loadDeclaration(t), products, taxonomy.Options{CountPolicy: tt.policy, FeaturedBrands: 5})
			if len(warnings) != 0 {
				t.Errorf("unexpected warnings: %+v", warnings)
			}

			for id, want := range map[string]int{"tools/drills": tt.wantDrills, "tools": tt.wantTools, "tools/drills/hammer-drills": tt.wantHammer} {
				node, ok := tree.Node(id)
				if !ok {
					t.Fatalf("node %s missing", id)
				}
				if node.ProductCount != want {
					t.Errorf("%s ProductCount = %d, want %d", id, node.ProductCount, want)
				}
				if len(node.Products) != node.ProductCount {
					t.Errorf("%s lists %d products but counts %d", id, len(node.Products), node.ProductCount)
				}
			}
		})
	}
}

func TestBuildRoutesUndeclaredCategory(t *testing.T) {
	p := product("9", "GE", "garden/hoses")
	p.Subcategory = "Hoses"

	tree, warnings := taxonomy.Build(loadDeclaration(t), []*domain.CanonicalProduct{p}, taxonomy.Options{})

	if len(warnings) != 1 || warnings[0].Reference != "garden/hoses" {
		t.Fatalf("warnings = %+v", warnings)
	}
	other, _ := tree.Node(domain.OtherDepartment)
	if other.ProductCount != 1 || p.CategoryID != domain.OtherDepartment || p.Subcategory != "" {
		t.Errorf("product not routed to other: count=%d category=%q subcategory=%q", other.ProductCount, p.CategoryID, p.Subcategory)
	}
}

func TestFeaturedBrands(t *testing.T) {
	products := []*domain.CanonicalProduct{
		product("1", "RYOBI", ""), product("2", "RYOBI", ""),
		product("3", "Makita", ""), product("4", "Bosch", ""),
		product("5", "DEWALT", ""), product("6", "DEWALT", ""),
		product("7", "", ""), product("8", "Ames", ""),
	}

	got := taxonomy.FeaturedBrands(products, 3)

	want := []domain.FeaturedBrand{
		{BrandID: "dewalt", BrandName: "DEWALT", LogoURL: "images/brands/dewalt.svg", Count: 2},
		{BrandID: "ryobi", BrandName: "RYOBI", LogoURL: "images/brands/ryobi.svg", Count: 2},
		{BrandID: "ames", BrandName: "Ames", LogoURL: "images/brands/ames.svg", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FeaturedBrands() = %+v, want %+v", got, want)
	}
}

func TestBreadcrumbs(t *testing.T) {
	tree, _ := taxonomy.Build(loadDeclaration(t), nil, taxonomy.Options{})
	node, _ := tree.Node("tools/drills/hammer-drills")

	want := []domain.Breadcrumb{
		{Label: "Tools", URL: "/categories/tools"},
		{Label: "Drills", URL: "/categories/tools/drills"},
		{Label: "Hammer Drills", URL: "/categories/tools/drills/hammer-drills"},
	}
	if got := node.Breadcrumbs(); !reflect.DeepEqual(got, want) {
		t.Errorf("Breadcrumbs() = %+v, want %+v", got, want)
	}
	if node.Department().ID != "tools" {
		t.Errorf("Department() = %s, want tools", node.Department().ID)
	}
}
