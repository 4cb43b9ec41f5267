package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"orangecatalog/pipeline/internal/categorizer"
	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/domain/task"
	"orangecatalog/pipeline/internal/emitter"
	"orangecatalog/pipeline/internal/extractor"
	"orangecatalog/pipeline/internal/merger"
	"orangecatalog/pipeline/internal/search"
	"orangecatalog/pipeline/internal/service"
	"orangecatalog/pipeline/internal/state"
	"orangecatalog/pipeline/internal/taxonomy"
)

const taxonomyYAML = `
departments:
  - name: Tools
    subcategories:
      - name: Drills
        subcategories:
          - name: Hammer Drills
          - name: Impact Drivers
  - name: Appliances
    subcategories:
      - name: Refrigerators
rules:
  - pattern: impact driver
    department: tools
    subcategory: Impact Drivers
`

func product(id, title, brand string) string {
	return fmt.Sprintf(`{
		"productId": %q, "title": %q, "brand": %q,
		"price": {"current": 129.00, "currency": "USD"},
		"rating": {"average": 4.5, "count": 120},
		"images": {"primary": "https://images.example.com/%s.jpg"},
		"availability": {"inStock": true}
	}`, id, title, brand, id)
}

func writeInput(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"Tools/Drills/a.json": `{"products": [` +
			product("100", "RYOBI 18V Drill", "") + `,` +
			product("200", "DEWALT 20V Hammer Drill", "DEWALT") + `]}`,
		"Tools/Drills/b.json": `{"products": [
			{"productId": "100", "title": "RYOBI 18V Drill", "brand": "RYOBI"},
			{"productId": "300", "title": "Drill Without Photo", "brand": "Bosch",
			 "price": {"current": 99, "currency": "USD"}, "rating": {"average": 4, "count": 3},
			 "availability": {"inStock": false}}
		]}`,
		"misc/c.json": `{"products": [` + product("400", "RYOBI 18V Impact Driver", "RYOBI") + `]}`,
		"broken.json": `{not json`,
		"empty.json":  `{"products": []}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

type recordingPublisher struct {
	mu    sync.Mutex
	tasks []task.Task
}

func (p *recordingPublisher) AddTask(ctx context.Context, t task.Task) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, t)
	return fmt.Sprintf("%d-0", len(p.tasks)), nil
}

type recordingRepository struct {
	saved map[domain.DocumentKind]int
}

func (r *recordingRepository) EnsureSchema(ctx context.Context) error { return nil }

func (r *recordingRepository) SaveDocument(ctx context.Context, kind domain.DocumentKind, id string, doc any) error {
	r.saved[kind]++
	return nil
}

func (r *recordingRepository) SaveDocuments(ctx context.Context, kind domain.DocumentKind, docs map[string]any) error {
	r.saved[kind] += len(docs)
	return nil
}

type fixture struct {
	input, output, reports, index string
	publisher                     *recordingPublisher
	repository                    *recordingRepository
}

func newFixture(t *testing.T) *fixture {
	return &fixture{
		input:      writeInput(t),
		output:     t.TempDir(),
		reports:    t.TempDir(),
		index:      filepath.Join(t.TempDir(), "products.bleve"),
		publisher:  &recordingPublisher{},
		repository: &recordingRepository{saved: make(map[domain.DocumentKind]int)},
	}
}

func (f *fixture) service(t *testing.T, runID string) *service.Service {
	t.Helper()

	decl, err := taxonomy.ParseDeclaration([]byte(taxonomyYAML))
	if err != nil {
		t.Fatalf("ParseDeclaration() error = %v", err)
	}
	c, err := categorizer.New(decl)
	if err != nil {
		t.Fatalf("categorizer.New() error = %v", err)
	}
	validator, err := emitter.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}

	return service.NewService(service.Dependencies{
		Extractor:    extractor.New(extractor.NewParser("https://www.homedepot.com"), 4),
		Merger:       merger.New(merger.Options{}),
		Categorizer:  c,
		Declaration:  decl,
		Validator:    validator,
		Writer:       emitter.NewWriter(f.output),
		StateManager: state.NewFileStateManager(f.output, f.reports),
		Repository:   f.repository,
		Publisher:    f.publisher,
		Indexer:      search.NewIndexer(f.index),
	}, service.Options{
		InputDir:       f.input,
		ReportDir:      f.reports,
		Version:        "1.0",
		CountPolicy:    taxonomy.CountRollup,
		FeaturedBrands: 5,
		Now:            func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) },
		NewRunID:       func() string { return runID },
	})
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", path, err)
	}
}

func TestRunReport(t *testing.T) {
	f := newFixture(t)

	report, err := f.service(t, "run-1").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	checks := []struct {
		name      string
		got, want int
	}{
		{"sources scanned", report.SourcesScanned, 5},
		{"parse failures", len(report.ParseFailures), 1},
		{"empty pages", len(report.EmptyPages), 1},
		{"records extracted", report.RecordsExtracted, 5},
		{"duplicates merged", report.DuplicatesMerged, 1},
		{"canonical products", report.CanonicalProducts, 4},
		{"categorized", report.Categorized, 4},
		{"routed to other", report.RoutedToOther, 0},
		{"taxonomy warnings", len(report.TaxonomyWarnings), 1},
		{"products emitted", report.ProductsEmitted, 3},
		{"categories emitted", report.CategoriesEmitted, 7},
		{"rejections", len(report.Rejections), 1},
		{"search documents", report.SearchDocuments, 3},
		{"mirrored products", f.repository.saved[domain.ProductDocumentKind], 3},
		{"mirrored categories", f.repository.saved[domain.CategoryDocumentKind], 7},
		{"mirrored index", f.repository.saved[domain.IndexDocumentKind], 1},
		{"published tasks", len(f.publisher.tasks), 2},
	}
	for _, check := range checks {
		if check.got != check.want {
			t.Errorf("%s = %d, want %d", check.name, check.got, check.want)
		}
	}

	if report.ParseFailures[0].Source != "broken.json" {
		t.Errorf("ParseFailures = %+v", report.ParseFailures)
	}
	if report.EmptyPages[0] != "empty.json" {
		t.Errorf("EmptyPages = %v", report.EmptyPages)
	}

	rejection := report.Rejections[0]
	if rejection.DocumentID != "300" || len(rejection.MissingFields) != 1 || rejection.MissingFields[0] != "images.primary" {
		t.Errorf("rejection = %+v, want 300 missing images.primary", rejection)
	}

	if _, ok := f.publisher.tasks[len(f.publisher.tasks)-1].(*task.RunCompletedTask); !ok {
		t.Errorf("last published task = %T, want *task.RunCompletedTask", f.publisher.tasks[len(f.publisher.tasks)-1])
	}

	var saved domain.RunReport
	readJSON(t, service.ReportPath(f.reports, "run-1"), &saved)
	if saved.RunID != "run-1" || saved.ProductsEmitted != 3 {
		t.Errorf("saved report = %+v", saved)
	}

	if _, err := os.Stat(filepath.Join(f.output, state.LockFileName)); !os.IsNotExist(err) {
		t.Errorf("lock file left in output root: %v", err)
	}
}

func TestRunOutput(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service(t, "run-1").Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	t.Run("merge prefers non-empty brand", func(t *testing.T) {
		var doc domain.ProductDocument
		readJSON(t, filepath.Join(f.output, emitter.ProductDocumentPath("100")), &doc)
		if doc.Brand != "RYOBI" {
			t.Errorf("brand = %q, want RYOBI", doc.Brand)
		}
		if doc.Price.Current == nil || doc.Price.Current.String() != "129" {
			t.Errorf("price = %+v, want 129 kept from the first page", doc.Price)
		}
	})

	t.Run("rejected product is not written anywhere", func(t *testing.T) {
		if _, err := os.Stat(filepath.Join(f.output, emitter.ProductDocumentPath("300"))); !os.IsNotExist(err) {
			t.Errorf("product 300 written: %v", err)
		}
		var drills domain.CategoryDocument
		readJSON(t, filepath.Join(f.output, emitter.CategoryDocumentPath("tools/drills")), &drills)
		for _, summary := range drills.Products {
			if summary.ProductID == "300" {
				t.Error("product 300 listed in tools/drills")
			}
		}
	})

	t.Run("keyword rule places impact driver", func(t *testing.T) {
		var doc domain.ProductDocument
		readJSON(t, filepath.Join(f.output, emitter.ProductDocumentPath("400")), &doc)
		if doc.CategoryID != "tools/drills/impact-drivers" || doc.Subcategory != "Impact Drivers" {
			t.Errorf("product 400 = %s / %q", doc.CategoryID, doc.Subcategory)
		}
	})

	t.Run("product ids are unique", func(t *testing.T) {
		entries, err := os.ReadDir(filepath.Join(f.output, "products"))
		if err != nil {
			t.Fatal(err)
		}
		seen := make(map[string]bool)
		for _, entry := range entries {
			var doc domain.ProductDocument
			readJSON(t, filepath.Join(f.output, "products", entry.Name(), "details.json"), &doc)
			if seen[doc.ProductID] {
				t.Errorf("duplicate product %s", doc.ProductID)
			}
			seen[doc.ProductID] = true
		}
		if len(seen) != 3 {
			t.Errorf("products = %d, want 3", len(seen))
		}
	})

	t.Run("category counts match product lists", func(t *testing.T) {
		categories := 0
		err := filepath.WalkDir(filepath.Join(f.output, "categories"), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || d.Name() == "index.json" {
				return err
			}
			var doc domain.CategoryDocument
			readJSON(t, path, &doc)
			if doc.PageInfo.TotalResults != len(doc.Products) {
				t.Errorf("%s totalResults = %d, products = %d", doc.CategoryID, doc.PageInfo.TotalResults, len(doc.Products))
			}
			categories++
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if categories != 7 {
			t.Errorf("category documents = %d, want 7", categories)
		}

		var tools domain.CategoryDocument
		readJSON(t, filepath.Join(f.output, emitter.CategoryDocumentPath("tools")), &tools)
		if tools.PageInfo.TotalResults != 3 {
			t.Errorf("tools totalResults = %d, want 3", tools.PageInfo.TotalResults)
		}
		if len(tools.FeaturedBrands) == 0 || tools.FeaturedBrands[0].BrandName != "RYOBI" || tools.FeaturedBrands[0].Count != 2 {
			t.Errorf("tools featuredBrands = %+v", tools.FeaturedBrands)
		}
	})

	t.Run("subcategories match the index", func(t *testing.T) {
		var index domain.CategoryIndex
		readJSON(t, filepath.Join(f.output, "categories", "index.json"), &index)

		names := make(map[string]map[string]bool)
		var collect func(department string, entries []domain.IndexEntry)
		collect = func(department string, entries []domain.IndexEntry) {
			for _, entry := range entries {
				names[department][entry.Name] = true
				collect(department, entry.Subcategories)
			}
		}
		for _, department := range index.Categories {
			names[department.ID] = make(map[string]bool)
			collect(department.ID, department.Subcategories)
		}

		for _, id := range []string{"100", "200", "400"} {
			var doc domain.ProductDocument
			readJSON(t, filepath.Join(f.output, emitter.ProductDocumentPath(id)), &doc)
			if doc.Subcategory == "" {
				continue
			}
			department := strings.SplitN(doc.CategoryID, "/", 2)[0]
			if !names[department][doc.Subcategory] {
				t.Errorf("product %s subcategory %q not under %s in index.json", id, doc.Subcategory, department)
			}
		}
	})

	t.Run("search finds emitted products", func(t *testing.T) {
		ids, err := search.NewIndexer(f.index).Search("impact driver", 5)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(ids) == 0 || ids[0] != "400" {
			t.Errorf("Search() = %v, want 400 first", ids)
		}
	})
}

func snapshot(t *testing.T, root string) map[string][]byte {
	t.Helper()
	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		files[rel] = data
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return files
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service(t, "run-1").Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := snapshot(t, f.output)

	if _, err := f.service(t, "run-2").Run(context.Background()); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second := snapshot(t, f.output)

	if len(first) != len(second) {
		t.Fatalf("file count changed from %d to %d", len(first), len(second))
	}
	for name, data := range first {
		if !bytes.Equal(data, second[name]) {
			t.Errorf("%s differs between runs", name)
		}
	}
}

func TestRunFailsWhileLocked(t *testing.T) {
	f := newFixture(t)

	release, err := state.NewFileStateManager(f.output, f.reports).AcquireLock(context.Background(), "other-run")
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	defer release()

	if _, err := f.service(t, "run-1").Run(context.Background()); !errors.Is(err, state.ErrLocked) {
		t.Errorf("Run() error = %v, want ErrLocked", err)
	}
}

func TestRunRemovesStaleDocuments(t *testing.T) {
	f := newFixture(t)

	if _, err := f.service(t, "run-1").Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(f.output, emitter.ProductDocumentPath("400"))); err != nil {
		t.Fatalf("product 400 not written by the first run: %v", err)
	}

	// The next crawl lost the product image, and a category left over from an older taxonomy is still on disk
	withoutImage := `{"products": [{"productId": "400", "title": "RYOBI 18V Impact Driver", "brand": "RYOBI",
		"price": {"current": 129.00, "currency": "USD"}, "rating": {"average": 4.5, "count": 120},
		"availability": {"inStock": true}}]}`
	if err := os.WriteFile(filepath.Join(f.input, "misc", "c.json"), []byte(withoutImage), 0644); err != nil {
		t.Fatal(err)
	}
	if err := emitter.WriteFileAtomic(filepath.Join(f.output, emitter.CategoryDocumentPath("garden/hoses")), []byte("{}\n")); err != nil {
		t.Fatal(err)
	}

	report, err := f.service(t, "run-2").Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if report.ProductsEmitted != 2 || report.StaleRemoved != 2 {
		t.Errorf("products emitted = %d, stale removed = %d, want 2 and 2", report.ProductsEmitted, report.StaleRemoved)
	}
	for _, gone := range []string{
		emitter.ProductDocumentPath("400"),
		filepath.Join("products", "400"),
		emitter.CategoryDocumentPath("garden/hoses"),
		filepath.Join("categories", "garden"),
	} {
		if _, err := os.Stat(filepath.Join(f.output, gone)); !os.IsNotExist(err) {
			t.Errorf("%s still present after the second run: %v", gone, err)
		}
	}

	var drivers domain.CategoryDocument
	readJSON(t, filepath.Join(f.output, emitter.CategoryDocumentPath("tools/drills/impact-drivers")), &drivers)
	if len(drivers.Products) != 0 {
		t.Errorf("impact drivers still lists %+v", drivers.Products)
	}
}
