package search

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"orangecatalog/pipeline/internal/domain"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

const (
	batchSize = 100

	// SchemaVersion changes whenever Document gains or loses fields.
	SchemaVersion   = 1
	VersionFileName = ".index_version"
)

// Document is the searchable projection of one canonical product.
type Document struct {
	ProductID   string   `json:"productId"`
	Title       string   `json:"title"`
	Brand       string   `json:"brand"`
	CategoryID  string   `json:"categoryId"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Keywords    []string `json:"keywords"`
}

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	stopWords  = map[string]bool{
		"the": true, "and": true, "or": true, "for": true, "with": true, "in": true,
		"on": true, "at": true, "to": true, "a": true, "an": true,
	}
)

// Keywords returns the sorted distinct words of the inputs longer than two characters, without stop words.
func Keywords(texts ...string) []string {
	seen := make(map[string]bool)
	for _, text := range texts {
		normalized := whitespace.ReplaceAllString(nonWord.ReplaceAllString(strings.ToLower(text), " "), " ")
		for _, word := range strings.Fields(normalized) {
			if len(word) > 2 && !stopWords[word] {
				seen[word] = true
			}
		}
	}

	keywords := make([]string, 0, len(seen))
	for word := range seen {
		keywords = append(keywords, word)
	}
	sort.Strings(keywords)
	return keywords
}

// NewDocument projects a categorized product. categoryName is the display name of its category node.
func NewDocument(p *domain.CanonicalProduct, categoryName string) Document {
	return Document{
		ProductID:   p.ProductID,
		Title:       p.Title,
		Brand:       p.Brand,
		CategoryID:  p.CategoryID,
		Category:    categoryName,
		Subcategory: p.Subcategory,
		Keywords:    Keywords(p.Title, p.Brand, categoryName),
	}
}

// IndexDocuments adds docs to index in batches.
func IndexDocuments(index bleve.Index, docs []Document) error {
	batch := index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ProductID, doc); err != nil {
			return fmt.Errorf("failed to add product %s to batch: %w", doc.ProductID, err)
		}
		if batch.Size() >= batchSize {
			if err := index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			return fmt.Errorf("failed to index final batch: %w", err)
		}
	}
	return nil
}

// Search returns the ids of products matching query, best match first.
func Search(index bleve.Index, query string, size int) ([]string, error) {
	request := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	request.Size = size

	result, err := index.Search(request)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Indexer rebuilds the on-disk index for a run.
type Indexer struct {
	dir string
}

func NewIndexer(dir string) *Indexer {
	return &Indexer{dir: dir}
}

// Build writes a fresh index into a temporary directory and swaps it into place,
// so readers never see a half-built index.
func (i *Indexer) Build(docs []Document) error {
	start := time.Now()
	tempDir := i.dir + ".tmp"

	// Leftover from an interrupted run
	os.RemoveAll(tempDir)

	if err := os.MkdirAll(filepath.Dir(tempDir), 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	index, err := bleve.New(tempDir, bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := IndexDocuments(index, docs); err != nil {
		index.Close()
		os.RemoveAll(tempDir)
		return err
	}
	if err := index.Close(); err != nil {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to close index: %w", err)
	}

	if err := os.RemoveAll(i.dir); err != nil {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to remove old index: %w", err)
	}
	if err := os.Rename(tempDir, i.dir); err != nil {
		os.RemoveAll(tempDir)
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	versionFile := filepath.Join(filepath.Dir(i.dir), VersionFileName)
	if err := os.WriteFile(versionFile, []byte(fmt.Sprintf("%d", SchemaVersion)), 0644); err != nil {
		log.Warnf("⚠️ Failed to write index version file: %v", err)
	}

	log.Infof("🔎 Indexed %d products into %s in %v", len(docs), i.dir, time.Since(start).Round(time.Millisecond))
	return nil
}

// Search queries the index last built by Build.
func (i *Indexer) Search(query string, size int) ([]string, error) {
	index, err := bleve.Open(i.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", i.dir, err)
	}
	defer index.Close()

	return Search(index, query, size)
}
