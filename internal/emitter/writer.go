package emitter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"orangecatalog/pipeline/internal/domain"
)

var ErrCountMismatch = errors.New("category totalResults does not match its product list")

// Writer places documents under the output root. Each file is written to a temporary
// sibling and renamed, so a failed write never leaves a truncated document behind.
type Writer struct {
	root string
}

func NewWriter(root string) *Writer {
	return &Writer{root: root}
}

func (w *Writer) Root() string {
	return w.root
}

func ProductDocumentPath(productID string) string {
	return filepath.Join("products", productID, "details.json")
}

func CategoryDocumentPath(categoryID string) string {
	return filepath.Join("categories", filepath.FromSlash(categoryID)+".json")
}

func (w *Writer) WriteProduct(doc *domain.ProductDocument) (string, error) {
	rel := ProductDocumentPath(doc.ProductID)
	return rel, w.writeJSON(rel, doc)
}

// WriteCategory writes the document and re-reads it to confirm totalResults matches the products array.
func (w *Writer) WriteCategory(doc *domain.CategoryDocument) (string, error) {
	rel := CategoryDocumentPath(doc.CategoryID)
	if err := w.writeJSON(rel, doc); err != nil {
		return rel, err
	}
	return rel, w.verifyCategory(rel)
}

func (w *Writer) WriteIndex(index *domain.CategoryIndex) (string, error) {
	rel := filepath.Join("categories", "index.json")
	return rel, w.writeJSON(rel, index)
}

// Prune removes every file under products/ and categories/ whose root-relative path is not
// in keep, then drops directories left empty. It returns the number of files removed.
func (w *Writer) Prune(keep map[string]bool) (int, error) {
	removed := 0
	for _, dir := range []string{"products", "categories"} {
		base := filepath.Join(w.root, dir)
		var dirs []string

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				if path != base {
					dirs = append(dirs, path)
				}
				return nil
			}

			rel, err := filepath.Rel(w.root, path)
			if err != nil {
				return err
			}
			if keep[rel] {
				return nil
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("failed to prune %s: %w", dir, err)
		}

		// Children were visited after their parents
		for i := len(dirs) - 1; i >= 0; i-- {
			if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
				os.Remove(dirs[i])
			}
		}
	}
	return removed, nil
}

func (w *Writer) verifyCategory(rel string) error {
	data, err := os.ReadFile(filepath.Join(w.root, rel))
	if err != nil {
		return fmt.Errorf("failed to re-read %s: %w", rel, err)
	}

	var written struct {
		PageInfo struct {
			TotalResults int `json:"totalResults"`
		} `json:"pageInfo"`
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &written); err != nil {
		return fmt.Errorf("failed to decode written %s: %w", rel, err)
	}
	if written.PageInfo.TotalResults != len(written.Products) {
		return fmt.Errorf("%w: %s reports %d, lists %d", ErrCountMismatch, rel, written.PageInfo.TotalResults, len(written.Products))
	}
	return nil
}

func (w *Writer) writeJSON(rel string, v any) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", rel, err)
	}
	return WriteFileAtomic(filepath.Join(w.root, rel), data)
}

// Encode renders v as indented JSON without HTML escaping, ending in a newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(path), ".json")+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
