package taxonomy

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	"gopkg.in/yaml.v3"
)

var ErrInvalidDeclaration = errors.New("invalid taxonomy declaration")

// LoadDeclaration reads the department tree and keyword rule table from a YAML file.
func LoadDeclaration(path string) (*domain.TaxonomyDeclaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read taxonomy file: %w", err)
	}
	return ParseDeclaration(data)
}

func ParseDeclaration(data []byte) (*domain.TaxonomyDeclaration, error) {
	var decl domain.TaxonomyDeclaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy: %w", err)
	}
	if err := Normalize(&decl); err != nil {
		return nil, err
	}
	return &decl, nil
}

// Normalize fills missing slugs, appends the catch-all department and rejects duplicate ids.
func Normalize(decl *domain.TaxonomyDeclaration) error {
	hasOther := false
	for i := range decl.Departments {
		if err := normalizeNode(&decl.Departments[i]); err != nil {
			return err
		}
		if decl.Departments[i].Slug == domain.OtherDepartment {
			hasOther = true
		}
	}
	if !hasOther {
		decl.Departments = append(decl.Departments, domain.CategoryDeclaration{Name: "Other", Slug: domain.OtherDepartment})
	}

	seen := make(map[string]bool)
	var duplicate string
	Walk(decl, func(ref NodeRef) {
		if seen[ref.ID] && duplicate == "" {
			duplicate = ref.ID
		}
		seen[ref.ID] = true
	})
	if duplicate != "" {
		return fmt.Errorf("%w: duplicate category id %q", ErrInvalidDeclaration, duplicate)
	}
	return nil
}

func normalizeNode(node *domain.CategoryDeclaration) error {
	node.Name = strings.TrimSpace(node.Name)
	if node.Name == "" {
		return fmt.Errorf("%w: category without a name", ErrInvalidDeclaration)
	}
	if node.Slug == "" {
		node.Slug = domain.Slugify(node.Name)
	}
	if node.Slug != domain.Slugify(node.Slug) || node.Slug == "" {
		return fmt.Errorf("%w: slug %q of %q is not lowercase-hyphenated", ErrInvalidDeclaration, node.Slug, node.Name)
	}
	for i := range node.Subcategories {
		if err := normalizeNode(&node.Subcategories[i]); err != nil {
			return err
		}
	}
	return nil
}

// NodeRef is a flattened view of one declared node.
type NodeRef struct {
	ID         string
	Name       string
	Slug       string
	ImageURL   string
	Department string
	Path       []string
	Depth      int
	Leaf       bool
}

// Walk visits declared nodes depth-first in declaration order, parents before children.
func Walk(decl *domain.TaxonomyDeclaration, fn func(NodeRef)) {
	var visit func(node domain.CategoryDeclaration, parent []string)
	visit = func(node domain.CategoryDeclaration, parent []string) {
		path := append(append([]string(nil), parent...), node.Slug)
		fn(NodeRef{
			ID:         strings.Join(path, "/"),
			Name:       node.Name,
			Slug:       node.Slug,
			ImageURL:   node.ImageURL,
			Department: path[0],
			Path:       path,
			Depth:      len(path) - 1,
			Leaf:       len(node.Subcategories) == 0,
		})
		for _, child := range node.Subcategories {
			visit(child, path)
		}
	}
	for _, department := range decl.Departments {
		visit(department, nil)
	}
}
