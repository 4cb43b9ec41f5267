package taxonomy

import (
	"fmt"
	"sort"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	log "github.com/sirupsen/logrus"
)

type CountPolicy string

const (
	// CountRollup counts a node's own products plus everything below it.
	CountRollup CountPolicy = "rollup"
	// CountDirect counts only products attached to the node itself.
	CountDirect CountPolicy = "direct"
)

type Options struct {
	CountPolicy    CountPolicy
	FeaturedBrands int
}

type Node struct {
	ID       string
	Name     string
	Slug     string
	ImageURL string
	Depth    int
	Parent   *Node
	Children []*Node

	// Direct holds products attached to this node; Products is the list the node publishes.
	Direct         []*domain.CanonicalProduct
	Products       []*domain.CanonicalProduct
	ProductCount   int
	FeaturedBrands []domain.FeaturedBrand
}

func (n *Node) Path() string {
	return "/categories/" + n.ID
}

// Breadcrumbs lists the node's ancestors from the department down to the node itself.
func (n *Node) Breadcrumbs() []domain.Breadcrumb {
	var chain []*Node
	for node := n; node != nil; node = node.Parent {
		chain = append(chain, node)
	}
	crumbs := make([]domain.Breadcrumb, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		crumbs = append(crumbs, domain.Breadcrumb{Label: chain[i].Name, URL: chain[i].Path()})
	}
	return crumbs
}

// Department returns the root ancestor of the node.
func (n *Node) Department() *Node {
	node := n
	for node.Parent != nil {
		node = node.Parent
	}
	return node
}

type Tree struct {
	Departments   []*Node
	TotalProducts int

	nodes []*Node
	byID  map[string]*Node
}

func (t *Tree) Node(id string) (*Node, bool) {
	node, ok := t.byID[id]
	return node, ok
}

// Nodes returns every node, parents before children, in declaration order.
func (t *Tree) Nodes() []*Node {
	return t.nodes
}

// Build attaches every product to the node named by its CategoryID and derives counts,
// product lists and featured brands. The result depends only on its inputs.
func Build(decl *domain.TaxonomyDeclaration, products []*domain.CanonicalProduct, opts Options) (*Tree, []domain.TaxonomyWarning) {
	if opts.CountPolicy == "" {
		opts.CountPolicy = CountRollup
	}

	tree := &Tree{byID: make(map[string]*Node)}
	Walk(decl, func(ref NodeRef) {
		node := &Node{ID: ref.ID, Name: ref.Name, Slug: ref.Slug, ImageURL: ref.ImageURL, Depth: ref.Depth}
		if ref.Depth == 0 {
			tree.Departments = append(tree.Departments, node)
		} else {
			parent := tree.byID[strings.Join(ref.Path[:len(ref.Path)-1], "/")]
			node.Parent = parent
			parent.Children = append(parent.Children, node)
		}
		tree.byID[ref.ID] = node
		tree.nodes = append(tree.nodes, node)
	})

	other, ok := tree.byID[domain.OtherDepartment]
	if !ok {
		other = &Node{ID: domain.OtherDepartment, Name: "Other", Slug: domain.OtherDepartment}
		tree.Departments = append(tree.Departments, other)
		tree.byID[other.ID] = other
		tree.nodes = append(tree.nodes, other)
	}

	var warnings []domain.TaxonomyWarning
	for _, product := range products {
		node, ok := tree.byID[product.CategoryID]
		if !ok {
			warning := domain.TaxonomyWarning{
				ProductID: product.ProductID,
				Reference: product.CategoryID,
				Reason:    "category is not declared in the taxonomy",
			}
			warnings = append(warnings, warning)
			log.WithField("productId", product.ProductID).Warnf("⚠️ Routing to %s: %s %q", domain.OtherDepartment, warning.Reason, warning.Reference)

			product.CategoryID = domain.OtherDepartment
			product.CategoryPath = []string{domain.OtherDepartment}
			product.Subcategory = ""
			node = other
		}
		node.Direct = append(node.Direct, product)
	}
	tree.TotalProducts = len(products)

	for _, department := range tree.Departments {
		fill(department, opts)
	}

	return tree, warnings
}

// fill computes the subtree product list bottom-up and returns it.
func fill(node *Node, opts Options) []*domain.CanonicalProduct {
	subtree := append([]*domain.CanonicalProduct(nil), node.Direct...)
	for _, child := range node.Children {
		subtree = append(subtree, fill(child, opts)...)
	}

	switch opts.CountPolicy {
	case CountDirect:
		node.Products = node.Direct
	default:
		node.Products = subtree
	}
	node.ProductCount = len(node.Products)
	node.FeaturedBrands = FeaturedBrands(node.Products, opts.FeaturedBrands)

	return subtree
}

// FeaturedBrands returns the k most frequent non-empty brands, ties broken by name.
func FeaturedBrands(products []*domain.CanonicalProduct, k int) []domain.FeaturedBrand {
	counts := make(map[string]int)
	for _, product := range products {
		if product.Brand != "" {
			counts[product.Brand]++
		}
	}

	brands := make([]domain.FeaturedBrand, 0, len(counts))
	for name, count := range counts {
		id := domain.Slugify(name)
		brands = append(brands, domain.FeaturedBrand{
			BrandID:   id,
			BrandName: name,
			LogoURL:   fmt.Sprintf("images/brands/%s.svg", id),
			Count:     count,
		})
	}

	sort.Slice(brands, func(i, j int) bool {
		if brands[i].Count != brands[j].Count {
			return brands[i].Count > brands[j].Count
		}
		return brands[i].BrandName < brands[j].BrandName
	})

	if k >= 0 && len(brands) > k {
		brands = brands[:k]
	}
	return brands
}

