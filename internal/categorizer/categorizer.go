package categorizer

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/taxonomy"
)

var ErrInvalidRule = errors.New("invalid keyword rule")

type rule struct {
	domain.KeywordRule
	matcher *regexp.Regexp
	words   int
	target  taxonomy.NodeRef
}

// Categorizer resolves a product to one declared node. It holds no mutable state,
// so the same product and rule table always produce the same category.
type Categorizer struct {
	nodes        map[string]taxonomy.NodeRef
	leavesBySlug map[string][]taxonomy.NodeRef
	rules        []rule
}

func New(decl *domain.TaxonomyDeclaration) (*Categorizer, error) {
	c := &Categorizer{
		nodes:        make(map[string]taxonomy.NodeRef),
		leavesBySlug: make(map[string][]taxonomy.NodeRef),
	}

	var ordered []taxonomy.NodeRef
	taxonomy.Walk(decl, func(ref taxonomy.NodeRef) {
		c.nodes[ref.ID] = ref
		ordered = append(ordered, ref)
		if ref.Leaf && ref.Depth > 0 {
			c.leavesBySlug[ref.Slug] = append(c.leavesBySlug[ref.Slug], ref)
		}
	})

	for i, kw := range decl.Rules {
		compiled, err := compileRule(kw, c.nodes, ordered)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%q): %w", i, kw.Pattern, err)
		}
		c.rules = append(c.rules, compiled)
	}

	// Multi-word phrases are checked before single-word fallbacks; declaration order breaks ties
	sort.SliceStable(c.rules, func(i, j int) bool { return c.rules[i].words > c.rules[j].words })

	return c, nil
}

func compileRule(kw domain.KeywordRule, nodes map[string]taxonomy.NodeRef, ordered []taxonomy.NodeRef) (rule, error) {
	words := strings.Fields(strings.ToLower(kw.Pattern))
	if len(words) == 0 {
		return rule{}, fmt.Errorf("%w: empty pattern", ErrInvalidRule)
	}

	base := kw.Department
	if kw.Category != "" {
		base = kw.Department + "/" + strings.Trim(kw.Category, "/")
	}
	target, ok := nodes[base]
	if !ok {
		return rule{}, fmt.Errorf("%w: category %q is not declared", ErrInvalidRule, base)
	}

	if kw.Subcategory != "" {
		found := false
		for _, ref := range ordered {
			if strings.HasPrefix(ref.ID, base+"/") && ref.Name == kw.Subcategory {
				target, found = ref, true
				break
			}
		}
		if !found {
			return rule{}, fmt.Errorf("%w: no subcategory named %q under %q", ErrInvalidRule, kw.Subcategory, base)
		}
	}

	quoted := make([]string, len(words))
	for i, word := range words {
		quoted[i] = regexp.QuoteMeta(word)
	}
	matcher := regexp.MustCompile(`(?i)\b` + strings.Join(quoted, `[\s-]+`) + `(?:e?s)?\b`)

	return rule{KeywordRule: kw, matcher: matcher, words: len(words), target: target}, nil
}

// Categorize resolves the product's category from its source paths, then from the keyword
// rules, and finally falls back to the catch-all department. A source path naming a leaf is
// used as is; one naming an inner node narrows the rules to that node's subtree.
func (c *Categorizer) Categorize(p *domain.CanonicalProduct) domain.Categorization {
	var (
		warnings []domain.TaxonomyWarning
		scope    *taxonomy.NodeRef
	)

	for _, path := range p.SourceCategoryPaths {
		match := c.matchSourcePath(path)
		if match.leaf != nil {
			return resolved(*match.leaf, domain.CategorizedBySource, warnings)
		}
		if match.scope != nil && scope == nil {
			scope = match.scope
		}
		if match.warning != "" {
			warnings = append(warnings, domain.TaxonomyWarning{
				ProductID: p.ProductID,
				Reference: strings.Join(path, "/"),
				Reason:    match.warning,
			})
		}
	}

	if scope != nil {
		for _, r := range c.rules {
			if within(r.target, *scope) && r.matcher.MatchString(p.Title) {
				return resolved(r.target, domain.CategorizedByRule, warnings)
			}
		}
		return resolved(*scope, domain.CategorizedBySource, warnings)
	}

	for _, r := range c.rules {
		if r.matcher.MatchString(p.Title) {
			return resolved(r.target, domain.CategorizedByRule, warnings)
		}
	}

	return domain.Categorization{
		CategoryID:   domain.OtherDepartment,
		CategoryPath: []string{domain.OtherDepartment},
		Method:       domain.CategorizedByFallback,
		Warnings:     warnings,
	}
}

type sourceMatch struct {
	leaf    *taxonomy.NodeRef
	scope   *taxonomy.NodeRef
	warning string
}

// matchSourcePath compares folder and breadcrumb labels by slug, so "Impact Drivers",
// "impact drivers" and "impact-drivers" all name the same node.
func (c *Categorizer) matchSourcePath(path []string) sourceMatch {
	slugs := make([]string, 0, len(path))
	for _, label := range path {
		slug := domain.Slugify(label)
		if slug == "" || (len(slugs) == 0 && slug == "home") {
			continue
		}
		slugs = append(slugs, slug)
	}
	if len(slugs) == 0 {
		return sourceMatch{}
	}

	// A declared category id such as "tools/drills"
	if ref, ok := c.nodes[strings.Join(slugs, "/")]; ok {
		if ref.Leaf {
			return sourceMatch{leaf: &ref}
		}
		return sourceMatch{scope: &ref}
	}

	// A leaf named by the last label; prefer a leaf inside a department the path mentions
	if candidates := c.leavesBySlug[slugs[len(slugs)-1]]; len(candidates) > 0 {
		for _, candidate := range candidates {
			for _, slug := range slugs {
				if candidate.Department == slug {
					return sourceMatch{leaf: &candidate}
				}
			}
		}
		return sourceMatch{leaf: &candidates[0]}
	}

	department, ok := c.nodes[slugs[0]]
	if !ok {
		return sourceMatch{warning: fmt.Sprintf("department %q is not declared", slugs[0])}
	}
	return sourceMatch{scope: &department}
}

func within(ref, scope taxonomy.NodeRef) bool {
	return ref.ID == scope.ID || strings.HasPrefix(ref.ID, scope.ID+"/")
}

func resolved(ref taxonomy.NodeRef, method domain.CategorizationMethod, warnings []domain.TaxonomyWarning) domain.Categorization {
	result := domain.Categorization{
		CategoryID:   ref.ID,
		CategoryPath: append([]string(nil), ref.Path...),
		Method:       method,
		Warnings:     warnings,
	}
	// Departments carry no subcategory; anything deeper publishes its declared name verbatim
	if ref.Depth > 0 {
		result.Subcategory = ref.Name
	}
	return result
}

// Apply stores the categorization on the product.
func Apply(p *domain.CanonicalProduct, c domain.Categorization) {
	p.CategoryID = c.CategoryID
	p.CategoryPath = c.CategoryPath
	p.Subcategory = c.Subcategory
}
