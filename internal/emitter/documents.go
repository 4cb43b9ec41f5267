package emitter

import (
	"encoding/json"
	"sort"
	"strconv"

	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/taxonomy"

	"github.com/shopspring/decimal"
)

func BuildProductSummary(p *domain.CanonicalProduct) domain.ProductSummary {
	summary := domain.ProductSummary{
		ProductID:    p.ProductID,
		ModelNumber:  p.ModelNumber,
		Brand:        p.Brand,
		Title:        p.Title,
		Subcategory:  p.Subcategory,
		Images:       domain.ImagesSummary{Primary: p.Images.Primary},
		Badges:       badges(p.Badges),
		Availability: domain.AvailabilityDocument{InStock: p.Availability.InStock},
		Price:        priceDocument(p.Price),
	}
	if p.Rating != nil {
		summary.Rating = &domain.RatingSummary{Average: p.Rating.Average, Count: p.Rating.Count}
	}
	return summary
}

func BuildProductDocument(p *domain.CanonicalProduct, version, lastUpdated string) *domain.ProductDocument {
	doc := &domain.ProductDocument{
		ProductID:      p.ProductID,
		ModelNumber:    p.ModelNumber,
		Brand:          p.Brand,
		Title:          p.Title,
		CategoryID:     p.CategoryID,
		Subcategory:    p.Subcategory,
		URL:            p.URL,
		Images:         domain.ImagesSummary{Primary: p.Images.Primary},
		Media:          domain.Media{Images: mediaImages(p.Images)},
		Badges:         badges(p.Badges),
		Availability:   domain.AvailabilityDocument{InStock: p.Availability.InStock},
		Price:          priceDocument(p.Price),
		Specifications: p.Specifications,
		LongDesc:       p.Description,
		Version:        version,
		LastUpdated:    lastUpdated,
	}
	if doc.Specifications == nil {
		doc.Specifications = map[string]string{}
	}
	if p.Rating != nil {
		doc.Rating = &domain.RatingDetail{
			Average:      p.Rating.Average,
			Count:        p.Rating.Count,
			Distribution: distribution(p.Rating.Distribution),
		}
	}
	return doc
}

func BuildCategoryDocument(node *taxonomy.Node, version, lastUpdated string) *domain.CategoryDocument {
	products := make([]domain.ProductSummary, 0, len(node.Products))
	for _, p := range node.Products {
		products = append(products, BuildProductSummary(p))
	}

	return &domain.CategoryDocument{
		CategoryID:     node.ID,
		Name:           node.Name,
		Slug:           node.Slug,
		Path:           node.Path(),
		Version:        version,
		LastUpdated:    lastUpdated,
		Breadcrumbs:    node.Breadcrumbs(),
		PageInfo:       domain.PageInfo{TotalResults: len(products)},
		FeaturedBrands: append([]domain.FeaturedBrand{}, node.FeaturedBrands...),
		FilterOptions:  domain.FilterOptions{Subcategories: subcategoryFilters(node)},
		Products:       products,
	}
}

// BuildIndex lists every department with its nested subcategories in declaration order.
func BuildIndex(tree *taxonomy.Tree, version, lastUpdated string) *domain.CategoryIndex {
	index := &domain.CategoryIndex{
		Version:         version,
		LastUpdated:     lastUpdated,
		TotalCategories: len(tree.Nodes()),
		TotalProducts:   tree.TotalProducts,
		Categories:      make([]domain.IndexEntry, 0, len(tree.Departments)),
	}
	for _, department := range tree.Departments {
		index.Categories = append(index.Categories, indexEntry(department))
	}
	return index
}

func indexEntry(node *taxonomy.Node) domain.IndexEntry {
	entry := domain.IndexEntry{
		ID:            node.ID,
		Name:          node.Name,
		Slug:          node.Slug,
		Path:          node.Path(),
		ProductCount:  node.ProductCount,
		ImageURL:      node.ImageURL,
		Subcategories: make([]domain.IndexEntry, 0, len(node.Children)),
	}
	for _, child := range node.Children {
		entry.Subcategories = append(entry.Subcategories, indexEntry(child))
	}
	return entry
}

// subcategoryFilters lists direct children that have products, largest first.
func subcategoryFilters(node *taxonomy.Node) []domain.SubcategoryFilter {
	filters := make([]domain.SubcategoryFilter, 0, len(node.Children))
	for _, child := range node.Children {
		if child.ProductCount == 0 {
			continue
		}
		filters = append(filters, domain.SubcategoryFilter{ID: child.ID, Name: child.Name, ProductCount: child.ProductCount})
	}
	sort.SliceStable(filters, func(i, j int) bool {
		if filters[i].ProductCount != filters[j].ProductCount {
			return filters[i].ProductCount > filters[j].ProductCount
		}
		return filters[i].Name < filters[j].Name
	})
	return filters
}

func priceDocument(price domain.Price) domain.PriceDocument {
	return domain.PriceDocument{
		Current:  number(price.Current),
		Original: number(price.Original),
		Currency: price.Currency,
	}
}

func number(d decimal.NullDecimal) *json.Number {
	if !d.Valid {
		return nil
	}
	n := json.Number(d.Decimal.String())
	return &n
}

func badges(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func mediaImages(images domain.Images) []domain.MediaImage {
	media := make([]domain.MediaImage, 0, 1+len(images.Gallery))
	if images.Primary != "" {
		media = append(media, domain.MediaImage{URL: images.Primary, Type: "primary"})
	}
	for _, url := range images.Gallery {
		media = append(media, domain.MediaImage{URL: url, Type: "gallery"})
	}
	return media
}

// distribution always lists every star value so consumers can render a full histogram.
func distribution(counts map[string]int) map[string]int {
	result := make(map[string]int, 5)
	for star := 1; star <= 5; star++ {
		key := strconv.Itoa(star)
		result[key] = counts[key]
	}
	return result
}
