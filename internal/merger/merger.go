package merger

import (
	"regexp"
	"sort"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Policy decides which of two present values survives a merge.
type Policy string

const (
	PolicyLatest Policy = "latest"
	PolicyFirst  Policy = "first"
)

// Options select the conflict policy for text and numeric fields.
// Empty values never replace present ones regardless of policy.
type Options struct {
	TextPolicy    Policy
	NumericPolicy Policy
}

var modelNumberRegex = regexp.MustCompile(`([A-Z0-9]{4,}-?[A-Z0-9]*)$`)

type Merger struct {
	opts Options
}

func New(opts Options) *Merger {
	if opts.TextPolicy == "" {
		opts.TextPolicy = PolicyLatest
	}
	if opts.NumericPolicy == "" {
		opts.NumericPolicy = PolicyLatest
	}
	return &Merger{opts: opts}
}

// Merge folds every raw record into one CanonicalProduct per product id.
// Pages are visited in lexicographic order of their source path and records in page order,
// so the result does not depend on how the pages were produced.
func (m *Merger) Merge(pages []*domain.ExtractedPage) ([]*domain.CanonicalProduct, domain.MergeStats) {
	ordered := make([]*domain.ExtractedPage, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Source.RelPath < ordered[j].Source.RelPath })

	var stats domain.MergeStats
	var products []*domain.CanonicalProduct
	byID := make(map[string]*domain.CanonicalProduct)

	for _, page := range ordered {
		records := make([]domain.RawProductRecord, len(page.Records))
		copy(records, page.Records)
		sort.SliceStable(records, func(i, j int) bool { return records[i].Position < records[j].Position })

		for _, record := range records {
			if record.ProductID == "" {
				continue
			}
			stats.RawRecords++

			product, ok := byID[record.ProductID]
			if !ok {
				product = &domain.CanonicalProduct{ProductID: record.ProductID}
				byID[record.ProductID] = product
				products = append(products, product)
			} else {
				log.WithField("productId", record.ProductID).Debugf("Merging duplicate from %s", record.SourcePath)
			}
			m.absorb(product, record)
		}
	}

	for _, product := range products {
		finalize(product)
	}

	stats.CanonicalProducts = len(products)
	stats.DuplicatesMerged = stats.RawRecords - stats.CanonicalProducts
	return products, stats
}

func (m *Merger) absorb(p *domain.CanonicalProduct, r domain.RawProductRecord) {
	p.Title = m.text(p.Title, r.Title)
	p.Brand = m.text(p.Brand, r.Brand)
	p.ModelNumber = m.text(p.ModelNumber, r.ModelNumber)
	p.Description = m.text(p.Description, r.Description)
	p.URL = m.text(p.URL, r.URL)
	p.Images.Primary = m.text(p.Images.Primary, r.Images.Primary)

	// Price fields travel together so a stale discount never sticks to a fresh price
	if r.Price.Current.Valid && (!p.Price.Current.Valid || m.opts.NumericPolicy == PolicyLatest) {
		currency := r.Price.Currency
		if currency == "" {
			currency = p.Price.Currency
		}
		p.Price = domain.Price{Current: r.Price.Current, Original: r.Price.Original, Currency: currency}
	}

	if r.Rating != nil && (p.Rating == nil || m.opts.NumericPolicy == PolicyLatest) {
		rating := *r.Rating
		p.Rating = &rating
	}

	if r.Availability.InStock != nil && (p.Availability.InStock == nil || m.opts.NumericPolicy == PolicyLatest) {
		inStock := *r.Availability.InStock
		p.Availability.InStock = &inStock
	}

	for _, image := range r.Images.Gallery {
		p.Images.Gallery = appendUnique(p.Images.Gallery, image)
	}
	for _, badge := range r.Badges {
		p.Badges = appendUnique(p.Badges, badge)
	}

	for key, value := range r.Specifications {
		if p.Specifications == nil {
			p.Specifications = make(map[string]string)
		}
		p.Specifications[key] = m.text(p.Specifications[key], value)
	}

	if len(r.SourceCategoryPath) > 0 && !containsPath(p.SourceCategoryPaths, r.SourceCategoryPath) {
		p.SourceCategoryPaths = append(p.SourceCategoryPaths, append([]string(nil), r.SourceCategoryPath...))
	}
	if r.SourcePath != "" {
		p.Sources = appendUnique(p.Sources, r.SourcePath)
	}
}

func (m *Merger) text(current, next string) string {
	switch {
	case next == "":
		return current
	case current == "":
		return next
	case m.opts.TextPolicy == PolicyLatest:
		return next
	}
	return current
}

func finalize(p *domain.CanonicalProduct) {
	if p.Price.Current.Valid && p.Price.Currency == "" {
		p.Price.Currency = "USD"
	}
	// A discount only exists when the original price is above the current one
	if p.Price.Original.Valid && (!p.Price.Current.Valid || !p.Price.Original.Decimal.GreaterThan(p.Price.Current.Decimal)) {
		p.Price.Original.Valid = false
	}
	if p.ModelNumber == "" {
		p.ModelNumber = modelNumberFromTitle(p.Title)
	}
	if p.Images.Primary != "" {
		p.Images.Gallery = removeValue(p.Images.Gallery, p.Images.Primary)
	}
	if p.Badges == nil {
		p.Badges = []string{}
	}
}

// modelNumberFromTitle picks a trailing model code such as "P235" or "DCF887B".
func modelNumberFromTitle(title string) string {
	matches := modelNumberRegex.FindStringSubmatch(strings.TrimSpace(title))
	if len(matches) < 2 || !strings.ContainsAny(matches[1], "0123456789") {
		return ""
	}
	return matches[1]
}

func containsPath(paths [][]string, path []string) bool {
	key := strings.Join(path, "\x1f")
	for _, existing := range paths {
		if strings.Join(existing, "\x1f") == key {
			return true
		}
	}
	return false
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func removeValue(values []string, value string) []string {
	out := values[:0]
	for _, v := range values {
		if v != value {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
