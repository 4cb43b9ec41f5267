package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
)

const defaultCurrency = "USD"

var (
	productURLRegex    = regexp.MustCompile(`/p/(?:[^/?#]+/)?(\d{9,})`)
	totalProductsRegex = regexp.MustCompile(`(\d[\d,]*)\s+(?:Results|Products|Items)\b`)
	priceTextRegex     = regexp.MustCompile(`\$?\s*(\d[\d,]*(?:\.\d+)?)`)
	titleSuffixRegex   = regexp.MustCompile(`\s*[-|]\s*The Home Depot\s*$`)
)

// Parser turns one saved page into raw product records and page metadata
type Parser interface {
	ParsePage(src domain.SourceFile, body []byte) (*domain.ExtractedPage, error)
}

type pageParser struct {
	baseURL string
}

func NewParser(baseURL string) Parser {
	return &pageParser{
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (p *pageParser) ParsePage(src domain.SourceFile, body []byte) (*domain.ExtractedPage, error) {
	switch src.Kind {
	case domain.SourceHTML:
		return p.parseHTML(src, body)
	case domain.SourceJSON:
		return p.parseJSON(src, body)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src.RelPath)
}

func (p *pageParser) parseHTML(src domain.SourceFile, body []byte) (*domain.ExtractedPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	page := &domain.ExtractedPage{
		Source: src,
		Meta: domain.PageMeta{
			CategoryContext: src.CategoryContext,
			Title:           p.extractTitle(doc),
			HeroImage:       p.extractHeroImage(doc),
			Filters:         p.extractFilters(doc),
		},
	}

	structured := p.extractStructuredData(doc, src)
	attributed := p.extractDataAttributes(doc)
	linked := p.extractProductLinks(doc)

	// Strategy order decides which value wins for a product found more than once
	page.Records = combineStrategies(structured.records, attributed, linked)

	page.Meta.Breadcrumbs = structured.breadcrumbs
	if len(page.Meta.Breadcrumbs) == 0 {
		page.Meta.Breadcrumbs = p.extractBreadcrumbs(doc)
	}
	page.Meta.TotalProducts = p.extractTotalProducts(doc, len(page.Records))

	finishRecords(page)

	log.Debugf("Parsed %s: %d products (%d structured, %d attributed, %d linked)",
		src.RelPath, len(page.Records), len(structured.records), len(attributed), len(linked))
	return page, nil
}

// normalizedPage is the JSON layout written by earlier extraction runs
type normalizedPage struct {
	Title       string                    `json:"title"`
	Breadcrumbs []domain.Breadcrumb       `json:"breadcrumbs"`
	Products    []domain.RawProductRecord `json:"products"`
}

func (p *pageParser) parseJSON(src domain.SourceFile, body []byte) (*domain.ExtractedPage, error) {
	v, err := decodeJSON(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	page := &domain.ExtractedPage{
		Source: src,
		Meta:   domain.PageMeta{CategoryContext: src.CategoryContext},
	}

	if obj, ok := v.(ldNode); ok {
		if _, ok := obj["products"].([]any); ok {
			var normalized normalizedPage
			if err := json.Unmarshal(body, &normalized); err != nil {
				return nil, fmt.Errorf("failed to decode product list: %w", err)
			}
			page.Meta.Title = normalized.Title
			page.Meta.Breadcrumbs = normalized.Breadcrumbs
			for _, record := range normalized.Products {
				if record.ProductID != "" {
					page.Records = append(page.Records, record)
				}
			}
			page.Records = combineStrategies(page.Records)
			page.Meta.TotalProducts = len(page.Records)
			finishRecords(page)
			return page, nil
		}
	}

	var data structuredData
	data.collect(v)
	if len(data.records) == 0 && len(data.breadcrumbs) == 0 {
		log.Debugf("No structured data found in %s (top level %s)", src.RelPath, describe(v))
	}

	page.Records = combineStrategies(data.records)
	page.Meta.Breadcrumbs = data.breadcrumbs
	page.Meta.TotalProducts = len(page.Records)
	finishRecords(page)
	return page, nil
}

func (p *pageParser) extractStructuredData(doc *goquery.Document, src domain.SourceFile) structuredData {
	var data structuredData

	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		v, err := decodeJSON([]byte(raw))
		if err != nil {
			// Broken blocks are common in saved pages; the link strategy still covers them
			log.Warnf("⚠️ Skipping malformed structured data block %d in %s: %v", i, src.RelPath, err)
			return
		}
		data.collect(v)
	})

	return data
}

func (p *pageParser) extractDataAttributes(doc *goquery.Document) []domain.RawProductRecord {
	var records []domain.RawProductRecord

	doc.Find("[data-product-id], [data-item-id]").Each(func(i int, s *goquery.Selection) {
		id := firstNonEmpty(strings.TrimSpace(s.AttrOr("data-product-id", "")), strings.TrimSpace(s.AttrOr("data-item-id", "")))
		if id == "" {
			return
		}

		record := domain.RawProductRecord{ProductID: id}
		record.Title = cleanTitle(firstNonEmpty(
			s.AttrOr("data-title", ""),
			selectionText(s.Find(`[data-testid="product-header"], .product-title, h2, h3`).First()),
		))
		record.Brand = firstNonEmpty(
			strings.TrimSpace(s.AttrOr("data-brand", "")),
			selectionText(s.Find(`[data-testid="attribute-brandname-above"], .product-brand`).First()),
		)
		record.ModelNumber = strings.TrimSpace(s.AttrOr("data-model", ""))

		record.Price.Current = parseDecimal(firstNonEmpty(
			s.AttrOr("data-price", ""),
			priceFromText(selectionText(s.Find(`[data-testid="price"], .price`).First())),
		))
		record.Price.Original = parseDecimal(firstNonEmpty(
			s.AttrOr("data-original-price", ""),
			priceFromText(selectionText(s.Find(`.price-was, .price-original`).First())),
		))
		if record.Price.Current.Valid {
			record.Price.Currency = firstNonEmpty(strings.TrimSpace(s.AttrOr("data-currency", "")), defaultCurrency)
		}

		if value, err := strconv.ParseFloat(s.AttrOr("data-rating", ""), 64); err == nil {
			count, _ := strconv.Atoi(firstNonEmpty(s.AttrOr("data-rating-count", ""), s.AttrOr("data-review-count", "")))
			record.Rating = &domain.Rating{Average: value, Count: count}
		}

		if stock, err := strconv.ParseBool(s.AttrOr("data-in-stock", "")); err == nil {
			record.Availability.InStock = &stock
		}

		image := firstNonEmpty(s.AttrOr("data-image", ""), imageSource(s.Find("img").First()))
		record.Images.Primary = p.absoluteURL(stripWhitespace(image))

		s.Find("[data-badge], .badge").Each(func(_ int, badge *goquery.Selection) {
			if label := firstNonEmpty(strings.TrimSpace(badge.AttrOr("data-badge", "")), selectionText(badge)); label != "" {
				record.Badges = appendUnique(record.Badges, label)
			}
		})

		if href, ok := s.Find(`a[href*="/p/"]`).First().Attr("href"); ok {
			record.URL = p.absoluteURL(href)
		}

		records = append(records, record)
	})

	return records
}

func (p *pageParser) extractProductLinks(doc *goquery.Document) []domain.RawProductRecord {
	var records []domain.RawProductRecord
	seen := make(map[string]int)

	doc.Find(`a[href*="/p/"]`).Each(func(i int, link *goquery.Selection) {
		href, exists := link.Attr("href")
		if !exists {
			return
		}

		matches := productURLRegex.FindStringSubmatch(href)
		if len(matches) < 2 {
			return
		}
		id := matches[1]

		title := cleanTitle(firstNonEmpty(strings.TrimSpace(link.AttrOr("title", "")), selectionText(link)))
		if idx, ok := seen[id]; ok {
			// Image links come before the titled link on most listing cards
			if records[idx].Title == "" {
				records[idx].Title = title
			}
			return
		}

		seen[id] = len(records)
		records = append(records, domain.RawProductRecord{
			ProductID: id,
			ProductAttributes: domain.ProductAttributes{
				Title: title,
				URL:   p.absoluteURL(href),
			},
		})
	})

	return records
}

func (p *pageParser) extractBreadcrumbs(doc *goquery.Document) []domain.Breadcrumb {
	var crumbs []domain.Breadcrumb
	seen := make(map[string]bool)

	selector := `nav[aria-label*="readcrumb"] a, [class*="breadcrumb"] a, [id*="breadcrumb"] a`
	doc.Find(selector).Each(func(i int, link *goquery.Selection) {
		label := selectionText(link)
		if label == "" || seen[label] {
			return
		}
		seen[label] = true
		crumbs = append(crumbs, domain.Breadcrumb{
			Label: label,
			URL:   p.absoluteURL(link.AttrOr("href", "")),
		})
	})

	return crumbs
}

func (p *pageParser) extractTitle(doc *goquery.Document) string {
	if h1 := selectionText(doc.Find("h1").First()); h1 != "" {
		return h1
	}
	return cleanTitle(selectionText(doc.Find("title").First()))
}

func (p *pageParser) extractTotalProducts(doc *goquery.Document, found int) int {
	// Prefer the result counter element, then fall back to the whole page text
	text := selectionText(doc.Find(`[data-testid="results-count"], .results-count, .results-applied__label`).First())
	if text == "" {
		text = doc.Text()
	}
	if matches := totalProductsRegex.FindStringSubmatch(text); len(matches) > 1 {
		if total, err := strconv.Atoi(strings.ReplaceAll(matches[1], ",", "")); err == nil {
			return total
		}
	}
	return found
}

func (p *pageParser) extractFilters(doc *goquery.Document) []domain.FilterGroup {
	var groups []domain.FilterGroup

	doc.Find("[data-filter-group], fieldset").Each(func(i int, s *goquery.Selection) {
		name := firstNonEmpty(strings.TrimSpace(s.AttrOr("data-filter-group", "")), selectionText(s.Find("legend").First()))
		if name == "" {
			return
		}

		var options []string
		s.Find("[data-filter-option], label").Each(func(_ int, option *goquery.Selection) {
			if label := firstNonEmpty(strings.TrimSpace(option.AttrOr("data-filter-option", "")), selectionText(option)); label != "" {
				options = appendUnique(options, label)
			}
		})
		groups = append(groups, domain.FilterGroup{Name: name, Options: options})
	})

	return groups
}

func (p *pageParser) extractHeroImage(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
		return p.absoluteURL(stripWhitespace(content))
	}
	return p.absoluteURL(stripWhitespace(imageSource(doc.Find(`[class*="hero"] img`).First())))
}

func (p *pageParser) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return p.baseURL + href
	}
	return href
}

// combineStrategies folds per-strategy results into one record per product id.
// Earlier strategies win; later ones only fill fields that are still empty.
func combineStrategies(strategies ...[]domain.RawProductRecord) []domain.RawProductRecord {
	var combined []domain.RawProductRecord
	index := make(map[string]int)

	for _, records := range strategies {
		for _, record := range records {
			if i, ok := index[record.ProductID]; ok {
				fillMissing(&combined[i], record)
				continue
			}
			index[record.ProductID] = len(combined)
			combined = append(combined, record)
		}
	}

	return combined
}

func fillMissing(dst *domain.RawProductRecord, src domain.RawProductRecord) {
	dst.Title = firstNonEmpty(dst.Title, src.Title)
	dst.Brand = firstNonEmpty(dst.Brand, src.Brand)
	dst.ModelNumber = firstNonEmpty(dst.ModelNumber, src.ModelNumber)
	dst.Description = firstNonEmpty(dst.Description, src.Description)
	dst.URL = firstNonEmpty(dst.URL, src.URL)
	dst.Images.Primary = firstNonEmpty(dst.Images.Primary, src.Images.Primary)

	if !dst.Price.Current.Valid && src.Price.Current.Valid {
		dst.Price = src.Price
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if dst.Availability.InStock == nil {
		dst.Availability.InStock = src.Availability.InStock
	}
	for _, badge := range src.Badges {
		dst.Badges = appendUnique(dst.Badges, badge)
	}
	for key, value := range src.Specifications {
		if dst.Specifications == nil {
			dst.Specifications = make(map[string]string)
		}
		if _, ok := dst.Specifications[key]; !ok {
			dst.Specifications[key] = value
		}
	}
}

// finishRecords stamps source identity and the page's category path on every record.
func finishRecords(page *domain.ExtractedPage) {
	path := sourceCategoryPath(page.Meta)
	for i := range page.Records {
		record := &page.Records[i]
		record.SourcePath = page.Source.RelPath
		record.Position = i
		if len(record.SourceCategoryPath) == 0 {
			record.SourceCategoryPath = path
		}
		if record.Price.Current.Valid && record.Price.Currency == "" {
			record.Price.Currency = defaultCurrency
		}
	}
}

// The folder a page was saved under is its declared category; breadcrumbs are the fallback.
func sourceCategoryPath(meta domain.PageMeta) []string {
	if meta.CategoryContext != "" {
		return strings.Split(meta.CategoryContext, "/")
	}

	var labels []string
	for _, crumb := range meta.Breadcrumbs {
		if strings.EqualFold(crumb.Label, "home") {
			continue
		}
		labels = append(labels, crumb.Label)
	}
	return labels
}

func cleanTitle(title string) string {
	return strings.TrimSpace(titleSuffixRegex.ReplaceAllString(strings.Join(strings.Fields(title), " "), ""))
}

func selectionText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func imageSource(s *goquery.Selection) string {
	return firstNonEmpty(strings.TrimSpace(s.AttrOr("src", "")), strings.TrimSpace(s.AttrOr("data-src", "")))
}

func priceFromText(text string) string {
	if matches := priceTextRegex.FindStringSubmatch(text); len(matches) > 1 {
		return matches[1]
	}
	return ""
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}
