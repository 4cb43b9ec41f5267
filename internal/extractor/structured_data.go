package extractor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	"github.com/shopspring/decimal"
)

type ldNode = map[string]any

// decodeJSON keeps numbers as json.Number so prices never pass through float64.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// structuredData is what a set of JSON-LD blocks yields for one page.
type structuredData struct {
	records     []domain.RawProductRecord
	breadcrumbs []domain.Breadcrumb
}

func (d *structuredData) collect(v any) {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			d.collect(item)
		}
	case ldNode:
		if graph, ok := node["@graph"]; ok {
			d.collect(graph)
		}

		switch {
		case hasType(node, "Product"):
			if record, ok := recordFromLD(node); ok {
				d.records = append(d.records, record)
			}
		case hasType(node, "BreadcrumbList"):
			d.breadcrumbs = append(d.breadcrumbs, breadcrumbsFromLD(node)...)
		case hasType(node, "ItemList"):
			d.collectListItems(node)
		case hasType(node, "WebPage"), hasType(node, "CollectionPage"):
			d.collectMainEntity(node)
			if crumbs, ok := node["breadcrumb"].(ldNode); ok {
				d.breadcrumbs = append(d.breadcrumbs, breadcrumbsFromLD(crumbs)...)
			}
		}
	}
}

func (d *structuredData) collectMainEntity(page ldNode) {
	entity, ok := page["mainEntity"].(ldNode)
	if !ok {
		return
	}
	if hasType(entity, "Product") || hasType(entity, "ItemList") {
		d.collect(entity)
		return
	}

	// Category pages list their products as offers.itemOffered
	offers, ok := entity["offers"].(ldNode)
	if !ok {
		return
	}
	switch offered := offers["itemOffered"].(type) {
	case []any:
		for _, item := range offered {
			d.collect(item)
		}
	case ldNode:
		d.collect(offered)
	}
}

func (d *structuredData) collectListItems(list ldNode) {
	items, ok := list["itemListElement"].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		element, ok := item.(ldNode)
		if !ok {
			continue
		}
		if inner, ok := element["item"].(ldNode); ok {
			d.collect(inner)
			continue
		}
		d.collect(element)
	}
}

func hasType(node ldNode, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func recordFromLD(node ldNode) (domain.RawProductRecord, bool) {
	id := firstNonEmpty(str(node["sku"]), str(node["productID"]), str(node["productId"]))
	if id == "" {
		return domain.RawProductRecord{}, false
	}

	record := domain.RawProductRecord{ProductID: id}
	record.Title = cleanTitle(str(node["name"]))
	record.Brand = brandName(node["brand"])
	record.ModelNumber = firstNonEmpty(str(node["mpn"]), str(node["model"]))
	record.Description = str(node["description"])
	record.URL = str(node["url"])
	record.Images = imagesFromLD(node["image"])
	record.Rating = ratingFromLD(node["aggregateRating"])
	record.Specifications = specificationsFromLD(node["additionalProperty"])

	if offer := firstOffer(node["offers"]); offer != nil {
		record.Price.Current = parseDecimal(firstNonEmpty(str(offer["price"]), str(offer["lowPrice"])))
		record.Price.Currency = firstNonEmpty(str(offer["priceCurrency"]), defaultCurrency)
		if spec, ok := offer["priceSpecification"].(ldNode); ok {
			// A list price above the selling price marks a discount
			if original := parseDecimal(str(spec["price"])); original.Valid && record.Price.Current.Valid &&
				original.Decimal.GreaterThan(record.Price.Current.Decimal) {
				record.Price.Original = original
			}
		}
		if availability := str(offer["availability"]); availability != "" {
			inStock := strings.Contains(availability, "InStock")
			record.Availability.InStock = &inStock
		}
	}

	return record, true
}

func firstOffer(v any) ldNode {
	switch offers := v.(type) {
	case ldNode:
		return offers
	case []any:
		for _, item := range offers {
			if offer, ok := item.(ldNode); ok {
				return offer
			}
		}
	}
	return nil
}

func brandName(v any) string {
	switch brand := v.(type) {
	case string:
		return strings.TrimSpace(brand)
	case ldNode:
		return str(brand["name"])
	}
	return ""
}

func imagesFromLD(v any) domain.Images {
	var urls []string
	var walk func(any)
	walk = func(v any) {
		switch image := v.(type) {
		case string:
			if url := stripWhitespace(image); url != "" {
				urls = append(urls, url)
			}
		case []any:
			for _, item := range image {
				walk(item)
			}
		case ldNode:
			walk(firstNonEmpty(str(image["url"]), str(image["contentUrl"])))
		}
	}
	walk(v)

	if len(urls) == 0 {
		return domain.Images{}
	}
	return domain.Images{Primary: urls[0], Gallery: urls[1:]}
}

func ratingFromLD(v any) *domain.Rating {
	node, ok := v.(ldNode)
	if !ok {
		return nil
	}
	average, err := strconv.ParseFloat(str(node["ratingValue"]), 64)
	if err != nil {
		return nil
	}
	count, _ := strconv.Atoi(firstNonEmpty(str(node["reviewCount"]), str(node["ratingCount"])))
	return &domain.Rating{Average: average, Count: count}
}

func specificationsFromLD(v any) map[string]string {
	props, ok := v.([]any)
	if !ok {
		return nil
	}
	specs := make(map[string]string)
	for _, item := range props {
		prop, ok := item.(ldNode)
		if !ok {
			continue
		}
		name, value := str(prop["name"]), str(prop["value"])
		if name != "" && value != "" {
			specs[name] = value
		}
	}
	if len(specs) == 0 {
		return nil
	}
	return specs
}

func breadcrumbsFromLD(list ldNode) []domain.Breadcrumb {
	items, ok := list["itemListElement"].([]any)
	if !ok {
		return nil
	}

	type positioned struct {
		position int
		crumb    domain.Breadcrumb
	}
	var crumbs []positioned
	for i, item := range items {
		element, ok := item.(ldNode)
		if !ok {
			continue
		}
		position, err := strconv.Atoi(str(element["position"]))
		if err != nil {
			position = i + 1
		}

		crumb := domain.Breadcrumb{Label: str(element["name"])}
		switch target := element["item"].(type) {
		case string:
			crumb.URL = target
		case ldNode:
			crumb.URL = firstNonEmpty(str(target["@id"]), str(target["url"]))
			if crumb.Label == "" {
				crumb.Label = str(target["name"])
			}
		}
		if crumb.Label != "" {
			crumbs = append(crumbs, positioned{position: position, crumb: crumb})
		}
	}

	sort.SliceStable(crumbs, func(i, j int) bool { return crumbs[i].position < crumbs[j].position })

	result := make([]domain.Breadcrumb, 0, len(crumbs))
	for _, c := range crumbs {
		result = append(result, c.crumb)
	}
	return result
}

func str(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	}
	return ""
}

func parseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(s), "$"), ",", ""))
	if s == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func describe(v any) string {
	switch v.(type) {
	case []any:
		return "array"
	case ldNode:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
