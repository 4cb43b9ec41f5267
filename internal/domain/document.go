package domain

import "encoding/json"

// Document shapes below are a compatibility contract with the static site and the iOS app.
// Optional pointers are left nil so that a missing value is absent from the encoded document.

type PriceDocument struct {
	Current  *json.Number `json:"current,omitempty"`
	Original *json.Number `json:"original,omitempty"`
	Currency string       `json:"currency"`
}

type RatingSummary struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

type RatingDetail struct {
	Average      float64        `json:"average"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution"`
}

type ImagesSummary struct {
	Primary string `json:"primary"`
}

type AvailabilityDocument struct {
	InStock *bool `json:"inStock,omitempty"`
}

type ProductSummary struct {
	ProductID    string               `json:"productId"`
	ModelNumber  string               `json:"modelNumber"`
	Brand        string               `json:"brand"`
	Title        string               `json:"title"`
	Subcategory  string               `json:"subcategory,omitempty"`
	Rating       *RatingSummary       `json:"rating,omitempty"`
	Images       ImagesSummary        `json:"images"`
	Badges       []string             `json:"badges"`
	Availability AvailabilityDocument `json:"availability"`
	Price        PriceDocument        `json:"price"`
}

type MediaImage struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

type Media struct {
	Images []MediaImage `json:"images"`
}

type ProductDocument struct {
	ProductID      string               `json:"productId"`
	ModelNumber    string               `json:"modelNumber"`
	Brand          string               `json:"brand"`
	Title          string               `json:"title"`
	CategoryID     string               `json:"categoryId"`
	Subcategory    string               `json:"subcategory,omitempty"`
	URL            string               `json:"url,omitempty"`
	Rating         *RatingDetail        `json:"rating,omitempty"`
	Images         ImagesSummary        `json:"images"`
	Media          Media                `json:"media"`
	Badges         []string             `json:"badges"`
	Availability   AvailabilityDocument `json:"availability"`
	Price          PriceDocument        `json:"price"`
	Specifications map[string]string    `json:"specifications"`
	LongDesc       string               `json:"longDescription"`
	Version        string               `json:"version"`
	LastUpdated    string               `json:"lastUpdated"`
}

type FeaturedBrand struct {
	BrandID   string `json:"brandId"`
	BrandName string `json:"brandName"`
	LogoURL   string `json:"logoUrl"`
	Count     int    `json:"count"`
}

type PageInfo struct {
	TotalResults int `json:"totalResults"`
}

type SubcategoryFilter struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

type FilterOptions struct {
	Subcategories []SubcategoryFilter `json:"subcategories"`
}

type CategoryDocument struct {
	CategoryID     string           `json:"categoryId"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug"`
	Path           string           `json:"path"`
	Version        string           `json:"version"`
	LastUpdated    string           `json:"lastUpdated"`
	Breadcrumbs    []Breadcrumb     `json:"breadcrumbs"`
	PageInfo       PageInfo         `json:"pageInfo"`
	FeaturedBrands []FeaturedBrand  `json:"featuredBrands"`
	FilterOptions  FilterOptions    `json:"filterOptions"`
	Products       []ProductSummary `json:"products"`
}

type IndexEntry struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Slug          string       `json:"slug"`
	Path          string       `json:"path"`
	ProductCount  int          `json:"productCount"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	Subcategories []IndexEntry `json:"subcategories"`
}

type CategoryIndex struct {
	Version         string       `json:"version"`
	LastUpdated     string       `json:"lastUpdated"`
	TotalCategories int          `json:"totalCategories"`
	TotalProducts   int          `json:"totalProducts"`
	Categories      []IndexEntry `json:"categories"`
}
