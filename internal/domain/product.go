package domain

import (
	"github.com/shopspring/decimal"
)

// Price keeps amounts as decimals; they only become JSON numbers at emission.
type Price struct {
	Current  decimal.NullDecimal `json:"current"`
	Original decimal.NullDecimal `json:"original"`
	Currency string              `json:"currency"`
}

type Rating struct {
	Average      float64        `json:"average"`
	Count        int            `json:"count"`
	Distribution map[string]int `json:"distribution,omitempty"`
}

type Images struct {
	Primary string   `json:"primary"`
	Gallery []string `json:"gallery,omitempty"`
}

// Availability.InStock is nil when the source page said nothing about stock.
type Availability struct {
	InStock *bool `json:"inStock"`
}

// ProductAttributes are the fields shared by raw observations and canonical products.
type ProductAttributes struct {
	Title          string            `json:"title"`
	Brand          string            `json:"brand"`
	ModelNumber    string            `json:"modelNumber"`
	Description    string            `json:"description,omitempty"`
	URL            string            `json:"url,omitempty"`
	Price          Price             `json:"price"`
	Rating         *Rating           `json:"rating,omitempty"`
	Images         Images            `json:"images"`
	Badges         []string          `json:"badges"`
	Availability   Availability      `json:"availability"`
	Specifications map[string]string `json:"specifications,omitempty"`
}

// RawProductRecord is one observation of a product on one source page.
type RawProductRecord struct {
	ProductID string `json:"productId"`
	ProductAttributes
	SourceCategoryPath []string `json:"sourceCategoryPath,omitempty"`

	SourcePath string `json:"-"`
	Position   int    `json:"-"`
}

// CanonicalProduct is the merged view of every observation sharing a product id.
type CanonicalProduct struct {
	ProductID string
	ProductAttributes

	SourceCategoryPaths [][]string
	Sources             []string

	CategoryID   string
	CategoryPath []string
	Subcategory  string
}

type MergeStats struct {
	RawRecords        int `json:"rawRecords"`
	CanonicalProducts int `json:"canonicalProducts"`
	DuplicatesMerged  int `json:"duplicatesMerged"`
}
