package domain

import "time"

type DocumentKind string

const (
	ProductDocumentKind  DocumentKind = "product"
	CategoryDocumentKind DocumentKind = "category"
	IndexDocumentKind    DocumentKind = "index"
)

type ParseFailure struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// Rejection is a document that failed required-field validation and was not written.
type Rejection struct {
	DocumentID    string       `json:"documentId"`
	Kind          DocumentKind `json:"kind"`
	MissingFields []string     `json:"missingFields"`
	Violations    []string     `json:"violations,omitempty"`
}

type TaxonomyWarning struct {
	ProductID string `json:"productId,omitempty"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

// RunReport accumulates everything an operator needs to audit one pipeline run.
type RunReport struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	SourcesScanned int            `json:"sourcesScanned"`
	ParseFailures  []ParseFailure `json:"parseFailures"`
	EmptyPages     []string       `json:"emptyPages"`

	RecordsExtracted  int `json:"recordsExtracted"`
	DuplicatesMerged  int `json:"duplicatesMerged"`
	CanonicalProducts int `json:"canonicalProducts"`

	Categorized      int               `json:"categorized"`
	RoutedToOther    int               `json:"routedToOther"`
	TaxonomyWarnings []TaxonomyWarning `json:"taxonomyWarnings"`

	ProductsEmitted   int         `json:"productsEmitted"`
	CategoriesEmitted int         `json:"categoriesEmitted"`
	Rejections        []Rejection `json:"rejections"`
	StaleRemoved      int         `json:"staleRemoved"`

	SearchDocuments int `json:"searchDocuments"`
	MirrorFailures  int `json:"mirrorFailures"`
	PublishFailures int `json:"publishFailures"`
}

func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:            runID,
		StartedAt:        startedAt,
		ParseFailures:    make([]ParseFailure, 0),
		EmptyPages:       make([]string, 0),
		TaxonomyWarnings: make([]TaxonomyWarning, 0),
		Rejections:       make([]Rejection, 0),
	}
}
