package domain

type SourceKind string

const (
	SourceHTML SourceKind = "html"
	SourceJSON SourceKind = "json"
)

// SourceFile is one saved page found under the input directory.
type SourceFile struct {
	Path            string     `json:"path"`
	RelPath         string     `json:"relPath"`
	CategoryContext string     `json:"categoryContext"`
	Kind            SourceKind `json:"kind"`
}

type Breadcrumb struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type FilterGroup struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
}

type PageMeta struct {
	Title           string        `json:"title"`
	CategoryContext string        `json:"categoryContext"`
	Breadcrumbs     []Breadcrumb  `json:"breadcrumbs"`
	TotalProducts   int           `json:"totalProducts"`
	Filters         []FilterGroup `json:"filters"`
	HeroImage       string        `json:"heroImage"`
}

type ExtractedPage struct {
	Source  SourceFile         `json:"source"`
	Meta    PageMeta           `json:"meta"`
	Records []RawProductRecord `json:"records"`
}
