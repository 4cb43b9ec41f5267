package emitter

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	productSchemaURL  = "https://schemas.orangecatalog.dev/product.schema.json"
	categorySchemaURL = "https://schemas.orangecatalog.dev/category.schema.json"
)

// Validator checks documents against the required-field schemas before they are written.
type Validator struct {
	product  *jsonschema.Schema
	category *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	for url, file := range map[string]string{
		productSchemaURL:  "schema/product.schema.json",
		categorySchemaURL: "schema/category.schema.json",
	} {
		content, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", file, err)
		}
		schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("failed to decode schema %s: %w", file, err)
		}
		if err := compiler.AddResource(url, schemaDoc); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", file, err)
		}
	}

	product, err := compiler.Compile(productSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile product schema: %w", err)
	}
	category, err := compiler.Compile(categorySchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile category schema: %w", err)
	}

	return &Validator{product: product, category: category}, nil
}

// ValidateProduct returns nil when the document may be written.
func (v *Validator) ValidateProduct(doc *domain.ProductDocument) *domain.Rejection {
	return validate(v.product, doc, doc.ProductID, domain.ProductDocumentKind)
}

func (v *Validator) ValidateCategory(doc *domain.CategoryDocument) *domain.Rejection {
	return validate(v.category, doc, doc.CategoryID, domain.CategoryDocumentKind)
}

func validate(schema *jsonschema.Schema, doc any, id string, docKind domain.DocumentKind) *domain.Rejection {
	// Validate the encoded form so omitted fields look exactly as they will on disk
	raw, err := json.Marshal(doc)
	if err != nil {
		return &domain.Rejection{DocumentID: id, Kind: docKind, MissingFields: []string{}, Violations: []string{err.Error()}}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &domain.Rejection{DocumentID: id, Kind: docKind, MissingFields: []string{}, Violations: []string{err.Error()}}
	}

	err = schema.Validate(instance)
	if err == nil {
		return nil
	}

	rejection := &domain.Rejection{DocumentID: id, Kind: docKind, MissingFields: []string{}}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		rejection.Violations = []string{err.Error()}
		return rejection
	}

	collectFailures(validationErr, rejection)
	sort.Strings(rejection.MissingFields)
	sort.Strings(rejection.Violations)
	return rejection
}

// collectFailures flattens the error tree. Absent properties and empty required strings
// are both reported as missing fields; everything else is a violation.
func collectFailures(validationErr *jsonschema.ValidationError, rejection *domain.Rejection) {
	switch k := validationErr.ErrorKind.(type) {
	case *kind.Required:
		for _, name := range k.Missing {
			rejection.MissingFields = append(rejection.MissingFields, fieldPath(validationErr.InstanceLocation, name))
		}
	case *kind.MinLength:
		rejection.MissingFields = append(rejection.MissingFields, fieldPath(validationErr.InstanceLocation))
	default:
		if len(validationErr.Causes) == 0 {
			rejection.Violations = append(rejection.Violations,
				fmt.Sprintf("%s: %s", fieldPath(validationErr.InstanceLocation), leafMessage(validationErr)))
		}
	}

	for _, cause := range validationErr.Causes {
		collectFailures(cause, rejection)
	}
}

func fieldPath(location []string, extra ...string) string {
	parts := append(append([]string(nil), location...), extra...)
	if len(parts) == 0 {
		return "$"
	}
	return strings.Join(parts, ".")
}

func leafMessage(validationErr *jsonschema.ValidationError) string {
	lines := strings.Split(strings.TrimSpace(validationErr.Error()), "\n")
	return strings.TrimSpace(strings.TrimPrefix(lines[len(lines)-1], "-"))
}
