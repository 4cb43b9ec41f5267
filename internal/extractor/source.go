package extractor

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"orangecatalog/pipeline/internal/domain"

	log "github.com/sirupsen/logrus"
)

var ErrUnsupportedSource = errors.New("unsupported source file")

// Discover walks root and returns every saved page in lexicographic order of its relative path.
// The directory a file sits in names its category context.
func Discover(root string) ([]domain.SourceFile, error) {
	var sources []domain.SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (d.Name() == "frames" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		kind, err := kindOf(d.Name())
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		sources = append(sources, domain.SourceFile{
			Path:            path,
			RelPath:         rel,
			CategoryContext: categoryContext(rel),
			Kind:            kind,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory %s: %w", root, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].RelPath < sources[j].RelPath })

	log.Debugf("Discovered %d source files under %s", len(sources), root)
	return sources, nil
}

func kindOf(name string) (domain.SourceKind, error) {
	lower := strings.ToLower(name)
	switch {
	case lower == "manifest.json":
		return "", ErrUnsupportedSource
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return domain.SourceHTML, nil
	case strings.HasSuffix(lower, ".json"):
		return domain.SourceJSON, nil
	}
	return "", ErrUnsupportedSource
}

// categoryContext turns "Tools/Power Drills/index.html" into "tools/power-drills".
// Files at the root take their context from the file name.
func categoryContext(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		base := filepath.Base(rel)
		return domain.Slugify(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	parts := strings.Split(dir, "/")
	slugs := make([]string, 0, len(parts))
	for _, part := range parts {
		if slug := domain.Slugify(part); slug != "" {
			slugs = append(slugs, slug)
		}
	}
	return strings.Join(slugs, "/")
}
