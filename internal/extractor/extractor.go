package extractor

import (
	"context"
	"fmt"
	"os"

	"orangecatalog/pipeline/internal/domain"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type Extractor struct {
	parser  Parser
	workers int
}

func New(parser Parser, workers int) *Extractor {
	if workers < 1 {
		workers = 1
	}
	return &Extractor{
		parser:  parser,
		workers: workers,
	}
}

type extraction struct {
	page    *domain.ExtractedPage
	failure *domain.ParseFailure
}

// ExtractAll parses sources in parallel. Pages come back in the order of sources, so the
// caller sees the same sequence regardless of how the workers were scheduled.
// A source that cannot be read or parsed becomes a ParseFailure; only cancellation aborts.
func (e *Extractor) ExtractAll(ctx context.Context, sources []domain.SourceFile) ([]*domain.ExtractedPage, []domain.ParseFailure, error) {
	results := make([]extraction, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			page, err := e.extractOne(src)
			if err != nil {
				log.WithField("source", src.RelPath).Errorf("❌ Skipping unparseable source: %v", err)
				results[i] = extraction{failure: &domain.ParseFailure{Source: src.RelPath, Reason: err.Error()}}
				return nil
			}
			results[i] = extraction{page: page}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("extraction interrupted: %w", err)
	}

	pages := make([]*domain.ExtractedPage, 0, len(sources))
	failures := make([]domain.ParseFailure, 0)
	for _, result := range results {
		if result.failure != nil {
			failures = append(failures, *result.failure)
			continue
		}
		pages = append(pages, result.page)
	}

	log.Infof("✅ Extracted %d pages (%d failed)", len(pages), len(failures))
	return pages, failures, nil
}

func (e *Extractor) extractOne(src domain.SourceFile) (*domain.ExtractedPage, error) {
	body, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return e.parser.ParsePage(src, body)
}
