package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"orangecatalog/pipeline/internal/categorizer"
	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/domain/task"
	"orangecatalog/pipeline/internal/emitter"
	"orangecatalog/pipeline/internal/extractor"
	"orangecatalog/pipeline/internal/merger"
	"orangecatalog/pipeline/internal/queue"
	"orangecatalog/pipeline/internal/repository"
	"orangecatalog/pipeline/internal/search"
	"orangecatalog/pipeline/internal/state"
	"orangecatalog/pipeline/internal/taxonomy"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Dependencies are the stage implementations a run is assembled from.
// Repository, Publisher and Indexer are optional.
type Dependencies struct {
	Extractor    *extractor.Extractor
	Merger       *merger.Merger
	Categorizer  *categorizer.Categorizer
	Declaration  *domain.TaxonomyDeclaration
	Validator    *emitter.Validator
	Writer       *emitter.Writer
	StateManager state.StateManager

	Repository repository.DocumentRepository
	Publisher  queue.Publisher
	Indexer    *search.Indexer
}

type Options struct {
	InputDir       string
	ReportDir      string
	Version        string
	CountPolicy    taxonomy.CountPolicy
	FeaturedBrands int

	// Now and NewRunID default to the wall clock and random UUIDs.
	Now      func() time.Time
	NewRunID func() string
}

type Service struct {
	Dependencies
	opts Options
}

func NewService(deps Dependencies, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Service{Dependencies: deps, opts: opts}
}

// Run executes one full pass: extract, merge, categorize, build the taxonomy and emit.
// Per-source parse failures and per-document rejections are recorded in the report;
// I/O failures on the output tree abort the run.
func (s *Service) Run(ctx context.Context) (*domain.RunReport, error) {
	startedAt := s.opts.Now().UTC()
	report := domain.NewRunReport(s.opts.NewRunID(), startedAt)
	logger := log.WithField("runId", report.RunID)

	release, err := s.StateManager.AcquireLock(ctx, report.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	defer release()

	logger.Infof("🚀 Starting catalog run from %s", s.opts.InputDir)

	sources, err := extractor.Discover(s.opts.InputDir)
	if err != nil {
		return nil, err
	}
	report.SourcesScanned = len(sources)

	pages, failures, err := s.Extractor.ExtractAll(ctx, sources)
	if err != nil {
		return nil, err
	}
	report.ParseFailures = append(report.ParseFailures, failures...)
	for _, page := range pages {
		if len(page.Records) == 0 {
			report.EmptyPages = append(report.EmptyPages, page.Source.RelPath)
		}
	}

	products, stats := s.Merger.Merge(pages)
	report.RecordsExtracted = stats.RawRecords
	report.DuplicatesMerged = stats.DuplicatesMerged
	report.CanonicalProducts = stats.CanonicalProducts
	logger.Infof("🔗 Merged %d records into %d products (%d duplicates)", stats.RawRecords, stats.CanonicalProducts, stats.DuplicatesMerged)

	s.categorize(products, report)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lastUpdated := startedAt.Format(time.RFC3339)
	// Root-relative paths written by this run; everything else in the tree is stale
	keep := make(map[string]bool)

	accepted, err := s.emitProducts(ctx, products, lastUpdated, keep, report)
	if err != nil {
		return nil, err
	}

	// The tree is built from accepted products only, so category documents never list a rejected product
	tree, warnings := taxonomy.Build(s.Declaration, accepted, taxonomy.Options{
		CountPolicy:    s.opts.CountPolicy,
		FeaturedBrands: s.opts.FeaturedBrands,
	})
	report.TaxonomyWarnings = append(report.TaxonomyWarnings, warnings...)

	if err := s.emitCategories(ctx, tree, lastUpdated, keep, report); err != nil {
		return nil, err
	}

	index := emitter.BuildIndex(tree, s.opts.Version, lastUpdated)
	indexPath, err := s.Writer.WriteIndex(index)
	if err != nil {
		return nil, fmt.Errorf("failed to write category index: %w", err)
	}
	keep[indexPath] = true

	removed, err := s.Writer.Prune(keep)
	if err != nil {
		return nil, fmt.Errorf("failed to remove stale documents: %w", err)
	}
	report.StaleRemoved = removed
	if removed > 0 {
		logger.Infof("🧹 Removed %d documents left by earlier runs", removed)
	}
	s.mirror(ctx, domain.IndexDocumentKind, map[string]any{"index": index}, report)

	if s.Indexer != nil {
		s.buildSearchIndex(tree, accepted, report)
	}

	report.FinishedAt = s.opts.Now().UTC()
	s.publish(ctx, report)

	if err := s.writeReport(report); err != nil {
		return nil, err
	}
	if err := s.StateManager.SaveLastRun(ctx, report); err != nil {
		logger.Warnf("⚠️ Failed to record last run: %v", err)
	}

	logger.WithFields(log.Fields{
		"extracted":   report.RecordsExtracted,
		"merged":      report.DuplicatesMerged,
		"categorized": report.Categorized,
		"other":       report.RoutedToOther,
		"products":    report.ProductsEmitted,
		"categories":  report.CategoriesEmitted,
		"rejected":    len(report.Rejections),
	}).Infof("🎉 Run finished in %v", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	return report, nil
}

func (s *Service) categorize(products []*domain.CanonicalProduct, report *domain.RunReport) {
	for _, p := range products {
		result := s.Categorizer.Categorize(p)
		categorizer.Apply(p, result)

		report.TaxonomyWarnings = append(report.TaxonomyWarnings, result.Warnings...)
		for _, warning := range result.Warnings {
			log.WithField("productId", p.ProductID).Warnf("⚠️ %s (%s)", warning.Reason, warning.Reference)
		}

		if result.CategoryID == domain.OtherDepartment {
			report.RoutedToOther++
		} else {
			report.Categorized++
		}
	}
	log.Infof("🗂️ Categorized %d products, %d routed to %s", report.Categorized, report.RoutedToOther, domain.OtherDepartment)
}

// emitProducts writes every product document that passes validation and returns the
// products that were written.
func (s *Service) emitProducts(ctx context.Context, products []*domain.CanonicalProduct, lastUpdated string, keep map[string]bool, report *domain.RunReport) ([]*domain.CanonicalProduct, error) {
	accepted := make([]*domain.CanonicalProduct, 0, len(products))
	written := make(map[string]any, len(products))

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc := emitter.BuildProductDocument(p, s.opts.Version, lastUpdated)
		if rejection := s.Validator.ValidateProduct(doc); rejection != nil {
			log.WithFields(log.Fields{
				"productId":  p.ProductID,
				"missing":    rejection.MissingFields,
				"violations": rejection.Violations,
			}).Warn("⚠️ Product document rejected")
			report.Rejections = append(report.Rejections, *rejection)
			continue
		}

		rel, err := s.Writer.WriteProduct(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to write product %s: %w", p.ProductID, err)
		}
		keep[rel] = true
		accepted = append(accepted, p)
		written[p.ProductID] = doc
	}

	report.ProductsEmitted = len(accepted)
	log.Infof("📦 Wrote %d product documents (%d rejected)", len(accepted), len(products)-len(accepted))

	s.mirror(ctx, domain.ProductDocumentKind, written, report)
	return accepted, nil
}

func (s *Service) emitCategories(ctx context.Context, tree *taxonomy.Tree, lastUpdated string, keep map[string]bool, report *domain.RunReport) error {
	written := make(map[string]any)

	for _, node := range tree.Nodes() {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc := emitter.BuildCategoryDocument(node, s.opts.Version, lastUpdated)
		if rejection := s.Validator.ValidateCategory(doc); rejection != nil {
			log.WithField("categoryId", node.ID).Warn("⚠️ Category document rejected")
			report.Rejections = append(report.Rejections, *rejection)
			continue
		}

		rel, err := s.Writer.WriteCategory(doc)
		if err != nil {
			return fmt.Errorf("failed to write category %s: %w", node.ID, err)
		}
		keep[rel] = true
		written[node.ID] = doc
	}

	report.CategoriesEmitted = len(written)
	log.Infof("📁 Wrote %d category documents", len(written))

	s.mirror(ctx, domain.CategoryDocumentKind, written, report)
	return nil
}

// mirror copies written documents to Postgres. The files on disk are authoritative,
// so a failed mirror only counts against the report.
func (s *Service) mirror(ctx context.Context, kind domain.DocumentKind, docs map[string]any, report *domain.RunReport) {
	if s.Repository == nil || len(docs) == 0 {
		return
	}

	if len(docs) == 1 {
		for id, doc := range docs {
			if err := s.Repository.SaveDocument(ctx, kind, id, doc); err != nil {
				log.Errorf("❌ Failed to mirror %s %s: %v", kind, id, err)
				report.MirrorFailures++
			}
		}
		return
	}

	if err := s.Repository.SaveDocuments(ctx, kind, docs); err != nil {
		log.Errorf("❌ Failed to mirror %d %s documents: %v", len(docs), kind, err)
		report.MirrorFailures += len(docs)
	}
}

func (s *Service) buildSearchIndex(tree *taxonomy.Tree, products []*domain.CanonicalProduct, report *domain.RunReport) {
	docs := make([]search.Document, 0, len(products))
	for _, p := range products {
		categoryName := ""
		if node, ok := tree.Node(p.CategoryID); ok {
			categoryName = node.Name
		}
		docs = append(docs, search.NewDocument(p, categoryName))
	}

	if err := s.Indexer.Build(docs); err != nil {
		log.Errorf("❌ Failed to build search index: %v", err)
		return
	}
	report.SearchDocuments = len(docs)
}

func (s *Service) publish(ctx context.Context, report *domain.RunReport) {
	if s.Publisher == nil {
		return
	}

	tasks := make([]task.Task, 0, len(report.Rejections)+1)
	for _, rejection := range report.Rejections {
		tasks = append(tasks, &task.DocumentRejectedTask{
			RunID:         report.RunID,
			DocumentID:    rejection.DocumentID,
			Kind:          string(rejection.Kind),
			MissingFields: rejection.MissingFields,
			Violations:    rejection.Violations,
		})
	}
	tasks = append(tasks, &task.RunCompletedTask{
		RunID:             report.RunID,
		OutputRoot:        s.Writer.Root(),
		ProductsEmitted:   report.ProductsEmitted,
		CategoriesEmitted: report.CategoriesEmitted,
		Rejections:        len(report.Rejections),
		FinishedAt:        report.FinishedAt.Format(time.RFC3339),
	})

	for _, t := range tasks {
		if _, err := s.Publisher.AddTask(ctx, t); err != nil {
			log.Errorf("❌ Failed to publish %s: %v", t.TaskType(), err)
			report.PublishFailures++
		}
	}
}

// writeReport stores the report outside the catalog tree so catalog output stays identical across runs.
func (s *Service) writeReport(report *domain.RunReport) error {
	data, err := emitter.Encode(report)
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	path := ReportPath(s.opts.ReportDir, report.RunID)
	if err := emitter.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	log.Infof("📝 Run report written to %s", path)
	return nil
}

func ReportPath(reportDir, runID string) string {
	return filepath.Join(reportDir, "run-"+runID+".json")
}
