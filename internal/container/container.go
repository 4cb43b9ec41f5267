package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orangecatalog/pipeline/internal/categorizer"
	"orangecatalog/pipeline/internal/config"
	"orangecatalog/pipeline/internal/domain"
	"orangecatalog/pipeline/internal/emitter"
	"orangecatalog/pipeline/internal/extractor"
	"orangecatalog/pipeline/internal/merger"
	"orangecatalog/pipeline/internal/queue"
	"orangecatalog/pipeline/internal/repository"
	"orangecatalog/pipeline/internal/search"
	"orangecatalog/pipeline/internal/service"
	"orangecatalog/pipeline/internal/state"
	"orangecatalog/pipeline/internal/taxonomy"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var ErrSearchDisabled = errors.New("search index is disabled")

// Container holds all initialized components
type Container struct {
	Config       *config.Config
	Repository   repository.DocumentRepository
	Queue        queue.Publisher
	StateManager state.StateManager
	Indexer      *search.Indexer

	Service *service.Service

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	decl, err := taxonomy.LoadDeclaration(cfg.Taxonomy.File)
	if err != nil {
		return nil, err
	}
	log.Infof("✅ Loaded taxonomy %s (%d departments, %d rules)", cfg.Taxonomy.File, len(decl.Departments), len(decl.Rules))

	rules, err := categorizer.New(decl)
	if err != nil {
		return nil, err
	}

	validator, err := emitter.NewValidator()
	if err != nil {
		return nil, err
	}

	if cfg.Database.Enabled {
		db, err := pgxpool.New(ctx,
			fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.Database.Host,
				cfg.Database.Port,
				cfg.Database.User,
				cfg.Database.Password,
				cfg.Database.Name,
			))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		container.db = db

		documentRepo := repository.NewDocumentRepository(db)
		if err := documentRepo.EnsureSchema(ctx); err != nil {
			container.Close()
			return nil, err
		}
		container.Repository = documentRepo
		log.Info("✅ Connected to Postgres successfully")
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		container.redis = rdb

		// Test connection
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis successfully")

		container.Queue = queue.NewRedisQueue(rdb, cfg.Redis)
		container.StateManager = state.NewRedisStateManager(rdb, time.Duration(cfg.Redis.LockTTL)*time.Second)
	} else {
		container.StateManager = state.NewFileStateManager(cfg.Output.Root, cfg.Output.ReportDir)
	}

	deps := service.Dependencies{
		Extractor:    extractor.New(extractor.NewParser(cfg.Pipeline.BaseURL), cfg.Pipeline.Workers),
		Merger:       merger.New(merger.Options{TextPolicy: merger.Policy(cfg.Pipeline.Merge.TextPolicy), NumericPolicy: merger.Policy(cfg.Pipeline.Merge.NumericPolicy)}),
		Categorizer:  rules,
		Declaration:  decl,
		Validator:    validator,
		Writer:       emitter.NewWriter(cfg.Output.Root),
		StateManager: container.StateManager,
		Repository:   container.Repository,
		Publisher:    container.Queue,
	}
	if cfg.Search.Enabled {
		container.Indexer = search.NewIndexer(cfg.Search.IndexDir)
		deps.Indexer = container.Indexer
	}

	container.Service = service.NewService(deps, service.Options{
		InputDir:       cfg.Pipeline.InputDir,
		ReportDir:      cfg.Output.ReportDir,
		Version:        cfg.Pipeline.Version,
		CountPolicy:    taxonomy.CountPolicy(cfg.Pipeline.CountPolicy),
		FeaturedBrands: cfg.Pipeline.FeaturedBrands,
	})

	return container, nil
}

// Run executes one full pipeline pass
func (c *Container) Run(ctx context.Context) error {
	report, err := c.Service.Run(ctx)
	if err != nil {
		return err
	}
	if len(report.Rejections) > 0 || len(report.ParseFailures) > 0 {
		log.Warnf("⚠️ Run %s finished with %d rejected documents and %d unparseable sources",
			report.RunID, len(report.Rejections), len(report.ParseFailures))
	}
	return nil
}

// LastRun returns the report of the most recent finished run, or nil if none was recorded
func (c *Container) LastRun(ctx context.Context) (*domain.RunReport, error) {
	return c.StateManager.LastRun(ctx)
}

// Search returns product ids from the index built by the last run
func (c *Container) Search(query string, size int) ([]string, error) {
	if c.Indexer == nil {
		return nil, ErrSearchDisabled
	}
	return c.Indexer.Search(query, size)
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			return fmt.Errorf("failed to close Redis client: %w", err)
		}
	}

	log.Info("Container shut down successfully")
	return nil
}
