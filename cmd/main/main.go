package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"orangecatalog/pipeline/internal/config"
	"orangecatalog/pipeline/internal/container"
	"orangecatalog/pipeline/internal/emitter"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	query := pflag.String("search", "", "print product ids matching the query from the last built index and exit")
	limit := pflag.Int("limit", 10, "maximum number of search results")
	lastRun := pflag.Bool("last-run", false, "print the report of the last finished run and exit")
	pflag.Parse()

	// Optional; real environment variables take precedence
	_ = godotenv.Load()

	// Load configuration using viper
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Logging)

	log.Info("Starting catalog pipeline...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize container with all dependencies
	app, err := container.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Read-only modes print to stdout and skip the run
	switch {
	case *lastRun:
		err = printLastRun(ctx, app)
	case *query != "":
		err = printSearch(app, *query, *limit)
	}
	if *lastRun || *query != "" {
		app.Close()
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		return
	}

	// Run the pipeline
	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		log.Warnf("⚠️ %v", err)
	}
	if runErr != nil {
		log.Fatalf("Pipeline exited with error: %v", runErr)
	}

	log.Info("Pipeline finished successfully")
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("⚠️ Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func printLastRun(ctx context.Context, app *container.Container) error {
	report, err := app.LastRun(ctx)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("no finished run recorded")
		return nil
	}
	data, err := emitter.Encode(report)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func printSearch(app *container.Container, query string, limit int) error {
	ids, err := app.Search(query, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}
