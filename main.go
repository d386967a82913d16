package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow/internal/block"
	"leadflow/internal/config"
	"leadflow/internal/enrich"
	"leadflow/internal/filestore"
	"leadflow/internal/job"
	mcpserver "leadflow/internal/mcp"
	"leadflow/internal/service"
	"leadflow/internal/storage"
)

// logEmitter writes job lifecycle events to stderr. Stdout belongs to
// the MCP stdio transport.
type logEmitter struct{}

func (logEmitter) Emit(_ context.Context, event string, data any) {
	log.Printf("[event] %s %v", event, data)
}

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.API.Key == "" {
		log.Println("Warning: no API key configured; enrich_lead and find_email blocks will fail")
	}

	db, err := storage.New(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	files, err := filestore.New(cfg.UploadsDir(), cfg.OutputsDir())
	if err != nil {
		log.Fatalf("Failed to init file store: %v", err)
	}

	jobs := job.NewStore()
	executor := job.NewExecutor(jobs, &block.RunContext{
		Enrich:        enrich.NewClient(cfg.APIURLOrDefault(), cfg.API.Key),
		Files:         files,
		MaxConcurrent: cfg.MaxConcurrentOrDefault(),
	})

	svc := service.NewWorkflowService(
		storage.NewWorkflowStore(db),
		storage.NewRunLogStore(db),
		jobs, executor, files, logEmitter{},
	)
	svc.RestartWatchers(ctx)
	defer svc.Stop()

	mcpSrv := mcpserver.New(mcpserver.Deps{Workflows: svc})

	serveErr := make(chan error, 1)
	go func() { serveErr <- mcpSrv.ServeStdio() }()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatalf("MCP server error: %v", err)
		}
	case <-ctx.Done():
	}

	// Let in-flight jobs drain before exiting.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	svc.WaitRunning(drainCtx)
}
