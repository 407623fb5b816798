// Command yocore is the headless session-watcher daemon: it wires the
// filesystem watcher, storage backend, AI task queue, knowledge subsystem,
// scheduler, and service-surface contracts into one running process,
// following the teacher's cmd/cliairmonitor/main.go shape (flag parsing,
// config load with fallback to defaults, component construction in
// dependency order, signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yocore/yocore/internal/aiqueue"
	"github.com/yocore/yocore/internal/api"
	"github.com/yocore/yocore/internal/config"
	"github.com/yocore/yocore/internal/embed"
	"github.com/yocore/yocore/internal/eventbus"
	"github.com/yocore/yocore/internal/ingest"
	"github.com/yocore/yocore/internal/knowledge"
	"github.com/yocore/yocore/internal/mcp"
	"github.com/yocore/yocore/internal/mdns"
	"github.com/yocore/yocore/internal/parser"
	"github.com/yocore/yocore/internal/parser/claudecode"
	"github.com/yocore/yocore/internal/parser/openclaw"
	"github.com/yocore/yocore/internal/scheduler"
	"github.com/yocore/yocore/internal/storage"
	"github.com/yocore/yocore/internal/storage/ephemeral"
	"github.com/yocore/yocore/internal/storage/sqlite"
)

// version is stamped into the /health payload (spec.md §6).
const version = "0.1.0"

func main() {
	configPath := flag.String("config", "configs/yocore.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "Override server port (0 = use config)")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  yocore - session transcript watcher")
	log.Println("===============================================")

	cfg := loadConfig(*configPath)
	if *port > 0 {
		cfg.Server.Port = *port
	}
	log.Printf("[MAIN] Storage mode: %s", cfg.Storage)
	log.Printf("[MAIN] Server port: %d", cfg.Server.Port)
	log.Printf("[MAIN] Watch roots: %d", len(cfg.Watch))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("[MAIN] Failed to create data directory: %v", err)
	}

	backend, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("[MAIN] Failed to initialize storage backend: %v", err)
	}
	defer backend.Close()
	log.Printf("[MAIN] Storage backend initialized (%s)", backend.Mode())

	bus, err := eventbus.New()
	if err != nil {
		log.Fatalf("[MAIN] Failed to start eventbus: %v", err)
	}
	defer bus.Close()
	log.Println("[MAIN] Eventbus started")

	engine, err := openEmbeddingEngine()
	if err != nil {
		log.Printf("[MAIN] Embedding engine unavailable, search falls back to FTS-only: %v", err)
	} else {
		defer engine.Close()
		log.Println("[MAIN] Embedding engine initialized")
	}

	sink := knowledge.NewSink(backend, engine)

	queue := aiqueue.New(aiqueue.Config{
		Binary:      "claude",
		Concurrency: maxInt(cfg.AI.Concurrency, 1),
	}, backend, bus, sink)
	defer queue.Stop()
	log.Println("[MAIN] AI task queue initialized")

	registry := parser.NewRegistry()
	registry.Register(claudecode.New())
	registry.Register(openclaw.New())

	pipeline := ingest.New(cfg, registry, backend, bus, queue)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipeline.Start(ctx); err != nil {
		log.Fatalf("[MAIN] Failed to start ingestion pipeline: %v", err)
	}
	defer pipeline.Stop()
	log.Println("[MAIN] Ingestion pipeline started")

	sched, err := scheduler.New(cfg.Scheduler, cfg.AI, backend, sink, bus)
	if err != nil {
		log.Fatalf("[MAIN] Failed to construct scheduler: %v", err)
	}
	sched.Start()
	defer sched.Stop()
	log.Println("[MAIN] Scheduler started")

	svc := api.NewService(backend, engine)
	tools := mcp.NewToolSet(svc)
	_ = tools // consumed by the stdio MCP transport, external to this module (spec.md §4.8)

	meta, err := backend.GetOrCreateInstanceMetadata(ctx, cfg.Server.InstanceName)
	if err != nil {
		log.Fatalf("[MAIN] Failed to resolve instance metadata: %v", err)
	}
	health := api.BuildHealth(version, meta, backend)
	log.Printf("[MAIN] Instance %s ready (storage=%s)", health.InstanceUUID, health.Storage)

	closeAdvert := startMDNS(cfg, meta, backend)
	defer closeAdvert()

	log.Println("===============================================")
	log.Printf("  yocore ready!")
	log.Printf("  Health:    http://%s:%d/health (external router)", cfg.Server.Host, cfg.Server.Port)
	log.Println("===============================================")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[MAIN] Shutdown signal received")
	log.Println("[MAIN] yocore shutdown complete")
}

func loadConfig(path string) *config.Config {
	if _, err := os.Stat(path); err == nil {
		cfg, err := config.Load(path)
		if err != nil {
			log.Printf("[MAIN] Warning: failed to load config from %s: %v", path, err)
			log.Println("[MAIN] Using default configuration")
			return config.Default()
		}
		log.Printf("[MAIN] Loaded configuration from %s", path)
		return cfg
	}
	log.Println("[MAIN] Config file not found, using defaults")
	return config.Default()
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage {
	case config.StorageEphemeral:
		return ephemeral.New(ephemeral.Config{
			MaxSessions:           cfg.Ephemeral.MaxSessions,
			MaxMessagesPerSession: cfg.Ephemeral.MaxMessagesPerSession,
		}), nil
	default:
		return sqlite.Open(cfg.DataDir)
	}
}

func openEmbeddingEngine() (*embed.Engine, error) {
	modelDir := os.Getenv("YOLOG_EMBED_MODEL_DIR")
	if modelDir == "" {
		return nil, fmt.Errorf("YOLOG_EMBED_MODEL_DIR not set")
	}
	return embed.Get(embed.Config{ModelDir: modelDir, OrtLibPath: os.Getenv("YOLOG_ORT_LIB_PATH")})
}

func startMDNS(cfg *config.Config, meta storage.InstanceMetadata, backend storage.Backend) func() {
	if mdns.Suppress(cfg.Server.Host, cfg.Server.MDNSEnabled) {
		log.Println("[MAIN] mDNS advertisement suppressed")
		return func() {}
	}

	hostname, _ := os.Hostname()
	projects, err := backend.ListProjects(context.Background())
	if err != nil {
		log.Printf("[MAIN] mDNS: failed to count projects: %v", err)
	}

	closer, err := mdns.Advertise(mdns.TxtInfo{
		Version:        version,
		InstanceUUID:   meta.UUID,
		Hostname:       hostname,
		InstanceName:   cfg.Server.InstanceName,
		APIKeyRequired: cfg.Server.APIKey != "",
		ProjectCount:   len(projects),
	}, cfg.Server.Port)
	if err != nil {
		log.Printf("[MAIN] mDNS advertisement failed: %v", err)
		return func() {}
	}
	log.Println("[MAIN] mDNS advertisement started")
	return func() {
		if err := closer.Close(); err != nil {
			log.Printf("[MAIN] mDNS de-advertisement error: %v", err)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
