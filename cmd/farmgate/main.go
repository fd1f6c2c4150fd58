// farmgate receives CRM and accounting webhooks, verifies them, and applies
// them idempotently to the canonical contact and opportunity records while
// keeping a durable delivery and integration-event audit trail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/act-ops/farmgate/internal/audit"
	"github.com/act-ops/farmgate/internal/config"
	"github.com/act-ops/farmgate/internal/crm"
	"github.com/act-ops/farmgate/internal/events"
	"github.com/act-ops/farmgate/internal/log"
	"github.com/act-ops/farmgate/internal/pipeline"
	"github.com/act-ops/farmgate/internal/projects"
	"github.com/act-ops/farmgate/internal/reconcile"
	"github.com/act-ops/farmgate/internal/records"
	"github.com/act-ops/farmgate/internal/storage"
	"github.com/act-ops/farmgate/internal/webhook"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "./config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("farmgate", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "farmgate:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("starting", "service", cfg.Service.Name, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg.State.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	deliveries := audit.NewDeliveryLog(db)
	eventLog := audit.NewEventLog(db)
	contacts := records.NewContactStore(db)
	opportunities := records.NewOpportunityStore(db)

	loader := projects.StaticLoader(projects.DefaultCodes...)
	if cfg.Projects.File != "" {
		loader = projects.FileLoader(cfg.Projects.File)
	}
	registry, err := projects.NewRegistry(loader)
	if err != nil {
		return err
	}
	logger.Info("project vocabulary loaded", "codes", len(registry.All()))

	hub := events.NewHub(256)

	processor := pipeline.NewProcessor(
		deliveries,
		eventLog,
		hub,
		config.HashBytes,
		cfg.Service.ProcessTimeout,
		log.WithComponent("pipeline"),
	)

	for _, src := range cfg.Webhooks.Sources {
		switch src.Name {
		case "ghl":
			processor.Register(src.Name, crm.NewHandler(contacts, opportunities, registry, log.WithSource(src.Name)))
		case "xero":
			processor.Register(src.Name, crm.NewAccountingHandler(contacts, log.WithSource(src.Name)))
		default:
			logger.Warn("no handler for configured source; its events will be skipped", "source", src.Name)
		}
	}

	reconciler := reconcile.New(deliveries, hub, cfg.Service.StaleAfter, cfg.Service.ReconcileInterval, log.WithComponent("reconcile"))
	go func() { _ = reconciler.Run(ctx) }()

	feed, cancelFeed := hub.Subscribe()
	defer cancelFeed()
	go func() {
		for ev := range feed {
			logger.Debug("event feed", "type", ev.Type, "data", string(ev.Data))
		}
	}()

	webhookCfg, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return err
	}

	server := webhook.New(webhookCfg, processor, log.WithComponent("webhook"))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("stopped")
	return nil
}
