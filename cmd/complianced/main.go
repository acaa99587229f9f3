// Command complianced is the PII compliance service.
//
// It scans text and chat messages for personally identifiable information,
// returns a redacted copy with a compliance score and recommendations, and
// tracks a risk level per chat session. Violations are written to an audit
// journal holding redacted text only.
//
// Usage:
//
//	# Defaults: 127.0.0.1:8090, journal in ./compliance-journal.db
//	./complianced
//
//	# Require a bearer token, keep the journal in memory
//	API_TOKEN=s3cret JOURNAL_PATH= ./complianced
//
//	# Alternate config file
//	COMPLIANCE_CONFIG=/etc/complianced.yaml ./complianced
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"pii-compliance-agent/internal/api"
	"pii-compliance-agent/internal/config"
	"pii-compliance-agent/internal/journal"
	"pii-compliance-agent/internal/logger"
	"pii-compliance-agent/internal/metrics"
	"pii-compliance-agent/internal/pii"
	"pii-compliance-agent/internal/pipeline"
	"pii-compliance-agent/internal/session"
)

func main() {
	cfg := config.Load()
	log := logger.New("MAIN", cfg.LogLevel)

	printBanner(cfg)

	// Panics if a built-in pattern fails to compile.
	detector := pii.NewDetector(pii.MustCatalog())

	j := journal.Open(cfg.JournalPath, log.Module("JOURNAL"))
	defer func() {
		if err := j.Close(); err != nil {
			log.Errorf("journal_close", "%v", err)
		}
	}()

	p := pipeline.New(detector, session.NewStore(),
		pipeline.WithJournal(j),
		pipeline.WithMetrics(metrics.New()),
		pipeline.WithLogger(log.Module("PIPELINE")),
	)
	srv := api.New(cfg, p, log.Module("API"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Errorf("listen", "%v", err)
		stop()
		_ = j.Close()
		os.Exit(1)
	}
	log.Info("exit", "shutdown complete")
}

func printBanner(cfg *config.Config) {
	journalDesc := cfg.JournalPath
	if journalDesc == "" {
		journalDesc = "(in memory; set JOURNAL_PATH to persist)"
	}
	auth := "disabled"
	if cfg.APIToken != "" {
		auth = "bearer token"
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          PII Compliance Agent  (Go)                  ║
╚══════════════════════════════════════════════════════╝
  Listen address  : %s
  Auth            : %s
  Journal         : %s
  WebSocket chat  : %v
  Max connections : %d

  Scan a text:
    curl -X POST http://%s/api/scan -d '{"text":"Call me at 555-123-4567"}'

  Check status:
    curl http://%s/status
`, cfg.Addr(), auth, journalDesc, cfg.EnableWebSocket, cfg.MaxConns,
		cfg.Addr(), cfg.Addr())
}
