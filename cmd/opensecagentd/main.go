// opensecagentd is the host security agent daemon.
//
// It runs the collector/detector/correlator/policy/responder pipeline on a
// single host: periodic inventory collection, config-drift and probe
// detection, incident correlation, policy-gated containment, and an
// optional bounded LLM agent for scan/remediation assistance.
//
// Usage:
//
//	opensecagentd --config /etc/opensecagent/config.yaml
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opensecagent/agent/internal/config"
	"github.com/opensecagent/agent/internal/daemon"
)

var (
	flagConfig   = flag.String("config", "/etc/opensecagent/config.yaml", "Config file path")
	flagVersion  = flag.Bool("version", false, "Print version and exit")
	flagValidate = flag.Bool("validate", false, "Validate the config file and exit (fatal on any error)")
)

func main() {
	flag.Parse()

	if *flagVersion {
		log.Printf("opensecagentd %s", daemon.Version)
		os.Exit(0)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, warnings, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if *flagValidate {
		if len(warnings) > 0 {
			for _, w := range warnings {
				log.Printf("config error: %s", w)
			}
			log.Fatalf("config validation failed with %d error(s)", len(warnings))
		}
		log.Println("config is valid")
		os.Exit(0)
	}

	for _, w := range warnings {
		log.Printf("config warning: %s", w)
	}

	logger := log.New(os.Stderr, "[opensecagentd] ", log.LstdFlags)

	d, err := daemon.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Printf("shutdown signal: %v", sig)
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		log.Fatalf("daemon exited with error: %v", err)
	}
}
