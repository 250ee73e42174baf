// Command pulsewire-server runs the event distribution server.
//
// It terminates HTTP for the core: long-lived SSE connections on
// /v1/events, topic control on /v1/topics, subscription CRUD on
// /v1/subscriptions and the admin surface under /v1/admin.
//
// Usage:
//
//	pulsewire-server [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-listen string     Listen address (default ":8080")
//	-audit string      CBOR audit log path (empty disables file capture)
//	-advertise         Advertise the server via mDNS
//	-log-level string  Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# Start with defaults
//	pulsewire-server
//
//	# Start from a config file with audit capture
//	pulsewire-server -config /etc/pulsewire/server.yaml -audit /var/log/pulsewire/audit.cbor
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulsewire/pulsewire-go/pkg/config"
	"github.com/pulsewire/pulsewire-go/pkg/discovery"
	"github.com/pulsewire/pulsewire-go/pkg/log"
	"github.com/pulsewire/pulsewire-go/pkg/service"
	"github.com/pulsewire/pulsewire-go/pkg/stream"
)

var (
	flagConfig    = flag.String("config", "", "Configuration file path (YAML)")
	flagListen    = flag.String("listen", "", "Listen address (overrides config)")
	flagAudit     = flag.String("audit", "", "CBOR audit log path")
	flagAdvertise = flag.Bool("advertise", false, "Advertise the server via mDNS")
	flagLogLevel  = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pulsewire-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	slogger := newSlogger(*flagLogLevel)

	var file *config.File
	if *flagConfig != "" {
		var err error
		file, err = config.Load(*flagConfig)
		if err != nil {
			return err
		}
	} else {
		file = &config.File{}
	}

	streamCfg := file.StreamConfig()
	if *flagListen != "" {
		streamCfg.Addr = *flagListen
	}

	auditPath := file.AuditLog
	if *flagAudit != "" {
		auditPath = *flagAudit
	}

	logger, closeLogger, err := buildLogger(slogger, auditPath)
	if err != nil {
		return err
	}
	defer closeLogger()

	core := service.NewCore(file.CoreConfig(), logger)
	core.Start()
	defer core.Stop()

	server := stream.NewServer(streamCfg, core)

	if *flagAdvertise || file.Discovery.Enabled {
		adv := discovery.NewAdvertiser(discovery.Config{
			Instance: file.Discovery.Instance,
			Port:     listenPort(streamCfg.Addr),
		})
		if err := adv.Start(); err != nil {
			slogger.Warn("mDNS advertisement failed", "err", err)
		} else {
			defer adv.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		slogger.Info("listening", "addr", streamCfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slogger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

// buildLogger assembles the audit logger: always the slog adapter, plus the
// CBOR file logger when a path is configured.
func buildLogger(slogger *slog.Logger, auditPath string) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(slogger)
	if auditPath == "" {
		return adapter, func() {}, nil
	}

	fileLogger, err := log.NewFileLogger(auditPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	return log.NewMultiLogger(adapter, fileLogger), func() { _ = fileLogger.Close() }, nil
}

func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// listenPort extracts the numeric port from a listen address for mDNS.
func listenPort(addr string) int {
	port := 0
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			fmt.Sscanf(addr[i+1:], "%d", &port)
			break
		}
	}
	return port
}
