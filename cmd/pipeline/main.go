// Command pipeline runs a single declarative ETL pipeline document to
// completion. Restructured from the teacher's top-level package-main
// entrypoint style (sink.go, resolved_table.go) into a dedicated cmd/
// binary, the layout convention visible elsewhere in the example pack
// (e.g. loicalleyne-arrowarc, malbeclabs-lake).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/lyteabovenyte/rde/internal/config"
	"github.com/lyteabovenyte/rde/internal/runner"
	"github.com/lyteabovenyte/rde/internal/stopper"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := realMain(); err != nil {
		log.WithError(err).Error("pipeline: fatal error")
		os.Exit(1)
	}
}

func realMain() error {
	configureLogging()

	var cfg config.Config
	cfg.Bind(pflag.CommandLine)
	pflag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	spec, err := runner.LoadSpec(cfg.PipelinePath)
	if err != nil {
		return err
	}

	run, err := runner.New(spec, cfg.ChannelCapacity)
	if err != nil {
		return err
	}

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Operators receive a plain, never-cancelled context: shutdown is
	// driven exclusively through stop.Stopping()/stop.Stop(), not by
	// racing ctx.Done() against the signal. Otherwise SIGINT/SIGTERM
	// would cancel ctx before stop.Stop() is ever called, and every
	// operator would take a hard-abort path instead of draining (and the
	// iceberg sink would skip its final commit).
	runCtx := context.Background()
	stop := stopper.WithContext(sigCtx)
	runErr := make(chan error, 1)
	go func() { runErr <- run.Run(runCtx, stop) }()

	select {
	case err := <-runErr:
		return err
	case <-sigCtx.Done():
		log.Info("pipeline: interrupt received, draining")
		if err := stop.Stop(shutdownGrace); err != nil {
			return err
		}
		return <-runErr
	}
}

func configureLogging() {
	level, err := log.ParseLevel(os.Getenv("RDE_LOG_LEVEL"))
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
