// redbctl opens a store file and exposes its metrics, health, and pprof
// endpoints over HTTP. The storage engine itself is a library; this
// binary is the minimal embedding application that exercises it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	redb "github.com/weids-dev/radarbase"
	"github.com/weids-dev/radarbase/internal/logger"
	"github.com/weids-dev/radarbase/internal/observability"
)

var (
	port     = flag.Int("port", 9090, "Observability server port (metrics, health, pprof)")
	dbPath   = flag.String("db", "redb.db", "Store file path")
	maxSize  = flag.Int64("max-size", 0, "Initial file size in bytes (0 = default)")
	logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
)

func main() {
	flag.Parse()

	logger.InitGlobalLogger(logger.Config{Level: *logLevel, Pretty: true})
	log := logger.GetGlobalLogger()

	log.Info("starting redb").
		Str("db", *dbPath).
		Int("observability_port", *port).
		Send()

	size := *maxSize
	var db *redb.Database
	var err error
	if size > 0 {
		db, err = redb.OpenSized(*dbPath, size)
	} else {
		db, err = redb.Open(*dbPath)
	}
	if err != nil {
		log.Fatal("failed to open store").Err(err).Send()
	}
	defer db.Close()

	obs := observability.NewServer(*port, db.Registry(), log)

	go func() {
		if err := obs.Start(); err != nil {
			log.Error("observability server failed").Err(err).Send()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down gracefully").Send()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := obs.Shutdown(ctx); err != nil {
		log.Error("observability shutdown error").Err(err).Send()
	}
}
