package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpert/topicmon/admin"
	"github.com/maxpert/topicmon/cfg"
	"github.com/maxpert/topicmon/monitor"
	"github.com/maxpert/topicmon/notify"
	"github.com/maxpert/topicmon/sigrelay"
	"github.com/maxpert/topicmon/telemetry"
	"github.com/maxpert/topicmon/topic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("instance_id", cfg.Config.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("topicmon - process topic monitor")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	backend, err := notify.ParseBackend(cfg.Config.Notifier.Backend)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid notifier backend")
		return
	}

	// The principal monitor must exist before any signal can be relayed to it
	mon := monitor.Initialize(monitor.Options{
		Notifier: notify.NotifierOptions{
			Backend:          backend,
			ForceNonBlocking: cfg.Config.Notifier.ForceNonBlocking,
		},
	})

	collector := telemetry.NewMetricsCollector(mon, time.Duration(cfg.Config.Watch.CollectIntervalMS)*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	// Topics were checked by Validate
	signalTopics, _ := cfg.ParseTopics(cfg.Config.Signals.Topics)
	watchTopics, _ := cfg.ParseTopics(cfg.Config.Watch.Topics)

	if cfg.Config.Signals.Relay {
		relay := sigrelay.New(monitor.Principal(), signalTopics)
		relay.Start()
		defer relay.Stop()
	}

	// SIGTERM ends the daemon by posting internal_exit
	termCh := make(chan os.Signal, 1)
	signal.Notify(termCh, syscall.SIGTERM)
	defer signal.Stop(termCh)
	go func() {
		for range termCh {
			monitor.Principal().Post(topic.InternalExit)
		}
	}()

	hub := notify.NewHub()
	defer hub.Close()

	changes, cancelChanges := hub.Subscribe(watchTopics)
	defer cancelChanges()
	exits, cancelExits := hub.Subscribe(topic.SetOf(topic.InternalExit))
	defer cancelExits()

	watcher := mon.Watch(hub)

	var adminServer *admin.Server
	if cfg.Config.Admin.Enabled {
		handlers := admin.NewAdminHandlers(mon, cfg.Config.Admin.AllowPost)
		adminServer = admin.NewServer(handlers, telemetry.GetMetricsHandler())
		addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
		if err := adminServer.Start(addr); err != nil {
			log.Fatal().Err(err).Msg("Failed to start admin server")
			return
		}
	}

	log.Info().
		Str("backend", string(mon.Backend())).
		Str("signal_topics", signalTopics.String()).
		Str("watch_topics", watchTopics.String()).
		Msg("topicmon started successfully")
	log.Info().Msg(stopHint(cfg.Config.Signals.Relay, signalTopics))

	runUntilExit(changes, exits)

	log.Info().Msg("Internal exit posted, shutting down")
	watcher.Stop()

	if adminServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminServer.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Admin server shutdown failed")
		}
	}

	gens := mon.CurrentGenerations()
	log.Info().Str("generations", gens.Describe()).Msg("topicmon stopped")
}

// stopHint tells the operator how to stop the daemon. A relayed SIGINT only
// advances sighupint.
func stopHint(relay bool, signalTopics topic.Set) string {
	if relay && signalTopics.Has(topic.SigHupInt) {
		return "Send SIGTERM to stop; SIGINT and SIGHUP are relayed to sighupint"
	}
	return "Send SIGTERM to stop"
}

// runUntilExit logs watched generation changes until internal_exit advances
func runUntilExit(changes, exits <-chan notify.Change) {
	for {
		select {
		case c, ok := <-changes:
			if !ok {
				return
			}
			log.Info().
				Str("topic", c.Topic.String()).
				Uint64("generation", c.Generation).
				Msg("Topic generation advanced")
		case <-exits:
			return
		}
	}
}
