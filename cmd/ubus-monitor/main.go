package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openwrt-tools/ubus-monitor/internal/api"
	"github.com/openwrt-tools/ubus-monitor/internal/command"
	"github.com/openwrt-tools/ubus-monitor/internal/config"
	"github.com/openwrt-tools/ubus-monitor/internal/events"
	"github.com/openwrt-tools/ubus-monitor/internal/poller"
	"github.com/openwrt-tools/ubus-monitor/internal/server"
	"github.com/openwrt-tools/ubus-monitor/internal/storage"
	"github.com/openwrt-tools/ubus-monitor/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/ubus-monitor.yml", "Configuration file path")
	validateOnly := flag.Bool("validate", false, "Validate the configuration and exit")
	showConfig := flag.Bool("show-config", false, "Print a configuration summary and exit")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", configFile).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Log)

	if *showConfig || *validateOnly {
		cfg.PrintConfigSummary()
		if *validateOnly {
			fmt.Println("Configuration is valid")
		}
		return
	}

	if cfg.Operator.Username != "" && cfg.JWT.Secret == "" {
		secret, err := crypto.GenerateRandomString(32)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate JWT secret")
		}
		cfg.JWT.Secret = secret
		log.Warn().Msg("No jwt.secret configured, tokens will not survive a restart")
	}

	log.Info().
		Str("config_path", configFile).
		Int("devices", len(cfg.Devices)).
		Msg("ubus monitor starting")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event delivery
	publishers := events.Multi{events.LogPublisher{}}

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = connectNATS(&cfg.NATS, cfg.Server.Name)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without NATS support")
		} else {
			defer nc.Close()
			publishers = append(publishers, events.NewNATSPublisher(nc, cfg.NATS.SubjectPrefix, cfg.NATS.PublishSnapshots))
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	if cfg.MQTT.Enabled {
		mqttPub, err := events.NewMQTTPublisher(&cfg.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to MQTT broker, continuing without MQTT events")
		} else {
			publishers = append(publishers, mqttPub)
		}
	}
	defer publishers.Close()

	// Polling
	store := storage.NewMemoryStore()
	scheduler := poller.BuildScheduler(cfg.Identities(), cfg.Poller.RequestTimeout, cfg.Poller.MaxWorkers, store, publishers)
	commands := command.NewService(
		command.NewExecutor(publishers),
		command.NewBatch(command.SchedulerLookup(scheduler), cfg.Poller.MaxWorkers),
	)

	// WaitGroup for services
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Poll scheduler failed")
			cancel()
		}
	}()

	// Start API server
	var apiServer *api.RESTServer
	if cfg.API.Enabled {
		apiServer = api.NewRESTServer(cfg, scheduler, commands)

		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
			if err := apiServer.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("REST API server failed")
				cancel()
			}
		}()
	}

	// NATS command subscriber
	if nc != nil {
		subscriber := server.NewNATSSubscriber(nc, cfg.NATS.SubjectPrefix, commands, scheduler)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := subscriber.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS subscriber stopped")
			}
		}()
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case <-ctx.Done():
		log.Warn().Msg("Service failed, shutting down")
	}

	// Cancel context
	cancel()

	// Shutdown API server
	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
		}
		shutdownCancel()
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("ubus monitor stopped")
}

// setupLogging applies the configured level and format to the global logger
func setupLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func connectNATS(cfg *config.NATSConfig, name string) (*nats.Conn, error) {
	log.Info().Str("url", cfg.URL).Msg("Connecting to NATS...")

	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Msg("Reconnected to NATS")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error().
				Err(err).
				Str("subject", subject).
				Msg("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info().Msg("Connected to NATS")
	return nc, nil
}
