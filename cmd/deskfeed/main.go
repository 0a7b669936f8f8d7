package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradedesk/internal/auth"
	"tradedesk/internal/cfg"
	"tradedesk/internal/journal"
	"tradedesk/internal/metrics"
	"tradedesk/internal/notify"
	"tradedesk/internal/realtime"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	jnl := initializeJournal(c)
	if jnl != nil {
		defer jnl.Close()
	}

	center := notify.NewCenter(0)
	tokens := auth.NewStore()

	if c.Email != "" {
		client := auth.NewClient(c.BaseURL, tokens, c.RESTTimeout)
		if err := client.Login(c.Email, c.Password); err != nil {
			log.Warn().Err(err).Msg("login failed, connecting without credential")
		}
	}

	startMetricsServer(ctx, c)

	manager := realtime.New(realtime.Config{
		URL:                  c.WsURL,
		DisableAutoConnect:   !c.AutoConnect,
		HeartbeatInterval:    c.Heartbeat,
		ReconnectDelay:       c.ReconnectDelay,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		Tokens:               tokens,
		Notifier:             center,
		Metrics:              mw,
		OnDecision: func(data json.RawMessage) {
			log.Info().RawJSON("decision", data).Msg("decision received")
			journalEvent(jnl, m, jnl.StoreDecision, data)
		},
		OnPositionUpdate: func(data json.RawMessage) {
			log.Info().RawJSON("position", data).Msg("position update received")
		},
		OnAccountUpdate: func(data json.RawMessage) {
			log.Info().RawJSON("account", data).Msg("account update received")
		},
		OnStrategyStatus: func(data json.RawMessage) {
			log.Info().RawJSON("status", data).Msg("strategy status received")
		},
		OnNotification: func(data json.RawMessage) {
			journalEvent(jnl, m, jnl.StoreNotification, data)
		},
		OnError: func(err error) {
			log.Error().Err(err).Msg("realtime error")
		},
		OnReconnectExhausted: func() {
			log.Warn().Msg("realtime reconnect attempts exhausted, manual reconnect required")
		},
	})
	defer manager.Close()

	for _, ch := range c.Channels {
		manager.Subscribe(ch)
	}

	waitForShutdown(ctx, cancel)
}

// initializeJournal opens the event journal if DATA_PATH is configured.
func initializeJournal(c cfg.Settings) *journal.Journal {
	if c.DataPath == "" {
		return nil
	}
	jnl, err := journal.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("journal initialization failed, continuing without persistence")
		return nil
	}
	return jnl
}

func journalEvent(jnl *journal.Journal, m *metrics.Metrics, store func(journal.Entry) error, data json.RawMessage) {
	if jnl == nil {
		return
	}
	if err := store(journal.Entry{Ts: time.Now(), Payload: data}); err != nil {
		log.Warn().Err(err).Msg("failed to journal event")
		return
	}
	m.EventsStored.Inc()
}

// startMetricsServer starts the Prometheus metrics HTTP server.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// waitForShutdown blocks until a shutdown signal arrives.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
