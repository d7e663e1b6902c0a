package main

// cSpell:ignore mqtt
import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fisaks/smarthome/internal/api"
	"github.com/fisaks/smarthome/internal/config"
	"github.com/fisaks/smarthome/internal/home"
	"github.com/fisaks/smarthome/internal/logging"
	"github.com/fisaks/smarthome/internal/messaging"
	"github.com/fisaks/smarthome/internal/metrics"
	"github.com/fisaks/smarthome/internal/notify"
	"github.com/fisaks/smarthome/internal/router"
	"github.com/fisaks/smarthome/internal/state"
	"github.com/fisaks/smarthome/internal/store"
)

func main() {
	logging.Init()
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("config error", "error", err)
	}
	logging.Info("Loaded config",
		"broker", cfg.BrokerURL(),
		"store", cfg.StoreBackend,
		"httpAddr", cfg.HTTPAddr,
		"failurePolicy", cfg.HandlerFailurePolicy,
	)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		logging.Fatal("state store", "backend", cfg.StoreBackend, "error", err)
	}
	defer st.Close()
	homeState := state.NewHomeStateStore(st)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.AlertsEnabled() {
		notifier = notify.NewTelegram(notify.TelegramConfig{
			BaseURL: cfg.TelegramAPIURL,
			Token:   cfg.BotToken,
			ChatID:  cfg.ChatID,
		})
	} else {
		logging.Warn("BOT_TOKEN/CHAT_ID not set, alerts are only logged")
	}

	m := metrics.New()
	rt := router.New(router.Deps{
		State:        homeState,
		Notifier:     notifier,
		Metrics:      m,
		GasThreshold: cfg.GasAlertThreshold,
	}, router.WithFailurePolicy(cfg.HandlerFailurePolicy))

	brokerCfg := messaging.BrokerConfig{
		BrokerURL:            cfg.BrokerURL(),
		ClientID:             cfg.MQTTClientID,
		Username:             cfg.MQTTUsername,
		Password:             cfg.MQTTPassword,
		StatusTopic:          home.TopicServerStatus,
		ConnectRetry:         cfg.ConnectRetry,
		ConnectRetryInterval: cfg.ConnectRetryInterval,
		ConnectTimeout:       cfg.ConnectTimeout,
		PublishTimeout:       5 * time.Second,
		SubscribeTimeout:     5 * time.Second,
	}
	if cfg.CACert != "" {
		if brokerCfg.TLSConfig, err = messaging.LoadTLSConfig(cfg.CACert); err != nil {
			logging.Fatal("mqtt TLS", "caCert", cfg.CACert, "error", err)
		}
	}
	broker := messaging.NewMsgBroker(brokerCfg)

	// Registered before connecting; issued on every (re)connect.
	for _, topic := range rt.Topics() {
		if _, err := broker.Subscribe(ctx, topic, messaging.AtLeastOnce, rt.OnMessage); err != nil {
			logging.Fatal("mqtt subscribe", "topic", topic, "error", err)
		}
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.ConnectTimeout+time.Second)
	if err := broker.Connect(connectCtx); err != nil {
		// The API keeps serving; commands fail with 502 until the bus is up.
		if cfg.ConnectRetry {
			logging.Warn("Broker not reachable yet, retrying in background", "broker", cfg.BrokerURL(), "error", err)
		} else {
			logging.Error("Failed to connect", "broker", cfg.BrokerURL(), "error", err)
		}
	}
	connectCancel()
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer closeCancel()
		broker.Close(closeCtx)
	}()

	server := api.NewServer(api.Deps{
		Publisher: broker,
		State:     homeState,
		Metrics:   m,
		Connected: broker.IsConnected,
	})
	httpErr := make(chan error, 1)
	go func() { httpErr <- server.ListenAndServe(ctx, cfg.HTTPAddr) }()

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		logging.Info("Shutting down", "signal", s)
		cancel()
		if err := <-httpErr; err != nil {
			logging.Error("HTTP shutdown", "error", err)
		}
	case err := <-httpErr:
		logging.Error("HTTP server stopped", "error", err)
	}
	logging.Info("bye")
}
