package main

import (
	"context"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/t77yq/oncall/internal/engine"
	"github.com/t77yq/oncall/internal/model"
	"github.com/t77yq/oncall/internal/monitor"
	"github.com/t77yq/oncall/internal/notify"
	"github.com/t77yq/oncall/internal/storage"
	"github.com/t77yq/oncall/internal/twilio"
	"github.com/t77yq/oncall/internal/voice"
	"github.com/t77yq/oncall/internal/webhook"
)

const defaultWebhookBase = "https://example.com/oncall/twilio"

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// defaultPolicies builds the example escalation policies: three five-minute
// levels for high/critical, two ten-minute levels otherwise.
func defaultPolicies() map[model.Priority]model.EscalationPolicy {
	primary := model.Responder{ID: "f47ac10b-58cc-4372-a567-0e02b2c3d479", Name: "Dana Ito", Contact: "+15550100001"}
	secondary := model.Responder{ID: "9b2f8a1e-7c44-4d21-9e63-1f0a2b3c4d5e", Name: "Marcus Webb", Contact: "+15550100002"}
	manager := model.Responder{ID: "3e1d5c7a-2b98-4f06-8a41-6d5e4f3a2b1c", Name: "Priya Nair", Contact: "+15550100003"}

	urgent := model.EscalationPolicy{
		Levels: []model.EscalationLevel{
			{
				Targets: []model.Target{
					model.NewTarget(primary, model.ChannelVoice, ""),
					model.NewTarget(primary, model.ChannelSMS, ""),
				},
				AcknowledgeTimeout: 5 * time.Minute,
			},
			{
				Targets:            []model.Target{model.NewTarget(secondary, model.ChannelVoice, "")},
				AcknowledgeTimeout: 5 * time.Minute,
			},
			{
				Targets:            []model.Target{model.NewTarget(manager, model.ChannelVoice, "")},
				AcknowledgeTimeout: 5 * time.Minute,
			},
		},
	}

	routine := model.EscalationPolicy{
		Levels: []model.EscalationLevel{
			{
				Targets:            []model.Target{model.NewTarget(primary, model.ChannelEmail, "dana@example.com")},
				AcknowledgeTimeout: 10 * time.Minute,
			},
			{
				Targets:            []model.Target{model.NewTarget(secondary, model.ChannelChat, "#oncall")},
				AcknowledgeTimeout: 10 * time.Minute,
			},
		},
	}

	return map[model.Priority]model.EscalationPolicy{
		model.PriorityCritical: urgent,
		model.PriorityHigh:     urgent,
		model.PriorityMedium:   routine,
		model.PriorityLow:      routine,
	}
}

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.SetDefault("nats.urls.0", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.max_reconnects", 10)
	viper.SetDefault("nats.reconnect_wait", 2*time.Second)
	viper.SetDefault("nats.connect_timeout", 5*time.Second)
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("oncall.advance_interval", 5*time.Second)
	viper.SetDefault("oncall.journal_path", "oncall_journal.db")
	viper.SetDefault("oncall.journal_retention", 30*24*time.Hour)
	viper.SetDefault("oncall.metrics_interval", 30*time.Second)
	if err := viper.ReadInConfig(); err != nil {
		logger.Warn("No config file found, using defaults", zap.Error(err))
	}

	// Twilio settings come from the environment
	viper.MustBindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	viper.MustBindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	viper.MustBindEnv("twilio.from_number", "TWILIO_FROM_NUMBER")
	viper.MustBindEnv("twilio.webhook_base", "TWILIO_ACK_WEBHOOK_BASE")

	// Connect to NATS with retry
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS connection error", zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	// Alert storage and journal
	repo := storage.NewMemoryAlertRepository()
	journal, err := storage.NewSQLiteAlertJournal(logger, viper.GetString("oncall.journal_path"))
	if err != nil {
		logger.Fatal("Failed to open alert journal", zap.Error(err))
	}
	defer journal.Close()

	// Notification sinks
	natsNotifier, err := notify.NewNATSPublisher(js, logger)
	if err != nil {
		logger.Fatal("Failed to create NATS notifier", zap.Error(err))
	}
	composite := notify.NewComposite(logger, notify.NewConsole(logger), natsNotifier)

	webhookBase := viper.GetString("twilio.webhook_base")
	if webhookBase == "" {
		webhookBase = defaultWebhookBase
	}
	scripts := voice.NewScriptBuilder(webhookBase)

	accountSID := viper.GetString("twilio.account_sid")
	authToken := viper.GetString("twilio.auth_token")
	fromNumber := viper.GetString("twilio.from_number")
	if accountSID != "" && authToken != "" && fromNumber != "" {
		placer := twilio.NewClient(accountSID, authToken, logger)
		voiceNotifier := notify.NewVoice(placer, fromNumber,
			func(alert *model.Alert, assignment *model.Assignment) notify.CallInstruction {
				return notify.HostedCallback(scripts.PromptURL(alert.ID, assignment.AckToken))
			}, logger)
		composite.Add(voiceNotifier)
		logger.Info("Voice adapter installed", zap.String("from", fromNumber))
	} else {
		logger.Info("Twilio settings incomplete, voice adapter not installed")
	}

	// Escalation engine
	oncallEngine, err := engine.NewEngine(repo, defaultPolicies(), composite, logger)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}
	oncallEngine.AddEventSink(engine.NewJournalSink(journal))

	eventSink, err := engine.NewNATSEventSink(js, logger)
	if err != nil {
		logger.Fatal("Failed to create event sink", zap.Error(err))
	}
	oncallEngine.AddEventSink(eventSink)

	// Voice webhook endpoints
	basePath := ""
	if parsed, err := url.Parse(webhookBase); err == nil {
		basePath = parsed.Path
	}
	handler := voice.NewWebhookHandler(oncallEngine, scripts, logger)
	server := webhook.NewServer(viper.GetString("http.addr"), basePath, handler, logger)
	serverErr := server.Start()

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		case err := <-serverErr:
			if err != nil {
				logger.Error("Webhook server stopped", zap.Error(err))
			}
		}
		cancel()
	}()

	// Metrics collection
	collector := monitor.NewMetricsCollector(js, oncallEngine, viper.GetDuration("oncall.metrics_interval"), logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}

	// Escalation ticks
	advanceCron := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(&cronLogger{logger: logger.Named("cron")})),
	)
	advanceEvery := viper.GetDuration("oncall.advance_interval")
	if _, err := advanceCron.AddFunc("@every "+advanceEvery.String(), func() {
		changed, err := oncallEngine.Advance(time.Now())
		if err != nil {
			logger.Error("Advance tick failed", zap.Error(err))
			return
		}
		if len(changed) > 0 {
			logger.Info("Advance tick completed", zap.Int("changed", len(changed)))
		}
	}); err != nil {
		logger.Fatal("Failed to schedule advance tick", zap.Error(err))
	}
	advanceCron.Start()

	// Journal retention cleanup
	go func() {
		cleanupTicker := time.NewTicker(24 * time.Hour)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				cutoff := time.Now().Add(-viper.GetDuration("oncall.journal_retention"))
				if err := journal.DeleteBefore(ctx, cutoff); err != nil {
					logger.Error("Failed to clean up journal", zap.Error(err))
				}
			}
		}
	}()

	// Raise an example alert so a fresh install pages something
	if alert, err := oncallEngine.Raise("Database connection pool exhausted", model.PriorityHigh, time.Now()); err != nil {
		logger.Error("Failed to raise example alert", zap.Error(err))
	} else {
		logger.Info("Raised example alert", zap.String("alert_id", alert.ID))
	}

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	cronCtx := advanceCron.Stop()
	<-cronCtx.Done()
	collector.Stop()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("Webhook server shutdown failed", zap.Error(err))
	}

	logger.Info("Server shutting down gracefully")
}
