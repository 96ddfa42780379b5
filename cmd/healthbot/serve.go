package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"healthbot/internal/agent"
	"healthbot/internal/bus"
	"healthbot/internal/channel"
	"healthbot/internal/config"
	"healthbot/internal/domain"
	"healthbot/internal/intent"
	"healthbot/internal/knowledge"
	"healthbot/internal/language"
	"healthbot/internal/media"
	"healthbot/internal/memory"
	"healthbot/internal/metrics"
	"healthbot/internal/provider"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook server, channels and reminder notifier",
		Long:  "Starts the HTTP server (WhatsApp, SMS, intent callback, audio, metrics), Telegram polling and the reminder notifier. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

// reminderStore is what serve needs from either reminder backend.
type reminderStore interface {
	domain.ReminderStore
	Close() error
}

func openReminderStore(cfg *config.Config) (reminderStore, error) {
	if cfg.Reminders.Store == "memory" {
		return memory.NewInMemoryReminders(), nil
	}
	store, err := memory.NewSQLiteStore(cfg.Reminders.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("reminder store: %w", err)
	}
	return store, nil
}

// newRetriever wires the embedding client and Qdrant into the knowledge engine.
func newRetriever(cfg *config.Config, factory *provider.Factory) *knowledge.Engine {
	kc := cfg.Knowledge
	return knowledge.NewEngine(knowledge.EngineConfig{
		Store: knowledge.NewQdrant(knowledge.QdrantConfig{
			URL:        kc.QdrantURL,
			APIKey:     kc.QdrantAPIKey,
			Collection: kc.Collection,
			Logger:     logger.With("component", "qdrant"),
		}),
		Embedder:  factory.Embedder(),
		ChunkSize: kc.ChunkSize,
		Overlap:   kc.ChunkOverlap,
		Logger:    logger.With("component", "knowledge"),
	})
}

func newClassifier(ctx context.Context, cfg *config.Config) *intent.Dialogflow {
	dc := intent.DialogflowConfig{
		ProjectID:       cfg.Dialogflow.ProjectID,
		APIBase:         cfg.Dialogflow.APIBase,
		CredentialsFile: cfg.Dialogflow.CredentialsFile,
		Logger:          logger.With("component", "dialogflow"),
	}
	df, err := intent.NewDialogflow(ctx, dc)
	if err == nil {
		return df
	}
	// Without credentials every call fails and turns degrade to fallback answers.
	logger.Warn("dialogflow credentials unavailable, intent detection will fail", "error", err)
	dc.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	df, _ = intent.NewDialogflow(ctx, dc)
	return df
}

func newTranslator(ctx context.Context, cfg *config.Config) domain.Translator {
	if !cfg.Translate.Enabled {
		return nil
	}
	tr, err := language.NewGoogleTranslator(ctx, language.GoogleConfig{
		APIBase:         cfg.Translate.APIBase,
		APIKey:          cfg.Translate.APIKey,
		CredentialsFile: cfg.Translate.CredentialsFile,
		Logger:          logger.With("component", "translate"),
	})
	if err != nil {
		logger.Warn("translation disabled", "error", err)
		return nil
	}
	return tr
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger = newLogger(cfg.General)
	if err := cfg.MissingError(); err != nil {
		logger.Warn("incomplete configuration, affected features will fail at runtime", "error", err)
	}
	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	store, err := openReminderStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	phrases, err := agent.LoadPhrases(cfg.General.PhrasesFile)
	if err != nil {
		return err
	}

	factory := provider.NewFactory(cfg, logger)
	var generator domain.Generator = factory.Generator()
	if gc := cfg.Generator; gc.RequestsPerMinute > 0 {
		generator = agent.LimitGenerator(generator, agent.NewRateLimiter(gc.Burst, float64(gc.RequestsPerMinute)))
	}

	bridge, err := media.NewBridge(media.Config{
		GraphAPIBase:         cfg.Channels.WhatsApp.APIBase,
		AccessToken:          cfg.Channels.WhatsApp.AccessToken,
		Speech:               factory.Speech(),
		CandidateLanguages:   cfg.Speech.CandidateLanguages,
		AlternativeLanguages: cfg.Speech.AlternativeLanguages,
		AudioDir:             cfg.Speech.AudioDir,
		PublicBaseURL:        cfg.Server.PublicBaseURL,
		Logger:               logger.With("component", "media"),
	})
	if err != nil {
		return err
	}

	location := cfg.General.Location()
	translator := newTranslator(ctx, cfg)
	messageBus := bus.New(100, logger)
	turns := agent.NewTurnTracker(time.Duration(cfg.General.TurnTTLSeconds) * time.Second)

	orch := agent.NewOrchestrator(agent.OrchestratorConfig{
		Translator:  translator,
		Classifier:  newClassifier(ctx, cfg),
		Retriever:   newRetriever(cfg, factory),
		Generator:   generator,
		Reminders:   store,
		Media:       bridge,
		Bus:         messageBus,
		Turns:       turns,
		Phrases:     &phrases,
		Metrics:     m,
		Logger:      logger.With("component", "orchestrator"),
		TopK:        cfg.Knowledge.SearchTopK,
		Location:    location,
		Concurrency: cfg.General.MaxConcurrentMessages,
	})

	server := channel.NewServer(channel.ServerConfig{
		Host:   cfg.Server.Host,
		Port:   cfg.Server.Port,
		Logger: logger.With("component", "http"),
	})
	server.Mount(channel.NewCallback(cfg.Server.CallbackPath, orch, logger.With("component", "callback")))
	server.Handle("GET /audio/", bridge.AudioHandler())
	if m != nil {
		server.Handle("GET "+cfg.Metrics.Endpoint, m.Handler())
	}

	if cfg.Channels.WhatsApp.Enabled {
		wa := channel.NewWhatsApp(channel.WhatsAppChannelConfig{
			Config: cfg.Channels.WhatsApp,
			Logger: logger.With("channel", "whatsapp"),
		})
		if err := wa.Start(ctx, messageBus); err != nil {
			return err
		}
		server.Mount(wa)
	}
	if cfg.Channels.SMS.Enabled {
		sms := channel.NewSMS(channel.SMSChannelConfig{
			Config: cfg.Channels.SMS,
			Logger: logger.With("channel", "sms"),
		})
		if err := sms.Start(ctx, messageBus); err != nil {
			return err
		}
		server.Mount(sms)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orch.Run(gctx)
		return nil
	})
	g.Go(func() error { return server.Start(gctx) })

	if tc := cfg.Channels.Telegram; tc.Enabled && tc.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     tc.Token,
			AllowFrom: tc.AllowFrom,
			Logger:    logger.With("channel", "telegram"),
		})
		g.Go(func() error { return tg.Start(gctx, messageBus) })
	}

	if cfg.Reminders.NotifyEnabled {
		notifier := agent.NewReminderNotifier(agent.NotifierConfig{
			Store:      store,
			Bus:        messageBus,
			Translator: translator,
			Turns:      turns,
			Phrases:    &phrases,
			Schedule:   cfg.Reminders.NotifySchedule,
			Retention:  time.Duration(cfg.Reminders.RetentionDays) * 24 * time.Hour,
			Location:   location,
			Metrics:    m,
			Logger:     logger.With("component", "notifier"),
		})
		g.Go(func() error { return notifier.Start(gctx) })
	}

	logger.Info("healthbot started", "version", version, "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	err = g.Wait()
	messageBus.Close()
	if err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
