package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"hireprep-server/pkg/analysis"
	"hireprep-server/pkg/auth"
	"hireprep-server/pkg/config"
	http_server "hireprep-server/pkg/http"
	"hireprep-server/pkg/live"
	"hireprep-server/pkg/messaging"
	"hireprep-server/pkg/report"
	"hireprep-server/pkg/session"
	"hireprep-server/pkg/store"
	"hireprep-server/pkg/stt"
	"hireprep-server/pkg/util"
)

var (
	logger    = logrus.New()
	appConfig *config.Configuration

	userStore      *store.UserStore
	authService    *auth.Service
	historyStore   *session.HistoryStore
	sttManager     *stt.ProviderManager
	reportGen      *report.Generator
	amqpPublisher  *messaging.Publisher
	mediaGateway   *http_server.MediaGateway
	metricsHub     *http_server.MetricsHub
	sessionManager *session.Manager
	httpServer     *http_server.Server

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stdout)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	httpServer.Start()
	logger.WithField("port", appConfig.HTTPPort).Info("HirePrep server is ready")

	waitForShutdown()
}

func initialize() error {
	var err error

	appConfig, err = config.LoadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetLevel(appConfig.LogLevel)

	userStore, err = store.NewUserStore(appConfig.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open user store: %w", err)
	}

	authService = auth.NewService(userStore, appConfig.JWTSecret, "hireprep", appConfig.TokenExpiry, logger)

	historyStore, err = session.NewHistoryStore(session.HistoryConfig{
		Address:  appConfig.RedisAddress,
		Password: appConfig.RedisPassword,
		Database: appConfig.RedisDatabase,
		TTL:      appConfig.HistoryTTL,
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, interview history is disabled")
		historyStore = nil
	}

	if err := initSpeechToText(); err != nil {
		return err
	}

	reportOpts := []report.Option{}
	if appConfig.ReportBaseURL != "" {
		reportOpts = append(reportOpts, report.WithBaseURL(appConfig.ReportBaseURL))
	}
	reportGen = report.NewGenerator(logger, appConfig.ReportAPIKey, appConfig.ReportModel, reportOpts...)

	amqpPublisher = messaging.NewPublisher(logger, appConfig.AMQPUrl, appConfig.AMQPQueueName)
	if amqpPublisher.Enabled() {
		if err := amqpPublisher.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP connection failed, will keep retrying in the background")
		}
	}

	mediaGateway = http_server.NewMediaGateway(logger, appConfig.MediaAcquireTimeout)
	metricsHub = http_server.NewMetricsHub(logger)
	go metricsHub.Run(rootCtx)

	sessionManager = session.NewManager(logger, session.Deps{
		Logger: logger,
		Config: appConfig,
		Media:  mediaGateway,
		NewAnalyzer: func() session.Analyzer {
			return analysis.NewService(logger, analysis.Config{
				FrameInterval:         appConfig.FrameInterval,
				DetectorRetryInterval: appConfig.DetectorRetryInterval,
			})
		},
		STT: sttManager,
		NewVoiceClient: func(events live.Events) session.VoiceClient {
			return live.NewClient(logger, events)
		},
		Publisher: amqpPublisher,
		OnEnd:     finishSession,
	})

	httpCfg := &http_server.Config{
		Port:          appConfig.HTTPPort,
		EnableMetrics: appConfig.HTTPEnableMetrics,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  30 * time.Second,
	}
	deps := http_server.Deps{
		AuthService: authService,
		Sessions:    http_server.NewManagerAdapter(sessionManager).WithMetricsHub(metricsHub),
		Reports:     reportGen,
		MetricsHub:  metricsHub,
		Media:       mediaGateway,
	}
	if historyStore != nil {
		deps.History = historyStore
	}
	httpServer = http_server.NewServer(logger, httpCfg, deps)

	return nil
}

func initSpeechToText() error {
	sttManager = stt.NewProviderManager(logger, appConfig.DefaultVendor)

	registered := 0
	for _, vendor := range appConfig.SupportedVendors {
		var provider stt.Provider
		switch strings.TrimSpace(vendor) {
		case "google":
			provider = stt.NewGoogleProvider(logger, appConfig)
		case "mock":
			provider = stt.NewMockProvider(logger)
		default:
			logger.WithField("vendor", vendor).Warn("Unsupported speech-to-text vendor, skipping")
			continue
		}

		if err := sttManager.RegisterProvider(provider); err != nil {
			logger.WithField("vendor", vendor).WithError(err).Warn("Speech-to-text provider unavailable")
			continue
		}
		registered++
	}

	if registered == 0 {
		logger.Warn("No speech-to-text providers registered, transcripts fall back to interviewer summaries")
	}
	return nil
}

// finishSession enriches the finished record with a closing evaluation and
// persists it to the candidate's history.
func finishSession(record *session.InterviewSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	final, err := reportGen.FinalReport(ctx, record)
	if err != nil {
		logger.WithField("session_id", record.ID).WithError(err).Warn("Final report generation degraded")
	}
	record.FinalReport = final

	if historyStore == nil || record.UserID == "" {
		return
	}
	if err := historyStore.Save(ctx, record.UserID, record); err != nil {
		logger.WithField("session_id", record.ID).WithError(err).Error("Failed to persist interview history")
	}
}

func waitForShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	rootCancel()

	shutdown := util.NewGracefulShutdown(logger, 15*time.Second)
	shutdown.Register(util.ShutdownResource{
		Name:     "http",
		Priority: 10,
		Shutdown: func(ctx context.Context) error { return httpServer.Shutdown(ctx) },
	})
	shutdown.Register(util.ShutdownResource{
		Name:     "sessions",
		Priority: 20,
		Shutdown: func(ctx context.Context) error {
			sessionManager.StopAll()
			return nil
		},
	})
	shutdown.Register(util.ShutdownResource{
		Name:     "amqp",
		Priority: 30,
		Shutdown: func(ctx context.Context) error {
			amqpPublisher.Close()
			return nil
		},
	})
	if historyStore != nil {
		shutdown.Register(util.ShutdownResource{
			Name:     "history",
			Priority: 40,
			Shutdown: func(ctx context.Context) error { return historyStore.Close() },
		})
	}
	shutdown.Register(util.ShutdownResource{
		Name:     "users",
		Priority: 50,
		Shutdown: func(ctx context.Context) error { return userStore.Close() },
	})

	if err := shutdown.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}
