package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/digital-twin/backend/internal/config"
	"github.com/zhouzirui/digital-twin/backend/internal/handler"
	"github.com/zhouzirui/digital-twin/backend/internal/model/persona"
	"github.com/zhouzirui/digital-twin/backend/internal/service/ai"
	"github.com/zhouzirui/digital-twin/backend/internal/service/profile"
	"github.com/zhouzirui/digital-twin/backend/internal/service/recording"
	"github.com/zhouzirui/digital-twin/backend/internal/service/session"
	"github.com/zhouzirui/digital-twin/backend/internal/service/similarity"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, using process environment", zap.Error(envErr))
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	loader := profile.NewLoader(profile.WithLogger(logger.Named("profile")))
	p, err := loader.Load(ctx, profile.Source{
		SanityProjectID: cfg.Persona.SanityProjectID,
		SanityDataset:   cfg.Persona.SanityDataset,
		SanityToken:     cfg.Persona.SanityToken,
		MeDir:           cfg.Persona.MeDir,
	})
	if err != nil {
		return err
	}
	personaStore := persona.NewMemoryStore(p)

	notifier, err := cfg.Notify.NewNotifier(logger.Named("notify"))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := notifier.Close(closeCtx); err != nil {
			logger.Warn("pending notifications dropped on shutdown", zap.Error(err))
		}
	}()

	if !cfg.AI.Enabled() {
		return errors.New("no model credentials configured, set OPENAI_API_KEY, ARK_API_KEY or GEMINI_API_KEY")
	}
	chatModel, err := cfg.AI.NewChatModel(ctx, p.Model)
	if err != nil {
		return err
	}

	sessions := session.NewStore(session.Options{TTL: cfg.Session.TTL, MaxEntries: cfg.Session.MaxEntries})
	engineOpts := []recording.Option{recording.WithLogger(logger.Named("recording"))}
	if cfg.AI.SimilarityEnabled {
		classifierModel, err := cfg.AI.NewClassifierModel(ctx, p.Model)
		if err != nil {
			return err
		}
		classifier, err := similarity.NewService(ctx, classifierModel)
		if err != nil {
			return err
		}
		engineOpts = append(engineOpts, recording.WithClassifier(classifier))
	} else {
		logger.Info("semantic question similarity disabled")
	}
	engine := recording.NewEngine(sessions, notifier, engineOpts...)

	aiService, err := ai.NewService(chatModel, p, engine, notifier, logger.Named("ai"), ai.Options{
		MaxToolRounds: cfg.AI.MaxToolRounds,
		TurnTimeout:   cfg.AI.TurnTimeout,
		ContactURL:    cfg.AI.ContactURL,
	})
	if err != nil {
		return err
	}
	logger.Info("ai service initialized",
		zap.String("provider", cfg.AI.Provider),
		zap.String("persona", p.Name),
	)

	janitor := session.NewJanitor(sessions, cfg.Session.SweepInterval, logger.Named("session"))
	janitor.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = janitor.Stop(stopCtx)
	}()

	router := handler.NewRouter(personaStore, aiService, handler.Options{
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return runServer(ctx, srv, logger)
}

func runServer(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("digital twin backend listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
