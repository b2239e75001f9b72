package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"counsel/api/internal/agent"
	"counsel/api/internal/app"
	"counsel/api/internal/config"
	"counsel/api/internal/export"
	"counsel/api/internal/gitrepo"
	"counsel/api/internal/llm"
	"counsel/api/internal/search"
	"counsel/api/internal/section"
	"counsel/api/internal/session"
	"counsel/api/internal/store"
	"counsel/api/internal/workflow"
)

type sessionBackend interface {
	AcquireTurn(context.Context, int64) (string, error)
	ReleaseTurn(context.Context, int64, string) error
	RefreshTurn(context.Context, int64, string) error
	LockTTL() time.Duration
	SaveSectionState(context.Context, int64, section.State) error
	LoadSectionState(context.Context, int64, string) (section.State, error)
	Ping(context.Context) error
	Close() error
}

func main() {
	cfg, err := config.LoadWithFile(os.Getenv("COUNSEL_CONFIG_FILE"))
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		fatal("migrations failed", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		fatal("failed to create repos dir", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitrepo.New(cfg.ReposDir)
	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		go searchService.ReindexAllFromPG(ctx, pgfts)
	}

	var sessions sessionBackend
	if strings.TrimSpace(cfg.RedisURL) != "" {
		slog.Info("using redis for turn locks and section state")
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.TurnLockTTL, cfg.SectionStateTTL)
		if err != nil {
			fatal("redis connection failed", err)
		}
		sessions = redisStore
	} else {
		slog.Warn("REDIS_URL not set, turn locks and section state are process-local")
		sessions = session.NewMemoryStore(cfg.TurnLockTTL, cfg.SectionStateTTL)
	}
	defer sessions.Close()

	client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	if err != nil {
		fatal("generation client setup failed", err)
	}

	interviewer := agent.NewInterviewAgent(client)
	researcher := agent.NewResearchAgent(client, searchService)
	analyst := agent.NewAnalysisAgent(client)
	drafter := agent.NewDraftingAgent(client)
	reviewer := agent.NewReviewAgent(client)

	orchestrator := workflow.New(interviewer, researcher, analyst, drafter, reviewer, dataStore)
	generator := section.NewGenerator(dataStore, interviewer, researcher, analyst, drafter)

	sectionSource := export.SectionSourceFunc(func(ctx context.Context, draftID int64) ([]export.Section, error) {
		stored, err := dataStore.ListSections(ctx, draftID)
		if err != nil {
			return nil, err
		}
		out := make([]export.Section, 0, len(stored))
		for _, s := range stored {
			out = append(out, export.Section{SectionType: s.SectionType, Title: s.Title, Content: s.Content, Order: s.Order})
		}
		return out, nil
	})
	exportService := export.NewService(sectionSource, nil)
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := export.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			fatal("minio setup failed", err)
		}
		bucketCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := objects.EnsureBucket(bucketCtx); err != nil {
			slog.Warn("minio bucket unavailable, exports will not be uploaded", "bucket", cfg.MinioBucket, "error", err)
		} else {
			exportService = export.NewService(sectionSource, objects)
		}
		cancel()
	}

	service := app.New(dataStore, orchestrator, generator, reviewer, sessions, searchService, gitService, exportService)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("counsel api listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func logLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
