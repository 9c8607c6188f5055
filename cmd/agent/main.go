package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/banabets/else/common/id"
	"github.com/banabets/else/common/llm"
	"github.com/banabets/else/common/logger"
	"github.com/banabets/else/common/metrics"
	"github.com/banabets/else/common/otel"
	"github.com/banabets/else/core/config"
	"github.com/banabets/else/internal/clock"
	"github.com/banabets/else/internal/content"
	"github.com/banabets/else/internal/cycle"
	"github.com/banabets/else/internal/discovery"
	"github.com/banabets/else/internal/http/middleware"
	httprouter "github.com/banabets/else/internal/http/router"
	"github.com/banabets/else/internal/lease"
	"github.com/banabets/else/internal/quota"
	"github.com/banabets/else/internal/social"
	"github.com/banabets/else/internal/status"
	"github.com/banabets/else/internal/strategy"
	"github.com/banabets/else/internal/thread"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "agent starting",
		"env", cfg.Env,
		"service", cfg.OTel.ServiceName,
		"interval", cfg.Agent.Interval,
		"run_once", cfg.Agent.RunOnce)

	ids, err := id.NewGenerator(cfg.Agent.NodeID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector(cfg.OTel.ServiceName, cfg.OTel.ServiceVersion)

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected",
			"status_stream", cfg.Redis.StatusStream,
			"lease_key", cfg.Redis.LeaseKey)
	} else {
		slog.InfoContext(ctx, "redis disabled, running without lease or status stream")
	}

	text, err := llm.NewTextGenerator(llm.Config{
		Provider:    cfg.TextLLM.Provider,
		APIKey:      cfg.TextLLM.APIKey,
		BaseURL:     cfg.TextLLM.BaseURL,
		Model:       cfg.TextLLM.Model,
		MaxTokens:   cfg.TextLLM.MaxTokens,
		Temperature: llm.Temp(cfg.TextLLM.Temperature),
		TopP:        llm.Temp(cfg.TextLLM.TopP),
		CallTimeout: cfg.Agent.CallTimeout,
		MaxRetries:  cfg.TextLLM.MaxRetries,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create text generator", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "text generator ready", "provider", cfg.TextLLM.Provider, "model", text.Model())

	var images llm.ImageGenerator
	if cfg.ImageLLM.Enabled() {
		img, err := llm.NewOpenAIImage(llm.ImageConfig{
			APIKey:      cfg.ImageLLM.APIKey,
			BaseURL:     cfg.ImageLLM.BaseURL,
			Model:       cfg.ImageLLM.Model,
			Size:        cfg.ImageLLM.Size,
			CallTimeout: cfg.Agent.CallTimeout,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to create image generator", "error", err)
			os.Exit(1)
		}
		images = img
		slog.InfoContext(ctx, "image generator ready", "model", cfg.ImageLLM.Model)
	}

	clk := clock.Real()
	rng := strategy.NewRandom(cfg.Agent.Seed)

	selector, err := strategy.NewSelector(strategy.DefaultTable)
	if err != nil {
		slog.ErrorContext(ctx, "invalid strategy table", "error", err)
		os.Exit(1)
	}

	client := social.Instrument(social.NewXClient(cfg.X, cfg.Agent.CallTimeout, nil), collector)

	var publisher status.Publisher
	cycleLease := lease.Noop()
	if redisClient != nil {
		publisher = status.NewRedisPublisher(redisClient, cfg.Redis.StatusStream, cfg.Redis.StatusMaxLen)
		cycleLease = lease.NewRedisLease(redisClient, cfg.Redis.LeaseKey, leaseToken(ids), cfg.Redis.LeaseTTL)
	}
	board := status.NewBoard()

	orchestrator := cycle.NewOrchestrator(cycle.Config{
		Topics:            cfg.Agent.Topics,
		EngageProbability: cfg.Agent.EngageProbability,
		FollowProbability: cfg.Agent.FollowProbability,
		ImageProbability:  cfg.Agent.ImageProbability,
		MentionReplyLimit: cfg.Agent.MentionReplyLimit,
		EngageReplyLimit:  cfg.Agent.EngageReplyLimit,
		FollowCap:         cfg.Agent.FollowCap,
		ReplyDelay:        cfg.Agent.ReplyDelay,
	}, cycle.Deps{
		Social:   client,
		Composer: content.NewComposer(text, images, client),
		Ranker:   discovery.NewEngagementRanker(client, clk, rng),
		Recommender: discovery.NewFollowRecommender(client, clk, rng, discovery.RecommenderConfig{
			Terms:       cfg.Agent.FollowTerms,
			BioKeywords: cfg.Agent.BioKeywords,
			FollowDelay: cfg.Agent.FollowDelay,
		}),
		Threads:  thread.NewPoster(client, clk, cfg.Agent.ThreadDelay),
		Selector: selector,
		IDs:      ids,
		Reporter: status.NewReporter(board, publisher, collector),
		Clock:    clk,
		Random:   rng,
	}, cycle.NewState(quota.New(clk)))

	runner := cycle.NewRunner(orchestrator, cycleLease, clk, cycle.RunnerConfig{
		Interval:     cfg.Agent.Interval,
		CycleTimeout: cfg.Agent.CycleTimeout,
		RunOnce:      cfg.Agent.RunOnce,
	})

	if cfg.Agent.RunOnce {
		err := runner.Run(ctx)
		shutdownTelemetry(ctx, telemetry)
		if err != nil {
			slog.ErrorContext(ctx, "cycle failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, board, redisClient, collector),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Run(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down, waiting for the cycle in flight")
		runner.Stop()
	case err := <-runnerDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "runner exited", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	shutdownTelemetry(shutdownCtx, telemetry)
	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, board *status.Board, redisClient *redis.Client, collector *metrics.Collector) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger("/health", "/metrics"))

	var stream string
	if redisClient != nil {
		stream = cfg.Redis.StatusStream
	}
	httprouter.SetupRoutes(router, httprouter.RouterConfig{
		Board:        board,
		Redis:        redisClient,
		StatusStream: stream,
		Metrics:      collector.Handler(),
	})

	return router
}

// leaseToken identifies this process as the lease holder.
func leaseToken(ids *id.Generator) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), ids.Next())
}

func shutdownTelemetry(ctx context.Context, telemetry *otel.Telemetry) {
	if telemetry == nil {
		return
	}
	if err := telemetry.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "otel shutdown error", "error", err)
	}
}

const banner = `
███████╗██╗     ███████╗███████╗
██╔════╝██║     ██╔════╝██╔════╝
█████╗  ██║     ███████╗█████╗
██╔══╝  ██║     ╚════██║██╔══╝
███████╗███████╗███████║███████╗
╚══════╝╚══════╝╚══════╝╚══════╝
`
