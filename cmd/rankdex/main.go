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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rankdex/internal/config"
	"github.com/kailas-cloud/rankdex/internal/db"
	dbRedis "github.com/kailas-cloud/rankdex/internal/db/redis"
	logpkg "github.com/kailas-cloud/rankdex/internal/logger"
	"github.com/kailas-cloud/rankdex/internal/metrics"
	modelrepo "github.com/kailas-cloud/rankdex/internal/repository/model"
	"github.com/kailas-cloud/rankdex/internal/repository/rankcache"
	chiTransport "github.com/kailas-cloud/rankdex/internal/transport/chi"
	openaiRanker "github.com/kailas-cloud/rankdex/internal/transport/openai"
	cascadeuc "github.com/kailas-cloud/rankdex/internal/usecase/cascade"
	diversityuc "github.com/kailas-cloud/rankdex/internal/usecase/diversity"
	intentuc "github.com/kailas-cloud/rankdex/internal/usecase/intent"
	keyworduc "github.com/kailas-cloud/rankdex/internal/usecase/keyword"
	rankuc "github.com/kailas-cloud/rankdex/internal/usecase/rank"
	"github.com/kailas-cloud/rankdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting rankdex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("cascade_mode", cfg.Cascade.Mode),
	)

	// Register ranking metrics explicitly (no init())
	metrics.RegisterRankingMetrics()

	// Optional result cache store
	var store db.Store
	if cfg.Cache.Enabled {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		ctx := context.Background()
		if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to cache store")
	}

	// Build the ranking pipeline
	classifier := intentuc.NewRuleBased(intentuc.Config{
		AlphaDefault:      cfg.Fusion.AlphaDefault,
		BetaDefault:       cfg.Fusion.BetaDefault,
		AlphaExact:        cfg.Fusion.AlphaExact,
		BetaExact:         cfg.Fusion.BetaExact,
		AlphaSemantic:     cfg.Fusion.AlphaSemantic,
		BetaSemantic:      cfg.Fusion.BetaSemantic,
		LambdaDefault:     cfg.MMR.LambdaDefault,
		LambdaSpecific:    cfg.MMR.LambdaSpecific,
		LambdaExploratory: cfg.MMR.LambdaExploratory,
		SignalThreshold:   cfg.Fusion.SignalThreshold,
		ExactLengthRunes:  cfg.Fusion.ExactLengthRunes,
		ShortQueryWords:   cfg.Fusion.ShortQueryWords,
	})

	scorer := keyworduc.NewScorer(cfg.BM25.K1, cfg.BM25.B, cfg.BM25.TitleWeight)

	relevance := openaiRanker.NewRanker(&openaiRanker.Config{
		APIKey:        cfg.Relevance.APIKey,
		BaseURL:       cfg.Relevance.BaseURL,
		Model:         cfg.Relevance.Model,
		MaxSnippetLen: cfg.Relevance.MaxSnippetLen,
		Provider:      cfg.Relevance.Provider,
		Logger:        logger,
	})

	cascadeRanker := cascadeuc.NewRanker(
		cascadeuc.Config{
			Enabled:             cfg.Cascade.Enabled,
			Mode:                cascadeuc.Mode(cfg.Cascade.Mode),
			ModelPath:           cfg.Cascade.ModelPath,
			ConfidenceThreshold: cfg.Cascade.ConfidenceThreshold,
		},
		cascadeuc.NewFeatureExtractor(),
		newModelLoader(logger),
		logger,
	)

	selector := diversityuc.NewSelector(logger)

	rankSvc := rankuc.New(
		classifier, scorer, relevance, cascadeRanker, selector,
		rankuc.Options{
			PoolSize:   cfg.MMR.PoolSize,
			OutputSize: cfg.MMR.OutputSize,
		},
		logger,
	)

	// Cached (decorator) when a store is configured
	var pipeline chiTransport.Pipeline = rankSvc
	if store != nil {
		pipeline = rankcache.New(
			rankSvc, store, cfg.Cache.KeyPrefix,
			time.Duration(cfg.Cache.TTLSec)*time.Second,
			metrics.ResultCacheTotal, logger,
		)
	}

	server := chiTransport.NewServer(pipeline, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// newModelLoader adapts the model repository to the cascade LoadFunc.
// Returning a nil interface (not a typed nil *Model) on failure matters:
// the cascade ranker checks its predictor against nil.
func newModelLoader(logger *zap.Logger) cascadeuc.LoadFunc {
	return func(path string, featureVersion, numFeatures int) (cascadeuc.Predictor, error) {
		m, err := modelrepo.Load(path, featureVersion, numFeatures, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
