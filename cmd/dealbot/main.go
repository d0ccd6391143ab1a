package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"dealbot/internal/affiliate"
	"dealbot/internal/classify"
	"dealbot/internal/config"
	"dealbot/internal/cursor"
	"dealbot/internal/feed"
	"dealbot/internal/filter"
	"dealbot/internal/logger"
	"dealbot/internal/metrics"
	"dealbot/internal/pipeline"
	"dealbot/internal/ratelimit"
	"dealbot/internal/retry"
	"dealbot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	logger.Init(cfg.Debug)

	// Check if we should start HTTP server for monitoring
	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer()
	}

	ctx := context.Background()

	var store cursor.Store
	if cfg.DatabaseURL != "" {
		store, err = cursor.NewPostgresStore(cfg.DatabaseURL, cfg.Subreddit)
		if err != nil {
			log.Fatalf("Cursor store error: %v", err)
		}
	} else {
		store = cursor.NewFileStore(cfg.CursorFilePath)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close cursor store: %v", err)
		}
	}()

	// Classifier provider chain: Gemini first, OpenAI as fallback, none
	// at all when no key is set (keyword stage still runs).
	var semantic filter.Semantic
	switch {
	case cfg.GeminiAPIKey != "":
		gc, gerr := classify.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if gerr != nil {
			log.Printf("⚠️ Gemini init failed, semantic stage disabled: %v", gerr)
		} else {
			defer gc.Close()
			semantic = gc
		}
	case cfg.OpenAIAPIKey != "":
		semantic = classify.NewOpenAIClient(cfg.OpenAIAPIKey)
	default:
		log.Println("No classifier key configured, semantic stage disabled")
	}

	flt := filter.New(
		filter.LoadRules(cfg.RulesPath),
		semantic,
		ratelimit.NewBudget("classifier", cfg.MaxClassifyRequests),
		cfg.RequestTimeout,
	)

	rewriter := affiliate.NewRewriter(
		cfg.ConvertAPIURL,
		cfg.EarnKaroToken,
		10*time.Second,
		ratelimit.NewBudget("converter", cfg.MaxConvertRequests),
	)

	p := pipeline.New(
		feed.NewFetcher(cfg.Subreddit, cfg.RequestTimeout),
		store,
		flt,
		rewriter,
		telegram.NewClient(cfg.TelegramToken, cfg.TelegramChannelID, cfg.RequestTimeout),
		pipeline.Config{
			PacingDelay: cfg.PacingDelay,
			MaxItemAge:  cfg.MaxItemAge,
			Retry: retry.Config{
				MaxAttempts: cfg.RetryAttempts,
				Delay:       cfg.RetryDelay,
				Backoff:     true,
			},
		},
	)

	report, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("Pipeline run failed: %v", err)
	}

	if report.Bootstrap {
		log.Printf("Bootstrap run: baseline cursor %s recorded", report.CursorAfter)
		return
	}
	log.Printf("Done: fetched=%d new=%d delivered=%d rejected=%d failures=%d cursor=%s",
		report.ItemsFetched, report.NewItems, report.Delivered,
		report.Rejected, report.DeliveryFailures, report.CursorAfter)
}

func startMonitoringServer() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	log.Printf("Starting monitoring server on port %s", port)
	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Printf("Monitoring server error: %v", err)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
