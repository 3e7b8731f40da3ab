package main

import (
	"context"
	"log"
	"os"
	"time"

	"dealgraph/pkg/api"
	"dealgraph/pkg/core/attribution"
	"dealgraph/pkg/core/config"
	"dealgraph/pkg/core/edgar"
	"dealgraph/pkg/core/pipeline"
	"dealgraph/pkg/core/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] config: %v", err)
	}

	ctx := context.Background()
	if err := store.InitDB(ctx); err != nil {
		log.Fatalf("[API] database: %v", err)
	}
	defer store.Close()

	pg := store.NewPostgresStore(store.GetPool())
	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("[API] migrate: %v", err)
	}

	attrCfg, err := attribution.LoadConfig(cfg.AttributionConfigPath)
	if err != nil {
		log.Fatalf("[API] attribution config: %v", err)
	}

	client, err := edgar.NewClient(edgar.Options{
		UserAgent:  cfg.UserAgent(),
		BaseURL:    cfg.SECBaseURL,
		RateLimit:  cfg.SECRateLimitRequests,
		RateWindow: time.Duration(cfg.SECRateLimitWindow) * time.Second,
	})
	if err != nil {
		log.Fatalf("[API] edgar client: %v", err)
	}

	orch := pipeline.New(pg, client, attrCfg)
	router := api.SetupRouter(pg, orch)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("[API] %s listening on :%s", cfg.AppName, port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("[API] server: %v", err)
	}
}
