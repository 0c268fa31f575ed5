package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/gotrs-io/dedup-ce/internal/api"
	"github.com/gotrs-io/dedup-ce/internal/cache"
	"github.com/gotrs-io/dedup-ce/internal/config"
	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/docstore"
	"github.com/gotrs-io/dedup-ce/internal/embedding"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/runner"
	"github.com/gotrs-io/dedup-ce/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	if err := config.Load(configPath); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.Get()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	stores, closeStore, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to open document store: %v", err)
	}
	defer closeStore()

	var clusterCache *cache.ClusterCache
	if cfg.Redis.Enabled {
		clusterCache, err = cache.New(cache.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.CacheTTL,
		})
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer clusterCache.Close()
	}

	provider := newEmbeddingProvider(cfg)
	engine := dedup.NewEngine(cfg.Dedup.EngineConfig())
	config.OnReload(func(fresh *config.Config) {
		engine.SetConfig(fresh.Dedup.EngineConfig())
		log.Println("Dedup tuning reloaded")
	})
	clustering := service.NewClusteringService(stores, engine)
	merges := service.NewMergeService(stores, engine, cfg.Dedup.RevertWindow())
	ingest := service.NewIngestService(stores, clustering, provider)

	if cfg.Sweeper.Enabled {
		sweeper := runner.NewSweeper(clustering, cfg.Dedup.ClusterSearchMonths)
		if err := sweeper.Start(cfg.Sweeper.Schedule); err != nil {
			log.Fatalf("Failed to start expiry sweeper: %v", err)
		}
		defer sweeper.Stop()
	}

	router := api.NewRouter(cfg, api.NewHandler(ingest, clustering, merges, clusterCache))
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("%s listening on %s", cfg.App.Name, srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

func openStores(cfg *config.Config) (*repository.Stores, func(), error) {
	switch cfg.Store.Driver {
	case "sqlite":
		store, err := docstore.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLite(store), func() { store.Close() }, nil
	case "", "memory":
		return repository.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newEmbeddingProvider(cfg *config.Config) *embedding.Provider {
	ec := cfg.Embedding
	return embedding.NewProvider(func() (embedding.Embedder, error) {
		switch ec.Provider {
		case "openai":
			return embedding.NewHTTPEmbedder(ec.Endpoint, ec.APIKey, ec.Model, ec.Dimensions, ec.Timeout)
		case "deterministic":
			return embedding.NewDeterministic(ec.Dimensions), nil
		default:
			return nil, embedding.ErrNotConfigured
		}
	})
}
