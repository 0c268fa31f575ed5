package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gotrs-io/dedup-ce/internal/config"
	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/docstore"
	"github.com/gotrs-io/dedup-ce/internal/embedding"
	"github.com/gotrs-io/dedup-ce/internal/models"
	"github.com/gotrs-io/dedup-ce/internal/repository"
	"github.com/gotrs-io/dedup-ce/internal/service"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "dedupctl",
		Short: "Operations tooling for the ticket dedup service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	root.AddCommand(seedCmd(), sweepCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func seedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load sample tickets through the real ingest path",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, cleanup, err := buildStores()
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := config.Get()
			engine := dedup.NewEngine(cfg.Dedup.EngineConfig())
			clustering := service.NewClusteringService(stores, engine)
			// Sample data never needs a real provider
			provider := embedding.NewStaticProvider(embedding.NewDeterministic(cfg.Embedding.Dimensions))
			ingest := service.NewIngestService(stores, clustering, provider)

			tickets, err := loadFixture(file)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			for i := range tickets {
				t, err := ingest.Ingest(ctx, &tickets[i])
				if err != nil {
					return fmt.Errorf("seed ticket %s: %w", tickets[i].TicketNumber, err)
				}
				log.Printf("seeded %s -> cluster %s (%s)", t.TicketNumber, t.ClusterID, t.Dedup.Decision)
			}
			log.Printf("seeded %d tickets", len(tickets))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "seed/tickets.yaml", "YAML fixture of tickets to ingest")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale candidate and pending clusters once",
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, cleanup, err := buildStores()
			if err != nil {
				return err
			}
			defer cleanup()

			cfg := config.Get()
			engine := dedup.NewEngine(cfg.Dedup.EngineConfig())
			clustering := service.NewClusteringService(stores, engine)

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			total := 0
			for _, pk := range dedup.SearchPartitions(time.Now(), cfg.Dedup.ClusterSearchMonths) {
				n, err := clustering.ExpireStale(ctx, pk)
				if err != nil {
					return err
				}
				total += n
			}
			log.Printf("expired %d clusters", total)
			return nil
		},
	}
}

func buildStores() (*repository.Stores, func(), error) {
	if err := config.Load(configPath); err != nil {
		return nil, nil, err
	}
	cfg := config.Get()
	if cfg.Store.Driver == "sqlite" {
		store, err := docstore.OpenSQLite(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLite(store), func() { store.Close() }, nil
	}
	return repository.NewMemory(), func() {}, nil
}

type fixture struct {
	Tickets []models.TicketCreate `yaml:"tickets"`
}

func loadFixture(path string) ([]models.TicketCreate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.Tickets) == 0 {
		return nil, fmt.Errorf("fixture %s contains no tickets", path)
	}
	return f.Tickets, nil
}
