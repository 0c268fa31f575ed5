package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/gotrs-io/dedup-ce/internal/dedup"
	"github.com/gotrs-io/dedup-ce/internal/models"
)

var (
	cfg       *Config
	once      sync.Once
	mu        sync.RWMutex
	reloadFns []func(*Config)
)

// Config represents the application configuration
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
}

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	APIKey          string        `mapstructure:"api_key"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Origins []string `mapstructure:"origins"`
	Methods []string `mapstructure:"methods"`
	Headers []string `mapstructure:"headers"`
}

type StoreConfig struct {
	// Driver selects the document store backend: "memory" or "sqlite"
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type EmbeddingConfig struct {
	// Provider: "openai" for an OpenAI-compatible endpoint,
	// "deterministic" for the hash embedder, "" for unconfigured
	Provider   string        `mapstructure:"provider"`
	Endpoint   string        `mapstructure:"endpoint"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type DedupConfig struct {
	AutoThreshold       float64  `mapstructure:"auto_threshold"`
	ReviewThreshold     float64  `mapstructure:"review_threshold"`
	MaxClusterMembers   int      `mapstructure:"max_cluster_members"`
	VectorTopK          int      `mapstructure:"vector_top_k"`
	DedupWindowDays     int      `mapstructure:"dedup_window_days"`
	ClusterSearchMonths int      `mapstructure:"cluster_search_months"`
	FilterByCustomer    bool     `mapstructure:"filter_by_customer"`
	WeightSemantic      float64  `mapstructure:"weight_semantic"`
	WeightSubcategory   float64  `mapstructure:"weight_subcategory"`
	WeightCategory      float64  `mapstructure:"weight_category"`
	WeightTime          float64  `mapstructure:"weight_time"`
	OpenStatuses        []string `mapstructure:"open_statuses"`
	RevertWindowHours   int      `mapstructure:"revert_window_hours"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type SweeperConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// EngineConfig translates the dedup section into the engine's view.
func (d DedupConfig) EngineConfig() dedup.Config {
	open := make([]models.TicketStatus, 0, len(d.OpenStatuses))
	for _, s := range d.OpenStatuses {
		open = append(open, models.TicketStatus(s))
	}
	return dedup.Config{
		AutoThreshold:     d.AutoThreshold,
		ReviewThreshold:   d.ReviewThreshold,
		WeightSemantic:    d.WeightSemantic,
		WeightSubcategory: d.WeightSubcategory,
		WeightCategory:    d.WeightCategory,
		WeightTime:        d.WeightTime,
		Window:            time.Duration(d.DedupWindowDays) * 24 * time.Hour,
		SearchMonths:      d.ClusterSearchMonths,
		VectorTopK:        d.VectorTopK,
		MaxMembers:        d.MaxClusterMembers,
		FilterByCustomer:  d.FilterByCustomer,
		OpenStatuses:      open,
	}
}

// RevertWindow returns the merge revert window as a duration.
func (d DedupConfig) RevertWindow() time.Duration {
	return time.Duration(d.RevertWindowHours) * time.Hour
}

// Load reads configuration from the given file (plus DEDUP_* environment
// overrides) and starts watching it for changes.
func Load(path string) error {
	var loadErr error
	once.Do(func() {
		v := viper.New()
		setDefaults(v)

		v.SetEnvPrefix("DEDUP")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if path != "" {
			dir, file := filepath.Split(path)
			ext := filepath.Ext(file)
			v.SetConfigName(strings.TrimSuffix(file, ext))
			if ext != "" {
				v.SetConfigType(strings.TrimPrefix(ext, "."))
			}
			if dir == "" {
				dir = "."
			}
			v.AddConfigPath(dir)
			if err := v.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
					loadErr = fmt.Errorf("read config %s: %w", path, err)
					return
				}
			}
		}

		c := &Config{}
		if err := v.Unmarshal(c); err != nil {
			loadErr = fmt.Errorf("unmarshal config: %w", err)
			return
		}
		mu.Lock()
		cfg = c
		mu.Unlock()

		// Hot-reload the tunables when the file changes
		v.OnConfigChange(func(_ fsnotify.Event) {
			fresh := &Config{}
			if err := v.Unmarshal(fresh); err != nil {
				return
			}
			mu.Lock()
			cfg = fresh
			mu.Unlock()
			notifyReload(fresh)
		})
		if path != "" {
			v.WatchConfig()
		}
	})
	return loadErr
}

// Get returns the current configuration snapshot, or nil before Load.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// OnReload registers a callback invoked with the fresh configuration after
// each successful hot reload, so long-lived components (the dedup engine)
// can pick up retuned values.
func OnReload(fn func(*Config)) {
	mu.Lock()
	defer mu.Unlock()
	reloadFns = append(reloadFns, fn)
}

func notifyReload(c *Config) {
	mu.RLock()
	fns := append(([]func(*Config))(nil), reloadFns...)
	mu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Default returns the stock configuration without touching files or the
// package singleton; tests and the CLI use it directly.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	c := &Config{}
	_ = v.Unmarshal(c)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dedup-ce")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.origins", []string{"*"})
	v.SetDefault("server.cors.methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors.headers", []string{"Content-Type", "X-API-Key", "X-Request-ID"})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "dedup.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "dedup")
	v.SetDefault("redis.cache_ttl", "5m")

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.endpoint", "https://api.openai.com/v1/embeddings")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("dedup.auto_threshold", 0.92)
	v.SetDefault("dedup.review_threshold", 0.85)
	v.SetDefault("dedup.max_cluster_members", 100)
	v.SetDefault("dedup.vector_top_k", 10)
	v.SetDefault("dedup.dedup_window_days", 14)
	v.SetDefault("dedup.cluster_search_months", 2)
	v.SetDefault("dedup.filter_by_customer", false)
	v.SetDefault("dedup.weight_semantic", 0.85)
	v.SetDefault("dedup.weight_subcategory", 0.10)
	v.SetDefault("dedup.weight_category", 0.03)
	v.SetDefault("dedup.weight_time", 0.02)
	v.SetDefault("dedup.open_statuses", []string{"open", "pending"})
	v.SetDefault("dedup.revert_window_hours", 24)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.schedule", "0 */10 * * * *")
}
