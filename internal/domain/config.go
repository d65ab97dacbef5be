package domain

import "time"

// Config holds the complete Harrier configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines infrastructure choices (storage, cache, bus)
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Connectors ConnectorConfig  `json:"connectors"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ConnectorConfig holds the external source endpoints, cache TTLs and
// request timeouts. A failed fetch degrades to a soft error; it is never
// retried inside the core.
type ConnectorConfig struct {
	RegistryURL    string `json:"registryUrl"`
	UtilizationURL string `json:"utilizationUrl"`
	ExclusionURL   string `json:"exclusionUrl"`
	LegalSearchURL string `json:"legalSearchUrl"`

	RegistryTTL    time.Duration `json:"registryTtl"`
	UtilizationTTL time.Duration `json:"utilizationTtl"`
	ExclusionTTL   time.Duration `json:"exclusionTtl"`
	LegalSearchTTL time.Duration `json:"legalSearchTtl"`

	RegistryTimeout    time.Duration `json:"registryTimeout"`
	UtilizationTimeout time.Duration `json:"utilizationTimeout"`
	ExclusionTimeout   time.Duration `json:"exclusionTimeout"`
	LegalSearchTimeout time.Duration `json:"legalSearchTimeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	Endpoint    string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity is the single-node tier: SQLite + in-memory LRU + channels.
	TierCommunity Tier = "community"

	// TierPro is the clustered tier: PostgreSQL + Redis + NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 120,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./harrier.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Connectors: ConnectorConfig{
			RegistryURL:    "https://npiregistry.cms.hhs.gov/api/",
			UtilizationURL: "https://data.cms.gov/api/1/datastore/rest/filter",
			ExclusionURL:   "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv",
			LegalSearchURL: "https://html.duckduckgo.com/html/",

			RegistryTTL:    7 * 24 * time.Hour,
			UtilizationTTL: 24 * time.Hour,
			ExclusionTTL:   30 * 24 * time.Hour,
			LegalSearchTTL: 30 * 24 * time.Hour,

			RegistryTimeout:    30 * time.Second,
			UtilizationTimeout: 30 * time.Second,
			ExclusionTimeout:   120 * time.Second,
			LegalSearchTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "harrier",
		},
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "harrier",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
