package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	Tenancy   TenancyConfig
	Redis     RedisConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Mode         string
	DrainTimeout time.Duration
	HardTimeout  time.Duration
}

type MongoConfig struct {
	// URI is the base connection string without a database segment;
	// databases are selected by name per tenant.
	URI                    string
	CentralDB              string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ServerSelectionTimeout time.Duration
	OperationTimeout       time.Duration
}

type TenancyConfig struct {
	// DBPrefix is the naming-convention prefix for tenant databases,
	// e.g. prefix "mosaic" maps tenant "acme" to "mosaic_acme".
	DBPrefix string
	// LocalDB is the database served for bare localhost access.
	LocalDB string
	// StaticMapping maps a tenant id directly to a database name,
	// bypassing the naming convention and the existence check.
	StaticMapping map[string]string
	CacheTTL      time.Duration
	// ExposeCatalog controls whether 404 responses include the list of
	// known tenant databases. Leave off in public deployments.
	ExposeCatalog bool
}

type RedisConfig struct {
	URL string
}

type AdminConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     int
	Burst   int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("MOSAIC")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.draintimeout", "30s")
	viper.SetDefault("server.hardtimeout", "45s")
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.centraldb", "mosaic_central")
	viper.SetDefault("mongo.maxpoolsize", 25)
	viper.SetDefault("mongo.minpoolsize", 2)
	viper.SetDefault("mongo.maxconnidletime", "5m")
	viper.SetDefault("mongo.serverselectiontimeout", "10s")
	viper.SetDefault("mongo.operationtimeout", "30s")
	viper.SetDefault("tenancy.dbprefix", "mosaic")
	viper.SetDefault("tenancy.localdb", "mosaic_local")
	viper.SetDefault("tenancy.cachettl", "300s")
	viper.SetDefault("tenancy.exposecatalog", true)
	viper.SetDefault("ratelimit.enabled", false)
	viper.SetDefault("ratelimit.rps", 50)
	viper.SetDefault("ratelimit.burst", 100)

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		cfg.Admin.JWTSecret = secret
	}
	if mapping := os.Getenv("TENANT_DB_MAPPING"); mapping != "" {
		m := map[string]string{}
		if err := json.Unmarshal([]byte(mapping), &m); err != nil {
			return nil, err
		}
		cfg.Tenancy.StaticMapping = m
	}

	return &cfg, nil
}
