package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	FHIRURL string `mapstructure:"FHIR_URL"`

	ElasticURL      string `mapstructure:"ELASTIC_URL"`
	ElasticUsername string `mapstructure:"ELASTIC_USERNAME"`
	ElasticPassword string `mapstructure:"ELASTIC_PASSWORD"`

	Neo4jURI      string `mapstructure:"NEO4J_URI"`
	Neo4jUsername string `mapstructure:"NEO4J_USERNAME"`
	Neo4jPassword string `mapstructure:"NEO4J_PASSWORD"`

	// DatabaseURL enables the Postgres user realm when set.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	PGRealm     string `mapstructure:"PG_REALM"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// Token lifetimes in seconds.
	TokenLifetime    int64 `mapstructure:"TOKEN_LIFETIME"`
	TokenMaxLifetime int64 `mapstructure:"TOKEN_MAX_LIFETIME"`

	// LocalUsers is a comma-separated user:bcrypt-hash list for the
	// built-in realm.
	LocalUsers string `mapstructure:"LOCAL_USERS"`
	LocalRealm string `mapstructure:"LOCAL_REALM"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("FHIR_URL", "http://localhost:5000")
	v.SetDefault("ELASTIC_URL", "http://localhost:9200")
	v.SetDefault("NEO4J_URI", "neo4j://localhost:7687")
	v.SetDefault("PG_REALM", "db")
	v.SetDefault("LOCAL_REALM", "local")
	v.SetDefault("JWT_ISSUER", "chub-api")
	v.SetDefault("JWT_AUDIENCE", "chub-front")
	v.SetDefault("TOKEN_LIFETIME", 3600)
	v.SetDefault("TOKEN_MAX_LIFETIME", 86400)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "FHIR_URL",
		"ELASTIC_URL", "ELASTIC_USERNAME", "ELASTIC_PASSWORD",
		"NEO4J_URI", "NEO4J_USERNAME", "NEO4J_PASSWORD",
		"DATABASE_URL", "PG_REALM",
		"JWT_SECRET", "JWT_ISSUER", "JWT_AUDIENCE",
		"TOKEN_LIFETIME", "TOKEN_MAX_LIFETIME",
		"LOCAL_USERS", "LOCAL_REALM",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// TokenLifetimeDuration returns the default token lifetime.
func (c *Config) TokenLifetimeDuration() time.Duration {
	return time.Duration(c.TokenLifetime) * time.Second
}

// TokenMaxLifetimeDuration returns the longest lifetime a client may
// request.
func (c *Config) TokenMaxLifetimeDuration() time.Duration {
	return time.Duration(c.TokenMaxLifetime) * time.Second
}

// Validate checks that the configuration is safe to run. The backends
// must be addressable, and outside development a JWT secret is
// mandatory so that authentication is actually enforced.
func (c *Config) Validate() error {
	if c.FHIRURL == "" {
		return fmt.Errorf("FHIR_URL is required")
	}
	if c.ElasticURL == "" {
		return fmt.Errorf("ELASTIC_URL is required")
	}
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.TokenLifetime <= 0 {
		return fmt.Errorf("TOKEN_LIFETIME must be positive, got %d", c.TokenLifetime)
	}
	if c.TokenMaxLifetime < c.TokenLifetime {
		return fmt.Errorf("TOKEN_MAX_LIFETIME (%d) must be at least TOKEN_LIFETIME (%d)",
			c.TokenMaxLifetime, c.TokenLifetime)
	}
	return nil
}
