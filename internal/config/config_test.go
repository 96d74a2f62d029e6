package config

import (
	"os"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.JWTIssuer != "chub-api" {
		t.Errorf("expected default issuer 'chub-api', got %s", cfg.JWTIssuer)
	}
	if cfg.TokenLifetime != 3600 {
		t.Errorf("expected default token lifetime 3600, got %d", cfg.TokenLifetime)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("ELASTIC_URL", "http://search:9200")
	os.Setenv("NEO4J_URI", "neo4j://graph:7687")
	defer os.Unsetenv("ELASTIC_URL")
	defer os.Unsetenv("NEO4J_URI")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ElasticURL != "http://search:9200" {
		t.Errorf("expected ELASTIC_URL from env, got %s", cfg.ElasticURL)
	}
	if cfg.Neo4jURI != "neo4j://graph:7687" {
		t.Errorf("expected NEO4J_URI from env, got %s", cfg.Neo4jURI)
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Env:              "production",
		FHIRURL:          "http://fhir:5000",
		ElasticURL:       "http://search:9200",
		Neo4jURI:         "neo4j://graph:7687",
		JWTSecret:        "secret",
		TokenLifetime:    3600,
		TokenMaxLifetime: 86400,
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing fhir url", func(c *Config) { c.FHIRURL = "" }, true},
		{"missing elastic url", func(c *Config) { c.ElasticURL = "" }, true},
		{"missing neo4j uri", func(c *Config) { c.Neo4jURI = "" }, true},
		{"missing secret in production", func(c *Config) { c.JWTSecret = "" }, true},
		{"missing secret in development", func(c *Config) { c.JWTSecret = ""; c.Env = "development" }, false},
		{"max lifetime below default", func(c *Config) { c.TokenMaxLifetime = 60 }, true},
		{"zero lifetime", func(c *Config) { c.TokenLifetime = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
