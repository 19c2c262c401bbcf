package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	LLMAPIURL  string        `mapstructure:"LLM_API_URL"`
	LLMAPIKey  string        `mapstructure:"LLM_API_KEY"`
	LLMModel   string        `mapstructure:"LLM_MODEL"`
	LLMTimeout time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMRPS     float64       `mapstructure:"LLM_RPS"`

	PrepReadyInterval   time.Duration `mapstructure:"PREP_READY_INTERVAL"`
	InTransitInterval   time.Duration `mapstructure:"IN_TRANSIT_INTERVAL"`
	ArrivalPollInterval time.Duration `mapstructure:"ARRIVAL_POLL_INTERVAL"`
	PrepStampInterval   time.Duration `mapstructure:"PREP_STAMP_INTERVAL"`
	ArrivalSettleDelay  time.Duration `mapstructure:"ARRIVAL_SETTLE_DELAY"`
	DefaultETAMinutes   float64       `mapstructure:"DEFAULT_ETA_MINUTES"`
	RouteDistanceKM     float64       `mapstructure:"ROUTE_DISTANCE_KM"`
	HospitalID          string        `mapstructure:"HOSPITAL_ID"`
	PlanOnDispatch      bool          `mapstructure:"PLAN_ON_DISPATCH"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"LLM_API_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "LLM_RPS",
	"PREP_READY_INTERVAL", "IN_TRANSIT_INTERVAL", "ARRIVAL_POLL_INTERVAL",
	"PREP_STAMP_INTERVAL", "ARRIVAL_SETTLE_DELAY", "DEFAULT_ETA_MINUTES",
	"ROUTE_DISTANCE_KM", "HOSPITAL_ID", "PLAN_ON_DISPATCH",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "30s")
	v.SetDefault("LLM_RPS", 2)
	v.SetDefault("PREP_READY_INTERVAL", "3s")
	v.SetDefault("IN_TRANSIT_INTERVAL", "2s")
	v.SetDefault("ARRIVAL_POLL_INTERVAL", "1s")
	v.SetDefault("PREP_STAMP_INTERVAL", "1s")
	v.SetDefault("ARRIVAL_SETTLE_DELAY", "3s")
	v.SetDefault("DEFAULT_ETA_MINUTES", 0.5)
	v.SetDefault("ROUTE_DISTANCE_KM", 4.5)
	v.SetDefault("HOSPITAL_ID", patientflow.DefaultHospitalID)
	v.SetDefault("REQUEST_TIMEOUT", "45s")
	v.SetDefault("BODY_LIMIT", "256K")
	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasJournal reports whether transitions should be journaled to Postgres.
func (c *Config) HasJournal() bool {
	return c.DatabaseURL != ""
}

// Validate rejects timings the engine cannot run with and a receiving
// hospital missing from the directory.
func (c *Config) Validate() error {
	intervals := []struct {
		key string
		d   time.Duration
	}{
		{"PREP_READY_INTERVAL", c.PrepReadyInterval},
		{"IN_TRANSIT_INTERVAL", c.InTransitInterval},
		{"ARRIVAL_POLL_INTERVAL", c.ArrivalPollInterval},
		{"PREP_STAMP_INTERVAL", c.PrepStampInterval},
		{"ARRIVAL_SETTLE_DELAY", c.ArrivalSettleDelay},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", iv.key, iv.d)
		}
	}
	if c.DefaultETAMinutes <= 0 {
		return fmt.Errorf("DEFAULT_ETA_MINUTES must be positive, got %g", c.DefaultETAMinutes)
	}
	if c.RouteDistanceKM <= 0 {
		return fmt.Errorf("ROUTE_DISTANCE_KM must be positive, got %g", c.RouteDistanceKM)
	}
	if _, err := patientflow.DemoDirectory().Hospital(c.HospitalID); err != nil {
		return fmt.Errorf("HOSPITAL_ID %q: %w", c.HospitalID, err)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
