package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Routing   RoutingConfig   `yaml:"routing"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	CORS             CORSConfig    `yaml:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Addresses []string `yaml:"addresses"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	PoolSize  int      `yaml:"pool_size"`
}

type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsPort int    `yaml:"metrics_port"`
}

type RoutingConfig struct {
	DefaultTimeout          time.Duration        `yaml:"default_timeout"`
	StreamFirstChunkTimeout time.Duration        `yaml:"stream_first_chunk_timeout"`
	StreamChunkTimeout      time.Duration        `yaml:"stream_chunk_timeout"`
	CircuitBreaker          CircuitBreakerConfig `yaml:"circuit_breaker"`
	Backoff                 BackoffConfig        `yaml:"backoff"`
	Ranking                 RankingConfig        `yaml:"ranking"`
	HealthMonitor           HealthMonitorConfig  `yaml:"health_monitor"`
}

type CircuitBreakerConfig struct {
	// FailureRateThreshold is a percentage (0-100) of failed requests that
	// opens the breaker once MinimumRequests have been observed.
	FailureRateThreshold     float64       `yaml:"failure_rate_threshold"`
	MinimumRequests          int           `yaml:"minimum_requests"`
	OpenTimeout              time.Duration `yaml:"open_timeout"`
	HalfOpenSuccessThreshold int           `yaml:"half_open_success_threshold"`
	// HalfOpenMaxProbes caps concurrent trial requests while half-open.
	// Zero means unlimited.
	HalfOpenMaxProbes int `yaml:"half_open_max_probes"`
}

type BackoffConfig struct {
	Disabled   bool          `yaml:"disabled"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	Multiplier float64       `yaml:"multiplier"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

const (
	RankingPolicyUltraMiser = "ultra_miser"
	RankingPolicyQuality    = "quality"
)

type RankingConfig struct {
	Policy string `yaml:"policy"`
	// TieBreakers orders the comparisons applied within a tier after the
	// policy's primary criterion. Valid entries: free, quota, quality,
	// latency, key.
	TieBreakers []string `yaml:"tie_breakers"`
}

type HealthMonitorConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// LatencySmoothing is the EWMA alpha applied to probe latencies.
	LatencySmoothing float64 `yaml:"latency_smoothing"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         300,
			},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "courier",
			User:            "courier",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Addresses: []string{"localhost:6379"},
			DB:        0,
			PoolSize:  50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			MetricsPort: 9090,
		},
		Routing: RoutingConfig{
			DefaultTimeout:          30 * time.Second,
			StreamFirstChunkTimeout: 60 * time.Second,
			StreamChunkTimeout:      10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureRateThreshold:     50,
				MinimumRequests:          10,
				OpenTimeout:              30 * time.Second,
				HalfOpenSuccessThreshold: 3,
				HalfOpenMaxProbes:        0,
			},
			Backoff: BackoffConfig{
				BaseDelay:  100 * time.Millisecond,
				Multiplier: 2.0,
				MaxDelay:   5 * time.Second,
			},
			Ranking: RankingConfig{
				Policy:      RankingPolicyUltraMiser,
				TieBreakers: []string{"free", "quota", "quality", "latency", "key"},
			},
			HealthMonitor: HealthMonitorConfig{
				Enabled:          true,
				Interval:         30 * time.Second,
				ProbeTimeout:     5 * time.Second,
				LatencySmoothing: 0.3,
			},
		},
	}
}
