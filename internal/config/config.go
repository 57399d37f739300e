package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Vision       VisionConfig       `yaml:"vision"`
	Verification VerificationConfig `yaml:"verification"`
	Spoof        SpoofConfig        `yaml:"spoof"`
	Evidence     EvidenceConfig     `yaml:"evidence"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// APIKeys are accepted in the X-API-Key header. One key per kiosk or frontend.
	APIKeys []string `yaml:"api_keys"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
	Migrate  bool   `yaml:"migrate"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	// RuntimeLibrary is the onnxruntime shared library; empty picks the platform default name.
	RuntimeLibrary string `yaml:"runtime_library"`
}

// VerificationConfig holds the tunables of the verify-and-commit pipeline.
type VerificationConfig struct {
	MatchThreshold    float64       `yaml:"match_threshold"`
	LivenessThreshold float64       `yaml:"liveness_threshold"`
	FailureLimit      int           `yaml:"failure_limit"`
	Cooldown          time.Duration `yaml:"cooldown"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`
	ExtractWorkers    int           `yaml:"extract_workers"`
}

type SpoofConfig struct {
	URL     string        `yaml:"url"` // empty disables the remote classifier
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type EvidenceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

type RateLimitConfig struct {
	// VotesPerSecond is nil when unset; an explicit 0 turns the limiter off.
	VotesPerSecond *float64 `yaml:"votes_per_second"`
}

func (r RateLimitConfig) PerSecond() float64 {
	if r.VotesPerSecond == nil {
		return 0
	}
	return *r.VotesPerSecond
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would make the pipeline fail open.
func (c *Config) Validate() error {
	v := c.Verification
	if v.MatchThreshold < 0 {
		return fmt.Errorf("verification.match_threshold must be >= 0, got %v", v.MatchThreshold)
	}
	if v.LivenessThreshold < 0 {
		return fmt.Errorf("verification.liveness_threshold must be >= 0, got %v", v.LivenessThreshold)
	}
	if v.FailureLimit < 1 {
		return fmt.Errorf("verification.failure_limit must be >= 1, got %d", v.FailureLimit)
	}
	if v.Cooldown < 0 {
		return fmt.Errorf("verification.cooldown must be >= 0, got %s", v.Cooldown)
	}
	if r := c.RateLimit.PerSecond(); r < 0 {
		return fmt.Errorf("rate_limit.votes_per_second must be >= 0, got %v", r)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Verification.MatchThreshold == 0 {
		cfg.Verification.MatchThreshold = 0.8
	}
	if cfg.Verification.LivenessThreshold == 0 {
		cfg.Verification.LivenessThreshold = 50
	}
	if cfg.Verification.FailureLimit == 0 {
		cfg.Verification.FailureLimit = 5
	}
	if cfg.Verification.Cooldown == 0 {
		cfg.Verification.Cooldown = 5 * time.Minute
	}
	if cfg.Verification.AttemptTimeout == 0 {
		cfg.Verification.AttemptTimeout = 10 * time.Second
	}
	if cfg.Verification.ExtractWorkers == 0 {
		cfg.Verification.ExtractWorkers = 4
	}
	if cfg.Spoof.Timeout == 0 {
		cfg.Spoof.Timeout = 3 * time.Second
	}
	if cfg.Evidence.Prefix == "" {
		cfg.Evidence.Prefix = "evidence"
	}
	if cfg.RateLimit.VotesPerSecond == nil {
		perSecond := 5.0
		cfg.RateLimit.VotesPerSecond = &perSecond
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VG_API_KEYS"); v != "" {
		cfg.Server.APIKeys = splitList(v)
	}
	if v := os.Getenv("VG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("VG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("VG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("VG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("VG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("VG_DB_MIGRATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Database.Migrate = b
		}
	}
	if v := os.Getenv("VG_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("VG_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("VG_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("VG_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("VG_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("VG_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("VG_ONNX_LIBRARY"); v != "" {
		cfg.Vision.RuntimeLibrary = v
	}
	if v := os.Getenv("VG_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verification.MatchThreshold = f
		}
	}
	if v := os.Getenv("VG_LIVENESS_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Verification.LivenessThreshold = f
		}
	}
	if v := os.Getenv("VG_FAILURE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Verification.FailureLimit = n
		}
	}
	if v := os.Getenv("VG_COOLDOWN"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Verification.Cooldown = d
		}
	}
	if v := os.Getenv("VG_SPOOF_URL"); v != "" {
		cfg.Spoof.URL = v
	}
	if v := os.Getenv("VG_SPOOF_API_KEY"); v != "" {
		cfg.Spoof.APIKey = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
