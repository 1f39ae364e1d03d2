package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gpuserve/internal/common/fsutil"
)

// Service names accepted by the service field.
const (
	ServiceMesh      = "mesh"
	ServiceDiffusion = "diffusion"
)

// Defaults applied by Defaults when corresponding fields are unset.
const (
	DefaultAddr               = ":8080"
	DefaultCacheDir           = "~/.cache/gpuserve/hub"
	DefaultScratchDir         = "/tmp/gpuserve"
	DefaultImageDataDir       = "~/.cache/gpuserve/images"
	DefaultHubURL             = "https://huggingface.co"
	DefaultWorkerURL          = "http://127.0.0.1:9000"
	DefaultIdleTimeoutSeconds = 240
	DefaultMaxQueueDepth      = 32
	DefaultMaxWaitSeconds     = 30
	DefaultMaxBodyBytes       = 32 << 20
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "console"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by Defaults.
type Config struct {
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
	Service string `json:"service" yaml:"service" toml:"service"`

	CacheDir     string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	ScratchDir   string `json:"scratch_dir" yaml:"scratch_dir" toml:"scratch_dir"`
	KeepScratch  bool   `json:"keep_scratch" yaml:"keep_scratch" toml:"keep_scratch"`
	ImageDataDir string `json:"image_data_dir" yaml:"image_data_dir" toml:"image_data_dir"`

	HubURL    string `json:"hub_url" yaml:"hub_url" toml:"hub_url"`
	HubToken  string `json:"hub_token" yaml:"hub_token" toml:"hub_token"`
	WorkerURL string `json:"worker_url" yaml:"worker_url" toml:"worker_url"`

	IdleTimeoutSeconds int   `json:"idle_timeout_seconds" yaml:"idle_timeout_seconds" toml:"idle_timeout_seconds"`
	MaxQueueDepth      int   `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWaitSeconds     int   `json:"max_wait_seconds" yaml:"max_wait_seconds" toml:"max_wait_seconds"`
	MaxBodyBytes       int64 `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	// RequestTimeoutSeconds bounds one inference request end to end; 0 disables.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`

	LogLevel  string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`

	CORS CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
}

// CORSConfig enables cross-origin calls from browser clients.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GPUSERVE_* environment variables.
// HF_TOKEN is honored for the hub token when GPUSERVE_HUB_TOKEN is unset.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	str("GPUSERVE_ADDR", &c.Addr)
	str("GPUSERVE_SERVICE", &c.Service)
	str("GPUSERVE_CACHE_DIR", &c.CacheDir)
	str("GPUSERVE_SCRATCH_DIR", &c.ScratchDir)
	str("GPUSERVE_HUB_URL", &c.HubURL)
	str("GPUSERVE_WORKER_URL", &c.WorkerURL)
	str("GPUSERVE_LOG_LEVEL", &c.LogLevel)
	str("GPUSERVE_LOG_FORMAT", &c.LogFormat)
	str("HF_TOKEN", &c.HubToken)
	str("GPUSERVE_HUB_TOKEN", &c.HubToken)
	if err := num("GPUSERVE_IDLE_TIMEOUT_SECONDS", &c.IdleTimeoutSeconds); err != nil {
		return err
	}
	if err := num("GPUSERVE_MAX_QUEUE_DEPTH", &c.MaxQueueDepth); err != nil {
		return err
	}
	if err := num("GPUSERVE_MAX_WAIT_SECONDS", &c.MaxWaitSeconds); err != nil {
		return err
	}
	if err := num("GPUSERVE_REQUEST_TIMEOUT_SECONDS", &c.RequestTimeoutSeconds); err != nil {
		return err
	}
	if v := strings.TrimSpace(getenv("GPUSERVE_KEEP_SCRATCH")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GPUSERVE_KEEP_SCRATCH: %w", err)
		}
		c.KeepScratch = b
	}
	return nil
}

// Defaults fills unset fields and expands '~' in directory settings.
func (c *Config) Defaults() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.ScratchDir == "" {
		c.ScratchDir = DefaultScratchDir
	}
	if c.ImageDataDir == "" {
		c.ImageDataDir = DefaultImageDataDir
	}
	if c.HubURL == "" {
		c.HubURL = DefaultHubURL
	}
	if c.WorkerURL == "" {
		c.WorkerURL = DefaultWorkerURL
	}
	if c.IdleTimeoutSeconds <= 0 {
		c.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.MaxWaitSeconds <= 0 {
		c.MaxWaitSeconds = DefaultMaxWaitSeconds
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	for _, p := range []*string{&c.CacheDir, &c.ScratchDir, &c.ImageDataDir} {
		exp, err := fsutil.ExpandHome(*p)
		if err != nil {
			return err
		}
		*p = exp
	}
	return nil
}

// Validate checks settings that have no sensible default.
func (c Config) Validate() error {
	switch c.Service {
	case ServiceMesh, ServiceDiffusion:
		return nil
	case "":
		return fmt.Errorf("service is required (%s|%s)", ServiceMesh, ServiceDiffusion)
	default:
		return fmt.Errorf("unknown service %q (%s|%s)", c.Service, ServiceMesh, ServiceDiffusion)
	}
}

// IdleTimeout returns the idle period as a duration.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// MaxWait returns the queue wait limit as a duration.
func (c Config) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}
