package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the central typed configuration struct.
// Embed or extend it in your app's own AppConfig.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Log       LogConfig       `yaml:"log"`
	Container ContainerConfig `yaml:"container"`
}

type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"` // local | production | testing
	Debug bool   `yaml:"debug"`
	URL   string `yaml:"url"`
	Port  string `yaml:"port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console; empty picks by App.Env
}

// ContainerConfig tunes the service container and its request scopes.
type ContainerConfig struct {
	// PoolSize is the number of request scopes kept for reuse.
	PoolSize int `yaml:"pool_size"`
	// Shards is the root registry's shard count; 0 picks the default.
	Shards      int  `yaml:"shards"`
	HotCache    bool `yaml:"hot_cache"`
	WeakParents bool `yaml:"weak_parents"`
	LockOnBoot  bool `yaml:"lock_on_boot"`
	// FreezeOnBoot freezes the root at boot. The root and request scopes then
	// resolve root services from its perfect-hash snapshot; with WeakParents
	// request scopes keep walking the live registries.
	FreezeOnBoot bool `yaml:"freeze_on_boot"`
	// ConfigFile is an optional YAML document overlaid with LoadFile.
	ConfigFile string `yaml:"-"`
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "GoContainer"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", true),
			URL:   env("APP_URL", "http://localhost"),
			Port:  env("APP_PORT", "8000"),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", ""),
		},
		Container: ContainerConfig{
			PoolSize:     GetInt("CONTAINER_POOL_SIZE", 64),
			Shards:       GetInt("CONTAINER_SHARDS", 0),
			HotCache:     envBool("CONTAINER_HOT_CACHE", true),
			WeakParents:  envBool("CONTAINER_WEAK_PARENTS", false),
			LockOnBoot:   envBool("CONTAINER_LOCK_ON_BOOT", true),
			FreezeOnBoot: envBool("CONTAINER_FREEZE_ON_BOOT", false),
			ConfigFile:   env("CONTAINER_CONFIG_FILE", ""),
		},
	}
}

// LoadFile overlays the YAML document at path onto cfg. Keys present in the
// file win over the values already in cfg; absent keys are left alone.
//
//	# config.yaml
//	app:
//	  name: billing
//	container:
//	  pool_size: 256
//	  freeze_on_boot: true
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
