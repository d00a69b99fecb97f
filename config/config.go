// Package config loads process settings and manages the drives file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ghyeongl/warehouse/cache"
	"github.com/ghyeongl/warehouse/index"
)

// EnvPrefix prefixes every environment override, e.g. WAREHOUSE_ADDR.
const EnvPrefix = "WAREHOUSE"

// Config is the resolved process configuration.
type Config struct {
	APIKey     string `mapstructure:"api_key"`
	Addr       string `mapstructure:"addr"`
	DataDir    string `mapstructure:"data_dir"`
	DrivesFile string `mapstructure:"drives_file"`

	// SyncSecret guards sync and drive mutations. Empty rejects every secret.
	SyncSecret string `mapstructure:"sync_secret"`
	// CronSecret is accepted as a bearer token on GET /api/sync.
	CronSecret  string        `mapstructure:"cron_secret"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
	CORSOrigins []string      `mapstructure:"cors_origins"`

	Log     LogConfig         `mapstructure:"log"`
	Cache   cache.Config      `mapstructure:"cache"`
	Crawl   index.CrawlLimits `mapstructure:"crawl"`
	Changes ChangesConfig     `mapstructure:"changes"`
	Webhook WebhookConfig     `mapstructure:"webhook"`
}

type LogConfig struct {
	Dir   string `mapstructure:"dir"`
	Level string `mapstructure:"level"`
}

// ChangesConfig bounds one poll of the change feed.
type ChangesConfig struct {
	PageSize   int `mapstructure:"page_size"`
	MaxPages   int `mapstructure:"max_pages"`
	MaxChanges int `mapstructure:"max_changes"`
}

type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

// legacyEnv maps keys to the unprefixed variables older deployments set.
var legacyEnv = map[string]string{
	"api_key":        "GOOGLE_DRIVE_API_KEY",
	"sync_secret":    "SYNC_SECRET",
	"cron_secret":    "CRON_SECRET",
	"cache.provider": "CACHE_PROVIDER",
	"log.dir":        "LOG_DIR",
	"log.level":      "LOG_LEVEL",
	"webhook.url":    "REPORT_WEBHOOK_URL",
	"webhook.secret": "REPORT_WEBHOOK_SECRET",
}

// SetDefaults registers every key on v so env and flag overrides resolve.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api_key", "")
	v.SetDefault("addr", ":8080")
	v.SetDefault("data_dir", "~/.warehouse")
	v.SetDefault("drives_file", "")
	v.SetDefault("sync_secret", "")
	v.SetDefault("cron_secret", "")
	v.SetDefault("stale_after", 30*time.Minute)
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("log.dir", "")
	v.SetDefault("log.level", "info")

	v.SetDefault("cache.provider", string(cache.ProviderFile))
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.max_entries", 1000)

	v.SetDefault("crawl.max_depth", index.DefaultLimits.MaxDepth)
	v.SetDefault("crawl.max_folders", index.DefaultLimits.MaxFolders)
	v.SetDefault("crawl.max_files_per_folder", index.DefaultLimits.MaxFilesPerFolder)

	v.SetDefault("changes.page_size", 100)
	v.SetDefault("changes.max_pages", 10)
	v.SetDefault("changes.max_changes", 1000)

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
}

// New returns a viper instance with defaults and environment bindings.
// A non-empty file is read as the config file.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadDotEnv loads .env files into the environment. Missing files are
// ignored; existing variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// BindFlags binds flags to keys. Flag names use dashes where keys use
// underscores, e.g. --data-dir binds data_dir. The first dash may also
// stand for a section dot, e.g. --log-level binds log.level. Flags
// without a key are left alone.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	keys := make(map[string]bool)
	for _, k := range v.AllKeys() {
		keys[k] = true
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := flagKey(keys, f.Name)
		if key == "" || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func flagKey(keys map[string]bool, name string) string {
	flat := strings.ReplaceAll(name, "-", "_")
	if keys[flat] {
		return flat
	}
	if section, rest, ok := strings.Cut(name, "-"); ok {
		nested := section + "." + strings.ReplaceAll(rest, "-", "_")
		if keys[nested] {
			return nested
		}
	}
	return ""
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Load resolves v into a Config, expanding paths and validating.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) resolvePaths() error {
	var err error
	if c.DataDir, err = homedir.Expand(c.DataDir); err != nil {
		return fmt.Errorf("expand data dir: %w", err)
	}
	if c.DrivesFile == "" {
		c.DrivesFile = filepath.Join(c.DataDir, "drives.yaml")
	} else if c.DrivesFile, err = homedir.Expand(c.DrivesFile); err != nil {
		return fmt.Errorf("expand drives file: %w", err)
	}
	if c.Log.Dir != "" {
		if c.Log.Dir, err = homedir.Expand(c.Log.Dir); err != nil {
			return fmt.Errorf("expand log dir: %w", err)
		}
	}

	if c.Cache.Path == "" {
		switch c.Cache.Provider {
		case cache.ProviderFile:
			c.Cache.Path = filepath.Join(c.DataDir, "cache")
		case cache.ProviderBolt:
			c.Cache.Path = filepath.Join(c.DataDir, "cache.db")
		case cache.ProviderSQLite:
			c.Cache.Path = filepath.Join(c.DataDir, "cache.sqlite")
		}
	} else if c.Cache.Path, err = homedir.Expand(c.Cache.Path); err != nil {
		return fmt.Errorf("expand cache path: %w", err)
	}
	return nil
}

// Validate checks ranges and provider-specific requirements.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.StaleAfter, validation.Min(time.Minute)),
		validation.Field(&c.Log),
		validation.Field(&c.Cache, validation.By(validCache)),
		validation.Field(&c.Crawl, validation.By(validLimits)),
		validation.Field(&c.Changes),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
	)
}

func (c ChangesConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.MaxPages, validation.Min(1)),
		validation.Field(&c.MaxChanges, validation.Min(1)),
	)
}

func validCache(value any) error {
	c, _ := value.(cache.Config)
	switch c.Provider {
	case cache.ProviderMemory, cache.ProviderFile, cache.ProviderBolt, cache.ProviderSQLite:
		return nil
	case cache.ProviderRedis:
		if c.RedisURL == "" {
			return errors.New("redis_url required for redis provider")
		}
		return nil
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
}

func validLimits(value any) error {
	l, _ := value.(index.CrawlLimits)
	return validation.ValidateStruct(&l,
		validation.Field(&l.MaxDepth, validation.Min(1), validation.Max(50)),
		validation.Field(&l.MaxFolders, validation.Min(1)),
		validation.Field(&l.MaxFilesPerFolder, validation.Min(1)),
	)
}
