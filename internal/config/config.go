package config

import (
	"errors"
	"fmt"
	"os"

	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/scrapers/mircrew"
	"mircrewapi/pkg/configutil"
)

const (
	DriverHttp    = "http"
	DriverBrowser = "browser"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type BrowserConfig struct {
	ControlUrl    string `json:"control_url"`
	Headless      *bool  `json:"headless"`
	ScreenshotDir string `json:"screenshot_dir"`
}

type MircrewConfig struct {
	Username string        `json:"username"`
	Password string        `json:"password"`
	BaseUrl  string        `json:"base_url"`
	Driver   string        `json:"driver"`
	Browser  BrowserConfig `json:"browser"`
}

type CacheConfig struct {
	Dir     string `json:"dir"`
	Backend string `json:"backend"`
}

type ApiConfig struct {
	Port int `json:"port"`
}

type Config struct {
	Mircrew   MircrewConfig    `json:"mircrew"`
	Cache     CacheConfig      `json:"cache"`
	Api       ApiConfig        `json:"api"`
	Debug     bool             `json:"debug"`
	Telemetry telemetry.Config `json:"telemetry"`
}

// env is kept flat so every variable is looked up by its exact name.
type env struct {
	Username     string `envconfig:"MIRCREW_USERNAME"`
	Password     string `envconfig:"MIRCREW_PASSWORD"`
	Driver       string `envconfig:"MIRCREW_DRIVER"`
	CacheDir     string `envconfig:"CACHE_DIR"`
	CacheBackend string `envconfig:"CACHE_BACKEND"`
	ApiPort      int    `envconfig:"API_PORT"`
	Debug        bool   `envconfig:"DEBUG"`
}

func (e env) config() Config {
	return Config{
		Mircrew: MircrewConfig{
			Username: e.Username,
			Password: e.Password,
			Driver:   e.Driver,
		},
		Cache: CacheConfig{
			Dir:     e.CacheDir,
			Backend: e.CacheBackend,
		},
		Api:   ApiConfig{Port: e.ApiPort},
		Debug: e.Debug,
	}
}

func (c *Config) applyDefaults() {
	if c.Mircrew.BaseUrl == "" {
		c.Mircrew.BaseUrl = mircrew.DefaultBaseUrl
	}
	if c.Mircrew.Driver == "" {
		c.Mircrew.Driver = DriverHttp
	}
	if c.Mircrew.Browser.Headless == nil {
		headless := true
		c.Mircrew.Browser.Headless = &headless
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = ".cache"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Api.Port == 0 {
		c.Api.Port = 8000
	}
}

func (c Config) validate() error {
	switch c.Mircrew.Driver {
	case DriverHttp, DriverBrowser:
	default:
		return fmt.Errorf("unknown mircrew.driver %q", c.Mircrew.Driver)
	}
	switch c.Cache.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Api.Port < 0 || c.Api.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.Api.Port)
	}
	return nil
}

// Credentials never fails, missing values only surface as
// mircrew.ErrConfiguration on the first call that needs to log in.
func (c Config) Credentials() mircrew.Credentials {
	return mircrew.Credentials{
		Username: c.Mircrew.Username,
		Password: c.Mircrew.Password,
	}
}

// Load reads the config file at path (a missing file is not an error),
// layers environment variables over it and fills in defaults.
func Load(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	overrides, err := configutil.ReadEnv[env]()
	if err != nil {
		return Config{}, err
	}
	err = configutil.Override(&cfg, overrides.config())
	if err != nil {
		return Config{}, fmt.Errorf("apply env: %w", err)
	}

	cfg.applyDefaults()
	err = cfg.validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
