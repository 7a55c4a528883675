package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the file-level configuration. Environment variables override
// file values; explicit flags override both.
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Remote struct {
		// Backend selects the transport: "rest" or "memory".
		Backend       string `yaml:"backend"`
		BaseURL       string `yaml:"base_url"`
		Token         string `yaml:"token"`
		Workspace     string `yaml:"workspace"`
		PageSize      int    `yaml:"page_size"`
		MaxMessageLen int    `yaml:"max_message_len"`
	} `yaml:"remote"`
	Governor struct {
		RPS        float64 `yaml:"rps"`
		Burst      int     `yaml:"burst"`
		MaxRetries int     `yaml:"max_retries"`
		MaxWaitSec int     `yaml:"max_wait_seconds"`
	} `yaml:"governor"`
	Cache struct {
		Path string `yaml:"path"`
	} `yaml:"cache"`
	Repair struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"repair"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the admin HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Effective is the merged result of file, env and flags plus where the
// values came from.
type Effective struct {
	Config    *Config
	Addr      string
	CachePath string
	Source    string
}

// Load reads a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses the command-line flags and returns
// their values plus which were explicitly set.
func ParseCommandFlags() (addr string, cachePath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "admin HTTP listen address")
	cachePtr := flag.String("cache", "", "snapshot cache path (empty disables persistence)")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *cachePtr, *cfgPtr, setFlags
}

// ResolveConfigPath decides the config file path from the flag value and
// the CHATDB_CONFIG environment variable when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATDB_CONFIG"); p != "" {
		return p
	}
	return flagPath
}

// LoadEnvOverrides applies CHATDB_* environment overrides onto cfg and
// reports whether any were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			envUsed = true
			*dst = v
		}
	}
	setStr("CHATDB_REMOTE_BACKEND", &cfg.Remote.Backend)
	setStr("CHATDB_REMOTE_URL", &cfg.Remote.BaseURL)
	setStr("CHATDB_BOT_TOKEN", &cfg.Remote.Token)
	setStr("CHATDB_WORKSPACE", &cfg.Remote.Workspace)
	setStr("CHATDB_CACHE_PATH", &cfg.Cache.Path)
	setStr("CHATDB_REPAIR_CRON", &cfg.Repair.Cron)
	setStr("CHATDB_LOG_LEVEL", &cfg.Logging.Level)

	if v := os.Getenv("CHATDB_ADDR"); v != "" {
		envUsed = true
		if host, port, found := strings.Cut(v, ":"); found {
			cfg.Server.Address = host
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("CHATDB_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Governor.RPS = f
		}
	}
	if v := os.Getenv("CHATDB_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Governor.Burst = n
		}
	}
	if v := os.Getenv("CHATDB_REPAIR_ENABLED"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Repair.Enabled = vl == "1" || vl == "true" || vl == "yes"
	}
	return envUsed
}

// LoadEffective loads config from path (file) and applies environment
// overrides. A missing file is not fatal; env and defaults still apply.
func LoadEffective(path string) (Effective, error) {
	cfg, err := Load(path)
	source := "config"
	if err != nil {
		cfg = &Config{}
		source = "defaults"
	}
	if LoadEnvOverrides(cfg) {
		source = "env"
	}
	return Effective{
		Config:    cfg,
		Addr:      cfg.Addr(),
		CachePath: cfg.Cache.Path,
		Source:    source,
	}, nil
}
