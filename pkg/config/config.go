// Package config loads AgoraNet's configuration from flags, environment
// variables and an optional YAML file, mirroring the merge strategy of the
// repository this module grew out of. The base is chosen first: an explicit
// --config flag loads that file (and fails if it is missing); otherwise a
// non-default --addr or --db flag starts from built-in defaults and ignores
// any config file; otherwise a present config file is the base; otherwise
// the built-in defaults are. Environment variables are then applied on top
// of that base in every case, and in the --addr/--db case those flags are
// applied last.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration unmarshals YAML values like "5s" or "1m" (and bare numbers as
// seconds) into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = 0
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is the full set of recognized configuration keys (spec.md §6).
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`

	Storage struct {
		// DataDir is the pebble data directory (DATABASE_URL in spec.md's
		// env var list, repurposed for an embedded store; see DESIGN.md).
		DataDir        string `yaml:"data_dir"`
		MaxConnections int    `yaml:"max_connections"`
		RunMigrations  bool   `yaml:"run_migrations"`
	} `yaml:"storage"`

	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		IPWhitelist []string `yaml:"ip_whitelist"`
	} `yaml:"security"`

	Federation struct {
		Enabled        bool     `yaml:"enabled"`
		BootstrapPeers []string `yaml:"bootstrap_peers"`
		ListenAddr     string   `yaml:"listen_addr"`
		MaxConnections int      `yaml:"max_connections"`
		NodeID         string   `yaml:"node_id"`
	} `yaml:"federation"`

	Runtime struct {
		Enabled      bool     `yaml:"enabled"`
		APIURL       string   `yaml:"api_url"`
		PollInterval Duration `yaml:"poll_interval"`
		DeferralTTL  Duration `yaml:"deferral_ttl"`
	} `yaml:"runtime"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`

	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"retention"`

	Validation struct {
		Required []string `yaml:"required"`
		Types    []struct {
			Path string `yaml:"path"`
			Type string `yaml:"type"`
		} `yaml:"types"`
		MaxLen []struct {
			Path string `yaml:"path"`
			Max  int    `yaml:"max"`
		} `yaml:"max_len"`
		Enums []struct {
			Path   string   `yaml:"path"`
			Values []string `yaml:"values"`
		} `yaml:"enums"`
		WhenThen []struct {
			When struct {
				Path   string      `yaml:"path"`
				Equals interface{} `yaml:"equals"`
			} `yaml:"when"`
			Then struct {
				Required []string `yaml:"required"`
			} `yaml:"then"`
		} `yaml:"when_then"`
	} `yaml:"validation"`
}

// Addr returns host:port for the HTTP server.
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

func defaults() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Storage.DataDir = "./.agoranet"
	c.Storage.MaxConnections = 10
	c.Federation.MaxConnections = 32
	c.Federation.ListenAddr = "/ip4/0.0.0.0/tcp/4001"
	c.Runtime.PollInterval = Duration(5 * time.Second)
	c.Runtime.DeferralTTL = Duration(60 * time.Second)
	c.Logging.Level = "info"
	c.Logging.Format = "text"
	c.Validation.MaxLen = []struct {
		Path string `yaml:"path"`
		Max  int    `yaml:"max"`
	}{{Path: "content", Max: 10000}, {Path: "title", Max: 280}}
	return c
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Flags holds parsed command-line flag values and which were explicitly set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// ParseFlags defines and parses the command-line flags.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.agoranet", "pebble data directory")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: set}
}

// ResolveConfigPath honors an explicit --config flag, else AGORANET_CONFIG,
// else the flag default.
func ResolveConfigPath(f Flags) string {
	if f.Set["config"] {
		return f.Config
	}
	if p := os.Getenv("AGORANET_CONFIG"); p != "" {
		return p
	}
	return f.Config
}

func parseList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// applyEnv overlays recognized environment variables onto cfg. Returns
// whether any env var was observed.
func applyEnv(cfg *Config) bool {
	used := false
	set := func() { used = true }

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			set()
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DataDir = v
		set()
	}
	if v := os.Getenv("DB_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Storage.MaxConnections = n
			set()
		}
	}
	if v := os.Getenv("RUN_MIGRATIONS"); v != "" {
		cfg.Storage.RunMigrations = truthy(v)
		set()
	}
	if v := os.Getenv("ENABLE_FEDERATION"); v != "" {
		cfg.Federation.Enabled = truthy(v)
		set()
	}
	if v := os.Getenv("FEDERATION_BOOTSTRAP_PEERS"); v != "" {
		cfg.Federation.BootstrapPeers = parseList(v)
		set()
	}
	if v := os.Getenv("FEDERATION_LISTEN_ADDR"); v != "" {
		cfg.Federation.ListenAddr = v
		set()
	}
	if v := os.Getenv("FEDERATION_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Federation.MaxConnections = n
			set()
		}
	}
	if v := os.Getenv("NODE_ID"); v != "" {
		cfg.Federation.NodeID = v
		set()
	}
	if v := os.Getenv("ENABLE_RUNTIME_CLIENT"); v != "" {
		cfg.Runtime.Enabled = truthy(v)
		set()
	}
	if v := os.Getenv("RUNTIME_API_URL"); v != "" {
		cfg.Runtime.APIURL = v
		set()
	}
	if v := os.Getenv("RUNTIME_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runtime.PollInterval = Duration(d)
			set()
		}
	}
	if v := os.Getenv("DEFERRAL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runtime.DeferralTTL = Duration(d)
			set()
		}
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
		set()
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		set()
	}
	if v := os.Getenv("AGORANET_CORS_ORIGINS"); v != "" {
		cfg.Security.CORS.AllowedOrigins = parseList(v)
		set()
	}
	if v := os.Getenv("AGORANET_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.RateLimit.RPS = f
			set()
		}
	}
	if v := os.Getenv("AGORANET_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Security.RateLimit.Burst = n
			set()
		}
	}
	if v := os.Getenv("AGORANET_IP_WHITELIST"); v != "" {
		cfg.Security.IPWhitelist = parseList(v)
		set()
	}
	if c := os.Getenv("AGORANET_TLS_CERT"); c != "" {
		cfg.Server.TLS.CertFile = c
		set()
	}
	if k := os.Getenv("AGORANET_TLS_KEY"); k != "" {
		cfg.Server.TLS.KeyFile = k
		set()
	}
	return used
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Effective is the resolved configuration plus provenance, used by the
// banner and by App.New.
type Effective struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", "env", or "defaults"
}

// LoadEffective merges flags, config file and environment per the package
// doc's precedence order.
func LoadEffective(flags Flags) (Effective, error) {
	var res Effective

	cfgPath := ResolveConfigPath(flags)
	fileCfg, fileErr := Load(cfgPath)
	fileExists := fileErr == nil

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found: %w", cfgPath, fileErr)
		}
		applyEnv(fileCfg)
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Storage.DataDir
		res.Source = "config"
		return res, nil
	}

	if flags.Set["addr"] || flags.Set["db"] {
		cfg := defaults()
		applyEnv(cfg)
		if flags.Set["addr"] {
			if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
				cfg.Server.Address = h
				if pi, err := strconv.Atoi(p); err == nil {
					cfg.Server.Port = pi
				}
			}
		}
		if flags.Set["db"] {
			cfg.Storage.DataDir = flags.DB
		}
		res.Config = cfg
		res.Addr = cfg.Addr()
		res.DBPath = cfg.Storage.DataDir
		res.Source = "flags"
		return res, nil
	}

	if fileExists {
		applyEnv(fileCfg)
		res.Config = fileCfg
		res.Addr = fileCfg.Addr()
		res.DBPath = fileCfg.Storage.DataDir
		res.Source = "config"
		return res, nil
	}

	cfg := defaults()
	envUsed := applyEnv(cfg)
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Storage.DataDir
	if envUsed {
		res.Source = "env"
	} else {
		res.Source = "defaults"
	}
	return res, nil
}

// Runtime holds derived values other packages query after startup (the
// DID rate-limit config currently). Guarded the way the source repo guards
// its analogous runtime key sets.
type Runtime struct {
	RateRPS   float64
	RateBurst int
}

var (
	runtimeMu  sync.RWMutex
	runtimeVal Runtime
)

func SetRuntime(r Runtime) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeVal = r
}

func GetRuntime() Runtime {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	return runtimeVal
}
