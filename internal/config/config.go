// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/bonk-keeper/internal/battle"
	"github.com/rovshanmuradov/bonk-keeper/internal/utils/logger"
)

// EnvPrefix prefixes every environment override, e.g. BONK_KEEPER_RPC_URLS.
const EnvPrefix = "BONK_KEEPER"

type Config struct {
	RPC         RPCConfig         `mapstructure:"rpc"`
	Program     ProgramConfig     `mapstructure:"program"`
	Keeper      KeeperConfig      `mapstructure:"keeper"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Database    DatabaseConfig    `mapstructure:"database"`
	PoolService PoolServiceConfig `mapstructure:"pool_service"`
	PriceFeed   PriceFeedConfig   `mapstructure:"price_feed"`
	API         APIConfig         `mapstructure:"api"`
	Log         logger.Config     `mapstructure:"log"`
	Watcher     WatcherConfig     `mapstructure:"watcher"`
}

type RPCConfig struct {
	URLs              []string `mapstructure:"urls"`
	WebSocketURL      string   `mapstructure:"websocket_url"`
	Commitment        string   `mapstructure:"commitment"`
	RequestsPerSecond float64  `mapstructure:"requests_per_second"`
	Burst             int      `mapstructure:"burst"`
	MaxRetries        uint     `mapstructure:"max_retries"`
	// ComputeUnitLimit and PriorityFee (micro-lamports per unit) set the
	// compute budget of keeper transactions; zero omits the instruction.
	ComputeUnitLimit uint32 `mapstructure:"compute_unit_limit"`
	PriorityFee      uint64 `mapstructure:"priority_fee_micro_lamports"`

	RequestTimeoutMS int `mapstructure:"request_timeout_ms"`
	ConfirmTimeoutMS int `mapstructure:"confirm_timeout_ms"`
	NodeCooldownMS   int `mapstructure:"node_cooldown_ms"`

	RequestTimeout time.Duration `mapstructure:"-"`
	ConfirmTimeout time.Duration `mapstructure:"-"`
	NodeCooldown   time.Duration `mapstructure:"-"`
}

type ProgramConfig struct {
	ID       string `mapstructure:"id"`
	Treasury string `mapstructure:"treasury"`
	// Oracle overrides the derived price oracle address; empty uses the PDA.
	Oracle  string `mapstructure:"oracle"`
	Cluster string `mapstructure:"cluster"`
	// SpoilsBps and FeeBps must match the deployed program's finalize economics.
	SpoilsBps uint64 `mapstructure:"spoils_bps"`
	FeeBps    uint64 `mapstructure:"fee_bps"`
	// BestEffortDecode accepts accounts with an unknown layout version.
	BestEffortDecode bool `mapstructure:"best_effort_decode"`
}

// KeeperConfig holds the keeper authority key: a base58 secret, a JSON byte
// array, or a path to a solana-keygen file.
type KeeperConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	KeyFile    string `mapstructure:"key_file"`
}

type TierEntry struct {
	Tier                  uint8  `mapstructure:"tier"`
	TargetSolLamports     uint64 `mapstructure:"target_sol_lamports"`
	VictoryVolumeLamports uint64 `mapstructure:"victory_volume_lamports"`
}

type ThresholdsConfig struct {
	Tiers []TierEntry `mapstructure:"tiers"`
}

// Thresholds overlays the configured tiers on the deployed defaults.
func (t ThresholdsConfig) Thresholds() battle.Thresholds {
	th := battle.DefaultThresholds()
	for _, e := range t.Tiers {
		th[battle.Tier(e.Tier)] = battle.TierThreshold{
			TargetSol:     e.TargetSolLamports,
			VictoryVolume: e.VictoryVolumeLamports,
		}
	}
	return th
}

type SchedulerConfig struct {
	BatchIntervalMS     int  `mapstructure:"batch_interval_ms"`
	MatchIntervalMS     int  `mapstructure:"match_interval_ms"`
	PriceIntervalMS     int  `mapstructure:"price_interval_ms"`
	BudgetMS            int  `mapstructure:"budget_ms"`
	GraceMS             int  `mapstructure:"grace_ms"`
	TransitionTimeoutMS int  `mapstructure:"transition_timeout_ms"`
	Concurrency         int  `mapstructure:"concurrency"`
	BatchSize           int  `mapstructure:"batch_size"`
	ChainFlow           bool `mapstructure:"chain_flow"`
	RunOnStart          bool `mapstructure:"run_on_start"`

	BatchInterval     time.Duration `mapstructure:"-"`
	MatchInterval     time.Duration `mapstructure:"-"`
	PriceInterval     time.Duration `mapstructure:"-"`
	Budget            time.Duration `mapstructure:"-"`
	Grace             time.Duration `mapstructure:"-"`
	TransitionTimeout time.Duration `mapstructure:"-"`
}

type DatabaseConfig struct {
	// DSN: postgres URL or a SQLite file path.
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type PoolServiceConfig struct {
	// URL of the pool creation endpoint; empty disables pool creation.
	URL       string        `mapstructure:"url"`
	Token     string        `mapstructure:"token"`
	TimeoutMS int           `mapstructure:"timeout_ms"`
	Timeout   time.Duration `mapstructure:"-"`
}

type PriceFeedConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	URL        string        `mapstructure:"url"`
	TimeoutMS  int           `mapstructure:"timeout_ms"`
	MaxRetries uint          `mapstructure:"max_retries"`
	Timeout    time.Duration `mapstructure:"-"`
}

type APIConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	Secret           string        `mapstructure:"secret"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	RequestTimeoutMS int           `mapstructure:"request_timeout_ms"`
	RequestTimeout   time.Duration `mapstructure:"-"`
}

type WatcherConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	CooldownMS     int  `mapstructure:"cooldown_ms"`
	MaxInFlight    int  `mapstructure:"max_in_flight"`
	FlowTimeoutMS  int  `mapstructure:"flow_timeout_ms"`
	ReconnectMinMS int  `mapstructure:"reconnect_min_ms"`
	ReconnectMaxMS int  `mapstructure:"reconnect_max_ms"`

	Cooldown     time.Duration `mapstructure:"-"`
	FlowTimeout  time.Duration `mapstructure:"-"`
	ReconnectMin time.Duration `mapstructure:"-"`
	ReconnectMax time.Duration `mapstructure:"-"`
}

var defaults = map[string]interface{}{
	"rpc.urls":                        []string{"https://api.devnet.solana.com"},
	"rpc.websocket_url":               "",
	"rpc.commitment":                  "confirmed",
	"rpc.requests_per_second":         10.0,
	"rpc.burst":                       5,
	"rpc.compute_unit_limit":          200000,
	"rpc.priority_fee_micro_lamports": 0,
	"rpc.max_retries":                 4,
	"rpc.request_timeout_ms":          30000,
	"rpc.confirm_timeout_ms":          30000,
	"rpc.node_cooldown_ms":            10000,
	"program.id":                      "",
	"program.treasury":                "",
	"program.oracle":                  "",
	"program.cluster":                 "devnet",
	"program.spoils_bps":              5000,
	"program.fee_bps":                 500,
	"program.best_effort_decode":      true,
	"keeper.private_key":              "",
	"keeper.key_file":                 "",
	"scheduler.batch_interval_ms":     60000,
	"scheduler.match_interval_ms":     120000,
	"scheduler.price_interval_ms":     300000,
	"scheduler.budget_ms":             50000,
	"scheduler.grace_ms":              30000,
	"scheduler.transition_timeout_ms": 60000,
	"scheduler.concurrency":           4,
	"scheduler.batch_size":            50,
	"scheduler.chain_flow":            true,
	"scheduler.run_on_start":          true,
	"database.dsn":                    "keeper.db",
	"database.max_idle_conns":         5,
	"database.max_open_conns":         10,
	"database.log_level":              "warn",
	"pool_service.url":                "",
	"pool_service.token":              "",
	"pool_service.timeout_ms":         120000,
	"price_feed.enabled":              true,
	"price_feed.url":                  "",
	"price_feed.timeout_ms":           10000,
	"price_feed.max_retries":          3,
	"api.enabled":                     true,
	"api.addr":                        ":8080",
	"api.secret":                      "",
	"api.allowed_origins":             []string{"*"},
	"api.request_timeout_ms":          300000,
	"log.file":                        "keeper.log",
	"log.max_size_mb":                 100,
	"log.max_age_days":                7,
	"log.max_backups":                 3,
	"log.compress":                    true,
	"log.development":                 false,
	"log.disable_console":             false,
	"log.level":                       "",
	"watcher.enabled":                 false,
	"watcher.cooldown_ms":             30000,
	"watcher.max_in_flight":           4,
	"watcher.flow_timeout_ms":         300000,
	"watcher.reconnect_min_ms":        1000,
	"watcher.reconnect_max_ms":        60000,
}

// aliases are unprefixed env names accepted for secrets, as deployments
// usually already export them.
var aliases = map[string][]string{
	"keeper.private_key": {"KEEPER_PRIVATE_KEY"},
	"api.secret":         {"CRON_SECRET"},
	"database.dsn":       {"DATABASE_URL"},
	"pool_service.url":   {"POOL_SERVICE_URL"},
}

// LoadConfig reads path (optional), then .env and BONK_KEEPER_* overrides.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range aliases {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envName}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal error: %w", err)
	}

	cfg.RPC.URLs = cleanList(cfg.RPC.URLs)
	cfg.API.AllowedOrigins = cleanList(cfg.API.AllowedOrigins)
	cfg.convertDurations()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Convert ms to Duration
func (c *Config) convertDurations() {
	c.RPC.RequestTimeout = ms(c.RPC.RequestTimeoutMS)
	c.RPC.ConfirmTimeout = ms(c.RPC.ConfirmTimeoutMS)
	c.RPC.NodeCooldown = ms(c.RPC.NodeCooldownMS)

	s := &c.Scheduler
	s.BatchInterval = ms(s.BatchIntervalMS)
	s.MatchInterval = ms(s.MatchIntervalMS)
	s.PriceInterval = ms(s.PriceIntervalMS)
	s.Budget = ms(s.BudgetMS)
	s.Grace = ms(s.GraceMS)
	s.TransitionTimeout = ms(s.TransitionTimeoutMS)

	c.PoolService.Timeout = ms(c.PoolService.TimeoutMS)
	c.PriceFeed.Timeout = ms(c.PriceFeed.TimeoutMS)
	c.API.RequestTimeout = ms(c.API.RequestTimeoutMS)

	w := &c.Watcher
	w.Cooldown = ms(w.CooldownMS)
	w.FlowTimeout = ms(w.FlowTimeoutMS)
	w.ReconnectMin = ms(w.ReconnectMinMS)
	w.ReconnectMax = ms(w.ReconnectMaxMS)
}

func (c *Config) validate() error {
	if len(c.RPC.URLs) == 0 {
		return errors.New("rpc.urls must contain at least one RPC endpoint")
	}
	for _, u := range c.RPC.URLs {
		if err := checkScheme(u, "http", "https"); err != nil {
			return fmt.Errorf("rpc.urls: %w", err)
		}
	}
	if c.RPC.WebSocketURL != "" {
		if err := checkScheme(c.RPC.WebSocketURL, "ws", "wss"); err != nil {
			return fmt.Errorf("rpc.websocket_url: %w", err)
		}
	}

	if _, err := solana.PublicKeyFromBase58(c.Program.ID); err != nil {
		return fmt.Errorf("program.id: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(c.Program.Treasury); err != nil {
		return fmt.Errorf("program.treasury: %w", err)
	}
	if c.Program.Oracle != "" {
		if _, err := solana.PublicKeyFromBase58(c.Program.Oracle); err != nil {
			return fmt.Errorf("program.oracle: %w", err)
		}
	}
	if c.Program.SpoilsBps > 10_000 || c.Program.FeeBps > 10_000 {
		return errors.New("program.spoils_bps and program.fee_bps must not exceed 10000")
	}

	if c.Keeper.PrivateKey == "" && c.Keeper.KeyFile == "" {
		return errors.New("keeper.private_key or keeper.key_file is required")
	}

	for _, e := range c.Thresholds.Tiers {
		if e.TargetSolLamports == 0 || e.VictoryVolumeLamports == 0 {
			return fmt.Errorf("thresholds.tiers: tier %d needs non-zero targets", e.Tier)
		}
	}

	s := c.Scheduler
	switch {
	case s.BatchInterval <= 0:
		return errors.New("scheduler.batch_interval_ms must be positive")
	case s.MatchIntervalMS < 0, s.PriceIntervalMS < 0:
		return errors.New("scheduler intervals must not be negative")
	case s.Budget <= 0:
		return errors.New("scheduler.budget_ms must be positive")
	case s.TransitionTimeout <= 0:
		return errors.New("scheduler.transition_timeout_ms must be positive")
	case s.Concurrency <= 0:
		return errors.New("scheduler.concurrency must be positive")
	case s.BatchSize < 0:
		return errors.New("scheduler.batch_size must not be negative")
	}

	if c.PoolService.URL != "" {
		if err := checkScheme(c.PoolService.URL, "http", "https"); err != nil {
			return fmt.Errorf("pool_service.url: %w", err)
		}
	}
	if c.Watcher.Enabled && c.RPC.WebSocketURL == "" {
		return errors.New("watcher.enabled requires rpc.websocket_url")
	}
	if c.Watcher.MaxInFlight <= 0 {
		return errors.New("watcher.max_in_flight must be positive")
	}
	return nil
}

func checkScheme(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("invalid URL format")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid URL protocol %q", parsed.Scheme)
}

func cleanList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if clean := strings.TrimSpace(part); clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}
