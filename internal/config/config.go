package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Verbose        bool
	EnableCommands string
	Timeout        string
	Retries        int
	ChainID        int64
	RPCURL         string
	NoCache        bool
}

type Settings struct {
	OutputMode     string
	Verbose        bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	ChainID int64
	RPCURL  string

	BridgeURL       string
	SessionPath     string
	SessionLockPath string

	ApprovedAssets    []string
	MaxTxAmount       string
	MinBalanceWarning string

	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	JournalPath     string
	JournalLockPath string

	FeedURL       string
	FeedTTL       time.Duration
	CacheEnabled  bool
	CachePath     string
	CacheLockPath string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Chain   struct {
		ID     *int64 `yaml:"id"`
		RPCURL string `yaml:"rpc_url"`
	} `yaml:"chain"`
	Wallet struct {
		BridgeURL       string `yaml:"bridge_url"`
		SessionPath     string `yaml:"session_path"`
		SessionLockPath string `yaml:"session_lock_path"`
	} `yaml:"wallet"`
	Risk struct {
		ApprovedAssets    []string `yaml:"approved_assets"`
		MaxTxAmount       string   `yaml:"max_transaction_amount"`
		MinBalanceWarning string   `yaml:"min_balance_warning"`
	} `yaml:"risk"`
	Pipeline struct {
		ConfirmTimeout  string `yaml:"confirm_timeout"`
		PollInterval    string `yaml:"poll_interval"`
		JournalPath     string `yaml:"journal_path"`
		JournalLockPath string `yaml:"journal_lock_path"`
	} `yaml:"pipeline"`
	Feed struct {
		URL string `yaml:"url"`
		TTL string `yaml:"ttl"`
	} `yaml:"feed"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 2 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.FeedTTL <= 0 {
		settings.FeedTTL = time.Minute
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	stateDir, err := defaultStateDir()
	if err != nil {
		return Settings{}, err
	}
	cacheDir, err := defaultCacheDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:        "json",
		Timeout:           10 * time.Second,
		Retries:           2,
		ChainID:           1,
		BridgeURL:         "http://127.0.0.1:1248",
		SessionPath:       filepath.Join(stateDir, "session.db"),
		SessionLockPath:   filepath.Join(stateDir, "session.lock"),
		ApprovedAssets:    []string{"ETH", "USDC"},
		MaxTxAmount:       "1000",
		MinBalanceWarning: "0",
		ConfirmTimeout:    2 * time.Minute,
		PollInterval:      2 * time.Second,
		JournalPath:       filepath.Join(stateDir, "executions.db"),
		JournalLockPath:   filepath.Join(stateDir, "executions.lock"),
		FeedTTL:           time.Minute,
		CacheEnabled:      true,
		CachePath:         filepath.Join(cacheDir, "cache.db"),
		CacheLockPath:     filepath.Join(cacheDir, "cache.lock"),
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "walletctl", "config.yaml"), nil
}

func defaultStateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "walletctl"), nil
}

func defaultCacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "walletctl"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Chain.ID != nil {
		settings.ChainID = *cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Wallet.BridgeURL != "" {
		settings.BridgeURL = cfg.Wallet.BridgeURL
	}
	if cfg.Wallet.SessionPath != "" {
		settings.SessionPath = cfg.Wallet.SessionPath
	}
	if cfg.Wallet.SessionLockPath != "" {
		settings.SessionLockPath = cfg.Wallet.SessionLockPath
	}
	if len(cfg.Risk.ApprovedAssets) > 0 {
		settings.ApprovedAssets = cfg.Risk.ApprovedAssets
	}
	if cfg.Risk.MaxTxAmount != "" {
		settings.MaxTxAmount = cfg.Risk.MaxTxAmount
	}
	if cfg.Risk.MinBalanceWarning != "" {
		settings.MinBalanceWarning = cfg.Risk.MinBalanceWarning
	}
	if cfg.Pipeline.ConfirmTimeout != "" {
		d, err := time.ParseDuration(cfg.Pipeline.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("config pipeline.confirm_timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Pipeline.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Pipeline.PollInterval)
		if err != nil {
			return fmt.Errorf("config pipeline.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Pipeline.JournalPath != "" {
		settings.JournalPath = cfg.Pipeline.JournalPath
	}
	if cfg.Pipeline.JournalLockPath != "" {
		settings.JournalLockPath = cfg.Pipeline.JournalLockPath
	}
	if cfg.Feed.URL != "" {
		settings.FeedURL = cfg.Feed.URL
	}
	if cfg.Feed.TTL != "" {
		d, err := time.ParseDuration(cfg.Feed.TTL)
		if err != nil {
			return fmt.Errorf("config feed.ttl: %w", err)
		}
		settings.FeedTTL = d
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("WALLETCTL_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("WALLETCTL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("WALLETCTL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("WALLETCTL_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("WALLETCTL_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("WALLETCTL_BRIDGE_URL"); v != "" {
		settings.BridgeURL = v
	}
	if v := os.Getenv("WALLETCTL_SESSION_PATH"); v != "" {
		settings.SessionPath = v
	}
	if v := os.Getenv("WALLETCTL_SESSION_LOCK_PATH"); v != "" {
		settings.SessionLockPath = v
	}
	if v := os.Getenv("WALLETCTL_APPROVED_ASSETS"); v != "" {
		settings.ApprovedAssets = splitCSV(v)
	}
	if v := os.Getenv("WALLETCTL_MAX_TX_AMOUNT"); v != "" {
		settings.MaxTxAmount = v
	}
	if v := os.Getenv("WALLETCTL_MIN_BALANCE_WARNING"); v != "" {
		settings.MinBalanceWarning = v
	}
	if v := os.Getenv("WALLETCTL_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if v := os.Getenv("WALLETCTL_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("WALLETCTL_JOURNAL_PATH"); v != "" {
		settings.JournalPath = v
	}
	if v := os.Getenv("WALLETCTL_JOURNAL_LOCK_PATH"); v != "" {
		settings.JournalLockPath = v
	}
	if v := os.Getenv("WALLETCTL_FEED_URL"); v != "" {
		settings.FeedURL = v
	}
	if v := os.Getenv("WALLETCTL_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("WALLETCTL_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("WALLETCTL_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if flags.Verbose {
		settings.Verbose = true
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		norm := strings.TrimSpace(part)
		if norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
