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
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	NoCache        bool
	RPCURL         string
	ChainID        int64
	KeySource      string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration

	ChainID        int64
	RPCURL         string
	KeySource      string
	TokenAddress   string
	GatewayAddress string
	// ConsultationFee is the advisor unlock fee in whole tokens (decimal form).
	ConsultationFee string
	TokenDecimals   int

	CacheEnabled  bool
	CacheTTL      time.Duration
	CachePath     string
	CacheLockPath string
	StatePath     string
	StateLockPath string

	FeedMaxAttempts      int
	FeedRetryDelay       time.Duration
	FeedRateLimitDelay   time.Duration
	FeedMaxRateLimitWait time.Duration
	Symbols              []string

	PriceAPIBase     string
	PriceAPIKey      string
	SentimentAPIBase string
	SentimentAPIKey  string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Chain   struct {
		ID        *int64 `yaml:"id"`
		RPCURL    string `yaml:"rpc_url"`
		Token     string `yaml:"token_address"`
		Gateway   string `yaml:"gateway_address"`
		Fee       string `yaml:"consultation_fee"`
		Decimals  *int   `yaml:"token_decimals"`
		KeySource string `yaml:"key_source"`
	} `yaml:"chain"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		TTL      string `yaml:"ttl"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"cache"`
	State struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"state"`
	Feed struct {
		MaxAttempts      *int     `yaml:"max_attempts"`
		RetryDelay       string   `yaml:"retry_delay"`
		RateLimitDelay   string   `yaml:"rate_limit_delay"`
		MaxRateLimitWait string   `yaml:"max_rate_limit_wait"`
		Symbols          []string `yaml:"symbols"`
	} `yaml:"feed"`
	Providers struct {
		Price struct {
			APIBase   string `yaml:"api_base"`
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"price"`
		Sentiment struct {
			APIBase   string `yaml:"api_base"`
			APIKey    string `yaml:"api_key"`
			APIKeyEnv string `yaml:"api_key_env"`
		} `yaml:"sentiment"`
	} `yaml:"providers"`
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
		settings.Timeout = 30 * time.Second
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 10 * time.Minute
	}
	if settings.FeedMaxAttempts <= 0 {
		settings.FeedMaxAttempts = 3
	}
	if len(settings.Symbols) == 0 {
		settings.Symbols = defaultSymbols()
	}

	return settings, nil
}

func defaultSymbols() []string {
	return []string{"PEPE", "WIF", "BONK"}
}

func defaultSettings() (Settings, error) {
	cachePath, cacheLockPath, err := defaultCachePaths()
	if err != nil {
		return Settings{}, err
	}
	cacheDir := filepath.Dir(cachePath)
	return Settings{
		OutputMode: "json",
		Timeout:    30 * time.Second,

		ChainID:         1320,
		KeySource:       "auto",
		ConsultationFee: "100",
		TokenDecimals:   18,

		CacheEnabled:  true,
		CacheTTL:      10 * time.Minute,
		CachePath:     cachePath,
		CacheLockPath: cacheLockPath,
		StatePath:     filepath.Join(cacheDir, "state.db"),
		StateLockPath: filepath.Join(cacheDir, "state.lock"),

		FeedMaxAttempts:      3,
		FeedRetryDelay:       1 * time.Second,
		FeedRateLimitDelay:   2 * time.Second,
		FeedMaxRateLimitWait: 2 * time.Minute,
		Symbols:              defaultSymbols(),

		PriceAPIBase:     "https://min-api.cryptocompare.com",
		SentimentAPIBase: "https://api.openai.com/v1",
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
	return filepath.Join(base, "advisor", "config.yaml"), nil
}

func defaultCachePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "advisor")
	return filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"), nil
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
	if cfg.Chain.ID != nil {
		settings.ChainID = *cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Chain.Token != "" {
		settings.TokenAddress = cfg.Chain.Token
	}
	if cfg.Chain.Gateway != "" {
		settings.GatewayAddress = cfg.Chain.Gateway
	}
	if cfg.Chain.Fee != "" {
		settings.ConsultationFee = cfg.Chain.Fee
	}
	if cfg.Chain.Decimals != nil {
		settings.TokenDecimals = *cfg.Chain.Decimals
	}
	if cfg.Chain.KeySource != "" {
		settings.KeySource = cfg.Chain.KeySource
	}
	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	if cfg.Cache.TTL != "" {
		d, err := time.ParseDuration(cfg.Cache.TTL)
		if err != nil {
			return fmt.Errorf("config cache.ttl: %w", err)
		}
		settings.CacheTTL = d
	}
	if cfg.Cache.Path != "" {
		settings.CachePath = cfg.Cache.Path
	}
	if cfg.Cache.LockPath != "" {
		settings.CacheLockPath = cfg.Cache.LockPath
	}
	if cfg.State.Path != "" {
		settings.StatePath = cfg.State.Path
	}
	if cfg.State.LockPath != "" {
		settings.StateLockPath = cfg.State.LockPath
	}
	if cfg.Feed.MaxAttempts != nil {
		settings.FeedMaxAttempts = *cfg.Feed.MaxAttempts
	}
	if cfg.Feed.RetryDelay != "" {
		d, err := time.ParseDuration(cfg.Feed.RetryDelay)
		if err != nil {
			return fmt.Errorf("config feed.retry_delay: %w", err)
		}
		settings.FeedRetryDelay = d
	}
	if cfg.Feed.RateLimitDelay != "" {
		d, err := time.ParseDuration(cfg.Feed.RateLimitDelay)
		if err != nil {
			return fmt.Errorf("config feed.rate_limit_delay: %w", err)
		}
		settings.FeedRateLimitDelay = d
	}
	if cfg.Feed.MaxRateLimitWait != "" {
		d, err := time.ParseDuration(cfg.Feed.MaxRateLimitWait)
		if err != nil {
			return fmt.Errorf("config feed.max_rate_limit_wait: %w", err)
		}
		settings.FeedMaxRateLimitWait = d
	}
	if len(cfg.Feed.Symbols) > 0 {
		settings.Symbols = normalizeSymbols(cfg.Feed.Symbols)
	}
	if cfg.Providers.Price.APIBase != "" {
		settings.PriceAPIBase = cfg.Providers.Price.APIBase
	}
	if cfg.Providers.Price.APIKey != "" {
		settings.PriceAPIKey = cfg.Providers.Price.APIKey
	}
	if cfg.Providers.Price.APIKeyEnv != "" {
		settings.PriceAPIKey = os.Getenv(cfg.Providers.Price.APIKeyEnv)
	}
	if cfg.Providers.Sentiment.APIBase != "" {
		settings.SentimentAPIBase = cfg.Providers.Sentiment.APIBase
	}
	if cfg.Providers.Sentiment.APIKey != "" {
		settings.SentimentAPIKey = cfg.Providers.Sentiment.APIKey
	}
	if cfg.Providers.Sentiment.APIKeyEnv != "" {
		settings.SentimentAPIKey = os.Getenv(cfg.Providers.Sentiment.APIKeyEnv)
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("ADVISOR_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("ADVISOR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("ADVISOR_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("ADVISOR_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("ADVISOR_TOKEN_ADDRESS"); v != "" {
		settings.TokenAddress = v
	}
	if v := os.Getenv("ADVISOR_GATEWAY_ADDRESS"); v != "" {
		settings.GatewayAddress = v
	}
	if v := os.Getenv("ADVISOR_CONSULTATION_FEE"); v != "" {
		settings.ConsultationFee = v
	}
	if v := os.Getenv("ADVISOR_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("ADVISOR_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("ADVISOR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.CacheTTL = d
		}
	}
	if v := os.Getenv("ADVISOR_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("ADVISOR_CACHE_LOCK_PATH"); v != "" {
		settings.CacheLockPath = v
	}
	if v := os.Getenv("ADVISOR_STATE_PATH"); v != "" {
		settings.StatePath = v
	}
	if v := os.Getenv("ADVISOR_STATE_LOCK_PATH"); v != "" {
		settings.StateLockPath = v
	}
	if v := os.Getenv("ADVISOR_SYMBOLS"); v != "" {
		settings.Symbols = normalizeSymbols(strings.Split(v, ","))
	}
	if v := os.Getenv("ADVISOR_PRICE_API_BASE"); v != "" {
		settings.PriceAPIBase = v
	}
	if v := os.Getenv("ADVISOR_PRICE_API_KEY"); v != "" {
		settings.PriceAPIKey = v
	}
	if v := os.Getenv("ADVISOR_SENTIMENT_API_BASE"); v != "" {
		settings.SentimentAPIBase = v
	}
	if v := os.Getenv("ADVISOR_SENTIMENT_API_KEY"); v != "" {
		settings.SentimentAPIKey = v
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
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitCSV(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

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
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if strings.TrimSpace(flags.KeySource) != "" {
		settings.KeySource = strings.TrimSpace(flags.KeySource)
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
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
