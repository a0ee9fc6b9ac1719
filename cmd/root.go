package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taein2026/AItest/internal/ai"
	cfgpkg "github.com/taein2026/AItest/internal/config"
	"github.com/taein2026/AItest/internal/logging"
)

var (
	cfgFile   string
	debug     bool
	logFormat string

	// HTTP/retry overrides for the narrative runtime
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	cfg *cfgpkg.Global
	log = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "claimscan",
	Short: "claimscan: flag and explain unusual medical treatment claims",
	Long: `claimscan scores a batch of treatment claims with an isolation forest, lists the most
unusual ones together with the rare diagnosis and drug codes that make them stand out, and projects
every claim onto two principal components for review.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.claimscan/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&logFormat, "log-format", "", "log format: console or json (overrides config)")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	log, _ = logging.New(logging.Options{})
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands that need config call requireConfig.
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		cfg = nil
		return
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTP.TimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.HTTP.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.HTTP.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.HTTP.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	l, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; using defaults\n", err)
		l, _ = logging.New(logging.Options{})
	}
	log = l
}

// requireConfig returns the loaded configuration, retrying the load to surface its error.
func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

// runtimeConfig builds the narrative runtime settings from cfg and provider.
func runtimeConfig(provider string) ai.RuntimeConfig {
	timeout := time.Duration(cfg.HTTP.TimeoutSec) * time.Second
	if p, _ := ai.NormalizeProvider(provider); p == ai.ProviderOllama && cfg.HTTP.OllamaTimeoutSec > 0 {
		timeout = time.Duration(cfg.HTTP.OllamaTimeoutSec) * time.Second
	}
	return ai.RuntimeConfig{
		Provider:  provider,
		APIKey:    cfg.AI.APIKey,
		Timeout:   timeout,
		OllamaURL: cfg.AI.OllamaHost,
		Retry: ai.RetryPolicy{
			MaxAttempts: cfg.HTTP.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.HTTP.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.HTTP.RetryMaxDelayMs) * time.Millisecond,
		},
	}
}
