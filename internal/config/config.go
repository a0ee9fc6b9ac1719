package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/taein2026/AItest/internal/ai"
	"github.com/taein2026/AItest/internal/analysis"
	"github.com/taein2026/AItest/internal/iforest"
)

// Global configuration structure.
type Global struct {
	Schema  Schema  `mapstructure:"schema" yaml:"schema"`
	Lookups Lookups `mapstructure:"lookups" yaml:"lookups"`
	Input   Input   `mapstructure:"input" yaml:"input"`
	Model   Model   `mapstructure:"model" yaml:"model"`
	Explain Explain `mapstructure:"explain" yaml:"explain"`
	Output  Output  `mapstructure:"output" yaml:"output"`
	Logging Logging `mapstructure:"logging" yaml:"logging"`
	AI      AI      `mapstructure:"ai" yaml:"ai"`
	HTTP    HTTP    `mapstructure:"http" yaml:"http"`
}

// Schema names the claims columns the analysis depends on.
type Schema struct {
	DiagnosisStart string `mapstructure:"diagnosis_start" yaml:"diagnosis_start"`
	DiagnosisEnd   string `mapstructure:"diagnosis_end" yaml:"diagnosis_end"`
	DrugStart      string `mapstructure:"drug_start" yaml:"drug_start"`
	DrugEnd        string `mapstructure:"drug_end" yaml:"drug_end"`
	IDColumn       string `mapstructure:"id_column" yaml:"id_column"`
	DateColumn     string `mapstructure:"date_column" yaml:"date_column"`
}

// Lookups names the code and display-name columns of the two lookup tables.
type Lookups struct {
	DiseaseCode string `mapstructure:"disease_code" yaml:"disease_code"`
	DiseaseName string `mapstructure:"disease_name" yaml:"disease_name"`
	DrugCode    string `mapstructure:"drug_code" yaml:"drug_code"`
	DrugName    string `mapstructure:"drug_name" yaml:"drug_name"`
}

// Input controls file decoding.
type Input struct {
	ClaimsEncoding string `mapstructure:"claims_encoding" yaml:"claims_encoding"`
	LookupEncoding string `mapstructure:"lookup_encoding" yaml:"lookup_encoding"`
	SheetName      string `mapstructure:"sheet_name" yaml:"sheet_name"`
	SheetIndex     int    `mapstructure:"sheet_index" yaml:"sheet_index"`
}

// Model holds the isolation forest hyperparameters.
type Model struct {
	Trees         int     `mapstructure:"trees" yaml:"trees"`
	MaxSamples    int     `mapstructure:"max_samples" yaml:"max_samples"`
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"`
	Seed          int64   `mapstructure:"seed" yaml:"seed"`
	Workers       int     `mapstructure:"workers" yaml:"workers"`
}

// Explain bounds the anomaly explanation.
type Explain struct {
	TopN            int     `mapstructure:"top_n" yaml:"top_n"`
	MaxReasons      int     `mapstructure:"max_reasons" yaml:"max_reasons"`
	ActiveThreshold float64 `mapstructure:"active_threshold" yaml:"active_threshold"`
}

// Output configures optional result sinks.
type Output struct {
	PostgresDSN     string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
}

// Logging configures the zerolog logger.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AI configures the optional narrative report.
type AI struct {
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	OllamaHost  string  `mapstructure:"ollama_host" yaml:"ollama_host"`
}

// HTTP/Retry configuration
type HTTP struct {
	TimeoutSec       int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`
	OllamaTimeoutSec int `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`
}

// AnalysisOptions converts the configuration into pipeline options.
func (c *Global) AnalysisOptions() analysis.Options {
	return analysis.Options{
		Schema: analysis.Schema{
			Spans: []analysis.Span{
				{Start: c.Schema.DiagnosisStart, End: c.Schema.DiagnosisEnd},
				{Start: c.Schema.DrugStart, End: c.Schema.DrugEnd},
			},
			IDColumn: c.Schema.IDColumn,
			Date:     c.Schema.DateColumn,
			Disease:  analysis.LookupColumns{Code: c.Lookups.DiseaseCode, Name: c.Lookups.DiseaseName},
			Drug:     analysis.LookupColumns{Code: c.Lookups.DrugCode, Name: c.Lookups.DrugName},
		},
		Forest: iforest.Options{
			Trees:         c.Model.Trees,
			MaxSamples:    c.Model.MaxSamples,
			Contamination: c.Model.Contamination,
			Seed:          c.Model.Seed,
			Workers:       c.Model.Workers,
		},
		Explain: analysis.ExplainOptions{
			TopN:            c.Explain.TopN,
			MaxReasons:      c.Explain.MaxReasons,
			ActiveThreshold: c.Explain.ActiveThreshold,
		},
	}
}

func setDefaults(v *viper.Viper) {
	s := analysis.DefaultSchema()
	v.SetDefault("schema.diagnosis_start", s.Spans[0].Start)
	v.SetDefault("schema.diagnosis_end", s.Spans[0].End)
	v.SetDefault("schema.drug_start", s.Spans[1].Start)
	v.SetDefault("schema.drug_end", s.Spans[1].End)
	v.SetDefault("schema.id_column", s.IDColumn)
	v.SetDefault("schema.date_column", s.Date)
	v.SetDefault("lookups.disease_code", s.Disease.Code)
	v.SetDefault("lookups.disease_name", s.Disease.Name)
	v.SetDefault("lookups.drug_code", s.Drug.Code)
	v.SetDefault("lookups.drug_name", s.Drug.Name)

	// Claims exports come out of the billing system in CP949.
	v.SetDefault("input.claims_encoding", "cp949")
	v.SetDefault("input.lookup_encoding", "utf-8")
	v.SetDefault("input.sheet_name", "")
	v.SetDefault("input.sheet_index", 0)

	f := iforest.DefaultOptions()
	v.SetDefault("model.trees", f.Trees)
	v.SetDefault("model.max_samples", f.MaxSamples)
	v.SetDefault("model.contamination", f.Contamination)
	v.SetDefault("model.seed", f.Seed)
	v.SetDefault("model.workers", 0)

	e := analysis.DefaultExplainOptions()
	v.SetDefault("explain.top_n", e.TopN)
	v.SetDefault("explain.max_reasons", e.MaxReasons)
	v.SetDefault("explain.active_threshold", e.ActiveThreshold)

	v.SetDefault("output.postgres_dsn", "")
	v.SetDefault("output.metrics_textfile", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.provider", "openrouter")
	v.SetDefault("ai.model", "openai/gpt-4o-mini")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.3)
	v.SetDefault("ai.ollama_host", "http://127.0.0.1:11434")

	v.SetDefault("http.timeout_sec", 60)
	v.SetDefault("http.retry_max_attempts", 3)
	v.SetDefault("http.retry_base_delay_ms", 500)
	v.SetDefault("http.retry_max_delay_ms", 4000)
	v.SetDefault("http.ollama_timeout_sec", 120)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CLAIMSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// DefaultPath returns ~/.claimscan/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".claimscan", "config.yaml"), nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. A missing file is not an error.
func Load(cfgFile string) (*Global, error) {
	v := newViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		path, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(path))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.claimscan/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Set assigns a dotted key such as "model.contamination" from its string form.
// Values are converted to the field's type; unknown keys are rejected.
func Set(c *Global, key, val string) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	var current map[string]any
	if err := yaml.Unmarshal(b, &current); err != nil {
		return fmt.Errorf("unmarshal yaml: %w", err)
	}
	v := viper.New()
	if err := v.MergeConfigMap(current); err != nil {
		return fmt.Errorf("load config map: %w", err)
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if !v.IsSet(key) || len(strings.Split(key, ".")) != 2 {
		return fmt.Errorf("unknown key: %s", key)
	}
	v.Set(key, val)
	var out Global
	if err := v.Unmarshal(&out); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if key == "ai.provider" {
		p, err := ai.NormalizeProvider(val)
		if err != nil {
			return fmt.Errorf("invalid ai.provider: %w", err)
		}
		out.AI.Provider = p
	}
	if key == "model.contamination" && (out.Model.Contamination < 0 || out.Model.Contamination > 0.5) {
		return fmt.Errorf("invalid model.contamination: %s (must be within [0, 0.5])", val)
	}
	*c = out
	return nil
}

// Keys lists every settable key, sorted.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}
