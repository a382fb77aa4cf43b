// Package scribe wires the watched-folder audio pipeline together: configuration,
// the per-file processor and the long-running service.
package scribe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/TechnicallyShaun/nota-scribe/internal/vault"
)

// ConfigFileName is the name of the scribe config file within .nota
const ConfigFileName = vault.ScribeConfigFile

// EnvFileName is loaded from the config file's directory before placeholders are resolved.
const EnvFileName = ".env"

// Default values for optional configuration fields
const (
	DefaultVersion              = "1.0.0"
	DefaultStabilityWaitSeconds = 10
	DefaultValidationDelayMs    = 1000
	DefaultRetryAttempts        = 3
	DefaultRetryBaseDelayMs     = 1000
	DefaultDeepgramBaseURL      = "https://api.deepgram.com"
	DefaultDeepgramModel        = "nova-2"
	DefaultOpenAIBaseURL        = "https://api.openai.com/v1"
	DefaultOpenAIModel          = "gpt-4o"
	DefaultOpenAITemperature    = 0.7
	DefaultOpenAIMaxTokens      = 2000
	DefaultDatabasePath         = "~/.nota/scribe.db"
	DefaultLogDir               = "~/.nota/logs"
	DefaultLogLevel             = "info"
	DefaultLogRetentionDays     = 30
	DefaultWebHost              = "127.0.0.1"
	DefaultWebPort              = 8005
	DefaultWebPortAttempts      = 10
	DefaultRetentionJobDays     = 90
)

// DefaultSupportedFormats are the extensions accepted when none are configured.
var DefaultSupportedFormats = []string{".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg", ".mp4"}

// Default prompt file candidates searched upward from an audio file's directory.
var (
	DefaultSummaryCandidates    = []string{"instructions.md", "summary.md", ".instructions.md"}
	DefaultNamingCandidates     = []string{"naming.md", ".naming.md"}
	DefaultValidationCandidates = []string{"filename-validation.md", ".filename-validation.md"}
)

// Config is the complete scribe configuration. It is built once at startup and
// passed to every component that needs part of it.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Processing ProcessingConfig `yaml:"processing"`
	Deepgram   DeepgramConfig   `yaml:"deepgram"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Web        WebConfig        `yaml:"web"`
	Retention  RetentionConfig  `yaml:"retention"`

	// unresolved lists {{VAR}} placeholders with no value in the environment.
	unresolved []string
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Version string `yaml:"version"`
	Debug   bool   `yaml:"debug"`
}

// ProcessingConfig holds the folder layout and pipeline tuning.
type ProcessingConfig struct {
	WatchFolder       string   `yaml:"watch_folder"`
	ProcessedFolder   string   `yaml:"processed_folder"`
	ErrorFolder       string   `yaml:"error_folder"`
	OutputFolder      string   `yaml:"output_folder"`
	SupportedFormats  []string `yaml:"supported_formats"`
	FileStabilityWait int      `yaml:"file_stability_wait"`
	RecursiveWatch    bool     `yaml:"recursive_watch"`
	ValidationDelayMs int      `yaml:"validation_delay_ms"`
	MaxConcurrent     int      `yaml:"max_concurrent"`
	RetryAttempts     int      `yaml:"retry_attempts"`
	RetryBaseDelayMs  int      `yaml:"retry_base_delay_ms"`
}

// DeepgramConfig configures the transcription service.
type DeepgramConfig struct {
	APIKey   string           `yaml:"api_key"`
	BaseURL  string           `yaml:"base_url"`
	Model    string           `yaml:"model"`
	Features DeepgramFeatures `yaml:"features"`
}

// DeepgramFeatures are the recognized transcription flags.
type DeepgramFeatures struct {
	Punctuate      bool `yaml:"punctuate"`
	Paragraphs     bool `yaml:"paragraphs"`
	SpeakerDiarize bool `yaml:"speaker_diarize"`
	SmartFormat    bool `yaml:"smart_format"`
	UttSplit       bool `yaml:"utt_split"`
	Numerals       bool `yaml:"numerals"`
}

// OpenAIConfig configures the summarization service.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// PromptsConfig locates base prompt templates and folder override files.
type PromptsConfig struct {
	Dir                  string   `yaml:"dir"`
	SummaryCandidates    []string `yaml:"summary_candidates"`
	NamingCandidates     []string `yaml:"naming_candidates"`
	ValidationCandidates []string `yaml:"validation_candidates"`
}

// DatabaseConfig locates the job database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Dir           string `yaml:"dir"`
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retention_days"`
	Console       bool   `yaml:"console"`
}

// WebConfig configures the HTTP status surface.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// AutoPort tries the next PortAttempts-1 ports when Port is taken.
	AutoPort     bool `yaml:"auto_port"`
	PortAttempts int  `yaml:"port_attempts"`
}

// RetentionConfig bounds how long job rows are kept.
type RetentionConfig struct {
	JobDays int `yaml:"job_days"`
}

// Validation errors
var (
	ErrWatchFolderRequired  = errors.New("processing.watch_folder is required")
	ErrOutputFolderRequired = errors.New("processing.output_folder is required")
	ErrDeepgramKeyRequired  = errors.New("deepgram.api_key is required")
	ErrOpenAIKeyRequired    = errors.New("openai.api_key is required")
	ErrInvalidTemperature   = errors.New("openai.temperature must be between 0 and 2")
)

// Subsystems reported by Problems.
const (
	SubsystemPipeline = "pipeline"
	SubsystemWatcher  = "watcher"
)

// Default returns a Config with every optional field set. Boolean features
// default to enabled, so a file only needs to mention the ones it turns off.
func Default() *Config {
	cfg := &Config{
		Processing: ProcessingConfig{RecursiveWatch: true},
		Deepgram: DeepgramConfig{Features: DeepgramFeatures{
			Punctuate:      true,
			Paragraphs:     true,
			SpeakerDiarize: true,
			SmartFormat:    true,
			UttSplit:       true,
			Numerals:       true,
		}},
		OpenAI: OpenAIConfig{Temperature: DefaultOpenAITemperature},
	}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads the config named by SCRIBE_CONFIG, or else the one in the vault
// containing the working directory.
func Load() (*Config, error) {
	path, err := vault.FindConfig()
	if err != nil {
		return nil, err
	}
	return LoadPath(path)
}

// LoadFromVault reads <vaultRoot>/.nota/scribe.yaml. Relative folder paths are
// resolved against the vault root.
func LoadFromVault(vaultRoot string) (*Config, error) {
	cfg, err := LoadFile(ConfigPath(vaultRoot))
	if err != nil {
		return nil, err
	}
	cfg.resolveRelative(vaultRoot)
	return cfg, nil
}

// LoadPath reads the config file at path. Relative folders resolve against
// the vault root when the file sits in a .nota directory, otherwise against
// the file's own directory.
func LoadPath(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(abs)
	if err != nil {
		return nil, err
	}
	root := filepath.Dir(abs)
	if filepath.Base(root) == vault.VaultMarkerDir {
		root = filepath.Dir(root)
	}
	cfg.resolveRelative(root)
	return cfg, nil
}

// ConfigPath returns the config file location for a vault.
func ConfigPath(vaultRoot string) string {
	return vault.ConfigPath(vaultRoot)
}

// LoadFile reads a YAML config file. A .env file next to it is loaded into the
// process environment first (existing variables win), then {{VAR}} placeholders
// in string values are replaced from the environment. Paths containing ~ are
// expanded to the user's home directory.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	envPath := filepath.Join(filepath.Dir(path), EnvFileName)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	return Parse(data)
}

// Parse decodes YAML config data on top of Default and substitutes placeholders.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(root.Content) == 0 {
		cfg.ApplyDefaults()
		cfg.expandPaths()
		return cfg, nil
	}

	cfg.unresolved = substituteEnv(&root)

	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.expandPaths()
	return cfg, nil
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// substituteEnv replaces {{VAR}} in every scalar below n and returns the
// sorted names of variables that were not set.
func substituteEnv(n *yaml.Node) []string {
	missing := map[string]struct{}{}
	var walk func(*yaml.Node)
	walk = func(n *yaml.Node) {
		if n.Kind == yaml.ScalarNode && strings.Contains(n.Value, "{{") {
			n.Value = placeholderRe.ReplaceAllStringFunc(n.Value, func(m string) string {
				name := placeholderRe.FindStringSubmatch(m)[1]
				v, ok := os.LookupEnv(name)
				if !ok {
					missing[name] = struct{}{}
				}
				return v
			})
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)

	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unresolved returns the placeholder names that had no environment value.
func (c *Config) Unresolved() []string {
	return c.unresolved
}

// ApplyDefaults sets default values for optional fields that are empty or zero.
func (c *Config) ApplyDefaults() {
	if c.App.Version == "" {
		c.App.Version = DefaultVersion
	}

	p := &c.Processing
	if len(p.SupportedFormats) == 0 {
		p.SupportedFormats = append([]string(nil), DefaultSupportedFormats...)
	}
	for i, ext := range p.SupportedFormats {
		p.SupportedFormats[i] = normalizeExt(ext)
	}
	if p.FileStabilityWait <= 0 {
		p.FileStabilityWait = DefaultStabilityWaitSeconds
	}
	if p.ValidationDelayMs <= 0 {
		p.ValidationDelayMs = DefaultValidationDelayMs
	}
	if p.RetryAttempts <= 0 {
		p.RetryAttempts = DefaultRetryAttempts
	}
	if p.RetryBaseDelayMs <= 0 {
		p.RetryBaseDelayMs = DefaultRetryBaseDelayMs
	}
	if p.MaxConcurrent < 0 {
		p.MaxConcurrent = 0
	}

	if c.Deepgram.BaseURL == "" {
		c.Deepgram.BaseURL = DefaultDeepgramBaseURL
	}
	if c.Deepgram.Model == "" {
		c.Deepgram.Model = DefaultDeepgramModel
	}

	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = DefaultOpenAIBaseURL
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = DefaultOpenAIModel
	}
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = DefaultOpenAIMaxTokens
	}

	if len(c.Prompts.SummaryCandidates) == 0 {
		c.Prompts.SummaryCandidates = append([]string(nil), DefaultSummaryCandidates...)
	}
	if len(c.Prompts.NamingCandidates) == 0 {
		c.Prompts.NamingCandidates = append([]string(nil), DefaultNamingCandidates...)
	}
	if len(c.Prompts.ValidationCandidates) == 0 {
		c.Prompts.ValidationCandidates = append([]string(nil), DefaultValidationCandidates...)
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = DefaultLogDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.RetentionDays <= 0 {
		c.Logging.RetentionDays = DefaultLogRetentionDays
	}
	if c.Web.Host == "" {
		c.Web.Host = DefaultWebHost
	}
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if c.Web.PortAttempts <= 0 {
		c.Web.PortAttempts = DefaultWebPortAttempts
	}
	if c.Retention.JobDays <= 0 {
		c.Retention.JobDays = DefaultRetentionJobDays
	}
}

// Validate returns the first problem that prevents the pipeline from running.
func (c *Config) Validate() error {
	if c.Processing.WatchFolder == "" {
		return ErrWatchFolderRequired
	}
	if c.Processing.OutputFolder == "" {
		return ErrOutputFolderRequired
	}
	if c.Deepgram.APIKey == "" {
		return ErrDeepgramKeyRequired
	}
	if c.OpenAI.APIKey == "" {
		return ErrOpenAIKeyRequired
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return ErrInvalidTemperature
	}
	return nil
}

// Problems groups configuration problems by the subsystem they disable. A
// subsystem missing from the map can start; the process keeps running in a
// degraded state otherwise.
func (c *Config) Problems() map[string][]string {
	problems := map[string][]string{}
	add := func(subsystem, msg string) {
		problems[subsystem] = append(problems[subsystem], msg)
	}

	if c.Deepgram.APIKey == "" {
		add(SubsystemPipeline, ErrDeepgramKeyRequired.Error())
	}
	if c.OpenAI.APIKey == "" {
		add(SubsystemPipeline, ErrOpenAIKeyRequired.Error())
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		add(SubsystemPipeline, ErrInvalidTemperature.Error())
	}
	if c.Processing.OutputFolder == "" {
		add(SubsystemPipeline, ErrOutputFolderRequired.Error())
	}

	if c.Processing.WatchFolder == "" {
		add(SubsystemWatcher, ErrWatchFolderRequired.Error())
	} else if info, err := os.Stat(c.Processing.WatchFolder); err != nil || !info.IsDir() {
		add(SubsystemWatcher, fmt.Sprintf("watch folder %s does not exist", c.Processing.WatchFolder))
	}
	if _, ok := problems[SubsystemPipeline]; ok {
		add(SubsystemWatcher, "pipeline unavailable")
	}

	for _, name := range c.unresolved {
		add(SubsystemPipeline, fmt.Sprintf("environment variable %s is not set", name))
	}
	return problems
}

// StabilityWait returns the stability detector's total wait budget.
func (c *Config) StabilityWait() time.Duration {
	return time.Duration(c.Processing.FileStabilityWait) * time.Second
}

// ValidationDelay returns the pause between the two size reads of secondary validation.
func (c *Config) ValidationDelay() time.Duration {
	return time.Duration(c.Processing.ValidationDelayMs) * time.Millisecond
}

// RetryBaseDelay returns the first backoff delay of the retry policy.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Processing.RetryBaseDelayMs) * time.Millisecond
}

// Supported reports whether path has one of the configured extensions.
func (c *Config) Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range c.Processing.SupportedFormats {
		if f == ext {
			return true
		}
	}
	return false
}

// Addr returns the web listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// ListenAttempts is how many consecutive ports the web API may try.
func (c *Config) ListenAttempts() int {
	if !c.Web.AutoPort {
		return 1
	}
	return c.Web.PortAttempts
}

// WriteDefault writes a starter config for a vault if none exists. It reports
// whether a file was written.
func WriteDefault(vaultRoot string) (bool, error) {
	path := ConfigPath(vaultRoot)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, []byte(defaultConfigYAML), 0644)
}

// InboxFolders are created by init below the vault root, matching defaultConfigYAML.
var InboxFolders = []string{"Inbox/Audio", "Inbox/Processed", "Inbox/Failed", "Inbox/Notes"}

const defaultConfigYAML = `app:
  version: "` + DefaultVersion + `"

processing:
  watch_folder: Inbox/Audio
  processed_folder: Inbox/Processed
  error_folder: Inbox/Failed
  output_folder: Inbox/Notes
  supported_formats: [".mp3", ".wav", ".m4a", ".flac", ".aac", ".ogg", ".mp4"]
  file_stability_wait: 10
  recursive_watch: true

deepgram:
  api_key: "{{DEEPGRAM_API_KEY}}"
  model: nova-2

openai:
  api_key: "{{OPENAI_API_KEY}}"
  model: gpt-4o
  temperature: 0.7
  max_tokens: 2000

prompts:
  dir: .nota/prompts

database:
  path: ~/.nota/scribe.db

logging:
  dir: ~/.nota/logs
  level: info

web:
  host: 127.0.0.1
  port: 8005
  auto_port: true

retention:
  job_days: 90
`

func (c *Config) expandPaths() {
	c.Processing.WatchFolder = expandTilde(c.Processing.WatchFolder)
	c.Processing.ProcessedFolder = expandTilde(c.Processing.ProcessedFolder)
	c.Processing.ErrorFolder = expandTilde(c.Processing.ErrorFolder)
	c.Processing.OutputFolder = expandTilde(c.Processing.OutputFolder)
	c.Prompts.Dir = expandTilde(c.Prompts.Dir)
	c.Database.Path = expandTilde(c.Database.Path)
	c.Logging.Dir = expandTilde(c.Logging.Dir)
}

func (c *Config) resolveRelative(root string) {
	for _, p := range []*string{
		&c.Processing.WatchFolder,
		&c.Processing.ProcessedFolder,
		&c.Processing.ErrorFolder,
		&c.Processing.OutputFolder,
		&c.Prompts.Dir,
		&c.Database.Path,
		&c.Logging.Dir,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// expandTilde expands ~ at the beginning of a path to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
