package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host's zoneinfo

	"healthbot/internal/domain"
)

// Config is the root configuration for healthbot.
type Config struct {
	General    GeneralConfig    `json:"general"`
	Server     ServerConfig     `json:"server"`
	Channels   ChannelsConfig   `json:"channels"`
	Dialogflow DialogflowConfig `json:"dialogflow"`
	Translate  TranslateConfig  `json:"translate"`
	Generator  GeneratorConfig  `json:"generator"`
	Knowledge  KnowledgeConfig  `json:"knowledge"`
	Speech     SpeechConfig     `json:"speech"`
	Reminders  RemindersConfig  `json:"reminders"`
	Metrics    MetricsConfig    `json:"metrics"`
}

type GeneralConfig struct {
	DataDir               string `json:"dataDir"`
	LogLevel              string `json:"logLevel"`
	LogFormat             string `json:"logFormat"` // "text" | "json"
	Timezone              string `json:"timezone"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	TurnTTLSeconds        int    `json:"turnTTLSeconds"`
	PhrasesFile           string `json:"phrasesFile,omitempty"` // optional YAML overlay for reply phrases
}

// Location resolves the configured timezone, falling back to UTC.
func (g GeneralConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PublicBaseURL is where this server is reachable from the messaging
	// platforms; synthesized audio links are built from it.
	PublicBaseURL string `json:"publicBaseUrl"`
	CallbackPath  string `json:"callbackPath"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	SMS      SMSConfig      `json:"sms"`
	Telegram TelegramConfig `json:"telegram"`
}

type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	APIBase       string `json:"apiBase,omitempty"`
	AppSecret     string `json:"appSecret,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
	VerifyToken   string `json:"verifyToken,omitempty"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	WebhookPath   string `json:"webhookPath,omitempty"`
}

type SMSConfig struct {
	Enabled     bool   `json:"enabled"`
	APIBase     string `json:"apiBase,omitempty"`
	AccountSID  string `json:"accountSid,omitempty"`
	AuthToken   string `json:"authToken,omitempty"`
	FromNumber  string `json:"fromNumber,omitempty"`
	WebhookPath string `json:"webhookPath,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type DialogflowConfig struct {
	ProjectID       string `json:"projectId"`
	CredentialsFile string `json:"credentialsFile,omitempty"`
	APIBase         string `json:"apiBase,omitempty"`
	LanguageCode    string `json:"languageCode"`
}

type TranslateConfig struct {
	Enabled         bool   `json:"enabled"`
	CredentialsFile string `json:"credentialsFile,omitempty"`
	APIKey          string `json:"apiKey,omitempty"`
	APIBase         string `json:"apiBase,omitempty"`
}

// GeneratorConfig points at any OpenAI-compatible chat endpoint.
type GeneratorConfig struct {
	APIBase           string  `json:"apiBase"`
	APIKey            string  `json:"apiKey,omitempty"`
	Model             string  `json:"model"`
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"maxTokens"`
	TimeoutS          int     `json:"timeoutSeconds"`
	RequestsPerMinute int     `json:"requestsPerMinute"` // 0 disables client-side limiting
	Burst             int     `json:"burst"`
}

type KnowledgeConfig struct {
	QdrantURL        string `json:"qdrantUrl"`
	QdrantAPIKey     string `json:"qdrantApiKey,omitempty"`
	Collection       string `json:"collection"`
	SearchTopK       int    `json:"searchTopK"`
	EmbeddingAPIBase string `json:"embeddingApiBase"`
	EmbeddingAPIKey  string `json:"embeddingApiKey,omitempty"`
	EmbeddingModel   string `json:"embeddingModel"`
	ChunkSize        int    `json:"chunkSize"`    // words per chunk
	ChunkOverlap     int    `json:"chunkOverlap"` // overlapping words
}

type SpeechConfig struct {
	APIBase              string   `json:"apiBase"`
	APIKey               string   `json:"apiKey,omitempty"`
	STTModel             string   `json:"sttModel"`
	TTSModel             string   `json:"ttsModel"`
	Voice                string   `json:"voice"`
	CandidateLanguages   []string `json:"candidateLanguages"`
	AlternativeLanguages []string `json:"alternativeLanguages"`
	AudioDir             string   `json:"audioDir"`
}

type RemindersConfig struct {
	Store          string `json:"store"` // "memory" | "sqlite"
	DBPath         string `json:"dbPath"`
	RetentionDays  int    `json:"retentionDays"`
	NotifyEnabled  bool   `json:"notifyEnabled"`
	NotifySchedule string `json:"notifySchedule"` // robfig/cron spec
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.healthbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".healthbot"
	}
	return filepath.Join(home, ".healthbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	ApplyEnv(cfg)
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a config from defaults and the process environment only.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	ApplyEnv(cfg)
	cfg.expandPaths()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.General.DataDir = ExpandPath(c.General.DataDir)
	c.General.PhrasesFile = ExpandPath(c.General.PhrasesFile)
	c.Reminders.DBPath = ExpandPath(c.Reminders.DBPath)
	c.Speech.AudioDir = ExpandPath(c.Speech.AudioDir)
	c.Dialogflow.CredentialsFile = ExpandPath(c.Dialogflow.CredentialsFile)
	c.Translate.CredentialsFile = ExpandPath(c.Translate.CredentialsFile)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// ApplyEnv overlays the well-known deployment variables onto cfg.
// Unset variables leave the file or default value untouched.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, name string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	wa := &cfg.Channels.WhatsApp
	setString(&wa.AccessToken, "META_ACCESS_TOKEN")
	setString(&wa.PhoneNumberID, "META_PHONE_NUMBER_ID")
	setString(&wa.VerifyToken, "VERIFY_TOKEN")
	setString(&wa.AppSecret, "META_APP_SECRET")

	setString(&cfg.Dialogflow.ProjectID, "DIALOGFLOW_PROJECT_ID")
	setString(&cfg.Dialogflow.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&cfg.Translate.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS_TRANSLATE")
	setString(&cfg.Translate.APIKey, "GOOGLE_TRANSLATE_API_KEY")
	setString(&cfg.Generator.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Knowledge.QdrantURL, "QDRANT_URL")
	setString(&cfg.Knowledge.EmbeddingAPIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Speech.APIKey, "SPEECH_API_KEY")

	sms := &cfg.Channels.SMS
	setString(&sms.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&sms.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&sms.FromNumber, "TWILIO_FROM_NUMBER")
	setString(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")

	if domainName := strings.TrimSpace(os.Getenv("SERVER_DOMAIN")); domainName != "" {
		if !strings.Contains(domainName, "://") {
			domainName = "https://" + domainName
		}
		cfg.Server.PublicBaseURL = strings.TrimRight(domainName, "/")
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		cfg.Server.Port = port
	}
}

// Missing lists settings the webhook cannot work without. An incomplete
// config is reported at startup but is not fatal.
func (c *Config) Missing() []string {
	var missing []string
	check := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check(c.Channels.WhatsApp.AccessToken, "META_ACCESS_TOKEN")
	check(c.Channels.WhatsApp.PhoneNumberID, "META_PHONE_NUMBER_ID")
	check(c.Channels.WhatsApp.VerifyToken, "VERIFY_TOKEN")
	check(c.Dialogflow.ProjectID, "DIALOGFLOW_PROJECT_ID")
	check(c.Generator.APIKey, "GEMINI_API_KEY")
	return missing
}

// MissingError wraps Missing in domain.ErrConfigMissing, or returns nil.
func (c *Config) MissingError() error {
	missing := c.Missing()
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrConfigMissing, strings.Join(missing, ", "))
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.TurnTTLSeconds < 1 {
		errs = append(errs, "general.turnTTLSeconds must be >= 1")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.Timezone != "" {
		if _, err := time.LoadLocation(cfg.General.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("general.timezone: %v", err))
		}
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Knowledge.SearchTopK < 1 {
		errs = append(errs, "knowledge.searchTopK must be >= 1")
	}
	if cfg.Knowledge.ChunkSize < 1 || cfg.Knowledge.ChunkOverlap < 0 || cfg.Knowledge.ChunkOverlap >= cfg.Knowledge.ChunkSize {
		errs = append(errs, "knowledge.chunkOverlap must be >= 0 and smaller than knowledge.chunkSize")
	}
	if len(cfg.Speech.CandidateLanguages) == 0 {
		errs = append(errs, "speech.candidateLanguages must not be empty")
	}
	switch cfg.Reminders.Store {
	case "memory", "sqlite":
	default:
		errs = append(errs, "reminders.store must be one of: memory, sqlite")
	}
	if cfg.Reminders.RetentionDays < 1 {
		errs = append(errs, "reminders.retentionDays must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
