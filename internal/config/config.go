package config

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zhouzirui/digital-twin/backend/internal/llm/gemini"
	"github.com/zhouzirui/digital-twin/backend/internal/notify"
)

// Config aggregates every setting of the service.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Notify  NotifyConfig
	Persona PersonaConfig
	Session SessionConfig
	Log     LogConfig
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	notifyCfg, err := loadNotifyConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Notify:  notifyCfg,
		Persona: loadPersonaConfig(),
		Session: session,
		Log:     loadLogConfig(),
	}, nil
}

// ServerConfig describes the HTTP listener and what it serves besides the API.
type ServerConfig struct {
	Addr        string
	StaticDir   string
	CORSOrigins []string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	addr := port
	switch {
	case strings.Contains(port, ":"):
		// ":8080" and "127.0.0.1:8080" are taken as is.
	case strings.Contains(port, " "):
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	default:
		addr = ":" + port
	}

	return ServerConfig{
		Addr:        addr,
		StaticDir:   getEnvOrDefault("STATIC_DIR", "frontend/dist"),
		CORSOrigins: splitList(getEnvOrDefault("CORS_ORIGINS", "http://localhost:5173"), ","),
	}, nil
}

// Model providers.
const (
	ProviderArk    = "ark"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// AIConfig describes the chat model, the similarity classifier and the turn limits.
type AIConfig struct {
	Provider string

	APIKey    string
	AccessKey string
	SecretKey string
	BaseURL   string
	Region    string

	GeminiAPIKey string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	Model           string
	ClassifierModel string
	Temperature     *float64
	TopP            *float64
	MaxTokens       *int

	SimilarityEnabled bool
	MaxToolRounds     int
	TurnTimeout       time.Duration
	ContactURL        string
}

// Enabled reports whether credentials for the selected provider are present.
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != ""
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	default:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	}
}

// ResolveModel picks the conversation model name. LLM_MODEL wins; otherwise
// the persona's model is used if the selected provider can serve it.
func (c AIConfig) ResolveModel(personaModel string) (string, error) {
	if c.Model != "" {
		return c.Model, nil
	}
	personaModel = strings.TrimSpace(personaModel)
	if personaModel == "" {
		return "", fmt.Errorf("no model configured for %s provider, set LLM_MODEL", c.Provider)
	}
	if !ServesModel(c.Provider, personaModel) {
		return "", fmt.Errorf("persona model %q cannot be served by the %s provider, set LLM_MODEL", personaModel, c.Provider)
	}
	return personaModel, nil
}

// ServesModel reports whether provider accepts the model name. OpenAI
// compatible endpoints take any name; Gemini only serves its own families,
// and Ark never serves OpenAI or Gemini names.
func ServesModel(provider, name string) bool {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "models/"))
	switch provider {
	case ProviderOpenAI:
		return name != ""
	case ProviderGemini:
		return strings.HasPrefix(name, "gemini") || strings.HasPrefix(name, "gemma")
	case ProviderArk:
		return name != "" && !isOpenAIModel(name) && !strings.HasPrefix(name, "gemini") && !strings.HasPrefix(name, "gemma")
	}
	return false
}

func isOpenAIModel(name string) bool {
	for _, prefix := range []string{"gpt-", "chatgpt", "o1", "o3", "o4", "text-davinci"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// NewChatModel creates the conversation model for the given persona model.
func (c AIConfig) NewChatModel(ctx context.Context, personaModel string) (model.ToolCallingChatModel, error) {
	name, err := c.ResolveModel(personaModel)
	if err != nil {
		return nil, err
	}
	return c.newModel(ctx, name, toFloat32(c.Temperature), c.MaxTokens)
}

// NewClassifierModel creates the deterministic model used for question
// similarity. Without a dedicated classifier model the chat model is reused.
func (c AIConfig) NewClassifierModel(ctx context.Context, personaModel string) (model.ToolCallingChatModel, error) {
	name := c.ClassifierModel
	if name == "" {
		resolved, err := c.ResolveModel(personaModel)
		if err != nil {
			return nil, err
		}
		name = resolved
	}
	zero := float32(0)
	maxTokens := 10
	return c.newModel(ctx, name, &zero, &maxTokens)
}

func (c AIConfig) newModel(ctx context.Context, name string, temperature *float32, maxTokens *int) (model.ToolCallingChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("missing credentials for %s provider", c.Provider)
	}
	if name == "" {
		return nil, fmt.Errorf("no model configured for %s provider", c.Provider)
	}

	switch c.Provider {
	case ProviderGemini:
		cfg := gemini.Config{
			APIKey:      c.GeminiAPIKey,
			Model:       name,
			Temperature: temperature,
		}
		if maxTokens != nil {
			cfg.MaxTokens = *maxTokens
		}
		return gemini.NewChatModel(ctx, cfg)

	case ProviderOpenAI:
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      c.OpenAIAPIKey,
			BaseURL:     c.OpenAIBaseURL,
			Model:       name,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        toFloat32(c.TopP),
			Timeout:     c.TurnTimeout,
		})

	case ProviderArk:
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     c.BaseURL,
			Region:      c.Region,
			APIKey:      c.APIKey,
			AccessKey:   c.AccessKey,
			SecretKey:   c.SecretKey,
			Model:       name,
			MaxTokens:   maxTokens,
			Temperature: temperature,
			TopP:        toFloat32(c.TopP),
		})
	}
	return nil, fmt.Errorf("unknown LLM_PROVIDER %q", c.Provider)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}
	if topP == nil {
		topP, err = parseOptionalFloatEnv("ARK_TOP_P")
	}
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	similarity, err := parseBoolEnv("SIMILARITY_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	maxRounds := 8
	if override, err := parseOptionalIntEnv("MAX_TOOL_ROUNDS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("MAX_TOOL_ROUNDS must be positive, got %d", *override)
		}
		maxRounds = *override
	}

	turnTimeout, err := parseDurationEnv("TURN_TIMEOUT", 2*time.Minute)
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		Provider:          strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))),
		APIKey:            strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:         strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:         strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		BaseURL:           getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:            getEnvOrDefault("ARK_REGION", "cn-beijing"),
		GeminiAPIKey:      firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:     strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:             firstEnv("LLM_MODEL", "Model"),
		ClassifierModel:   strings.TrimSpace(os.Getenv("CLASSIFIER_MODEL")),
		Temperature:       temperature,
		TopP:              topP,
		MaxTokens:         maxTokens,
		SimilarityEnabled: similarity,
		MaxToolRounds:     maxRounds,
		TurnTimeout:       turnTimeout,
		ContactURL:        strings.TrimSpace(os.Getenv("FALLBACK_CONTACT_URL")),
	}

	switch cfg.Provider {
	case "":
		switch {
		case cfg.OpenAIAPIKey != "":
			cfg.Provider = ProviderOpenAI
		case cfg.APIKey == "" && cfg.AccessKey == "" && cfg.GeminiAPIKey != "":
			cfg.Provider = ProviderGemini
		default:
			cfg.Provider = ProviderArk
		}
	case ProviderArk, ProviderGemini, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", cfg.Provider)
	}
	return cfg, nil
}

// NotifyConfig lists the operator notification backends. Every backend whose
// credentials are present is used.
type NotifyConfig struct {
	PushoverToken    string
	PushoverUser     string
	SlackWebhookURL  string
	DiscordBotToken  string
	DiscordChannelID string
	QueueSize        int
}

// NewNotifier builds the fan-out of all configured backends behind an async
// queue. The returned Async must be closed on shutdown.
func (c NotifyConfig) NewNotifier(logger *zap.Logger) (*notify.Async, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &http.Client{Timeout: 10 * time.Second}

	var backends notify.Multi
	if c.PushoverToken != "" || c.PushoverUser != "" {
		p, err := notify.NewPushover(notify.PushoverConfig{Token: c.PushoverToken, User: c.PushoverUser})
		if err != nil {
			return nil, err
		}
		backends = append(backends, p)
	}
	if c.SlackWebhookURL != "" {
		s, err := notify.NewSlack(c.SlackWebhookURL, client)
		if err != nil {
			return nil, err
		}
		backends = append(backends, s)
	}
	if c.DiscordBotToken != "" || c.DiscordChannelID != "" {
		d, err := notify.NewDiscord(c.DiscordBotToken, c.DiscordChannelID)
		if err != nil {
			return nil, err
		}
		backends = append(backends, d)
	}

	var next notify.Notifier = backends
	if len(backends) == 0 {
		logger.Warn("no notification backend configured, operator notifications are dropped")
		next = notify.Nop{}
	}
	return notify.NewAsync(next, c.QueueSize, logger), nil
}

func loadNotifyConfig() (NotifyConfig, error) {
	queueSize := 64
	if override, err := parseOptionalIntEnv("NOTIFY_QUEUE_SIZE"); err != nil {
		return NotifyConfig{}, err
	} else if override != nil && *override > 0 {
		queueSize = *override
	}

	return NotifyConfig{
		PushoverToken:    strings.TrimSpace(os.Getenv("PUSHOVER_TOKEN")),
		PushoverUser:     strings.TrimSpace(os.Getenv("PUSHOVER_USER")),
		SlackWebhookURL:  strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL")),
		DiscordBotToken:  strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		DiscordChannelID: strings.TrimSpace(os.Getenv("DISCORD_CHANNEL_ID")),
		QueueSize:        queueSize,
	}, nil
}

// PersonaConfig selects where the persona is loaded from. A Sanity project id
// takes precedence over the local directory.
type PersonaConfig struct {
	SanityProjectID string
	SanityDataset   string
	SanityToken     string
	MeDir           string
}

func loadPersonaConfig() PersonaConfig {
	return PersonaConfig{
		SanityProjectID: strings.TrimSpace(os.Getenv("SANITY_PROJECT_ID")),
		SanityDataset:   getEnvOrDefault("SANITY_DATASET", "production"),
		SanityToken:     strings.TrimSpace(os.Getenv("SANITY_TOKEN")),
		MeDir:           getEnvOrDefault("ME_DIR", "me"),
	}
}

// SessionConfig bounds the in-memory session state.
type SessionConfig struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

func loadSessionConfig() (SessionConfig, error) {
	ttl, err := parseDurationEnv("SESSION_TTL", 24*time.Hour)
	if err != nil {
		return SessionConfig{}, err
	}
	interval, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}

	maxEntries := 10000
	if override, err := parseOptionalIntEnv("SESSION_MAX"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		maxEntries = *override
	}

	return SessionConfig{TTL: ttl, MaxEntries: maxEntries, SweepInterval: interval}, nil
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Development: strings.EqualFold(os.Getenv("APP_ENV"), "development"),
	}
}

// NewLogger builds the root logger.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL value %q: %w", c.Level, err)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
	}
	return ""
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toFloat32(v *float64) *float32 {
	if v == nil {
		return nil
	}
	f := float32(*v)
	return &f
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
