package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "STATIC_DIR", "CORS_ORIGINS",
		"LLM_PROVIDER", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "LLM_TOP_P",
		"LLM_MODEL", "Model", "CLASSIFIER_MODEL", "LLM_TEMPERATURE", "ARK_TOP_P", "LLM_MAX_TOKENS",
		"SIMILARITY_ENABLED", "MAX_TOOL_ROUNDS", "TURN_TIMEOUT", "FALLBACK_CONTACT_URL",
		"PUSHOVER_TOKEN", "PUSHOVER_USER", "SLACK_WEBHOOK_URL", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "NOTIFY_QUEUE_SIZE",
		"SANITY_PROJECT_ID", "SANITY_DATASET", "SANITY_TOKEN", "ME_DIR",
		"SESSION_TTL", "SESSION_MAX", "SESSION_SWEEP_INTERVAL",
		"LOG_LEVEL", "APP_ENV",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "frontend/dist", cfg.Server.StaticDir)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)

	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	assert.False(t, cfg.AI.Enabled())
	assert.True(t, cfg.AI.SimilarityEnabled)
	assert.Equal(t, 8, cfg.AI.MaxToolRounds)
	assert.Equal(t, 2*time.Minute, cfg.AI.TurnTimeout)

	assert.Equal(t, 64, cfg.Notify.QueueSize)
	assert.Equal(t, "me", cfg.Persona.MeDir)
	assert.Equal(t, "production", cfg.Persona.SanityDataset)

	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10000, cfg.Session.MaxEntries)
	assert.Equal(t, 5*time.Minute, cfg.Session.SweepInterval)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Development)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("LLM_MODEL", "gemini-2.0-flash")
	t.Setenv("MAX_TOOL_ROUNDS", "3")
	t.Setenv("TURN_TIMEOUT", "45s")
	t.Setenv("SESSION_TTL", "1h")
	t.Setenv("SESSION_MAX", "50")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ProviderGemini, cfg.AI.Provider, "gemini is picked when only its key is present")
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "gemini-2.0-flash", cfg.AI.Model)
	assert.Equal(t, 3, cfg.AI.MaxToolRounds)
	assert.Equal(t, 45*time.Second, cfg.AI.TurnTimeout)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 50, cfg.Session.MaxEntries)
	assert.True(t, cfg.Log.Development)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":               "80 80",
		"LLM_PROVIDER":       "anthropic",
		"MAX_TOOL_ROUNDS":    "0",
		"TURN_TIMEOUT":       "soon",
		"SESSION_TTL":        "-1h",
		"SIMILARITY_ENABLED": "maybe",
		"LLM_TEMPERATURE":    "hot",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk}
	_, err := cfg.NewChatModel(context.Background(), "gpt-4.1-mini")
	assert.Error(t, err)

	cfg = AIConfig{Provider: ProviderGemini, GeminiAPIKey: "k"}
	_, err = cfg.NewChatModel(context.Background(), "")
	assert.Error(t, err, "a model name is required")
}

func TestLoadPicksOpenAIWhenItsKeyIsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ARK_API_KEY", "ark-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.AI.Provider)
	assert.True(t, cfg.AI.Enabled())

	name, err := cfg.AI.ResolveModel("gpt-4.1-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", name)

	chatModel, err := cfg.AI.NewChatModel(context.Background(), "gpt-4.1-mini")
	require.NoError(t, err)
	assert.NotNil(t, chatModel)
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name    string
		cfg     AIConfig
		persona string
		want    string
		wantErr bool
	}{
		{name: "explicit model wins", cfg: AIConfig{Provider: ProviderArk, Model: "doubao-seed-1-6"}, persona: "gpt-4.1-mini", want: "doubao-seed-1-6"},
		{name: "openai serves persona model", cfg: AIConfig{Provider: ProviderOpenAI}, persona: "gpt-4.1-mini", want: "gpt-4.1-mini"},
		{name: "ark rejects openai name", cfg: AIConfig{Provider: ProviderArk}, persona: "gpt-4.1-mini", wantErr: true},
		{name: "ark serves its own name", cfg: AIConfig{Provider: ProviderArk}, persona: "doubao-seed-1-6", want: "doubao-seed-1-6"},
		{name: "gemini rejects openai name", cfg: AIConfig{Provider: ProviderGemini}, persona: "gpt-4.1-mini", wantErr: true},
		{name: "gemini serves gemini name", cfg: AIConfig{Provider: ProviderGemini}, persona: "models/gemini-2.5-flash", want: "models/gemini-2.5-flash"},
		{name: "empty persona model", cfg: AIConfig{Provider: ProviderOpenAI}, persona: " ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.ResolveModel(tt.persona)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewChatModelRejectsUnservablePersonaModel(t *testing.T) {
	cfg := AIConfig{Provider: ProviderArk, APIKey: "ark-key"}
	_, err := cfg.NewChatModel(context.Background(), "gpt-4.1-mini")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_MODEL")

	_, err = cfg.NewClassifierModel(context.Background(), "gpt-4.1-mini")
	assert.Error(t, err)
}

func TestNewNotifierWithoutBackends(t *testing.T) {
	n, err := NotifyConfig{QueueSize: 1}.NewNotifier(zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "dropped"))
	require.NoError(t, n.Close(context.Background()))
}

func TestNewNotifierRejectsPartialCredentials(t *testing.T) {
	_, err := NotifyConfig{PushoverToken: "only-token", QueueSize: 1}.NewNotifier(nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := LogConfig{Level: "debug"}.NewLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = LogConfig{Level: "loud"}.NewLogger()
	assert.Error(t, err)
}
