package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port   int    `yaml:"port"`
	DBPath string `yaml:"db_path"`
	// Secret is the shared token every examiner-facing call must present.
	Secret   string `yaml:"secret"`
	LogLevel string `yaml:"log_level"`
	// Submissions
	MaxEssayChars int `yaml:"max_essay_chars"`
	// Questions
	DefaultContentQuestions int    `yaml:"default_content_questions"`
	DefaultProcessQuestions int    `yaml:"default_process_questions"`
	QuestionBankPath        string `yaml:"question_bank_path"`
	// Transcript webhook
	AllowTranscriptReingest bool  `yaml:"allow_transcript_reingest"`
	MaxWebhookBytes         int64 `yaml:"max_webhook_bytes"`
	// Grading
	OllamaBaseURL  string `yaml:"ollama_base_url"`
	GradingModel   string `yaml:"grading_model"`
	GradingEnabled bool   `yaml:"grading_enabled"`
	// MCP adapter
	ServerURL string `yaml:"server_url"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Port:                    8742,
		DBPath:                  "/data/examiner.db",
		LogLevel:                "info",
		MaxEssayChars:           20000,
		DefaultContentQuestions: 3,
		DefaultProcessQuestions: 2,
		AllowTranscriptReingest: true,
		MaxWebhookBytes:         2 << 20,
		OllamaBaseURL:           "http://localhost:11434",
		GradingModel:            "qwen2.5:7b",
		GradingEnabled:          true,
		ServerURL:               "http://localhost:8742",
	}
}

// Load resolves the configuration once: defaults, then the YAML file at path
// (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Port = envInt("PORT", c.Port)
	c.DBPath = envStr("EXAM_DB_PATH", c.DBPath)
	c.Secret = envStr("EXAM_SECRET", c.Secret)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.MaxEssayChars = envInt("MAX_ESSAY_CHARS", c.MaxEssayChars)
	c.DefaultContentQuestions = envInt("DEFAULT_CONTENT_QUESTIONS", c.DefaultContentQuestions)
	c.DefaultProcessQuestions = envInt("DEFAULT_PROCESS_QUESTIONS", c.DefaultProcessQuestions)
	c.QuestionBankPath = envStr("QUESTION_BANK_PATH", c.QuestionBankPath)
	c.AllowTranscriptReingest = envBool("ALLOW_TRANSCRIPT_REINGEST", c.AllowTranscriptReingest)
	c.MaxWebhookBytes = int64(envInt("MAX_WEBHOOK_BYTES", int(c.MaxWebhookBytes)))
	c.OllamaBaseURL = envStr("OLLAMA_BASE_URL", c.OllamaBaseURL)
	c.GradingModel = envStr("GRADING_MODEL", c.GradingModel)
	c.GradingEnabled = envBool("GRADING_ENABLED", c.GradingEnabled)
	c.ServerURL = envStr("EXAMINER_SERVER_URL", c.ServerURL)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("EXAM_DB_PATH must not be empty")
	}
	if c.MaxEssayChars < 1 {
		return fmt.Errorf("MAX_ESSAY_CHARS must be positive, got %d", c.MaxEssayChars)
	}
	if c.DefaultContentQuestions < 0 {
		return fmt.Errorf("DEFAULT_CONTENT_QUESTIONS must not be negative, got %d", c.DefaultContentQuestions)
	}
	if c.DefaultProcessQuestions < 0 {
		return fmt.Errorf("DEFAULT_PROCESS_QUESTIONS must not be negative, got %d", c.DefaultProcessQuestions)
	}
	if c.MaxWebhookBytes < 1 {
		return fmt.Errorf("MAX_WEBHOOK_BYTES must be positive, got %d", c.MaxWebhookBytes)
	}
	return nil
}

// RequireSecret fails when no shared secret is configured. Commands that
// accept examiner traffic call it; offline admin commands do not need one.
func (c *Config) RequireSecret() error {
	if c.Secret == "" {
		return fmt.Errorf("EXAM_SECRET must be set")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}
