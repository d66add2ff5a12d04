package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	SecretWord       string `env:"SECRET_WORD,required"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Session limits
	HistoryLimit         int `env:"HISTORY_LIMIT" envDefault:"5"`
	ImageRequestsPerHour int `env:"IMAGE_REQUESTS_PER_HOUR" envDefault:"2"`
	MaxImageDimension    int `env:"MAX_IMAGE_DIMENSION" envDefault:"128"`

	// Roles
	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"You are a helpful assistant."`

	// Storage
	AuthorizedFilePath   string `env:"AUTHORIZED_FILE_PATH" envDefault:"data/authorized_users.json"`
	RolesFilePath        string `env:"ROLES_FILE_PATH" envDefault:"data/user_roles.json"`
	DefaultRolesFilePath string `env:"DEFAULT_ROLES_FILE_PATH" envDefault:"data/user_default_roles.json"`
	HistoryFilePath      string `env:"HISTORY_FILE_PATH" envDefault:"history/history.jsonl"`
	ImagesDirPath        string `env:"IMAGES_DIR_PATH" envDefault:"images"`

	// Formatting
	MessageParseMode string `env:"MESSAGE_PARSE_MODE" envDefault:"HTML"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
