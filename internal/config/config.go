package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPHost        string
	HTTPPort        string
	ShutdownTimeout time.Duration

	APIKey   string
	AdminKey string

	DBPath string

	SessionTimeout      time.Duration
	CancelPhrases       []string
	ForwardStripTrigger bool
	ForwardTimeout      time.Duration

	InitialListenMode string

	ASREnabled   bool
	SourceID     string
	Room         string
	OpenAIAPIKey string
}

// Load reads configuration from the environment, with an optional .env
// file in the working directory filling in anything unset.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPHost:        getEnv("ECHONET_HOST", "0.0.0.0"),
		HTTPPort:        getEnv("ECHONET_PORT", "8123"),
		ShutdownTimeout: getDuration("ECHONET_SHUTDOWN_TIMEOUT_S", 10*time.Second),

		APIKey:   getEnv("ECHONET_API_KEY", "dev-change-me"),
		AdminKey: getEnv("ECHONET_ADMIN_KEY", ""),

		DBPath: getEnv("ECHONET_DB_PATH", "echonet.db"),

		SessionTimeout:      getDuration("ECHONET_SESSION_TIMEOUT_S", 25*time.Second),
		CancelPhrases:       splitPhrases(getEnv("ECHONET_CANCEL_PHRASES", "cancel,never mind,nevermind,stop listening")),
		ForwardStripTrigger: getBool("ECHONET_FORWARD_STRIP_TRIGGER", true),
		ForwardTimeout:      getDuration("ECHONET_HTTP_TIMEOUT_S", 3*time.Second),

		InitialListenMode: getEnv("ECHONET_INITIAL_LISTEN_MODE", "trigger"),

		ASREnabled:   getBool("ECHONET_ASR_ENABLED", false),
		SourceID:     getEnv("ECHONET_SOURCE_ID", "mic-default"),
		Room:         getEnv("ECHONET_ROOM", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
	}
}

func splitPhrases(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
