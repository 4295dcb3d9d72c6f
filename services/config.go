package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Transport names accepted by TRANSPORT.
const (
	TransportDirect = "direct"
	TransportProxy  = "proxy"
	TransportGemini = "gemini"
)

type Config struct {
	Env  string
	Port string

	Transport     string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ProxyURL      string
	ImageModel    string
	AnalysisModel string

	GeminiAPIKey     string
	GeminiImageModel string
	GeminiTextModel  string

	JWTSecret     string
	SentryDSN     string
	BrokerAddress string

	R2Bucket      string
	LocalFallback bool

	MaxImageDimension int
}

func GetEnv(key, fallback string) string {
	value := os.Getenv(key)
	if len(value) == 0 {
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(GetEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value, err := strconv.Atoi(GetEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return fallback
	}
	return value
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is fine, the environment may be set by the platform.
	_ = godotenv.Load()

	cfg := &Config{
		Env:  GetEnv("ENV", "development"),
		Port: GetEnv("PORT", "8080"),

		Transport:     strings.ToLower(GetEnv("TRANSPORT", TransportDirect)),
		OpenAIAPIKey:  GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		ProxyURL:      GetEnv("PROXY_URL", "http://localhost:8080/openai"),
		ImageModel:    GetEnv("IMAGE_MODEL", "gpt-image-1"),
		AnalysisModel: GetEnv("ANALYSIS_MODEL", "gpt-4.1-mini"),

		GeminiAPIKey:     GetEnv("GEMINI_API_KEY", GetEnv("GOOGLE_API_KEY", "")),
		GeminiImageModel: GetEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image-preview"),
		GeminiTextModel:  GetEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),

		JWTSecret:     GetEnv("JWT_SECRET", ""),
		SentryDSN:     GetEnv("SENTRY_DSN", ""),
		BrokerAddress: GetEnv("ASYNC_BROKER_ADDRESS", "127.0.0.1:6379"),

		R2Bucket:      GetEnv("R2_BUCKET_NAME", "tryon"),
		LocalFallback: getEnvBool("LOCAL_FALLBACK", true),

		MaxImageDimension: getEnvInt("MAX_IMAGE_DIMENSION", MaxUploadDimension),
	}

	switch cfg.Transport {
	case TransportDirect, TransportProxy, TransportGemini:
	default:
		return nil, fmt.Errorf("unknown TRANSPORT %q, expected direct, proxy or gemini", cfg.Transport)
	}
	if cfg.MaxImageDimension <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_DIMENSION must be positive, got %d", cfg.MaxImageDimension)
	}
	return cfg, nil
}

// DefaultCredential is the key used when a caller does not send its own.
// Proxied calls get the server key from the reverse proxy, so it has none.
func (c *Config) DefaultCredential() string {
	switch c.Transport {
	case TransportGemini:
		return c.GeminiAPIKey
	case TransportProxy:
		return ""
	default:
		return c.OpenAIAPIKey
	}
}
