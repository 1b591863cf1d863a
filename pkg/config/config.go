package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
	Model     ModelConfig
	RAG       RAGConfig
	RateLimit RateLimitConfig
	Circuit   CircuitConfig
	Runtime   RuntimeConfig
	Redaction RedactionConfig
	Auth      AuthConfig
}

// AuthConfig holds the HMAC secret used to decode (never issue, outside of
// -dev tooling) bearer tokens carrying actor/tenant/role claims.
type AuthConfig struct {
	SecretKey string
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ModelConfig points at the local LLM server (an Ollama-shaped HTTP API)
// used both for chat completion and for embeddings.
type ModelConfig struct {
	BaseURL        string
	ModelName      string
	EmbeddingModel string
	EmbeddingDim   int
	RequestTimeout time.Duration
}

type RAGConfig struct {
	TopKShort int
	TopKLong  int
	ChunkSize int
	ChunkOverlap int
}

// RateLimitConfig bounds how many /ask calls one actor within a tenant may
// issue.
type RateLimitConfig struct {
	PerHour int
	PerDay  int
}

// CircuitConfig tunes the breaker wrapping calls to the model server.
type CircuitConfig struct {
	FailThreshold   int
	CooldownSeconds int
}

// RuntimeConfig carries knobs that shape orchestrator behavior but don't
// belong to any single component.
type RuntimeConfig struct {
	ContextWindowHoursDefault int
	WallClockBudgetMS         int
	FastPathEnabled           bool
}

type RedactionConfig struct {
	RedactEmployeeNames bool
}

func Load() (*Config, error) {
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// .env is optional; environment variables still apply when none is found
	// (useful under Docker/K8s where config is injected, not filed).

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	embeddingDim, _ := strconv.Atoi(getEnv("EMBEDDING_DIM", "384"))
	modelTimeout, _ := strconv.Atoi(getEnv("MODEL_REQUEST_TIMEOUT_SECONDS", "20"))
	topKShort, _ := strconv.Atoi(getEnv("RAG_TOP_K_SHORT", "3"))
	topKLong, _ := strconv.Atoi(getEnv("RAG_TOP_K_LONG", "5"))
	chunkSize, _ := strconv.Atoi(getEnv("RAG_CHUNK_SIZE", "1200"))
	chunkOverlap, _ := strconv.Atoi(getEnv("RAG_CHUNK_OVERLAP", "150"))
	ratePerHour, _ := strconv.Atoi(getEnv("RATE_PER_HOUR", "60"))
	ratePerDay, _ := strconv.Atoi(getEnv("RATE_PER_DAY", "300"))
	failThreshold, _ := strconv.Atoi(getEnv("CIRCUIT_FAIL_THRESHOLD", "3"))
	cooldownSeconds, _ := strconv.Atoi(getEnv("CIRCUIT_COOLDOWN_SECONDS", "60"))
	contextWindowHours, _ := strconv.Atoi(getEnv("CONTEXT_WINDOW_HOURS_DEFAULT", "24"))
	wallClockBudgetMS, _ := strconv.Atoi(getEnv("WALL_CLOCK_BUDGET_MS", "20000"))
	fastPathEnabled := getEnv("FAST_PATH_ENABLED", "true") == "true"
	redactEmployeeNames := getEnv("REDACT_EMPLOYEE_NAMES", "true") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5433"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "prodplan_copilot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Model: ModelConfig{
			BaseURL:        getEnv("MODEL_BASE_URL", "http://localhost:11434"),
			ModelName:      getEnv("MODEL_NAME", "llama3.1"),
			EmbeddingModel: getEnv("EMBEDDING_MODEL_NAME", "nomic-embed-text"),
			EmbeddingDim:   embeddingDim,
			RequestTimeout: time.Duration(modelTimeout) * time.Second,
		},
		RAG: RAGConfig{
			TopKShort:    topKShort,
			TopKLong:     topKLong,
			ChunkSize:    chunkSize,
			ChunkOverlap: chunkOverlap,
		},
		RateLimit: RateLimitConfig{
			PerHour: ratePerHour,
			PerDay:  ratePerDay,
		},
		Circuit: CircuitConfig{
			FailThreshold:   failThreshold,
			CooldownSeconds: cooldownSeconds,
		},
		Runtime: RuntimeConfig{
			ContextWindowHoursDefault: contextWindowHours,
			WallClockBudgetMS:         wallClockBudgetMS,
			FastPathEnabled:           fastPathEnabled,
		},
		Redaction: RedactionConfig{
			RedactEmployeeNames: redactEmployeeNames,
		},
		Auth: AuthConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", "dev-secret-change-me"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
