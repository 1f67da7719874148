package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

type Config struct {
	APIBaseURL  string
	RealtimeURL string
	AuthScheme  models.AuthScheme

	SessionPath string
	SessionKey  string

	// RequestTimeout of zero means requests never time out on their own.
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration

	PendingMessages bool

	DevServerAddress string
	DevDatabaseURL   string
	JWTSecret        string
}

// Load reads .env from the working directory if present, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	dataDir := filepath.Join(cwd, "data")

	return &Config{
		APIBaseURL:       getEnv("CAMPUS_API_URL", "http://localhost:9000"),
		RealtimeURL:      getEnv("CAMPUS_WS_URL", "ws://localhost:9000/ws"),
		AuthScheme:       models.ParseAuthScheme(getEnv("CAMPUS_AUTH_SCHEME", string(models.AuthBearer))),
		SessionPath:      getEnv("CAMPUS_SESSION_PATH", "sqlite://"+filepath.Join(dataDir, "session.db")),
		SessionKey:       getEnv("CAMPUS_SESSION_KEY", ""),
		RequestTimeout:   getEnvDuration("CAMPUS_REQUEST_TIMEOUT", 0),
		ReconnectMin:     getEnvDuration("CAMPUS_RECONNECT_MIN", 500*time.Millisecond),
		ReconnectMax:     getEnvDuration("CAMPUS_RECONNECT_MAX", 30*time.Second),
		PendingMessages:  getEnvBool("CAMPUS_PENDING_MESSAGES", false),
		DevServerAddress: getEnv("DEVSERVER_ADDRESS", ":9000"),
		DevDatabaseURL:   getEnv("DEVSERVER_DATABASE_URL", "sqlite://"+filepath.Join(dataDir, "devserver.db")),
		JWTSecret:        getEnv("JWT_SECRET", "campus-dev-secret"),
	}
}

// CleanSessionPath returns a filesystem path for the session database.
func (c *Config) CleanSessionPath() string {
	return cleanPath(c.SessionPath)
}

// CleanDevDatabasePath returns a filesystem path for the devserver database.
func (c *Config) CleanDevDatabasePath() string {
	return cleanPath(c.DevDatabaseURL)
}

// UpdateDevDatabasePath updates the devserver database path, maintaining the
// sqlite:// prefix if it was present.
func (c *Config) UpdateDevDatabasePath(newPath string) {
	if strings.HasPrefix(c.DevDatabaseURL, "sqlite://") {
		c.DevDatabaseURL = "sqlite://" + newPath
	} else {
		c.DevDatabaseURL = newPath
	}
}

func cleanPath(url string) string {
	dbPath := strings.TrimPrefix(url, "sqlite://")
	if dbPath == ":memory:" || filepath.IsAbs(dbPath) {
		return dbPath
	}
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, dbPath)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
