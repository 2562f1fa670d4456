// Package config exposes the environment-driven settings of the Marquee catalog:
// listen address, log level, database location, OMDB credentials and job schedules.
package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

//go:embed version
var version string

//go:embed name
var name string

type LogLevel string

const (
	Debug  LogLevel = "debug"
	Info   LogLevel = "info"
	Notice LogLevel = "notice"
	Warn   LogLevel = "warn"
	Error  LogLevel = "error"
)

// LoadEnv reads key=value pairs from the given .env files (".env" when none is given)
// into the process environment. Variables that are already set win; missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func GetVersion() string {
	return strings.TrimSpace(version)
}

func GetName() string {
	return strings.TrimSpace(name)
}

func GetLogLevel() LogLevel {
	if IsDebug() {
		return Debug
	}
	logLevel := os.Getenv("MARQUEE_LOG_LEVEL")
	if logLevel == "" {
		return Info
	}
	return LogLevel(logLevel)
}

func IsDebug() bool {
	return os.Getenv("MARQUEE_DEBUG") == "true"
}

func GetLogFolder() string {
	logFolderPath := os.Getenv("MARQUEE_LOG_FOLDER")
	if logFolderPath == "" {
		if IsDebug() {
			return "log"
		}
		logFolderPath = "/var/log"
	}
	return logFolderPath
}

func GetListen() string {
	return getString("MARQUEE_HOST", "0.0.0.0")
}

func GetPort() int {
	return getInt("MARQUEE_PORT", 5000)
}

// GetSecretKey returns the cookie signing key. Empty means the server generates one per start.
func GetSecretKey() string {
	return os.Getenv("MARQUEE_SECRET_KEY")
}

// GetSessionMaxAge returns the session lifetime in minutes.
func GetSessionMaxAge() int {
	return getInt("MARQUEE_SESSION_MAX_AGE", 1440)
}

func GetCSVPath() string {
	return getString("MARQUEE_CSV_PATH", "./data/netflix_titles.csv")
}

func IsSeedWatchEnabled() bool {
	return os.Getenv("MARQUEE_SEED_WATCH") == "true"
}

// GetOmdbAPIKey returns the OMDB key. MOVIE_SERVICE_API_KEY is accepted for older deployments.
func GetOmdbAPIKey() string {
	if key := os.Getenv("OMDB_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("MOVIE_SERVICE_API_KEY")
}

func GetOmdbBaseURL() string {
	return getString("OMDB_BASE_URL", "https://www.omdbapi.com/")
}

// GetOmdbRefreshAge is how long enriched data stays fresh before it is looked up again.
func GetOmdbRefreshAge() time.Duration {
	return time.Duration(getInt("OMDB_REFRESH_DAYS", 30)) * 24 * time.Hour
}

func GetEnrichCron() string {
	return getString("MARQUEE_ENRICH_CRON", "@every 1h")
}

func GetEnrichBatch() int {
	return getInt("MARQUEE_ENRICH_BATCH", 25)
}

func GetAdminEmail() string {
	return strings.TrimSpace(os.Getenv("MARQUEE_ADMIN_EMAIL"))
}

func GetAdminPassword() string {
	return os.Getenv("MARQUEE_ADMIN_PASSWORD")
}

func GetTgBotToken() string {
	return os.Getenv("MARQUEE_TG_TOKEN")
}

// GetTgChatIds returns the comma separated chat ids that receive admin notices.
func GetTgChatIds() string {
	return os.Getenv("MARQUEE_TG_CHAT_ID")
}

// GetCertFile and GetKeyFile name the TLS key pair. Both empty means plain HTTP.
func GetCertFile() string {
	return os.Getenv("MARQUEE_CERT_FILE")
}

func GetKeyFile() string {
	return os.Getenv("MARQUEE_KEY_FILE")
}

func GetDefaultLang() string {
	return getString("MARQUEE_DEFAULT_LANG", "fr-FR")
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
