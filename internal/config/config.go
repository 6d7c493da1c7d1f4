package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB       DBConfig
	MinIO    MinIOConfig
	Server   ServerConfig
	Plex     PlexConfig
	Tasks    TasksConfig
	Audit    AuditConfig
	Settings Settings
}

type DBConfig struct {
	Driver   string
	Path     string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object store is configured for audit export.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != ""
}

type ServerConfig struct {
	Port        string
	AdminToken  string
	CORSOrigins string
}

type PlexConfig struct {
	BaseURL        string
	Token          string
	PlexTVURL      string
	RequestTimeout time.Duration
}

type TasksConfig struct {
	Interval time.Duration
}

type AuditConfig struct {
	ExportInterval time.Duration
	QueueSize      int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite"),
			Path:     getEnv("DB_PATH", "data/plexshare.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "plexshare"),
			Password: getEnv("DB_PASSWORD", "plexshare_secret"),
			Name:     getEnv("DB_NAME", "plexshare"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "plexshare-audit"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			AdminToken:  getEnv("ADMIN_TOKEN", ""),
			CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000"),
		},
		Plex: PlexConfig{
			BaseURL:        getEnv("PLEXAPI_AUTH_SERVER_BASEURL", "http://localhost:32400"),
			Token:          getEnv("PLEXAPI_AUTH_SERVER_TOKEN", ""),
			PlexTVURL:      getEnv("PLEX_TV_URL", "https://plex.tv"),
			RequestTimeout: getEnvAsDuration("PLEX_REQUEST_TIMEOUT", 30*time.Second),
		},
		Tasks: TasksConfig{
			Interval: getEnvAsDuration("TASK_INTERVAL", 24*time.Hour),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
			QueueSize:      getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
		},
		Settings: Settings{
			DefaultExpiryDays:             getEnvAsInt("DEFAULT_EXPIRY_DAYS", 30),
			ExpiredSectionTitle:           getEnv("SECTION_EXPIRED", "Expired"),
			AllowSync:                     getEnvAsBool("ALLOW_SYNC", false),
			EnableAllTasks:                getEnvAsBool("ENABLE_ALL_TASKS", true),
			EnableUpdateStatusTask:        getEnvAsBool("ENABLE_UPDATE_STATUS_TASK", true),
			EnableDisableExpiredUsersTask: getEnvAsBool("ENABLE_DISABLE_EXPIRED_USERS_TASK", true),
			LogLevel:                      getEnv("LOG_LEVEL", "INFO"),
			IsolateAccessFailures:         getEnvAsBool("ISOLATE_ACCESS_FAILURES", false),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}
