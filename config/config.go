package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	// 录音扫描
	StorageRoot        string   // Root of the phone's external storage, e.g. /sdcard or a mounted backup
	ExtraRecordingDirs []string // Additional directories scanned after the built-in candidates
	TimeZone           string   // Zone used to interpret timestamps embedded in file names
	MinRefreshInterval time.Duration
	WatchDebounce      time.Duration
	WatchEnabled       bool
	MockFallback       bool // Serve generated recordings when no storage path is accessible

	FFmpegPath      string
	EstimateBitrate int // kbps, used when ffprobe cannot read a file
	ProbeDurations  bool

	// 数据库配置
	DBDriver   string // mysql or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Redis配置
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// MinIO配置
	MinioEnabled        bool
	MinioEndpoint       string
	MinioAccessKey      string
	MinioSecretKey      string
	MinioBucket         string
	MinioRegion         string
	MinioUseSSL         bool
	ArchiveBeforeDelete bool

	// 认证
	JWTSecret         string
	AdminPasswordHash string
	TokenTTL          time.Duration

	// 日志
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool

	RetentionCheckInterval time.Duration
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		StorageRoot:        getEnv("STORAGE_ROOT", "/sdcard"),
		ExtraRecordingDirs: getEnvList("EXTRA_RECORDING_DIRS"),
		TimeZone:           getEnv("RECORDING_TZ", "Local"),
		MinRefreshInterval: getEnvDuration("MIN_REFRESH_INTERVAL", 5*time.Second),
		WatchDebounce:      getEnvDuration("WATCH_DEBOUNCE", 2*time.Second),
		WatchEnabled:       getEnvBool("WATCH_ENABLED", true),
		MockFallback:       getEnvBool("MOCK_FALLBACK", true),

		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		EstimateBitrate: getEnvInt("ESTIMATE_BITRATE_KBPS", 32),
		ProbeDurations:  getEnvBool("PROBE_DURATIONS", true),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:     getEnv("DB_NAME", "callbox"),
		SQLitePath: getEnv("SQLITE_PATH", "callbox.db"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),

		MinioEnabled:        getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:       getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:         getEnv("MINIO_BUCKET", "callbox"),
		MinioRegion:         getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),
		ArchiveBeforeDelete: getEnvBool("ARCHIVE_BEFORE_DELETE", true),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		TokenTTL:          getEnvDuration("TOKEN_TTL", 24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", "logs/callbox.log"),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),

		RetentionCheckInterval: getEnvDuration("RETENTION_CHECK_INTERVAL", time.Hour),
	}
}

// Location resolves TimeZone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		log.Printf("Unknown RECORDING_TZ %q, using local time: %v", c.TimeZone, err)
		return time.Local
	}
	return loc
}

// AuthEnabled reports whether API requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}
