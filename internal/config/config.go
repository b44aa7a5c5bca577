package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type GeneralConfig struct {
	Env      string
	LogLevel string
	Port     int
	Version  string
}

// DatabaseConfig selects and configures the campaign store.
type DatabaseConfig struct {
	Driver          string // "memory" or "postgres"
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // minutes
	ConnMaxIdleTime int // minutes
	MigrateOnStart  bool
}

// EngineConfig tunes ad selection, event recording and lifecycle sweeps.
type EngineConfig struct {
	DefaultLimit        int
	MaxLimit            int
	ResultCacheTTL      time.Duration
	FraudClickThreshold int
	FraudWindow         time.Duration
	UseRedisFraudWindow bool
	EventTimeout        time.Duration
	SweepInterval       time.Duration
	SweepLockTTL        time.Duration
	TrackingBaseURL     string
	NotifyTimeout       time.Duration
}

// AWSConfig configures the asset store and the email notifier.
type AWSConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	Endpoint      string
	AssetBucket   string
	NotifyEnabled bool
	NotifySender  string
	AssetsEnabled bool
}

// AppConfig holds every configuration section.
type AppConfig struct {
	GeneralConfig  GeneralConfig
	DatabaseConfig DatabaseConfig
	EngineConfig   EngineConfig
	AWSConfig      AWSConfig
}

// LoadConfigs loads the configurations from the environment variables
func LoadConfigs() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: Error loading .env files: %v", err)
	}

	loadGeneralConfigs()
	loadDatabaseConfigs()
	loadEngineConfigs()
	loadAWSConfigs()
}

var AppConfigInstance AppConfig

// loadGeneralConfigs loads the general configurations from the environment variables
func loadGeneralConfigs() {
	AppConfigInstance.GeneralConfig.Env = getEnv("APP_ENV", "dev")
	AppConfigInstance.GeneralConfig.LogLevel = getEnv("LOG_LEVEL", "info")
	AppConfigInstance.GeneralConfig.Port = getEnvInt("PORT", 8080)
	AppConfigInstance.GeneralConfig.Version = getEnv("SERVICE_VERSION", "1.0.0")
}

func loadDatabaseConfigs() {
	AppConfigInstance.DatabaseConfig = DatabaseConfig{
		Driver:          getEnv("STORE_DRIVER", "memory"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", "postgres"),
		DBName:          getEnv("DB_NAME", "adserve"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
		ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 30),
		ConnMaxIdleTime: getEnvInt("DB_CONN_MAX_IDLE_TIME", 5),
		MigrateOnStart:  getBoolEnv("DB_MIGRATE_ON_START", true),
	}
}

func loadEngineConfigs() {
	AppConfigInstance.EngineConfig = EngineConfig{
		DefaultLimit:        getEnvInt("ADS_DEFAULT_LIMIT", 3),
		MaxLimit:            getEnvInt("ADS_MAX_LIMIT", 20),
		ResultCacheTTL:      getDurationEnv("ADS_CACHE_TTL", 2*time.Minute),
		FraudClickThreshold: getEnvInt("FRAUD_CLICK_THRESHOLD", 5),
		FraudWindow:         getDurationEnv("FRAUD_CLICK_WINDOW", time.Hour),
		UseRedisFraudWindow: getBoolEnv("FRAUD_USE_REDIS", true),
		EventTimeout:        getDurationEnv("EVENT_TIMEOUT", 2*time.Second),
		SweepInterval:       getDurationEnv("LIFECYCLE_SWEEP_INTERVAL", time.Minute),
		SweepLockTTL:        getDurationEnv("LIFECYCLE_SWEEP_LOCK_TTL", 30*time.Second),
		TrackingBaseURL:     getEnv("TRACKING_BASE_URL", "http://localhost:8080"),
		NotifyTimeout:       getDurationEnv("NOTIFY_TIMEOUT", 10*time.Second),
	}
}

func loadAWSConfigs() {
	AppConfigInstance.AWSConfig = AWSConfig{
		Region:        getEnv("AWS_REGION", "us-east-1"),
		AccessKey:     getEnv("AWS_ACCESS_KEY_ID", ""),
		SecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		Endpoint:      getEnv("AWS_ENDPOINT_URL", ""),
		AssetBucket:   getEnv("ASSET_BUCKET", ""),
		AssetsEnabled: getBoolEnv("ASSETS_ENABLED", false),
		NotifyEnabled: getBoolEnv("NOTIFY_ENABLED", false),
		NotifySender:  getEnv("NOTIFY_SENDER", "ads@localhost"),
	}
}

// getEnv returns the environment variable value if it exists, otherwise returns the fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns the environment variable value as int if it exists, otherwise returns the fallback value
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
