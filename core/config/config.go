package config

import (
	"strings"
	"time"
	// APP_TIMEZONE must resolve on hosts without a zoneinfo database
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Gateway  GatewayConfig
	Webhook  WebhookConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Chat     ChatConfig
	Campaign CampaignConfig
	Billing  BillingConfig
	Security SecurityConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasePath           string
	BaseUrl            string
	CorsAllowedOrigins []string
	TrustedProxies     []string
	Timezone           string
	ServerID           string
	DataDir            string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	URI             string // Full DSN, takes precedence when set
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	MediaTimeout  time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
	RatePerSecond float64
}

type WebhookConfig struct {
	AllowedOrigins []string
	AllowAll       bool
	PublicURL      string
	Events         []string
	HotCacheTTL    time.Duration
}

type StorageConfig struct {
	Endpoint           string
	AccessKey          string
	SecretKey          string
	Bucket             string
	Region             string
	UseSSL             bool
	UploadURLExpires   time.Duration
	DownloadURLExpires time.Duration
	MaxSizeMB          int64
	AllowedMIME        []string
}

type QueueConfig struct {
	RabbitURL             string
	Exchange              string
	Prefetch              int
	MaxRetries            int
	RetryDelays           []time.Duration
	BackpressureThreshold int
}

type ChatConfig struct {
	SendWorkers         int
	SendQueueSize       int
	MarkAsReadMax       int
	ParticipantsTTL     time.Duration
	ProfilePictureTTL   time.Duration
	RefreshCooldown     time.Duration
	ParticipantsStaleAt time.Duration
}

type CampaignConfig struct {
	RecoveryWindow time.Duration
	Tick           time.Duration
}

type BillingConfig struct {
	SendHour    int
	DefaultPlan string
	MaxBatch    int
}

type SecurityConfig struct {
	SecretKey string
	JWTSecret string
}

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables (through viper) or defaults.
func LoadConfig() (*Config, error) {
	viper.AutomaticEnv()

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		corsOrigins = splitList(v)
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		CorsAllowedOrigins: corsOrigins,
		TrustedProxies:     splitList(getEnv("APP_TRUSTED_PROXIES", "")),
		Timezone:           getEnv("APP_TIMEZONE", "America/Sao_Paulo"),
		ServerID:           getEnv("SERVER_ID", ""),
		DataDir:            getEnv("APP_DATA_DIR", "storages"),
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Name:            getEnv("DB_NAME", "storages/engage.db"),
		URI:             getEnv("DB_URI", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "engage:"),
	}

	gwCfg := GatewayConfig{
		BaseURL:       strings.TrimSuffix(getEnv("GATEWAY_BASE_URL", "http://localhost:8080"), "/"),
		APIKey:        getEnv("GATEWAY_API_KEY", ""),
		Timeout:       getEnvSeconds("GATEWAY_TIMEOUT_SECONDS", 10),
		MediaTimeout:  getEnvSeconds("GATEWAY_MEDIA_TIMEOUT_SECONDS", 15),
		MaxRetries:    getEnvInt("GATEWAY_MAX_RETRIES", 2),
		RetryBackoff:  getEnvSeconds("GATEWAY_RETRY_BACKOFF_SECONDS", 2),
		RatePerSecond: getEnvFloat("GATEWAY_RATE_PER_SECOND", 5),
	}

	whCfg := WebhookConfig{
		AllowedOrigins: splitList(getEnv("WEBHOOK_ALLOWED_ORIGINS", "127.0.0.1")),
		AllowAll:       getEnvBool("ALLOW_ALL_WEBHOOK_ORIGINS", false),
		PublicURL:      getEnv("WEBHOOK_PUBLIC_URL", appCfg.BaseUrl+"/webhooks/evolution/"),
		Events: splitList(getEnv("WEBHOOK_EVENTS",
			"MESSAGES_UPSERT,MESSAGES_UPDATE,MESSAGES_DELETE,CONNECTION_UPDATE")),
		HotCacheTTL: 24 * time.Hour,
	}

	stCfg := StorageConfig{
		Endpoint:           getEnv("S3_ENDPOINT", "localhost:9000"),
		AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		SecretKey:          getEnv("S3_SECRET_KEY", ""),
		Bucket:             getEnv("S3_BUCKET", "engage"),
		Region:             getEnv("S3_REGION", "us-east-1"),
		UseSSL:             getEnvBool("S3_USE_SSL", false),
		UploadURLExpires:   capDuration(getEnvSeconds("S3_UPLOAD_URL_EXPIRES", 300), 5*time.Minute),
		DownloadURLExpires: capDuration(getEnvSeconds("S3_DOWNLOAD_URL_EXPIRES", 900), 15*time.Minute),
		MaxSizeMB:          getEnvInt64("ATTACHMENTS_MAX_SIZE_MB", 50),
		AllowedMIME: splitList(getEnv("ATTACHMENTS_ALLOWED_MIME",
			"image/*,audio/*,video/*,application/pdf,application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.ms-excel,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,text/plain")),
	}

	qCfg := QueueConfig{
		RabbitURL:             getEnv("RABBITMQ_URL", ""),
		Exchange:              getEnv("RABBITMQ_EXCHANGE", "engage"),
		Prefetch:              getEnvInt("RABBITMQ_PREFETCH", 10),
		MaxRetries:            getEnvInt("QUEUE_MAX_RETRIES", 3),
		RetryDelays:           []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
		BackpressureThreshold: getEnvInt("QUEUE_BACKPRESSURE_THRESHOLD", 1000),
	}

	chatCfg := ChatConfig{
		SendWorkers:         getEnvInt("CHAT_SEND_MESSAGE_WORKERS", 3),
		SendQueueSize:       getEnvInt("CHAT_SEND_QUEUE_SIZE", 500),
		MarkAsReadMax:       getEnvInt("CHAT_MARK_AS_READ_MAX_MESSAGES", 1000),
		ParticipantsTTL:     5 * time.Minute,
		ProfilePictureTTL:   7 * 24 * time.Hour,
		RefreshCooldown:     15 * time.Minute,
		ParticipantsStaleAt: time.Hour,
	}

	cmpCfg := CampaignConfig{
		RecoveryWindow: time.Duration(getEnvInt("CAMPAIGN_RECOVERY_WINDOW_HOURS", 2)) * time.Hour,
		Tick:           getEnvSeconds("SCHEDULER_TICK_SECONDS", 60),
	}

	cfg := &Config{
		App:      appCfg,
		Database: dbCfg,
		Gateway:  gwCfg,
		Webhook:  whCfg,
		Storage:  stCfg,
		Queue:    qCfg,
		Chat:     chatCfg,
		Campaign: cmpCfg,
		Billing: BillingConfig{
			SendHour:    getEnvInt("BILLING_SEND_HOUR", 9),
			DefaultPlan: getEnv("BILLING_DEFAULT_PLAN", "-3,-1,0,1,3,7"),
			MaxBatch:    10000,
		},
		Security: SecurityConfig{
			SecretKey: getEnv("APP_SECRET_KEY", "changeme_please_change_me_in_prod_12345"),
			JWTSecret: getEnv("JWT_SECRET", "change-me-secret"),
		},
	}

	Global = cfg
	return cfg, nil
}

// Location returns the configured business timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c == nil || c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
