package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	PublicURL      string
	RequestTimeout time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Mail     MailConfig
	Admin    AdminConfig
	Intake   IntakeConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	Issuer            string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the object store and the upload limits enforced before writing to it.
type StorageConfig struct {
	Driver          string
	LocalDir        string
	SignedURLSecret string
	SignedURLTTL    time.Duration

	S3Bucket     string
	S3Region     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PresignTTL time.Duration

	MaxImageBytes    int64
	MaxDocumentBytes int64
	AllowedMIMEs     []string
	PhotoMaxEdge     int
}

// MailConfig configures the SMTP relay and the confirmation worker.
type MailConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	FromName      string
	FromEmail     string
	UseTLS        bool
	AdminEmail    string
	Workers       int
	MaxRetries    int
	RetryDelay    time.Duration
	SendTimeout   time.Duration
	EnableWorkers bool
}

// AdminConfig holds the admin allow-list and login throttling.
type AdminConfig struct {
	AllowedDomains []string
	AllowedEmails  []string
	LoginAttempts  int
	LoginWindow    time.Duration
}

// IntakeConfig tunes draft sessions and admin listing cache.
type IntakeConfig struct {
	DraftTTL     time.Duration
	ListCacheTTL time.Duration
	CacheEnabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicURL = strings.TrimRight(v.GetString("PUBLIC_URL"), "/")
	cfg.RequestTimeout = parseDuration(v.GetString("REQUEST_TIMEOUT"), 15*time.Second)

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		Issuer:            v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:           strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:         v.GetString("STORAGE_LOCAL_DIR"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 30*24*time.Hour),
		S3Bucket:         v.GetString("S3_BUCKET"),
		S3Region:         v.GetString("S3_REGION"),
		S3AccessKey:      v.GetString("S3_ACCESS_KEY_ID"),
		S3SecretKey:      v.GetString("S3_SECRET_ACCESS_KEY"),
		S3Endpoint:       v.GetString("S3_ENDPOINT"),
		S3PresignTTL:     parseDuration(v.GetString("S3_PRESIGN_TTL"), 0),
		MaxImageBytes:    positiveInt64(v.GetInt64("UPLOAD_MAX_IMAGE_BYTES"), 200*1024),
		MaxDocumentBytes: positiveInt64(v.GetInt64("UPLOAD_MAX_DOCUMENT_BYTES"), 300*1024),
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
		PhotoMaxEdge:     v.GetInt("PHOTO_MAX_EDGE"),
	}

	cfg.Mail = MailConfig{
		Host:          v.GetString("SMTP_HOST"),
		Port:          v.GetInt("SMTP_PORT"),
		Username:      v.GetString("SMTP_USER"),
		Password:      v.GetString("SMTP_PASS"),
		FromName:      v.GetString("SMTP_FROM_NAME"),
		FromEmail:     v.GetString("SMTP_FROM_EMAIL"),
		UseTLS:        v.GetBool("SMTP_USE_TLS"),
		AdminEmail:    v.GetString("ADMIN_EMAIL"),
		Workers:       v.GetInt("MAIL_WORKERS"),
		MaxRetries:    v.GetInt("MAIL_MAX_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("MAIL_RETRY_DELAY"), 5*time.Second),
		SendTimeout:   parseDuration(v.GetString("MAIL_SEND_TIMEOUT"), 20*time.Second),
		EnableWorkers: v.GetBool("ENABLE_MAIL_WORKERS"),
	}
	if cfg.Mail.FromEmail == "" {
		cfg.Mail.FromEmail = cfg.Mail.Username
	}

	cfg.Admin = AdminConfig{
		AllowedDomains: splitAndTrim(v.GetString("ADMIN_ALLOWED_DOMAINS")),
		AllowedEmails:  splitAndTrim(v.GetString("ADMIN_ALLOWED_EMAILS")),
		LoginAttempts:  v.GetInt("LOGIN_MAX_ATTEMPTS"),
		LoginWindow:    parseDuration(v.GetString("LOGIN_WINDOW"), 15*time.Minute),
	}

	cfg.Intake = IntakeConfig{
		DraftTTL:     parseDuration(v.GetString("INTAKE_DRAFT_TTL"), 48*time.Hour),
		ListCacheTTL: parseDuration(v.GetString("ADMIN_LIST_CACHE_TTL"), 2*time.Minute),
		CacheEnabled: v.GetBool("ENABLE_ADMIN_LIST_CACHE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("REQUEST_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "dbos_admissions")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MIGRATIONS_DIR", "")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("JWT_ISSUER", "dbos-admissions")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "720h")
	v.SetDefault("S3_REGION", "ap-south-1")
	v.SetDefault("S3_PRESIGN_TTL", "")
	v.SetDefault("UPLOAD_MAX_IMAGE_BYTES", 200*1024)
	v.SetDefault("UPLOAD_MAX_DOCUMENT_BYTES", 300*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "image/jpeg,image/png,application/pdf")
	v.SetDefault("PHOTO_MAX_EDGE", 600)

	v.SetDefault("SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("SMTP_FROM_NAME", "DBOS Admissions")
	v.SetDefault("SMTP_FROM_EMAIL", "")
	v.SetDefault("SMTP_USE_TLS", false)
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("MAIL_WORKERS", 2)
	v.SetDefault("MAIL_MAX_RETRIES", 3)
	v.SetDefault("MAIL_RETRY_DELAY", "5s")
	v.SetDefault("MAIL_SEND_TIMEOUT", "20s")
	v.SetDefault("ENABLE_MAIL_WORKERS", true)

	v.SetDefault("ADMIN_ALLOWED_DOMAINS", "@admin.dbos.com,@dbos.com")
	v.SetDefault("ADMIN_ALLOWED_EMAILS", "")
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_WINDOW", "15m")

	v.SetDefault("INTAKE_DRAFT_TTL", "48h")
	v.SetDefault("ADMIN_LIST_CACHE_TTL", "2m")
	v.SetDefault("ENABLE_ADMIN_LIST_CACHE", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt64(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
