package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"vidbudova/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

// BounceMailboxConfig describes the IMAP mailbox that collects delivery
// failure reports for the newsletter sender address.
type BounceMailboxConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	Encryption string `json:"encryption"` // SSL, STARTTLS or none
}

type StorageConfig struct {
	AccessKey string `json:"-"`
	SecretKey string `json:"-"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`   // optional, for R2-style S3 providers
	PublicURL string `json:"public_url"` // CDN base for stored objects
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	BaseURL     string `json:"base_url"` // public origin used in unsubscribe links

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	JWTSecret  string `json:"-"`
	CronSecret string `json:"-"` // bearer secret for the scheduler-facing endpoints

	AdminEmail    string `json:"admin_email"` // seeded when the admins table is empty
	AdminPassword string `json:"-"`
	AdminName     string `json:"admin_name"`

	SentryDSN string `json:"-"`

	StripeSecretKey     string `json:"-"`
	StripeWebhookSecret string `json:"-"`
	DonationSuccessURL  string `json:"donation_success_url"`
	DonationCancelURL   string `json:"donation_cancel_url"`

	ProzorroAPIURL string `json:"prozorro_api_url"`

	// SchedulerEnabled runs drip processing and tender sync on an
	// in-process cron instead of relying on the external trigger.
	SchedulerEnabled  bool   `json:"scheduler_enabled"`
	DripFailurePolicy string `json:"drip_failure_policy"` // advance_on_failure or retry_on_failure

	RateLimitPublic int `json:"rate_limit_public"`

	SMTP          SMTPConfig          `json:"smtp"`
	BounceMailbox BounceMailboxConfig `json:"bounce_mailbox"`
	Storage       StorageConfig       `json:"storage"`
	Redis         RedisConfig         `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "vidbudova"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		CronSecret: getEnv("CRON_SECRET", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "Administrator"),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		DonationSuccessURL:  getEnv("DONATION_SUCCESS_URL", "http://localhost:3000/donate/thank-you"),
		DonationCancelURL:   getEnv("DONATION_CANCEL_URL", "http://localhost:3000/donate"),

		ProzorroAPIURL: getEnv("PROZORRO_API_URL", "https://public.api.openprocurement.org/api/2.5"),

		SchedulerEnabled:  getEnvAsBool("SCHEDULER_ENABLED", false),
		DripFailurePolicy: getEnv("DRIP_FAILURE_POLICY", "advance_on_failure"),

		RateLimitPublic: getEnvAsInt("RATE_LIMIT_PUBLIC", 10),

		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", "hello@vidbudova.org"),
			FromName:  getEnv("SMTP_FROM_NAME", "Vidbudova"),
		},
		BounceMailbox: BounceMailboxConfig{
			Enabled:    getEnvAsBool("BOUNCE_MAILBOX_ENABLED", false),
			Host:       getEnv("BOUNCE_IMAP_HOST", ""),
			Port:       getEnvAsInt("BOUNCE_IMAP_PORT", 993),
			Username:   getEnv("BOUNCE_IMAP_USERNAME", ""),
			Password:   getEnv("BOUNCE_IMAP_PASSWORD", ""),
			Encryption: getEnv("BOUNCE_IMAP_ENCRYPTION", "SSL"),
		},
		Storage: StorageConfig{
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "vidbudova-media"),
			Region:    getEnv("S3_REGION", "eu-central-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			PublicURL: getEnv("S3_PUBLIC_URL", "https://cdn.vidbudova.org"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	// Validate required configurations
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}
	if AppConfig.DripFailurePolicy != "advance_on_failure" && AppConfig.DripFailurePolicy != "retry_on_failure" {
		return fmt.Errorf("DRIP_FAILURE_POLICY must be advance_on_failure or retry_on_failure, got %q", AppConfig.DripFailurePolicy)
	}
	if AppConfig.Environment == "production" {
		if AppConfig.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
		if AppConfig.SMTP.Host == "" {
			return fmt.Errorf("SMTP_HOST is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Scheduler: enabled=%t, drip policy=%s",
		AppConfig.SchedulerEnabled,
		AppConfig.DripFailurePolicy)
	log.Printf("Integrations: stripe=%t, sentry=%t, redis=%t, bounce mailbox=%t",
		AppConfig.StripeSecretKey != "",
		AppConfig.SentryDSN != "",
		AppConfig.Redis.Enabled,
		AppConfig.BounceMailbox.Enabled)
}

// MigrateDB creates or updates the schema for every model. Exposed so
// tests can run it against their own database handle.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Admin{},
		&models.Project{},
		&models.ProjectImage{},
		&models.NewsletterSubscriber{},
		&models.DripSequence{},
		&models.DripStep{},
		&models.DripEnrollment{},
		&models.EmailCampaign{},
		&models.CampaignSend{},
		&models.DonationInquiry{},
		&models.Donation{},
		&models.Tender{},
		&models.Bounce{},
	)
}
