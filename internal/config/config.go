package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Verifier   VerifierConfig   `json:"verifier"`
	Extraction ExtractionConfig `json:"extraction"`
	Storage    StorageConfig    `json:"storage"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Workers    WorkersConfig    `json:"workers"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
	MaxUploadBytes  int64    `json:"max_upload_bytes"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
	AutoMigrate    bool     `json:"auto_migrate"`
}

// VerifierConfig configures the external chat-completion model used to
// verify green purchases. An empty APIKey disables the model entirely.
type VerifierConfig struct {
	APIKey           string   `json:"api_key"`
	BaseURL          string   `json:"base_url"`
	Model            string   `json:"model"`
	Timeout          Duration `json:"timeout"`
	MaxTokens        int      `json:"max_tokens"`
	InvoiceTextLimit int      `json:"invoice_text_limit"`
}

// ExtractionConfig bounds the invoice text extraction stages
type ExtractionConfig struct {
	PDFTimeout   Duration `json:"pdf_timeout"`
	OCRTimeout   Duration `json:"ocr_timeout"`
	OCRPages     int      `json:"ocr_pages"`
	OCRScale     float64  `json:"ocr_scale"`
	OCRLanguage  string   `json:"ocr_language"`
	PdftoppmPath string   `json:"pdftoppm_path"`
	TesseractBin string   `json:"tesseract_path"`
}

// StorageConfig - invoice uploads. Empty bucket keeps only a file reference.
type StorageConfig struct {
	InvoiceBucket string `json:"invoice_bucket"`
	KeyPrefix     string `json:"key_prefix"`
	Region        string `json:"region"`
	Endpoint      string `json:"endpoint"` // MinIO or LocalStack
	AccessKeyID   string `json:"access_key_id"`
	SecretKey     string `json:"secret_access_key"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret        string `json:"jwt_secret"`
	AllowDevIdentity bool   `json:"allow_dev_identity"`
	DevUserID        string `json:"dev_user_id"`
	DevCorporateID   string `json:"dev_corporate_id"`
}

// LoggingConfig
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // console|json
}

// WorkersConfig
type WorkersConfig struct {
	ReconcileSchedule string `json:"reconcile_schedule"`
}

// Duration lets durations be written as "15s" in the JSON config file.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Default returns the configuration used when nothing else is provided
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{60 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
			MaxUploadBytes:  10 << 20,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "greenfin",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration{30 * time.Minute},
			AutoMigrate:    true,
		},
		Verifier: VerifierConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			Model:            "anthropic/claude-3-haiku",
			Timeout:          Duration{15 * time.Second},
			MaxTokens:        500,
			InvoiceTextLimit: 4000,
		},
		Extraction: ExtractionConfig{
			PDFTimeout:   Duration{20 * time.Second},
			OCRTimeout:   Duration{8 * time.Second},
			OCRPages:     1,
			OCRScale:     1.25,
			OCRLanguage:  "eng",
			PdftoppmPath: "pdftoppm",
			TesseractBin: "tesseract",
		},
		Storage: StorageConfig{
			KeyPrefix: "invoices",
			Region:    "ap-south-1",
		},
		Security: SecurityConfig{
			AllowDevIdentity: true,
			DevUserID:        "00000000-0000-0000-0000-000000000001",
			DevCorporateID:   "00000000-0000-0000-0000-000000000100",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Workers: WorkersConfig{
			ReconcileSchedule: "@every 5m",
		},
	}
}

// LoadConfig loads configuration from .env, the config file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	// .env is optional; real environment variables always win
	_ = godotenv.Load()

	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	overrideWithEnv(config)

	return config, nil
}

func overrideWithEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	setInt(&config.Server.Port, "SERVER_PORT")

	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	setInt(&config.Database.Port, "DATABASE_PORT")
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPass := os.Getenv("DATABASE_PASSWORD"); dbPass != "" {
		config.Database.Password = dbPass
	}
	if dbName := os.Getenv("DATABASE_DBNAME"); dbName != "" {
		config.Database.DBName = dbName
	}
	if sslMode := os.Getenv("DATABASE_SSLMODE"); sslMode != "" {
		config.Database.SSLMode = sslMode
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		config.Verifier.APIKey = key
	}
	if baseURL := os.Getenv("VERIFIER_BASE_URL"); baseURL != "" {
		config.Verifier.BaseURL = baseURL
	}
	if model := os.Getenv("VERIFIER_MODEL"); model != "" {
		config.Verifier.Model = model
	}
	if timeout := os.Getenv("VERIFIER_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Verifier.Timeout = Duration{d}
		}
	}

	setMillis(&config.Extraction.OCRTimeout, "OCR_TIMEOUT_MS")
	setMillis(&config.Extraction.PDFTimeout, "PDF_TIMEOUT_MS")
	setInt(&config.Extraction.OCRPages, "PDF_OCR_PAGES")
	if scale := os.Getenv("PDF_OCR_SCALE"); scale != "" {
		if f, err := strconv.ParseFloat(scale, 64); err == nil && f > 0 {
			config.Extraction.OCRScale = f
		}
	}

	if bucket := os.Getenv("INVOICE_BUCKET"); bucket != "" {
		config.Storage.InvoiceBucket = bucket
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		config.Storage.Region = region
	}
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if key := os.Getenv("S3_ACCESS_KEY_ID"); key != "" {
		config.Storage.AccessKeyID = key
	}
	if secret := os.Getenv("S3_SECRET_ACCESS_KEY"); secret != "" {
		config.Storage.SecretKey = secret
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		config.Security.JWTSecret = secret
	}
	if devUser := os.Getenv("DEV_USER_ID"); devUser != "" {
		config.Security.DevUserID = devUser
	}
	if devCorporate := os.Getenv("DEV_CORPORATE_ID"); devCorporate != "" {
		config.Security.DevCorporateID = devCorporate
	}
	if allow := os.Getenv("ALLOW_DEV_IDENTITY"); allow != "" {
		if b, err := strconv.ParseBool(allow); err == nil {
			config.Security.AllowDevIdentity = b
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if schedule := os.Getenv("RECONCILE_SCHEDULE"); schedule != "" {
		config.Workers.ReconcileSchedule = schedule
	}
}

func setInt(target *int, key string) {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*target = v
		}
	}
}

func setMillis(target *Duration, key string) {
	if raw := os.Getenv(key); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil {
			target.Duration = time.Duration(ms) * time.Millisecond
		}
	}
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VerifierEnabled reports whether an external model is configured
func (c *Config) VerifierEnabled() bool {
	return c.Verifier.APIKey != ""
}
