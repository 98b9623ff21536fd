// Package config загружает конфигурацию сервиса и CLI: yaml-файл, затем переменные окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Переменные окружения, переопределяющие значения из файла.
const (
	EnvServerPort       = "SERVER_PORT"
	EnvTLSCertFile      = "TLS_CERT_FILE"
	EnvTLSKeyFile       = "TLS_KEY_FILE"
	EnvDatabaseDSN      = "DATABASE_DSN"
	EnvLogMode          = "LOG_MODE"
	EnvShopifyAPISecret = "SHOPIFY_API_SECRET" //nolint:gosec // имя переменной окружения
	EnvShopifyVersion   = "SHOPIFY_API_VERSION"
	EnvMinioEndpoint    = "MINIO_ENDPOINT"
	EnvMinioUser        = "MINIO_USER"
	EnvMinioPassword    = "MINIO_PASSWORD" //nolint:gosec // имя переменной окружения
	EnvMinioBucket      = "MINIO_BUCKET"
	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisChannel     = "REDIS_CHANNEL"
	EnvBulkLockDir      = "BULK_LOCK_DIR"
)

// Config - полная конфигурация приложения.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Shopify   ShopifyConfig   `yaml:"shopify"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Backup    BackupConfig    `yaml:"backup"`
	Redis     RedisConfig     `yaml:"redis"`
	Bulk      BulkConfig      `yaml:"bulk"`
}

// ServerConfig - параметры HTTP-сервера. TLS включается, если заданы оба файла.
type ServerConfig struct {
	Port     string `yaml:"port"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type LogConfig struct {
	Mode string `yaml:"mode"` // dev | prod
}

// ShopifyConfig - параметры удаленного Admin API.
type ShopifyConfig struct {
	APIVersion     string        `yaml:"api_version"`
	APISecret      string        `yaml:"api_secret"` // секрет приложения для проверки session token
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // запросов в секунду на магазин
	RateBurst      int           `yaml:"rate_burst"`
	PageSize       int           `yaml:"page_size"`
}

// OptimizerConfig - политика транскодирования и лимиты сканирования.
type OptimizerConfig struct {
	MaxWidth         int `yaml:"max_width"`
	SizeThresholdKB  int `yaml:"size_threshold_kb"`
	PrimaryQuality   int `yaml:"primary_quality"`
	SecondaryQuality int `yaml:"secondary_quality"`
	SecondarySpeed   int `yaml:"secondary_speed"`
	ScanCap          int `yaml:"scan_cap"`
}

// BackupConfig - архив оригиналов в MinIO. Пустой Endpoint отключает архив.
type BackupConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	Bucket     string        `yaml:"bucket"`
	UseSSL     bool          `yaml:"use_ssl"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// RedisConfig - шина событий массовых запусков. Пустой Addr - только локальная шина.
type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// BulkConfig - массовые запуски. Файлы блокировок в LockDir общие для сервера и CLI.
type BulkConfig struct {
	LockDir string `yaml:"lock_dir"`
}

// Enabled сообщает, настроен ли архив оригиналов.
func (b BackupConfig) Enabled() bool {
	return b.Endpoint != "" && b.Bucket != ""
}

// TLSEnabled сообщает, заданы ли сертификат и ключ.
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8443"},
		Log:    LogConfig{Mode: "dev"},
		Shopify: ShopifyConfig{
			APIVersion:     "2024-10",
			RequestTimeout: 30 * time.Second,
			RateLimit:      2,
			RateBurst:      4,
			PageSize:       50,
		},
		Optimizer: OptimizerConfig{
			MaxWidth:         2048,
			SizeThresholdKB:  200,
			PrimaryQuality:   80,
			SecondaryQuality: 55,
			SecondarySpeed:   8,
			ScanCap:          2500,
		},
		Backup: BackupConfig{
			Bucket:     "image-originals",
			PresignTTL: time.Hour,
		},
		Redis: RedisConfig{Channel: "imgopt:bulk"},
		Bulk:  BulkConfig{LockDir: os.TempDir()},
	}
}

// Load читает yaml-файл (отсутствующий файл не является ошибкой) и применяет переменные окружения.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// файла нет - работаем на значениях по умолчанию
		case err != nil:
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		default:
			if err = yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("ошибка разбора файла конфигурации: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, EnvServerPort)
	setString(&c.Server.CertFile, EnvTLSCertFile)
	setString(&c.Server.KeyFile, EnvTLSKeyFile)
	setString(&c.Database.DSN, EnvDatabaseDSN)
	setString(&c.Log.Mode, EnvLogMode)
	setString(&c.Shopify.APISecret, EnvShopifyAPISecret)
	setString(&c.Shopify.APIVersion, EnvShopifyVersion)
	setString(&c.Backup.Endpoint, EnvMinioEndpoint)
	setString(&c.Backup.AccessKey, EnvMinioUser)
	setString(&c.Backup.SecretKey, EnvMinioPassword)
	setString(&c.Backup.Bucket, EnvMinioBucket)
	setString(&c.Redis.Addr, EnvRedisAddr)
	setString(&c.Redis.Channel, EnvRedisChannel)
	setString(&c.Bulk.LockDir, EnvBulkLockDir)

	if v, ok := os.LookupEnv("SHOPIFY_RATE_LIMIT"); ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("некорректное значение SHOPIFY_RATE_LIMIT %q: %w", v, err)
		}
		c.Shopify.RateLimit = rate
	}
	return nil
}

// fillDefaults подставляет значения по умолчанию для нулевых полей, пришедших из файла.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Server.Port == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Shopify.RequestTimeout <= 0 {
		c.Shopify.RequestTimeout = d.Shopify.RequestTimeout
	}
	if c.Shopify.RateLimit <= 0 {
		c.Shopify.RateLimit = d.Shopify.RateLimit
	}
	if c.Shopify.RateBurst <= 0 {
		c.Shopify.RateBurst = d.Shopify.RateBurst
	}
	if c.Shopify.PageSize <= 0 || c.Shopify.PageSize > 250 {
		c.Shopify.PageSize = d.Shopify.PageSize
	}
	if c.Optimizer.MaxWidth <= 0 {
		c.Optimizer.MaxWidth = d.Optimizer.MaxWidth
	}
	if c.Optimizer.SizeThresholdKB <= 0 {
		c.Optimizer.SizeThresholdKB = d.Optimizer.SizeThresholdKB
	}
	if c.Optimizer.ScanCap <= 0 {
		c.Optimizer.ScanCap = d.Optimizer.ScanCap
	}
	if c.Backup.PresignTTL <= 0 {
		c.Backup.PresignTTL = d.Backup.PresignTTL
	}
	if c.Bulk.LockDir == "" {
		c.Bulk.LockDir = d.Bulk.LockDir
	}
}

func setString(dst *string, env string) {
	if value, ok := os.LookupEnv(env); ok {
		*dst = value
	}
}
