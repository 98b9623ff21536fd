package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
)

// Путь к файлу конфигурации по умолчанию.
const defaultConfigPath = "config.yaml"

// flags хранит значения флагов командной строки. Заданный флаг сильнее файла и окружения.
type flags struct {
	ConfigPath  string
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string
}

// parseFlags разбирает флаги из args.
func parseFlags(args []string) (*flags, error) {
	f := &flags{}
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&f.ConfigPath, "config", defaultConfigPath, "Путь к yaml-файлу конфигурации")
	fs.StringVar(&f.Port, "port", "",
		fmt.Sprintf("Порт HTTP(S)-сервера (env: %s)", config.EnvServerPort))
	fs.StringVar(&f.CertFile, "cert-file", "",
		fmt.Sprintf("Путь к файлу TLS-сертификата (env: %s)", config.EnvTLSCertFile))
	fs.StringVar(&f.KeyFile, "key-file", "",
		fmt.Sprintf("Путь к файлу TLS-ключа (env: %s)", config.EnvTLSKeyFile))
	fs.StringVar(&f.DatabaseDSN, "database-dsn", "",
		fmt.Sprintf("Строка подключения к базе данных (env: %s)", config.EnvDatabaseDSN))

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig читает конфигурацию и применяет флаги поверх нее.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, err
	}

	if f.Port != "" {
		cfg.Server.Port = f.Port
	}
	if f.CertFile != "" {
		cfg.Server.CertFile = f.CertFile
	}
	if f.KeyFile != "" {
		cfg.Server.KeyFile = f.KeyFile
	}
	if f.DatabaseDSN != "" {
		cfg.Database.DSN = f.DatabaseDSN
	}

	// Проверяем обязательные параметры
	if cfg.Database.DSN == "" {
		return nil, errors.New("не указана строка подключения к БД (--database-dsn или " + config.EnvDatabaseDSN + ")")
	}
	if cfg.Shopify.APISecret == "" {
		return nil, errors.New("не указан секрет приложения (" + config.EnvShopifyAPISecret + ")")
	}
	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		return nil, errors.New("для TLS нужны и сертификат, и ключ (--cert-file и --key-file)")
	}
	return cfg, nil
}
