// Package cli реализует команды imgopt: сканирование, оптимизация, восстановление и массовые запуски.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// ErrNoShop - не указан магазин.
var ErrNoShop = errors.New("не указан магазин (--shop)")

// options - значения глобальных флагов.
type options struct {
	configPath string
	shop       string
	token      string
	dsn        string
	logFile    string
	lockDir    string
	plain      bool
}

// NewRootCmd создает корневую команду. build открывает зависимости для команд, которым они нужны.
func NewRootCmd(build RuntimeBuilder) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "imgopt",
		Short: "Оптимизация изображений каталога магазина",
		Long: "imgopt сканирует изображения товаров магазина, перекодирует их в WebP/AVIF\n" +
			"и умеет возвращать оригиналы. Массовые запуски идут строго по одному изображению.",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			opts.shop = strings.ToLower(strings.TrimSpace(opts.shop))
			if opts.shop == "" {
				return ErrNoShop
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "config.yaml", "Путь к yaml-файлу конфигурации")
	pf.StringVar(&opts.shop, "shop", os.Getenv("SHOPIFY_SHOP"), "Домен магазина, например demo.myshopify.com")
	pf.StringVar(&opts.token, "token", "", "Токен Admin API (по умолчанию берется из БД)")
	pf.StringVar(&opts.dsn, "dsn", "", "Строка подключения к БД (переопределяет конфигурацию)")
	pf.StringVar(&opts.logFile, "log-file", "imgopt.log", "Файл журнала")
	pf.StringVar(&opts.lockDir, "lock-dir", os.TempDir(), "Каталог файлов блокировки массовых запусков")
	pf.BoolVar(&opts.plain, "plain", false, "Печатать строки вместо интерактивного вывода")

	root.AddCommand(
		newScanCmd(opts, build),
		newOptimizeCmd(opts, build),
		newRestoreCmd(opts, build),
		newBulkCmd(opts, build),
	)
	return root
}

// Execute запускает CLI с реальными зависимостями.
func Execute(ctx context.Context) error {
	return NewRootCmd(DefaultRuntime).ExecuteContext(ctx)
}

// open строит окружение команды и печатает понятную ошибку, если это не удалось.
func open(cmd *cobra.Command, opts *options, build RuntimeBuilder) (*Runtime, error) {
	rt, err := build(cmd.Context(), opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации: %w", err)
	}
	return rt, nil
}
