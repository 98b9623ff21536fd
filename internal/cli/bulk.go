package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/bulk"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/tui"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// ErrLocked - другой процесс уже выполняет массовый запуск для магазина.
var ErrLocked = bulk.ErrLocked

func newBulkCmd(opts *options, build RuntimeBuilder) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "bulk",
		Short: "Оптимизировать или восстановить все подходящие изображения",
		Long: "bulk сканирует каталог и обрабатывает изображения по одному.\n" +
			"optimize берет ожидающие изображения, restore - оптимизированные.\n" +
			"Ctrl+C останавливает запуск после текущего изображения.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bulkMode := models.BulkMode(mode)
			if !bulkMode.Valid() {
				return fmt.Errorf("%w: %q", bulk.ErrInvalidMode, mode)
			}

			lock, err := lockShop(opts.lockDir, opts.shop)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			rt, err := open(cmd, opts, build)
			if err != nil {
				return err
			}
			defer rt.Close()

			return runBulk(cmd, opts, rt, bulkMode)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(models.BulkOptimize), "Режим: optimize или restore")
	return cmd
}

// lockShop берет ту же блокировку магазина, что и сервер: запуски CLI и сервера не пересекаются.
func lockShop(dir, shop string) (*flock.Flock, error) {
	return bulk.TryLockShop(dir, shop)
}

// selectItems отбирает элементы для режима: ожидающие для optimize, оптимизированные для restore.
func selectItems(candidates []models.Candidate, mode models.BulkMode) []models.Candidate {
	items := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Optimized == (mode == models.BulkRestore) {
			items = append(items, c)
		}
	}
	return items
}

func runBulk(cmd *cobra.Command, opts *options, rt *Runtime, mode models.BulkMode) error {
	out := cmd.OutOrStdout()
	resp := rt.Scanner.Scan(cmd.Context(), rt.Creds)
	items := selectItems(resp.Candidates, mode)
	if len(items) == 0 {
		_, _ = fmt.Fprintln(out, "Нет изображений для обработки")
		return nil
	}
	if resp.Truncated {
		_, _ = fmt.Fprintln(out, "Каталог усечен: обрабатываются только просканированные изображения")
	}

	runner := bulk.NewRunner(rt.Creds.Shop, rt.Engine, rt.Pub, rt.Log)
	// Отмена команды не прерывает мутацию на середине: остановка только между элементами
	run, err := runner.Start(context.WithoutCancel(cmd.Context()), rt.Creds, mode, items)
	if err != nil {
		return err
	}

	if opts.plain {
		sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			select {
			case <-sigCtx.Done():
				runner.Stop()
			case <-run.Done():
			}
		}()
		printPlainEvents(out, run.Events())
	} else if err = tui.RunProgress(run.Events(), mode, run.Total, runner.Stop); err != nil {
		runner.Stop()
		run.Wait()
		return err
	}

	_, _ = fmt.Fprintln(out, tui.RenderSummary(run.Wait()))
	return nil
}

func printPlainEvents(out io.Writer, events <-chan models.BulkEvent) {
	for ev := range events {
		if ev.Kind != models.BulkEventProgress || ev.Item == nil {
			continue
		}
		switch {
		case ev.Item.Error != "":
			_, _ = fmt.Fprintf(out, "[%d/%d] %s: ошибка: %s\n", ev.Done, ev.Total, ev.Item.AssetID, ev.Item.Error)
		case ev.Item.Candidate != nil:
			_, _ = fmt.Fprintf(out, "[%d/%d] %s → %s\n", ev.Done, ev.Total, ev.Item.AssetID, ev.Item.Candidate.ID)
		}
	}
}
