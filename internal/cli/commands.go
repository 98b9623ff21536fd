package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/tui"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

func newScanCmd(opts *options, build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Показать изображения каталога и их состояние",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := open(cmd, opts, build)
			if err != nil {
				return err
			}
			defer rt.Close()

			resp := rt.Scanner.Scan(cmd.Context(), rt.Creds)
			out := cmd.OutOrStdout()
			if opts.plain {
				printPlainScan(out, resp)
				return nil
			}
			_, _ = fmt.Fprint(out, tui.RenderScanTable(resp))
			return nil
		},
	}
}

func newOptimizeCmd(opts *options, build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <image-id>",
		Short: "Оптимизировать одно изображение",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd, opts, build)
			if err != nil {
				return err
			}
			defer rt.Close()

			candidate, err := findCandidate(cmd, rt, args[0])
			if err != nil {
				return err
			}
			res, err := rt.Engine.Commit(cmd.Context(), rt.Creds, candidate)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s → %s: %d KB → %d KB (-%d%%), %s\n",
				candidate.ID, res.NewAssetID, res.BeforeKB, res.AfterKB, res.Percent, res.Format)
			return nil
		},
	}
}

func newRestoreCmd(opts *options, build RuntimeBuilder) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <image-id>",
		Short: "Вернуть оригинал изображения",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd, opts, build)
			if err != nil {
				return err
			}
			defer rt.Close()

			candidate, err := findCandidate(cmd, rt, args[0])
			if err != nil {
				return err
			}
			res, err := rt.Engine.Restore(cmd.Context(), rt.Creds, candidate)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s → %s: %s\n", candidate.ID, res.AssetID, res.Status)
			return nil
		},
	}
}

// findCandidate ищет изображение в результате сканирования: движку нужны владелец и URL.
func findCandidate(cmd *cobra.Command, rt *Runtime, id string) (models.Candidate, error) {
	resp := rt.Scanner.Scan(cmd.Context(), rt.Creds)
	for _, c := range resp.Candidates {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Candidate{}, fmt.Errorf("%w: изображение %s нет в каталоге", services.ErrNotFound, id)
}

func printPlainScan(out io.Writer, resp models.ScanResponse) {
	for _, c := range resp.Candidates {
		status := "pending"
		if c.Optimized {
			status = "optimized"
		}
		_, _ = fmt.Fprintf(out, "%s\t%s\t%s\t%d\t%d%%\n", c.ID, c.OwnerID, status, c.SavedKB, c.Percent)
	}
	_, _ = fmt.Fprintf(out, "total=%d truncated=%t stale_removed=%d\n",
		len(resp.Candidates), resp.Truncated, resp.StaleRemoved)
}
