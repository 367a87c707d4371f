package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rajivgeraev/rewear-api/internal/models"
)

type statsReport struct {
	Swaps *models.SwapStats `json:"swaps"`
	Items *models.ItemStats `json:"items"`
}

func newStatsCmd(opts *options, open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Показать статистику обменов и вещей",
		Long: `Выводит количество запросов на обмен по статусам и сводку по вещам.

Примеры:
  rewearctl stats
  rewearctl stats --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, closeStore, err := open(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			swaps, err := store.SwapStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("ошибка получения статистики обменов: %w", err)
			}
			items, err := store.ItemStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("ошибка получения статистики вещей: %w", err)
			}

			report := statsReport{Swaps: swaps, Items: items}
			if opts.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printStats(cmd.OutOrStdout(), report)
		},
	}
}

func printStats(out io.Writer, r statsReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "ОБМЕНЫ\t")
	fmt.Fprintf(w, "  всего\t%d\n", r.Swaps.TotalRequests)
	fmt.Fprintf(w, "  ожидают\t%d\n", r.Swaps.PendingRequests)
	fmt.Fprintf(w, "  приняты\t%d\n", r.Swaps.AcceptedRequests)
	fmt.Fprintf(w, "  завершены\t%d\n", r.Swaps.CompletedSwaps)
	fmt.Fprintf(w, "  отклонены\t%d\n", r.Swaps.RejectedRequests)
	fmt.Fprintf(w, "  отменены\t%d\n", r.Swaps.CancelledRequests)

	fmt.Fprintln(w, "ВЕЩИ\t")
	fmt.Fprintf(w, "  всего\t%d\n", r.Items.TotalItems)
	fmt.Fprintf(w, "  одобрены\t%d\n", r.Items.ApprovedItems)
	fmt.Fprintf(w, "  на модерации\t%d\n", r.Items.PendingItems)
	fmt.Fprintf(w, "  в подборке\t%d\n", r.Items.FeaturedItems)
	fmt.Fprintf(w, "  просмотры\t%d\n", r.Items.TotalViews)
	fmt.Fprintf(w, "  лайки\t%d\n", r.Items.TotalLikes)

	categories := make([]string, 0, len(r.Items.ByCategory))
	for c := range r.Items.ByCategory {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(w, "  %s\t%d\n", c, r.Items.ByCategory[c])
	}

	return w.Flush()
}
