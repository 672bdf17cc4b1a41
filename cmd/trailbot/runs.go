package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trailing-lab/internal/reporting"
	"trailing-lab/internal/storage"
	"trailing-lab/internal/strategy"
)

func runsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List and show archived backtests",
	}
	cmd.AddCommand(runsListCmd(a), runsShowCmd(a))
	return cmd
}

func runsListCmd(a *app) *cobra.Command {
	var (
		limit   int
		allPair bool
		asCSV   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, closeStore, err := openRunStore(ctx, a.cfg.PostgresDSN, a.log)
			if err != nil {
				return err
			}
			defer closeStore()

			pair := a.cfg.Pair
			if allPair {
				pair = ""
			}
			runs, err := store.List(ctx, pair, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asCSV {
				return reporting.RenderRunsCSV(out, runs)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tCREATED\tPAIR\tSTRATEGY\tTRADES\tEND QUOTE\tDIGEST")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.2f\t%s\n",
					r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Pair,
					strategy.ID(r.Params), r.TradeCount, r.Results.EndQuote, r.Digest)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum runs listed; 0 for all")
	cmd.Flags().BoolVar(&allPair, "all-pairs", false, "list runs of every pair")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "write CSV instead of a table")
	return cmd
}

func runsShowCmd(a *app) *cobra.Command {
	var (
		format    string
		tradesCSV string
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the report of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := openRunStore(ctx, a.cfg.PostgresDSN, a.log)
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := reporting.NewGenerator(store).Generate(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return err
			}
			if err := writeTradesCSV(tradesCSV, report.Trades); err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), format, report, report)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatMarkdown, "output format: text, markdown or json")
	cmd.Flags().StringVar(&tradesCSV, "trades-csv", "", "also write the trade list to this CSV file")
	return cmd
}
