package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"trailing-lab/internal/verification"
)

var errDivergent = errors.New("replay diverged from the archive")

type verifyFlags struct {
	all    bool
	limit  int
	format string
}

func verifyCmd(a *app) *cobra.Command {
	f := &verifyFlags{}
	cmd := &cobra.Command{
		Use:   "verify [run-id]",
		Short: "Replay archived runs over stored samples and compare the outcome",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && !f.all {
				return fmt.Errorf("give a run id or --all")
			}
			return runVerify(cmd, a, f, args)
		},
	}
	cmd.Flags().BoolVar(&f.all, "all", false, "verify the latest runs of --pair")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "number of runs checked by --all; 0 for every run")
	cmd.Flags().StringVar(&f.format, "format", formatText, "output format: text or json")
	return cmd
}

func runVerify(cmd *cobra.Command, a *app, f *verifyFlags, args []string) error {
	if f.format != formatText && f.format != formatJSON {
		return fmt.Errorf("unknown format %q: want text or json", f.format)
	}
	ctx := cmd.Context()

	runStore, closeRuns, err := openRunStore(ctx, a.cfg.PostgresDSN, a.log)
	if err != nil {
		return err
	}
	defer closeRuns()

	prices, err := openPriceStore(ctx, a.cfg.ClickhouseDSN, true, a.log)
	if err != nil {
		return err
	}
	defer prices.close()

	v := verification.NewRunVerifier(verification.RunVerifierOptions{
		RunStore:   runStore,
		PriceStore: prices,
		Logger:     a.log.Named("verify"),
	})

	var report *verification.VerificationReport
	if len(args) == 1 {
		res, err := v.VerifyRun(ctx, args[0])
		if err != nil {
			return err
		}
		report = &verification.VerificationReport{TotalRuns: 1, Results: []verification.VerificationResult{*res}}
		if res.Match {
			report.MatchedRuns = 1
		} else {
			report.DivergentRuns = 1
		}
	} else {
		report, err = v.VerifyAll(ctx, a.cfg.Pair, f.limit)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if f.format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		writeVerification(out, report)
	}

	if report.DivergentRuns > 0 {
		return fmt.Errorf("%w: %d of %d runs", errDivergent, report.DivergentRuns, report.TotalRuns)
	}
	return nil
}

func writeVerification(w io.Writer, report *verification.VerificationReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMATCH\tSTORED DIGEST\tREPLAYED DIGEST")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", r.RunID, r.Match, r.StoredDigest, r.ReplayedDigest)
		for _, d := range r.Divergences {
			fmt.Fprintf(tw, "\t\t%s: stored %v\treplayed %v\n", d.Field, d.Expected, d.Actual)
		}
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d runs, %d matched, %d divergent\n", report.TotalRuns, report.MatchedRuns, report.DivergentRuns)
}
