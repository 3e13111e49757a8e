package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/narrowdown/pkg/alg/lsh"
)

// tuneReport is the outcome of a band layout search.
type tuneReport struct {
	Threshold        float64    `json:"threshold"          yaml:"threshold"`
	MaxFalseNegative float64    `json:"max_false_negative" yaml:"max_false_negative"`
	MaxFalsePositive float64    `json:"max_false_positive" yaml:"max_false_positive"`
	Config           lsh.Config `json:"config"             yaml:"config"`
	FalseNegative    float64    `json:"false_negative"     yaml:"false_negative"`
	FalsePositive    float64    `json:"false_positive"     yaml:"false_positive"`
	BoundsMet        bool       `json:"bounds_met"         yaml:"bounds_met"`
}

type tuneFlags struct {
	threshold float64
	maxFN     float64
	maxFP     float64
	format    string
	plot      string
}

func newTuneCommand(flags *globalFlags) *cobra.Command {
	var f tuneFlags

	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Show the band layout for a similarity threshold",
		Long: `Search the LSH band layout that keeps the false negative and false
positive probabilities within bounds for a similarity threshold. Values not
given as flags come from the configuration. With --plot the candidate
probability curve is written as an HTML chart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.format != formatText && f.format != formatJSON && f.format != formatYAML {
				return fmt.Errorf("%w: %q", ErrUnknownFormat, f.format)
			}

			return run(cmd, flags, func(_ context.Context, a *app) error {
				idx := a.cfg.Index
				fl := cmd.Flags()

				if !fl.Changed("threshold") {
					f.threshold = idx.Threshold
				}

				if !fl.Changed("max-fn") {
					f.maxFN = idx.MaxFalseNegative
				}

				if !fl.Changed("max-fp") {
					f.maxFP = idx.MaxFalsePositive
				}

				report, err := tune(f.threshold, f.maxFN, f.maxFP)
				if err != nil {
					return err
				}

				if f.plot != "" {
					if err = writeSCurvePlot(f.plot, report); err != nil {
						return err
					}
				}

				if err = writeTuneReport(a, report, f.format); err != nil {
					return err
				}

				if f.plot != "" && f.format == formatText {
					a.status(color.FgCyan, "S-curve written to %s", f.plot)
				}

				return nil
			})
		},
	}

	fl := cmd.Flags()
	fl.Float64VarP(&f.threshold, "threshold", "t", 0, "Jaccard similarity threshold")
	fl.Float64Var(&f.maxFN, "max-fn", 0, "maximum false negative probability")
	fl.Float64Var(&f.maxFP, "max-fp", 0, "maximum false positive probability")
	fl.StringVar(&f.format, "format", formatText, "output format: text, json or yaml")
	fl.StringVar(&f.plot, "plot", "", "also write the S-curve of the layout as an HTML chart to this file")

	return cmd
}

func tune(threshold, maxFN, maxFP float64) (tuneReport, error) {
	cfg, err := lsh.FindOptimalConfig(threshold, maxFN, maxFP)
	if err != nil && !errors.Is(err, lsh.ErrBoundsUnreachable) {
		return tuneReport{}, err
	}

	return tuneReport{
		Threshold:        threshold,
		MaxFalseNegative: maxFN,
		MaxFalsePositive: maxFP,
		Config:           cfg,
		FalseNegative:    cfg.FalseNegativeProbability(threshold),
		FalsePositive:    cfg.FalsePositiveProbability(threshold),
		BoundsMet:        err == nil,
	}, nil
}

func writeTuneReport(a *app, report tuneReport, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	case formatYAML:
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendRows([]table.Row{
		{"Threshold", report.Threshold},
		{"Hashes", report.Config.NumHashes},
		{"Bands", report.Config.NumBands},
		{"Rows per band", report.Config.RowsPerBand},
		{"False negative", fmt.Sprintf("%.6f (max %g)", report.FalseNegative, report.MaxFalseNegative)},
		{"False positive", fmt.Sprintf("%.6f (max %g)", report.FalsePositive, report.MaxFalsePositive)},
	})

	fmt.Fprintln(a.out, tbl.Render())

	if report.BoundsMet {
		a.status(color.FgGreen, "Error bounds met")
	} else {
		a.status(color.FgYellow, "Error bounds unreachable, closest layout shown")
	}

	return nil
}
