package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/config"
	"github.com/Sumatoshi-tech/narrowdown/pkg/safeconv"
	"github.com/Sumatoshi-tech/narrowdown/pkg/storage/memory"
)

func newInspectCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Show index settings and storage statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, flags, runInspect)
		},
	}
}

func runInspect(ctx context.Context, a *app) error {
	store, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}

	cfg := store.Config()
	threshold := store.Threshold()

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.SetTitle("Index")
	tbl.AppendRows([]table.Row{
		{"Backend", a.cfg.Storage.Backend},
		{"Threshold", threshold},
		{"Hashes", cfg.NumHashes},
		{"Bands x rows", fmt.Sprintf("%d x %d", cfg.NumBands, cfg.RowsPerBand)},
		{"False negative", fmt.Sprintf("%.6f", cfg.FalseNegativeProbability(threshold))},
		{"False positive", fmt.Sprintf("%.6f", cfg.FalsePositiveProbability(threshold))},
		{"Storage level", store.StorageLevel().String()},
		{"Tokenizer", store.Tokenizer()},
	})

	if a.mem != nil {
		a.mem.View(func(m *memory.Store) {
			tbl.AppendSeparator()
			tbl.AppendRows([]table.Row{
				{"Documents", humanize.Comma(int64(m.Len()))},
				{"Buckets", humanize.Comma(int64(m.BucketCount()))},
				{"Last assigned id", m.LastAssignedID()},
			})
		})
	}

	if a.cfg.Storage.Backend != config.BackendRedis {
		if info, serr := os.Stat(a.cfg.Storage.Path); serr == nil {
			tbl.AppendRow(table.Row{"File size", humanize.Bytes(safeconv.MustInt64ToUint64(info.Size()))})
		}
	}

	fmt.Fprintln(a.out, tbl.Render())

	return nil
}
