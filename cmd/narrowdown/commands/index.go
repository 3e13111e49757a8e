package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/similarity"
)

// ErrIDWithManyDocuments is returned when --id is combined with more than one document.
var ErrIDWithManyDocuments = errors.New("--id needs exactly one input document")

type indexFlags struct {
	lines     bool
	exactPart string
	data      string
	labelData bool
	id        uint64
}

func newIndexCommand(flags *globalFlags) *cobra.Command {
	var f indexFlags

	cmd := &cobra.Command{
		Use:   "index [file...]",
		Short: "Add documents to the index",
		Long: `Add documents to the index. Each file is one document; with --lines
every non-empty line is one. Without files, stdin is read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, a *app) error {
				return runIndex(ctx, a, cmd, args, f)
			})
		},
	}

	fl := cmd.Flags()
	fl.BoolVar(&f.lines, "lines", false, "treat every non-empty line as a document")
	fl.StringVar(&f.exactPart, "exact", "", "key that must match exactly for documents to be similar")
	fl.StringVar(&f.data, "data", "", "payload stored with each document")
	fl.BoolVar(&f.labelData, "label-data", false, "store the input label (file:line) as payload")
	fl.Uint64Var(&f.id, "id", 0, "store the document under this id (single document only)")

	return cmd
}

func runIndex(ctx context.Context, a *app, cmd *cobra.Command, args []string, f indexFlags) error {
	sources, err := readSources(cmd.InOrStdin(), args, f.lines)
	if err != nil {
		return err
	}

	explicitID := cmd.Flags().Changed("id")

	if explicitID && len(sources) != 1 {
		return fmt.Errorf("%w: got %d", ErrIDWithManyDocuments, len(sources))
	}

	store, err := a.openStore(ctx, true)
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"ID", "Source"})

	for _, src := range sources {
		var opts []similarity.InsertOption

		if explicitID {
			opts = append(opts, similarity.WithID(f.id))
		}

		if f.exactPart != "" {
			opts = append(opts, similarity.WithExactPart(f.exactPart))
		}

		switch {
		case f.labelData:
			opts = append(opts, similarity.WithData(src.label))
		case f.data != "":
			opts = append(opts, similarity.WithData(f.data))
		}

		id, ierr := store.Insert(ctx, src.text, opts...)
		if ierr != nil {
			return fmt.Errorf("index %s: %w", src.label, ierr)
		}

		tbl.AppendRow(table.Row{id, src.label})
	}

	if err = a.persist(ctx); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "documents indexed", slog.Int("count", len(sources)))

	if !a.quiet {
		fmt.Fprintln(a.out, tbl.Render())
	}

	a.status(color.FgGreen, "Indexed %d document(s)", len(sources))

	return nil
}
