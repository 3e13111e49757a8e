package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/document"
)

// Output formats.
const (
	formatTable = "table"
	formatText  = "text"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// textColumnWidth bounds the text column of result tables.
const textColumnWidth = 60

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

type queryFlags struct {
	file      string
	exactPart string
	top       int
	format    string
}

// queryResult is the JSON form of one result.
type queryResult struct {
	ID         uint64   `json:"id"`
	Similarity *float64 `json:"similarity,omitempty"`
	ExactPart  *string  `json:"exact_part,omitempty"`
	Data       *string  `json:"data,omitempty"`
	Text       *string  `json:"text,omitempty"`
}

func newQueryCommand(flags *globalFlags) *cobra.Command {
	var f queryFlags

	cmd := &cobra.Command{
		Use:   "query [text...]",
		Short: "Find documents similar to a text",
		Long: `Find indexed documents similar to a text given as arguments, read from
--file, or read from stdin. With --top N the candidates are ranked by
estimated Jaccard similarity, which needs stored fingerprints or text: it
fails on an index created with storage_level "minimal".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.format != formatTable && f.format != formatJSON {
				return fmt.Errorf("%w: %q", ErrUnknownFormat, f.format)
			}

			return run(cmd, flags, func(ctx context.Context, a *app) error {
				return runQuery(ctx, a, cmd, args, f)
			})
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.file, "file", "f", "", "read the query text from a file")
	fl.StringVar(&f.exactPart, "exact", "", "exact-match key of the query")
	fl.IntVarP(&f.top, "top", "n", 0, "rank candidates and keep the best N (0 = unranked)")
	fl.StringVar(&f.format, "format", formatTable, "output format: table or json")

	return cmd
}

func queryText(cmd *cobra.Command, args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	var paths []string
	if file != "" {
		paths = []string{file}
	}

	sources, err := readSources(cmd.InOrStdin(), paths, false)
	if err != nil {
		return "", err
	}

	return sources[0].text, nil
}

func runQuery(ctx context.Context, a *app, cmd *cobra.Command, args []string, f queryFlags) error {
	text, err := queryText(cmd, args, f.file)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}

	var results []queryResult

	if f.top > 0 {
		matches, qerr := store.QueryTopN(ctx, f.top, text, f.exactPart)
		if qerr != nil {
			return qerr
		}

		for _, m := range matches {
			r := toResult(m.StoredDocument)
			r.Similarity = &m.Similarity
			results = append(results, r)
		}
	} else {
		docs, qerr := store.Query(ctx, text, f.exactPart)
		if qerr != nil {
			return qerr
		}

		for _, d := range docs {
			results = append(results, toResult(d))
		}
	}

	if f.format == formatJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")

		if results == nil {
			results = []queryResult{}
		}

		return enc.Encode(results)
	}

	if len(results) == 0 {
		a.status(color.FgYellow, "No similar documents")

		return nil
	}

	fmt.Fprintln(a.out, renderResults(results, f.top > 0))

	return nil
}

func toResult(d document.StoredDocument) queryResult {
	return queryResult{ID: d.ID, ExactPart: d.ExactPart, Data: d.Data, Text: d.Document}
}

func renderResults(results []queryResult, ranked bool) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)

	header := table.Row{"ID"}
	if ranked {
		header = append(header, "Similarity")
	}

	tbl.AppendHeader(append(header, "Exact", "Data", "Text"))

	for _, r := range results {
		row := table.Row{r.ID}
		if ranked {
			row = append(row, fmt.Sprintf("%.4f", *r.Similarity))
		}

		row = append(row, deref(r.ExactPart), deref(r.Data), truncate(deref(r.Text), textColumnWidth))
		tbl.AppendRow(row)
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d", len(results))})

	return tbl.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
