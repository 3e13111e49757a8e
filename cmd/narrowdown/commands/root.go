// Package commands implements the narrowdown CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/narrowdown/pkg/version"
)

// NewRootCommand builds the narrowdown command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "narrowdown",
		Short: "Near-duplicate text detection with MinHash LSH",
		Long: `narrowdown indexes text documents by MinHash fingerprints and finds
near-duplicates through locality-sensitive hashing.

Commands:
  index     Add documents to the index
  query     Find documents similar to a text
  remove    Remove documents by id
  tune      Show the band layout for a similarity threshold
  hash      Hash input with the built-in hash primitives
  inspect   Show index settings and storage statistics`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default: ./narrowdown.yaml)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "suppress status output")

	rootCmd.AddCommand(
		newIndexCommand(flags),
		newQueryCommand(flags),
		newRemoveCommand(flags),
		newTuneCommand(flags),
		newHashCommand(),
		newInspectCommand(flags),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "narrowdown %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
