package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newRemoveCommand(flags *globalFlags) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove documents by id",
		Long: `Remove documents and their bucket memberships. Needs an index whose
storage level keeps fingerprints ("fingerprint", the default, or "full");
an index created with storage_level "minimal" cannot remove documents.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint64, 0, len(args))

			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q: %w", arg, err)
				}

				ids = append(ids, id)
			}

			return run(cmd, flags, func(ctx context.Context, a *app) error {
				return runRemove(ctx, a, ids, check)
			})
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "fail when an id does not exist")

	return cmd
}

func runRemove(ctx context.Context, a *app, ids []uint64, check bool) error {
	store, err := a.openStore(ctx, false)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err = store.RemoveByID(ctx, id, check); err != nil {
			return fmt.Errorf("remove %d: %w", id, err)
		}
	}

	if err = a.persist(ctx); err != nil {
		return err
	}

	a.status(color.FgGreen, "Removed %d document(s)", len(ids))

	return nil
}
