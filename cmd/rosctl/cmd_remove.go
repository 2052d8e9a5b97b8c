package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danmuck/rosctl/internal/remote"
	"github.com/spf13/cobra"
)

func newRemoveCmd(opts *globalOptions) *cobra.Command {
	var scheduler bool
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a script or scheduler; absent objects are not an error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, _, err := opts.resolve(true)
			if err != nil {
				return err
			}
			coll := remote.Scripts
			if scheduler {
				coll = remote.Schedules
			}
			return runRemove(cmd.Context(), cmd.OutOrStdout(), targets[0], coll, args[0])
		},
	}
	cmd.Flags().BoolVar(&scheduler, "scheduler", false, "remove a scheduler instead of a script")
	return cmd
}

func runRemove(ctx context.Context, w io.Writer, t target, coll remote.Collection, name string) error {
	client, err := t.client(t.upload.UploadTimeout)
	if err != nil {
		return err
	}
	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	repo := remote.NewRepository(client, remote.Options{DeletePolicy: t.upload.DeletePolicy()})
	if err := repo.Remove(ctx, conn, coll, name); err != nil {
		return err
	}
	fmt.Fprintf(w, "removed %s %s\n", coll, name)
	return nil
}
