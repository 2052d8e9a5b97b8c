package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/danmuck/rosctl/internal/remote"
	"github.com/spf13/cobra"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		prefix     string
		schedulers bool
		sizes      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scripts or schedulers on one router",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, _, err := opts.resolve(true)
			if err != nil {
				return err
			}
			return runList(cmd.Context(), cmd.OutOrStdout(), targets[0], prefix, schedulers, sizes)
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only names starting with prefix")
	cmd.Flags().BoolVar(&schedulers, "schedulers", false, "list schedulers instead of scripts")
	cmd.Flags().BoolVar(&sizes, "sizes", false, "fetch sources to report script sizes")
	return cmd
}

func runList(ctx context.Context, w io.Writer, t target, prefix string, schedulers, sizes bool) error {
	client, err := t.client(t.upload.ListTimeout)
	if err != nil {
		return err
	}
	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	repo := remote.NewRepository(client, remote.Options{})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()
	if schedulers {
		items, err := repo.ListSchedules(ctx, conn, prefix)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "NAME\tDISABLED\tSTART\tNEXT RUN")
		for _, s := range items {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\n", s.Name, s.Disabled, s.StartTime, s.NextRun)
		}
		return nil
	}

	items, err := repo.ListScripts(ctx, conn, prefix, sizes)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "NAME\tSIZE")
	for _, s := range items {
		size := "-"
		if s.Size >= 0 {
			size = strconv.Itoa(s.Size)
		}
		fmt.Fprintf(tw, "%s\t%s\n", s.Name, size)
	}
	return nil
}
