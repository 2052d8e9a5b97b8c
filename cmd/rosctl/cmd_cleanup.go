package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/danmuck/rosctl/internal/upload"
	"github.com/spf13/cobra"
)

func newCleanupCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup <name>",
		Short: "Remove temporaries left by a failed chunked upload",
		Long: `Remove run-NAME-combine, NAME-Combine and every NAME-TEMPn script left on the
router after a chunked upload failed. The final NAME script is not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, _, err := opts.resolve(true)
			if err != nil {
				return err
			}
			return runCleanup(cmd.Context(), cmd.OutOrStdout(), targets[0], args[0])
		},
	}
}

func runCleanup(ctx context.Context, w io.Writer, t target, name string) error {
	coord, err := t.coordinator(upload.NewInflight())
	if err != nil {
		return err
	}
	report, err := coord.Cleanup(ctx, name)
	if err != nil {
		return err
	}
	if len(report.Removed) == 0 && report.OK() {
		fmt.Fprintln(w, "nothing to clean")
		return nil
	}
	for _, n := range report.Removed {
		fmt.Fprintf(w, "removed %s\n", n)
	}
	if !report.OK() {
		names := make([]string, 0, len(report.Failed))
		for n := range report.Failed {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(w, "FAIL  %s: %v\n", n, report.Failed[n])
		}
		return fmt.Errorf("cleanup of %s incomplete", name)
	}
	return nil
}
