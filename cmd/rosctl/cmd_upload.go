package main

import (
	"context"
	"fmt"
	"io"

	"github.com/danmuck/rosctl/internal/rscfile"
	"github.com/danmuck/rosctl/internal/upload"
	"github.com/spf13/cobra"
)

func newUploadCmd(opts *globalOptions) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "upload [modules...]",
		Short: "Upload scripts to every selected router",
		Long: `Upload the named modules, or every source file in --dir, to each selected
router. Modules may be given with or without the .rsc extension. Scripts
above the chunk size are staged as NAME-TEMPn parts and reassembled on the
router by a one-shot schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, settings, err := opts.resolve(false)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dir") && settings.SourceDir != "" {
				dir = settings.SourceDir
			}
			return runUpload(cmd.Context(), cmd.OutOrStdout(), targets, dir, args)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory holding script sources")
	return cmd
}

func loadItems(dir, ext string, modules []string) ([]upload.Item, error) {
	paths, err := rscfile.Resolve(dir, ext, modules)
	if err != nil {
		return nil, err
	}
	sources, err := rscfile.LoadAll(paths, ext)
	if err != nil {
		return nil, err
	}
	items := make([]upload.Item, len(sources))
	for i, src := range sources {
		items[i] = upload.Item{Name: src.Name, Content: src.Content}
	}
	return items, nil
}

func runUpload(ctx context.Context, w io.Writer, targets []target, dir string, modules []string) error {
	ext := targets[0].upload.SourceExt
	items, err := loadItems(dir, ext, modules)
	if err != nil {
		return err
	}

	inflight := upload.NewInflight()
	coords := make([]*upload.Coordinator, 0, len(targets))
	for _, t := range targets {
		c, err := t.coordinator(inflight)
		if err != nil {
			return err
		}
		coords = append(coords, c)
	}

	batches := upload.BatchAll(ctx, coords, items, targets[0].upload.Parallel)
	for _, b := range batches {
		for _, res := range b.Results {
			printResult(w, res)
		}
		if b.Canceled {
			fmt.Fprintf(w, "      %s: canceled before every script was attempted\n", b.Router)
		}
	}
	uploaded, failed := upload.Totals(batches)
	fmt.Fprintf(w, "uploaded %d, failed %d\n", uploaded, failed)
	if failed > 0 {
		return errUploadsFailed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}
