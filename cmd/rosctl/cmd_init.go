package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/rosctl/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter router inventory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultInventory
			if len(args) == 1 {
				path = args[0]
			}
			format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
			if err := config.WriteTemplate(path, format, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
