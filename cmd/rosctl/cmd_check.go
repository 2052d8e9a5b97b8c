package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var errConnectionTest = errors.New("connection test failed")

func newTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Connect and log in to every selected router",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, _, err := opts.resolve(false)
			if err != nil {
				return err
			}
			return runConnectionTest(cmd.Context(), cmd.OutOrStdout(), targets)
		},
	}
}

func runConnectionTest(ctx context.Context, w io.Writer, targets []target) error {
	failed := 0
	for _, t := range targets {
		if err := ping(ctx, t); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %-10s %s: %v\n", t.router.Name, t.router.Endpoint().Address(), err)
			continue
		}
		fmt.Fprintf(w, "ok    %-10s %s\n", t.router.Name, t.router.Endpoint().Address())
	}
	if failed > 0 {
		return errConnectionTest
	}
	return nil
}

func ping(ctx context.Context, t target) error {
	client, err := t.client(t.upload.ListTimeout)
	if err != nil {
		return err
	}
	conn, err := client.Dial(ctx)
	if err != nil {
		return err
	}
	return conn.Close()
}
