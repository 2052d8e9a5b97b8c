package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/rosctl/internal/auth"
	"github.com/danmuck/rosctl/internal/observability"
	"github.com/danmuck/rosctl/internal/rscfile"
	"github.com/danmuck/rosctl/internal/upload"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	watchDebounce = 500 * time.Millisecond
	// watchMaxWait bounds how long a stream of writes can hold back a flush.
	watchMaxWait = 2 * time.Second
)

func newWatchCmd(opts *globalOptions) *cobra.Command {
	var (
		dir         string
		metricsAddr string
		statusToken string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-upload scripts whenever their source files change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			targets, settings, err := opts.resolve(false)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dir") && settings.SourceDir != "" {
				dir = settings.SourceDir
			}
			return runWatch(cmd.Context(), cmd.OutOrStdout(), targets, dir, metricsAddr, statusToken)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "directory holding script sources")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics, /health and /status on this address")
	cmd.Flags().StringVar(&statusToken, "status-token", os.Getenv("ROSCTL_STATUS_TOKEN"), "bearer token required for /metrics and /status (env ROSCTL_STATUS_TOKEN)")
	return cmd
}

func runWatch(ctx context.Context, w io.Writer, targets []target, dir, metricsAddr, statusToken string) error {
	ext := targets[0].upload.SourceExt
	inflight := upload.NewInflight()
	coords := make([]*upload.Coordinator, 0, len(targets))
	for _, t := range targets {
		c, err := t.coordinator(inflight)
		if err != nil {
			return err
		}
		coords = append(coords, c)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	if metricsAddr != "" {
		var validator auth.Validator
		if statusToken != "" {
			validator = auth.StaticToken{Token: statusToken}
		}
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           observability.NewStatusRouter(func() any { return inflight.List() }, validator),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", metricsAddr).Msg("status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info().Str("addr", metricsAddr).Msg("status server listening")
	}

	fmt.Fprintf(w, "watching %s for *%s changes\n", dir, ext)
	changed := make(map[string]struct{})
	var firstChange time.Time
	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSourceChange(event, ext) {
				continue
			}
			now := time.Now()
			if len(changed) == 0 {
				firstChange = now
			}
			changed[filepath.Clean(event.Name)] = struct{}{}
			timer.Reset(flushDelay(firstChange, now))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			paths := drain(changed)
			items, err := loadChanged(paths, ext)
			if err != nil {
				log.Warn().Err(err).Msg("load changed sources")
			}
			if len(items) == 0 {
				continue
			}
			for _, b := range upload.BatchAll(ctx, coords, items, targets[0].upload.Parallel) {
				for _, res := range b.Results {
					printResult(w, res)
				}
			}
		}
	}
}

// flushDelay is the debounce delay, cut short so that the first pending change
// is flushed no later than watchMaxWait after it arrived.
func flushDelay(first, now time.Time) time.Duration {
	left := watchMaxWait - now.Sub(first)
	if left < 0 {
		return 0
	}
	return min(watchDebounce, left)
}

func isSourceChange(event fsnotify.Event, ext string) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ext) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

func drain(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
		delete(set, p)
	}
	sort.Strings(out)
	return out
}

// loadChanged loads every readable path. Files renamed away in the meantime
// come back as joined errors alongside the items that did load.
func loadChanged(paths []string, ext string) ([]upload.Item, error) {
	var (
		items []upload.Item
		errs  []error
	)
	for _, p := range paths {
		src, err := rscfile.Load(p, ext)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, upload.Item{Name: src.Name, Content: src.Content})
	}
	return items, errors.Join(errs...)
}
