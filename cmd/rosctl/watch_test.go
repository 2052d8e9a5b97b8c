package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/config"
	"github.com/danmuck/rosctl/internal/testutil/fakeros"
	"github.com/danmuck/rosctl/internal/testutil/testlog"
	"github.com/fsnotify/fsnotify"
)

func TestIsSourceChange(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "a.rsc", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "a.RSC", Op: fsnotify.Create}, true},
		{fsnotify.Event{Name: "a.rsc", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "a.rsc", Op: fsnotify.Remove}, false},
	}
	for _, tc := range cases {
		if got := isSourceChange(tc.event, ".rsc"); got != tc.want {
			t.Fatalf("isSourceChange(%v)=%t want %t", tc.event, got, tc.want)
		}
	}
}

func TestDrainAndLoadChanged(t *testing.T) {
	testlog.Start(t)
	dir := writeSources(t, map[string]string{"B.rsc": "b", "A.rsc": "a"})
	set := map[string]struct{}{
		filepath.Join(dir, "B.rsc"):    {},
		filepath.Join(dir, "A.rsc"):    {},
		filepath.Join(dir, "Gone.rsc"): {},
	}
	paths := drain(set)
	if len(set) != 0 || len(paths) != 3 || filepath.Base(paths[0]) != "A.rsc" {
		t.Fatalf("unexpected drain paths=%v left=%d", paths, len(set))
	}
	items, err := loadChanged(paths, ".rsc")
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
	if len(items) != 2 || items[0].Name != "A" || items[1].Name != "B" {
		t.Fatalf("unexpected items=%+v", items)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFlushDelay(t *testing.T) {
	testlog.Start(t)
	first := time.Now()
	cases := []struct {
		elapsed time.Duration
		want    time.Duration
	}{
		{0, watchDebounce},
		{watchMaxWait - watchDebounce, watchDebounce},
		{watchMaxWait - 200*time.Millisecond, 200 * time.Millisecond},
		{watchMaxWait, 0},
		{watchMaxWait + time.Second, 0},
	}
	for _, tc := range cases {
		if got := flushDelay(first, first.Add(tc.elapsed)); got != tc.want {
			t.Fatalf("flushDelay after %v=%v want %v", tc.elapsed, got, tc.want)
		}
	}
}

// startWatch runs the watch loop against srv until the test ends and waits
// for the directory watch to be registered.
func startWatch(t *testing.T, srv *fakeros.Server, dir string) {
	t.Helper()
	inv, err := config.Load(fastInventory(t, srv))
	if err != nil {
		t.Fatalf("load inventory: %v", err)
	}
	targets := []target{{router: inv.Routers[0], upload: inv.Upload}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	out := &syncBuffer{}
	go func() { done <- runWatch(ctx, out, targets, dir, "", "") }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("watch returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("watch did not stop on cancel")
		}
	})

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "watching") {
		if time.Now().After(deadline) {
			t.Fatalf("watch never started")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitForScript(t *testing.T, srv *fakeros.Server, name string, within time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		if got, ok := srv.Script(name); ok {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("watch never uploaded %s", name)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestWatchUploadsChangedSource(t *testing.T) {
	testlog.Start(t)
	srv := fakeros.Start(t, fakeros.Options{})
	dir := t.TempDir()
	startWatch(t, srv, dir)

	if err := os.WriteFile(filepath.Join(dir, "Live.rsc"), []byte(":log info live"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if got := waitForScript(t, srv, "Live", 10*time.Second); got != ":log info live" {
		t.Fatalf("unexpected Live source=%q", got)
	}
}

func TestWatchFlushesDuringContinuousWrites(t *testing.T) {
	testlog.Start(t)
	srv := fakeros.Start(t, fakeros.Options{})
	dir := t.TempDir()
	startWatch(t, srv, dir)

	// Writes arrive faster than the debounce; the max wait still flushes.
	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			_ = os.WriteFile(filepath.Join(dir, "Auto.rsc"), []byte(fmt.Sprintf(":log info %d", i)), 0o644)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	defer func() {
		close(stop)
		<-writerDone
	}()

	waitForScript(t, srv, "Auto", 4*watchMaxWait)
}
