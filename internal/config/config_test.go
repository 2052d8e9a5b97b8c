package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/rosctl/internal/testutil/testlog"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOMLOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "routers.toml", `
[[routers]]
name = "core"
host = " 192.168.88.1 "
username = "admin"
password = "pw"

[upload]
chunk_size = 12000
completion_attempts = 90
schedule_delay = "8s"
source_ext = "rsc"
`)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	r, err := inv.Router("core")
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	if r.Host != "192.168.88.1" || r.Port != 0 || r.Password != "pw" {
		t.Fatalf("unexpected router=%+v", r)
	}
	u := inv.Upload
	if u.ChunkSize != 12000 || u.CompletionAttempts != 90 || u.ScheduleDelay != 8*time.Second || u.SourceExt != ".rsc" {
		t.Fatalf("unexpected overlay=%+v", u)
	}
	def := DefaultUpload()
	if u.DeleteAttempts != def.DeleteAttempts || u.ListTimeout != def.ListTimeout || u.Policy != def.Policy {
		t.Fatalf("undefined keys must keep defaults: %+v", u)
	}
	if _, err := inv.Router("missing"); !errors.Is(err, ErrRouterNotFound) {
		t.Fatalf("expected router not found, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	testlog.Start(t)
	path := writeConfig(t, "routers.yaml", `
routers:
  - name: edge
    host: 10.0.0.1
    port: 8729
    tls: true
    tls_insecure_skip_verify: true
upload:
  list_timeout: 5s
`)
	inv, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(inv.Routers) != 1 || !inv.Routers[0].TLS || inv.Routers[0].Port != 8729 {
		t.Fatalf("unexpected routers=%+v", inv.Routers)
	}
	if inv.Upload.ListTimeout != 5*time.Second || inv.Upload.ChunkSize != 15000 {
		t.Fatalf("unexpected upload=%+v", inv.Upload)
	}
	cfg := inv.Routers[0].SessionConfig(inv.Upload.ListTimeout)
	if !cfg.TLS.Enabled || !cfg.TLS.InsecureSkipVerify || cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected session config=%+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"dup.toml":      "[[routers]]\nname=\"a\"\nhost=\"h\"\n[[routers]]\nname=\"a\"\nhost=\"h2\"\n",
		"nohost.toml":   "[[routers]]\nname=\"a\"\n",
		"chunk.toml":    "[upload]\nchunk_size = 20000\n",
		"duration.toml": "[upload]\ndelete_interval = \"soon\"\n",
		"tls.yaml":      "routers:\n  - name: a\n    host: h\n    tls_ca_file: ca.pem\n    tls_insecure_skip_verify: true\n",
		"syntax.toml":   "[[routers]\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, name, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestTemplatesLoad(t *testing.T) {
	testlog.Start(t)
	for _, format := range []string{"toml", "yaml"} {
		path := filepath.Join(t.TempDir(), "inventory."+format)
		if err := WriteTemplate(path, format, false); err != nil {
			t.Fatalf("write %s template: %v", format, err)
		}
		if err := WriteTemplate(path, format, false); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Fatalf("expected overwrite guard, got %v", err)
		}
		inv, err := Load(path)
		if err != nil {
			t.Fatalf("load %s template: %v", format, err)
		}
		if len(inv.Routers) == 0 || inv.Routers[0].Name != "core" {
			t.Fatalf("unexpected %s template routers=%+v", format, inv.Routers)
		}
	}
	if _, err := Template("ini"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}

func TestCoordinatorConfig(t *testing.T) {
	testlog.Start(t)
	u := DefaultUpload()
	u.ScheduleDelay = 7 * time.Second
	cfg := u.CoordinatorConfig("core", nil)
	if cfg.Router != "core" || cfg.ChunkSize != 15000 || cfg.Clock.DelaySeconds != 7 {
		t.Fatalf("unexpected coordinator config=%+v", cfg)
	}
	if cfg.CompletionPolicy.MaxAttempts != 60 || cfg.CompletionPolicy.Interval != time.Second {
		t.Fatalf("unexpected completion policy=%+v", cfg.CompletionPolicy)
	}
	if p := u.DeletePolicy(); p.MaxAttempts != 10 {
		t.Fatalf("unexpected delete policy=%+v", p)
	}
}
