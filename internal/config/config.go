package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	ErrRouterNotFound = errors.New("config: router not found")
	ErrDuplicateName  = errors.New("config: duplicate router name")
)

// Router is one inventory entry.
type Router struct {
	Name                  string
	Host                  string
	Port                  int
	Username              string
	Password              string
	TLS                   bool
	TLSCAFile             string
	TLSInsecureSkipVerify bool
}

// Upload holds upload tuning shared by every router.
type Upload struct {
	ChunkSize          int
	Policy             string
	UploadTimeout      time.Duration
	ListTimeout        time.Duration
	DeleteAttempts     int
	DeleteInterval     time.Duration
	CompletionAttempts int
	CompletionInterval time.Duration
	ScheduleDelay      time.Duration
	SourceDir          string
	SourceExt          string
	Parallel           int
}

type Inventory struct {
	Routers []Router
	Upload  Upload
}

func DefaultUpload() Upload {
	return Upload{
		ChunkSize:          15000,
		Policy:             "read,write,policy,test",
		UploadTimeout:      60 * time.Second,
		ListTimeout:        3 * time.Second,
		DeleteAttempts:     10,
		DeleteInterval:     time.Second,
		CompletionAttempts: 60,
		CompletionInterval: time.Second,
		ScheduleDelay:      5 * time.Second,
		SourceDir:          ".",
		SourceExt:          ".rsc",
		Parallel:           4,
	}
}

type fileRouter struct {
	Name                  string `toml:"name" yaml:"name"`
	Host                  string `toml:"host" yaml:"host"`
	Port                  int    `toml:"port" yaml:"port"`
	Username              string `toml:"username" yaml:"username"`
	Password              string `toml:"password" yaml:"password"`
	TLS                   bool   `toml:"tls" yaml:"tls"`
	TLSCAFile             string `toml:"tls_ca_file" yaml:"tls_ca_file"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify" yaml:"tls_insecure_skip_verify"`
}

type fileUpload struct {
	ChunkSize          int    `toml:"chunk_size" yaml:"chunk_size"`
	Policy             string `toml:"policy" yaml:"policy"`
	UploadTimeout      string `toml:"upload_timeout" yaml:"upload_timeout"`
	ListTimeout        string `toml:"list_timeout" yaml:"list_timeout"`
	DeleteAttempts     int    `toml:"delete_attempts" yaml:"delete_attempts"`
	DeleteInterval     string `toml:"delete_interval" yaml:"delete_interval"`
	CompletionAttempts int    `toml:"completion_attempts" yaml:"completion_attempts"`
	CompletionInterval string `toml:"completion_interval" yaml:"completion_interval"`
	ScheduleDelay      string `toml:"schedule_delay" yaml:"schedule_delay"`
	SourceDir          string `toml:"source_dir" yaml:"source_dir"`
	SourceExt          string `toml:"source_ext" yaml:"source_ext"`
	Parallel           int    `toml:"parallel" yaml:"parallel"`
}

type fileInventory struct {
	Routers []fileRouter `toml:"routers" yaml:"routers"`
	Upload  fileUpload   `toml:"upload" yaml:"upload"`
}

// Load reads a TOML inventory, or YAML when the file ends in .yaml/.yml.
func Load(path string) (Inventory, error) {
	var (
		raw     fileInventory
		defined func(keys ...string) bool
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return Inventory{}, fmt.Errorf("config load failed (%s): %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Inventory{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return Inventory{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		defined = func(keys ...string) bool { return yamlDefined(tree, keys) }
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Inventory{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		defined = meta.IsDefined
	}

	inv, err := build(raw, defined)
	if err != nil {
		return Inventory{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(inv); err != nil {
		return Inventory{}, fmt.Errorf("config %s: %w", path, err)
	}
	return inv, nil
}

func yamlDefined(tree map[string]any, keys []string) bool {
	var node any = tree
	for _, k := range keys {
		m, ok := node.(map[string]any)
		if !ok {
			return false
		}
		node, ok = m[k]
		if !ok {
			return false
		}
	}
	return true
}

func build(raw fileInventory, defined func(keys ...string) bool) (Inventory, error) {
	inv := Inventory{Upload: DefaultUpload()}
	for _, r := range raw.Routers {
		inv.Routers = append(inv.Routers, Router{
			Name:                  strings.TrimSpace(r.Name),
			Host:                  strings.TrimSpace(r.Host),
			Port:                  r.Port,
			Username:              strings.TrimSpace(r.Username),
			Password:              r.Password,
			TLS:                   r.TLS,
			TLSCAFile:             strings.TrimSpace(r.TLSCAFile),
			TLSInsecureSkipVerify: r.TLSInsecureSkipVerify,
		})
	}

	u := &inv.Upload
	if defined("upload", "chunk_size") {
		u.ChunkSize = raw.Upload.ChunkSize
	}
	if defined("upload", "policy") {
		if p := strings.TrimSpace(raw.Upload.Policy); p != "" {
			u.Policy = p
		}
	}
	if defined("upload", "delete_attempts") {
		u.DeleteAttempts = raw.Upload.DeleteAttempts
	}
	if defined("upload", "completion_attempts") {
		u.CompletionAttempts = raw.Upload.CompletionAttempts
	}
	if defined("upload", "source_dir") {
		u.SourceDir = strings.TrimSpace(raw.Upload.SourceDir)
	}
	if defined("upload", "source_ext") {
		ext := strings.TrimSpace(raw.Upload.SourceExt)
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		u.SourceExt = ext
	}
	if defined("upload", "parallel") {
		u.Parallel = raw.Upload.Parallel
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"upload_timeout", raw.Upload.UploadTimeout, &u.UploadTimeout},
		{"list_timeout", raw.Upload.ListTimeout, &u.ListTimeout},
		{"delete_interval", raw.Upload.DeleteInterval, &u.DeleteInterval},
		{"completion_interval", raw.Upload.CompletionInterval, &u.CompletionInterval},
		{"schedule_delay", raw.Upload.ScheduleDelay, &u.ScheduleDelay},
	}
	for _, d := range durations {
		if !defined("upload", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Inventory{}, fmt.Errorf("parse upload.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return inv, nil
}

func Validate(inv Inventory) error {
	seen := make(map[string]struct{}, len(inv.Routers))
	for i, r := range inv.Routers {
		if err := ValidateRouter(r); err != nil {
			return fmt.Errorf("routers[%d] invalid: %w", i, err)
		}
		if _, ok := seen[r.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateName, r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	u := inv.Upload
	if u.ChunkSize <= 0 || u.ChunkSize > 16000 {
		return fmt.Errorf("upload.chunk_size must be in 1..16000, got %d", u.ChunkSize)
	}
	if u.DeleteAttempts <= 0 || u.CompletionAttempts <= 0 {
		return fmt.Errorf("upload attempts must be positive")
	}
	if u.UploadTimeout <= 0 || u.ListTimeout <= 0 {
		return fmt.Errorf("upload timeouts must be positive")
	}
	if u.DeleteInterval < 0 || u.CompletionInterval < 0 || u.ScheduleDelay < time.Second {
		return fmt.Errorf("upload intervals must be non-negative and schedule_delay at least 1s")
	}
	return nil
}

func ValidateRouter(r Router) error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("port out of range: %d", r.Port)
	}
	if r.TLSCAFile != "" && r.TLSInsecureSkipVerify {
		return fmt.Errorf("tls_ca_file and tls_insecure_skip_verify are exclusive")
	}
	return nil
}

// Router returns the entry named name.
func (inv Inventory) Router(name string) (Router, error) {
	for _, r := range inv.Routers {
		if r.Name == name {
			return r, nil
		}
	}
	return Router{}, fmt.Errorf("%w: %s", ErrRouterNotFound, name)
}
