package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a starter inventory in format toml or yaml.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown inventory format: %s", format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `[[routers]]
name = "core"
host = "192.168.88.1"
port = 8728
username = "admin"
password = ""

[[routers]]
name = "edge-ssl"
host = "10.0.0.1"
port = 8729
username = "admin"
password = ""
tls = true
tls_ca_file = "ca.pem"

[upload]
chunk_size = 15000
policy = "read,write,policy,test"
upload_timeout = "60s"
list_timeout = "3s"
delete_attempts = 10
delete_interval = "1s"
completion_attempts = 60
completion_interval = "1s"
schedule_delay = "5s"
source_dir = "."
source_ext = ".rsc"
parallel = 4
`

const yamlTemplate = `routers:
  - name: core
    host: 192.168.88.1
    port: 8728
    username: admin
    password: ""
upload:
  chunk_size: 15000
  policy: read,write,policy,test
  upload_timeout: 60s
  list_timeout: 3s
  delete_attempts: 10
  delete_interval: 1s
  completion_attempts: 60
  completion_interval: 1s
  schedule_delay: 5s
  source_dir: .
  source_ext: .rsc
  parallel: 4
`
