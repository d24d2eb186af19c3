// ABOUTME: Default configuration file written by `engine-bridge init`
// ABOUTME: Kept as literal YAML so comments survive

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Template is the annotated default configuration.
const Template = `# engine-bridge configuration

server:
  http_addr: "127.0.0.1:8000"
  # Origins allowed to call the API from a browser ("*" for any)
  cors_origins: []

engine:
  default_url: "ws://localhost:55557"
  connect_timeout: "10s"
  command_timeout: "30s"
  handshake:
    enabled: false
    protocol: "1"

ollama:
  base_url: "http://localhost:11434"
  default_model: "cogito:8b"
  request_timeout: "120s"
  probe_timeout: "2s"
  probe_ttl: "60s"
  # 0 disables pacing
  requests_per_second: 0

history:
  capacity: 500
  status_tail: 20
  # Set to persist every entry, e.g. "~/.local/share/engine-bridge/history.db"
  database_path: ""
  persist_queue: 500

catalog:
  # Directory of markdown tool docs; built-in catalog when empty
  docs_dir: ""

auth:
  # Bearer-token auth on /api/* when set
  jwt_secret: "${ENGINE_BRIDGE_JWT_SECRET}"

logging:
  level: "info"
  format: "text"
`

// WriteTemplate writes Template to path, creating parent directories.
// It refuses to overwrite an existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Template), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
