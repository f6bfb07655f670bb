package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Example is the commented file written by `covrun config init`.
const Example = `# covrun configuration
# Every key can be overridden with COVRUN_<SECTION>_<KEY>,
# e.g. COVRUN_RETRY_MAX_ATTEMPTS=5.

retry:
  max_attempts: 3
  strategy: linear        # constant | linear | exponential
  backoff: 250ms
  max_backoff: 5s         # exponential only
  multiplier: 2.0         # exponential only

dotnet_root: ""           # empty = DOTNET_ROOT, dotnet on PATH, then platform defaults

instrumenter:
  command: ""             # external rewriter; empty = passthrough (dry run)
  args: []
  timeout: 2m

backup:
  enabled: true
  dir: ""                 # empty = <module dir>/.covrun-backup

logging:
  level: info             # debug | info | warn | error
  format: text            # text | json
  dir: ""                 # empty = stderr only

metrics:
  textfile: ""            # write Prometheus metrics here after each run

history:
  driver: ""              # "" (disabled) | sqlite3 | postgres
  dsn: ""
  retention: ""           # drop runs older than this, e.g. 720h; empty = keep all
  prune_interval: 1h

server:
  addr: "127.0.0.1:8090"  # other interfaces require api_key_hashes
  rate_limit: 5           # requests per second per client, 0 = unlimited
  burst: 10
  api_key_hashes: []      # bcrypt hashes from 'covrun config apikey'; empty = no auth
  tls_cert: ""            # serve HTTPS when tls_cert and tls_key are set
  tls_key: ""
  client_ca: ""           # require client certificates signed by this CA

tracing:
  enabled: false
  endpoint: "localhost:4318"
`

// WriteExample writes Example to path, creating its directory. An existing
// file is left alone unless force is set.
func WriteExample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(Example), 0644)
}
