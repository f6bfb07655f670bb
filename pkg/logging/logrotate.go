package logging

import (
	"fmt"
	"path/filepath"
)

// GenerateLogrotateConfig renders a logrotate stanza for the *.log files
// covrun writes under dir.
func GenerateLogrotateConfig(dir string) string {
	return fmt.Sprintf(`# Logrotate configuration for covrun
# Install: sudo cp this file to /etc/logrotate.d/covrun

%s {
    weekly
    rotate 8
    compress
    delaycompress
    missingok
    notifempty
    copytruncate
}
`, filepath.Join(dir, "*.log"))
}
