package app

import (
	"fmt"
	"os"

	"github.com/intercooperative/agoranet/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services.
func validateConfig(eff config.Effective) error {
	if p := eff.DBPath; p == "" {
		return fmt.Errorf("database path is empty: set --db flag, DATABASE_URL env, or storage.data_dir in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if eff.Config.Federation.Enabled && eff.Config.Federation.NodeID == "" {
		return fmt.Errorf("federation enabled but NODE_ID is not set")
	}
	if eff.Config.Runtime.Enabled && eff.Config.Runtime.APIURL == "" {
		return fmt.Errorf("runtime client enabled but RUNTIME_API_URL is not set")
	}

	return nil
}
