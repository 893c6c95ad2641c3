// Package banner prints the startup banner: ASCII art plus a summary of the
// effective configuration, mirroring the operator-facing startup report of
// the repository this module grew out of.
package banner

import (
	"fmt"

	"github.com/intercooperative/agoranet/pkg/config"
)

const art = `
 █████╗  ██████╗  ██████╗ ██████╗  █████╗ ███╗   ██╗███████╗████████╗
██╔══██╗██╔════╝ ██╔═══██╗██╔══██╗██╔══██╗████╗  ██║██╔════╝╚══██╔══╝
███████║██║  ███╗██║   ██║██████╔╝███████║██╔██╗ ██║█████╗     ██║
██╔══██║██║   ██║██║   ██║██╔══██╗██╔══██║██║╚██╗██║██╔══╝     ██║
██║  ██║╚██████╔╝╚██████╔╝██║  ██║██║  ██║██║ ╚████║███████╗   ██║
╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═══╝╚══════╝   ╚═╝
`

// Print prints the startup banner using the resolved effective configuration.
func Print(eff config.Effective, version, commit, buildDate string) {
	fmt.Print(art)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s (%s, built %s)\n", version, commit, buildDate)
	}
	fmt.Printf("Config source: %s\n", eff.Source)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET    /api/threads")
	fmt.Println("POST   /api/threads                    (auth)")
	fmt.Println("GET    /api/threads/{id}")
	fmt.Println("GET    /api/threads/{id}/messages")
	fmt.Println("POST   /api/threads/{id}/messages      (auth)")
	fmt.Println("DELETE /api/threads/{id}/messages/{mid} (auth)")
	fmt.Println("GET    /api/messages/{mid}/reactions")
	fmt.Println("POST   /api/messages/{mid}/reactions   (auth)")
	fmt.Println("DELETE /api/messages/{mid}/reactions/{type} (auth)")
	fmt.Println("GET    /api/threads/credential-links")
	fmt.Println("GET    /api/threads/{id}/credential-links")
	fmt.Println("POST   /api/threads/credential-link    (auth)")
	fmt.Println("GET    /health, /healthz, /readyz, /metrics")

	fmt.Println("\n== Components =================================================")
	if eff.Config != nil && eff.Config.Runtime.Enabled {
		fmt.Printf("- Runtime Event Consumer: enabled (%s, poll %s)\n", eff.Config.Runtime.APIURL, eff.Config.Runtime.PollInterval.Duration())
	} else {
		fmt.Println("- Runtime Event Consumer: disabled")
	}
	if eff.Config != nil && eff.Config.Federation.Enabled {
		fmt.Printf("- Federation Sync: enabled (node %s, listen %s, %d bootstrap peer(s))\n",
			eff.Config.Federation.NodeID, eff.Config.Federation.ListenAddr, len(eff.Config.Federation.BootstrapPeers))
	} else {
		fmt.Println("- Federation Sync: disabled")
	}
	if eff.Config != nil && eff.Config.Retention.Enabled {
		fmt.Printf("- Retention/compaction job: enabled (cron=%s)\n", eff.Config.Retention.Cron)
	} else {
		fmt.Println("- Retention/compaction job: disabled")
	}

	fmt.Println("\n== Logs =======================================================")
}
