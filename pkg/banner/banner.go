package banner

import (
	"fmt"

	"chatdb/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔══██╗
██║     ███████║███████║   ██║   ██║  ██║██████╔╝
██║     ██╔══██║██╔══██║   ██║   ██║  ██║██╔══██╗
╚██████╗██║  ██║██║  ██║   ██║   ██████╔╝██████╔╝
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═════╝ ╚═════╝
`

// Print prints the startup banner with the effective configuration.
func Print(eff config.Effective, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Admin:    %s\n", eff.Addr)
	backend := eff.Config.Remote.Backend
	if backend == "" {
		backend = "memory"
	}
	fmt.Printf("Backend:  %s\n", backend)
	if eff.CachePath != "" {
		fmt.Printf("Cache:    %s\n", eff.CachePath)
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if eff.Source != "" {
		fmt.Printf("Config sources: %s\n", eff.Source)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET /healthz        - liveness")
	fmt.Println("GET /readyz         - readiness")
	fmt.Println("GET /metrics        - prometheus metrics")
	fmt.Println("GET /v1/tables      - list table schemas")
	fmt.Println("POST /v1/repair     - run an orphan-chunk sweep now")
}
