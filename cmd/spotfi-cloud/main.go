// Command spotfi-cloud is the control-plane binary: Edge Fabric's MQTT
// broker connection, the Quota & Session Engine's notification listener and
// background workers, and the captive-portal HTTP surface, all wired
// against one Relational Store.
package main

import (
	"flag"
	"log"

	"github.com/spotfi/spotfi-cloud/internal/config"
	"github.com/spotfi/spotfi-cloud/internal/server"
)

func main() {
	healthCheck := flag.Bool("healthcheck", false, "perform an HTTP health check against the running server and exit")
	flag.Parse()

	if *healthCheck {
		performHealthCheck()
		return
	}

	if err := run(); err != nil {
		log.Fatalf("spotfi-cloud: %v", err)
	}
}

// performHealthCheck is the entry point `spotfi-cloud --healthcheck` takes;
// it is what a Docker HEALTHCHECK directive execs inside the container.
func performHealthCheck() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("spotfi-cloud: loading config for health check: %v", err)
	}
	server.PerformHealthCheck(cfg.HTTPAddr)
}
