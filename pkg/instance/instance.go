package instance

import (
	"os"

	"github.com/healthplusinnovation/storefront/pkg/env"
)

// GetID identifies the running process in logs. HPI_INSTANCE_ID wins, then the platform's
// dyno name, then the hostname.
func GetID() string {
	if id := env.First("HPI_INSTANCE_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
