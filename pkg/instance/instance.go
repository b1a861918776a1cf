package instance

import (
	"os"
	"strings"
)

const defaultID = "worker-0"

// idEnvKeys are checked in order; DYNO is set by the Heroku runtime.
var idEnvKeys = []string{"CORNMAN_WORKER_ID", "DYNO", "HOSTNAME"}

// GetID identifies the running process in logs and lock ownership.
func GetID() string {
	return lookup(os.Getenv)
}

func lookup(getenv func(string) string) string {
	for _, key := range idEnvKeys {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return defaultID
}
