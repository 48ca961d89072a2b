// Package featureflags reads runtime toggles from the environment. Flags
// default to off; set FLAG_<NAME>=true to enable one.
package featureflags

import (
	"os"
	"strings"
)

const (
	// DisableSweepWorker stops the background overdue sweep; the manual
	// trigger endpoint stays available.
	DisableSweepWorker = "DISABLE_SWEEP_WORKER"
)

// Enabled reports whether the named flag is set. The env var is
// FLAG_<NAME> with a truthy value (1, true, yes, on; case-insensitive).
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
