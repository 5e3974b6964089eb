// Package guard is imported for side effects by tests. It switches the
// process to test mode and points configuration at the in-process backends
// so nothing reaches for Postgres or Redis.
package guard

import "os"

var defaults = map[string]string{
	"ODYSSEY_TEST_MODE": "1",
	"STORAGE_DRIVER":    "memory",
	"SEQUENCE_BACKEND":  "memory",
	"POSTING_MODE":      "inline",
}

func init() {
	for key, value := range defaults {
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}
