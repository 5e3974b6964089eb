package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv disables process startup in the binaries so packages that
// import them can be tested without Postgres or Redis.
const TestModeEnv = "ODYSSEY_TEST_MODE"

var inTestMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
})

// InTestMode reports whether the binaries should skip runtime side effects.
func InTestMode() bool {
	return inTestMode()
}
