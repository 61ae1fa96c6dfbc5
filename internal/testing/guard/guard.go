// Package guard switches binaries into test mode when imported, so tests
// can call main without reaching Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

// EnvVar is the variable app.InTestMode reads.
const EnvVar = "LEDGERLINE_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvVar) == "" {
			_ = os.Setenv(EnvVar, "1")
		}
	})
}
