// Package guard switches the process into test mode when imported, so mains
// exercised from tests return before dialing Postgres, Redis or SMTP.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "ODYSSEY_HR_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
