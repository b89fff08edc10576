// Package guard flips the application into test mode when imported.
// Test packages that touch the real filesystem blank-import it so an
// accidental main() invocation exits immediately.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SAMPLYZE_TEST_MODE") == "" {
			_ = os.Setenv("SAMPLYZE_TEST_MODE", "1")
		}
	})
}
