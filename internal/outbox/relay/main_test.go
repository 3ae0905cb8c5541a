//go:build !integration

package relay

import (
	"testing"

	"go.uber.org/goleak"
)

// Leak checks cover the unit build only; container suites keep background
// goroutines alive.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
