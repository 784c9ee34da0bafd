package lock

import (
	"os"

	"github.com/tagrade/tagrade/internal/errors"
)

// CheckLiveness is a best-effort liveness check. It returns an
// *errors.StaleArtifactError when the lock was created on this host by a
// process that no longer exists, and nil in every other case, including
// locks from other hosts, which cannot be checked.
func (d Descriptor) CheckLiveness() error {
	host, err := os.Hostname()
	if err != nil || host != d.Host || d.PID <= 0 {
		return nil
	}
	if processAlive(d.PID) {
		return nil
	}
	return errors.NewStaleArtifactError(d.Slot, d.Host, d.PID)
}
