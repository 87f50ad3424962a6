//go:build linux || darwin || freebsd

package optimizer

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setAddressSpaceLimit caps the process address space via RLIMIT_AS.
func setAddressSpaceLimit(limitBytes uint64) error {
	rlim := &unix.Rlimit{Cur: limitBytes, Max: limitBytes}
	if err := unix.Setrlimit(unix.RLIMIT_AS, rlim); err != nil {
		return fmt.Errorf("setrlimit RLIMIT_AS: %w", err)
	}
	return nil
}
