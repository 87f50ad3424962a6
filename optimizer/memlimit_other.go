//go:build !linux && !darwin && !freebsd

package optimizer

import "errors"

// setAddressSpaceLimit is unavailable on platforms without RLIMIT_AS.
func setAddressSpaceLimit(limitBytes uint64) error {
	return errors.New("address-space limiting unsupported on this platform")
}
