//go:build !linux

package platform

// RaiseNoFileLimit is a no-op on platforms without RLIMIT_NOFILE
// semantics (or where raising it isn't meaningful, e.g. inside a
// constrained container runtime). It reports the requested value as
// already satisfied.
func RaiseNoFileLimit(want uint64) (uint64, error) {
	return want, nil
}
