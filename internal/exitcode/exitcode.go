// Package exitcode defines exit codes for the CLI.
package exitcode

const (
	// Success indicates successful completion.
	Success = 0

	// UserError indicates a user error (bad args, not found, ambiguous).
	UserError = 1

	// DeviceError indicates the device could not be registered or the
	// local state could not be opened.
	DeviceError = 2

	// BackendError indicates a backend/API/network error.
	BackendError = 3

	// StaleData indicates the command succeeded from the local cache
	// because the service was unreachable.
	StaleData = 4
)
