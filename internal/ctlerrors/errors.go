// Package ctlerrors defines the typed error taxonomy shared across the
// session control plane (spec §7). Subsystems wrap these sentinels with
// fmt.Errorf("...: %w", err) so callers can still errors.Is against them.
package ctlerrors

import "errors"

var (
	// ErrAlreadyExists is returned when a session name is already registered.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrNotFound is returned when a session name is unknown.
	ErrNotFound = errors.New("session not found")

	// ErrSpawnFailed is returned when the OS-level child process failed to start.
	ErrSpawnFailed = errors.New("spawn failed")

	// ErrAnalysisError marks malformed analyzer input.
	ErrAnalysisError = errors.New("analysis error")

	// ErrDispatchError marks a failed continuation injection or task assignment.
	ErrDispatchError = errors.New("dispatch error")

	// ErrPersistenceError marks a file I/O failure in a persistence layer.
	ErrPersistenceError = errors.New("persistence error")

	// ErrTimeoutExceeded marks a per-probe timeout in the Activity Monitor.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
)
