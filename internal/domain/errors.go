package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Usage errors are reported before any side effect takes place.

var (
	// Usage errors
	ErrUnknownDriver = errors.New("unknown driver")
	ErrUnknownTask   = errors.New("unknown task")
	ErrBadPolicy     = errors.New("bad run directory conflict policy")
	ErrCycleRequired = errors.New("driver requires a cycle")
	ErrDuplicateTask = errors.New("duplicate task name in registry")

	// Config errors
	ErrConfigMissing = errors.New("config block missing")
	ErrConfigType    = errors.New("config value has wrong type")

	// Scheduler errors
	ErrUnknownScheduler = errors.New("unknown scheduler")
	ErrScriptFrozen     = errors.New("batch script already submitted")

	// History errors
	ErrRunNotFound = errors.New("run not found")
)
