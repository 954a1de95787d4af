package domain

import "time"

// RunRecord is one recorded Execute call.
type RunRecord struct {
	ID        string
	Driver    string
	Task      string
	Cycle     time.Time // zero for time-invariant drivers
	Rundir    string
	Mode      string // direct, batch or empty when nothing was launched
	DryRun    bool
	OK        bool
	ExitCode  int
	JobID     string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}
