package errors

type ExitCode int

// Exit codes are part of the sync contract: wrapper scripts and CI jobs
// branch on them, so the values are stable.
const (
	// Every repository entry synced or was already captured.
	OkExitCode ExitCode = 0

	// At least one repository entry failed; the rest were still processed.
	SyncFailureExitCode ExitCode = 1

	// The run never started: unreadable or unparsable config, or the git
	// tool is not installed. No entry was processed.
	SetupFailureExitCode ExitCode = 2
)
