package common

import (
	"time"
)

// DefaultFetchTimeout bounds each fetch command against a remote; every
// repository entry gets this budget unless the run overrides it.
const DefaultFetchTimeout = 10 * time.Minute

// DefaultGitTimeout bounds local git commands, which touch no network.
const DefaultGitTimeout = 5 * time.Minute
