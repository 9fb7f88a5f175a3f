package syncer

import (
	"fmt"

	"github.com/twitter/refpin/config"
)

type Status int

const (
	// An unambiguous 0-value.
	UNKNOWN Status = iota
	// The entry's commit was fetched, exported and marked.
	SUCCEEDED
	// The resolved commit was already captured, the archive is untouched.
	SKIPPED
	// The entry could not be synced. The rest of the run is unaffected.
	FAILED
)

// Ok reports whether the entry counts toward the run's succeeded total.
// An already-captured commit is a success, not an error.
func (s Status) Ok() bool {
	return s == SUCCEEDED || s == SKIPPED
}

func (s Status) String() string {
	switch s {
	case UNKNOWN:
		return "UNKNOWN"
	case SUCCEEDED:
		return "SUCCEEDED"
	case SKIPPED:
		return "SKIPPED"
	case FAILED:
		return "FAILED"
	default:
		panic(fmt.Sprintf("Unexpected Status %v", int(s)))
	}
}

// Outcome reports how one repository entry fared.
type Outcome struct {
	Spec   config.RepoSpec
	Status Status
	// Resolved commit hash. Only valid if Status == SUCCEEDED or SKIPPED
	SHA string
	// Archive dir of the new snapshot. Only valid if Status == SUCCEEDED
	Dir string
	// Only valid if Status == FAILED
	Err error
	// Problems that did not change the status (marker write, scratch cleanup)
	Warnings []string
}

func SucceededOutcome(spec config.RepoSpec, sha string, dir string) (o Outcome) {
	o.Spec = spec
	o.Status = SUCCEEDED
	o.SHA = sha
	o.Dir = dir
	return o
}

func SkippedOutcome(spec config.RepoSpec, sha string) (o Outcome) {
	o.Spec = spec
	o.Status = SKIPPED
	o.SHA = sha
	return o
}

func FailedOutcome(spec config.RepoSpec, err error) (o Outcome) {
	o.Spec = spec
	o.Status = FAILED
	o.Err = err
	return o
}
