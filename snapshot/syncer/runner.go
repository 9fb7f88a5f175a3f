package syncer

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/refpin/common"
	"github.com/twitter/refpin/common/stats"
	"github.com/twitter/refpin/config"
	"github.com/twitter/refpin/snapshot/git/repo"
)

// RunResult aggregates the outcomes of one sync run over a whole config.
type RunResult struct {
	RunID    string
	Outcomes []Outcome
	// Succeeded includes skipped entries.
	Succeeded int
	Skipped   int
	Failed    int
}

// Ok reports whether every entry either synced or was already captured.
func (r *RunResult) Ok() bool {
	return r.Failed == 0
}

// Runner runs the syncer over every entry of a config in order, isolating
// entry failures from each other.
type Runner struct {
	syncer      *Syncer
	stat        stats.StatsReceiver
	dirsMonitor *stats.DirsMonitor
}

func MakeRunner(root string, timeout time.Duration, stat stats.StatsReceiver) *Runner {
	return &Runner{
		syncer: MakeSyncer(root, timeout, stat),
		stat:   stat,
		dirsMonitor: stats.NewDirsMonitor([]stats.MonitorDir{
			{Directory: root, StatSuffix: "root"},
		}),
	}
}

// Run processes the entries sequentially. A single entry's failure never
// stops the rest, but a missing git tool fails the whole run before any
// entry is touched.
func (r *Runner) Run(specs []config.RepoSpec) (*RunResult, error) {
	if err := repo.CheckInstalled(); err != nil {
		return nil, err
	}

	defer r.stat.Latency(stats.RunnerRunLatency_ms).Time().Stop()
	r.stat.Gauge(stats.RunnerEntriesGauge).Update(int64(len(specs)))
	r.dirsMonitor.GetStartSizes()

	result := &RunResult{RunID: common.GenUUID()}
	log.Infof("Starting sync run %s over %d entries", result.RunID, len(specs))

	for _, spec := range specs {
		o := r.syncer.Sync(spec)
		result.Outcomes = append(result.Outcomes, o)
		if o.Status.Ok() {
			result.Succeeded++
			if o.Status == SKIPPED {
				result.Skipped++
			}
		} else {
			result.Failed++
			log.Errorf("Failed %s@%s: %v", o.Spec.Label(), o.Spec.GitRef, o.Err)
		}
		for _, w := range o.Warnings {
			log.Warnf("%s: %s", o.Spec.Label(), w)
		}
	}

	r.dirsMonitor.GetEndSizes()
	r.dirsMonitor.RecordSizeStats(r.stat)

	log.Infof("Done: %d succeeded, %d failed", result.Succeeded, result.Failed)
	for _, o := range result.Outcomes {
		if o.Status == FAILED {
			log.Debugf("Failure detail: %s@%s -> %v", o.Spec.Name, o.Spec.GitRef, o.Err)
		}
	}
	return result, nil
}
