// Package syncer drives repository entries through fetch, resolve, dedup
// and export, turning a config of (url, ref) pairs into an append-only
// archive of commit snapshots.
package syncer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/refpin/common"
	"github.com/twitter/refpin/common/stats"
	"github.com/twitter/refpin/config"
	"github.com/twitter/refpin/os/temp"
	"github.com/twitter/refpin/snapshot/git/repo"
	"github.com/twitter/refpin/snapshot/store"
)

// Syncer syncs single repository entries into an archive rooted at root.
// It is not safe for concurrent use, entries are processed one at a time.
type Syncer struct {
	root    string
	timeout time.Duration
	stat    stats.StatsReceiver
}

// MakeSyncer returns a Syncer writing under root, bounding each fetch
// command by timeout (non-positive means common.DefaultFetchTimeout).
func MakeSyncer(root string, timeout time.Duration, stat stats.StatsReceiver) *Syncer {
	if timeout <= 0 {
		timeout = common.DefaultFetchTimeout
	}
	return &Syncer{root: root, timeout: timeout, stat: stat.Scope("syncer")}
}

// Sync takes spec through validation, fetch, commit resolution, dedup and
// export. It always returns a well formed Outcome, and on any non-success
// path the archive is left without a partial commit dir.
func (s *Syncer) Sync(spec config.RepoSpec) Outcome {
	defer s.stat.Latency(stats.SyncerSyncLatency_ms).Time().Stop()
	o := s.sync(spec)
	switch o.Status {
	case SUCCEEDED:
		s.stat.Counter(stats.SyncerOkCounter).Inc(1)
	case SKIPPED:
		s.stat.Counter(stats.SyncerSkippedCounter).Inc(1)
	case FAILED:
		s.stat.Counter(stats.SyncerErrCounter).Inc(1)
	}
	return o
}

func (s *Syncer) sync(spec config.RepoSpec) Outcome {
	if err := spec.Validate(); err != nil {
		return FailedOutcome(spec, err)
	}

	safeName := store.SanitizePathComponent(spec.Name)
	base := filepath.Join(s.root, store.SanitizePathComponent(spec.StorePath), safeName)

	// Scan markers before creating the scratch dir so the scan never sees
	// our own partial state.
	st, err := store.MakeStore(base)
	if err != nil {
		return FailedOutcome(spec, err)
	}

	scratch, err := temp.NewTempDir(base, ".tmp-"+safeName+"-")
	if err != nil {
		return FailedOutcome(spec, err)
	}
	o := s.syncScratch(spec, st, scratch)
	if err := os.RemoveAll(scratch.Dir); err != nil {
		log.Errorf("Could not remove scratch dir %s: %v", scratch.Dir, err)
		s.stat.Counter(stats.SyncerCleanupErrCounter).Inc(1)
		o.Warnings = append(o.Warnings, fmt.Sprintf("could not remove scratch dir %s: %v", scratch.Dir, err))
	}
	return o
}

// syncScratch does the git work in an already-created scratch dir, which the
// caller removes whatever happens here.
func (s *Syncer) syncScratch(spec config.RepoSpec, st *store.Store, scratch *temp.TempDir) Outcome {
	log.Infof("Fetching %s ref %s to resolve commit...", spec.Name, spec.GitRef)
	sha, r, err := s.fetchAndResolve(spec, scratch)
	if err != nil {
		return FailedOutcome(spec, err)
	}

	if st.Recorded(sha) {
		log.Infof("Skip %s (commit %s already snapped)", spec.Name, sha[:12])
		return SkippedOutcome(spec, sha)
	}
	if st.Exists(sha) {
		log.Infof("Skip %s (dir for commit %s already exists)", spec.Name, sha[:12])
		return SkippedOutcome(spec, sha)
	}

	log.Infof("Snapshot %s@%s -> %s", spec.Name, sha[:12], st.CommitDir(sha))
	files, err := r.LsFiles()
	if err != nil {
		return FailedOutcome(spec, err)
	}
	exportLatency := s.stat.Latency(stats.SyncerExportLatency_ms).Time()
	dest, err := st.Export(r.Dir(), files, sha)
	exportLatency.Stop()
	if err != nil {
		return FailedOutcome(spec, err)
	}

	o := SucceededOutcome(spec, sha, dest)
	if err := st.WriteMarker(dest, sha); err != nil {
		log.Errorf("Could not write marker in %s: %v", dest, err)
		s.stat.Counter(stats.SyncerMarkerErrCounter).Inc(1)
		o.Warnings = append(o.Warnings, fmt.Sprintf("could not write marker in %s: %v", dest, err))
	}
	return o
}

// fetchAndResolve inits a repo in the scratch dir, fetches the entry's ref
// and resolves it to the commit hash we'd snapshot.
func (s *Syncer) fetchAndResolve(spec config.RepoSpec, scratch *temp.TempDir) (string, *repo.Repository, error) {
	defer s.stat.Latency(stats.SyncerFetchLatency_ms).Time().Stop()
	r, err := repo.InitRepo(scratch.Dir)
	if err != nil {
		return "", nil, err
	}
	if err := r.FetchRef(spec.GitURL, spec.GitRef, s.timeout); err != nil {
		return "", nil, err
	}
	if err := r.CheckoutFetchHead(); err != nil {
		return "", nil, err
	}
	sha, err := r.HeadSHA()
	if err != nil {
		return "", nil, err
	}
	return sha, r, nil
}
