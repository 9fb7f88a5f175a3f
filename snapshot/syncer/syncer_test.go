package syncer

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/twitter/refpin/common/stats"
	"github.com/twitter/refpin/config"
	"github.com/twitter/refpin/os/temp"
	"github.com/twitter/refpin/snapshot/git/repo"
	"github.com/twitter/refpin/snapshot/store"
)

var fixture *syncerFixture

type syncerFixture struct {
	tmp     *temp.TempDir
	remote  *repo.Repository
	headSHA string
}

// demoSpec is a valid entry pointing at the fixture remote.
func demoSpec() config.RepoSpec {
	return config.RepoSpec{
		Name:        "demo",
		GitURL:      fixture.remote.Dir(),
		StorePath:   "python",
		GitRef:      "main",
		Description: "fixture repo",
	}
}

func archiveRoot(t *testing.T) string {
	dir, err := fixture.tmp.TempDir("root")
	if err != nil {
		t.Fatal(err)
	}
	return dir.Dir
}

func TestSyncCreatesSnapshot(t *testing.T) {
	root := archiveRoot(t)
	s := MakeSyncer(root, time.Minute, stats.NilStatsReceiver())

	o := s.Sync(demoSpec())
	if o.Status != SUCCEEDED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	if o.SHA != fixture.headSHA {
		t.Fatalf("expected sha %s, got %s", fixture.headSHA, o.SHA)
	}
	wantDir := filepath.Join(root, "python", "demo", fixture.headSHA)
	if o.Dir != wantDir {
		t.Fatalf("expected snapshot dir %s, got %s", wantDir, o.Dir)
	}
	if err := assertFileContents(o.Dir, "hello.txt", "hi\n"); err != nil {
		t.Fatal(err)
	}
	if err := assertFileContents(o.Dir, "docs/readme.md", "docs\n"); err != nil {
		t.Fatal(err)
	}
	if err := assertFileContents(o.Dir, store.MarkerFilename, fixture.headSHA+"\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(o.Dir, ".git")); !os.IsNotExist(err) {
		t.Fatalf("snapshot must hold tracked files only, found .git: %v", err)
	}
	assertDirEntries(t, filepath.Join(root, "python", "demo"), []string{fixture.headSHA})
}

func TestSyncIsIdempotent(t *testing.T) {
	root := archiveRoot(t)
	s := MakeSyncer(root, time.Minute, stats.NilStatsReceiver())

	first := s.Sync(demoSpec())
	if first.Status != SUCCEEDED {
		t.Fatalf("unexpected first outcome: %s", spew.Sdump(first))
	}
	second := s.Sync(demoSpec())
	if second.Status != SKIPPED {
		t.Fatalf("unexpected second outcome: %s", spew.Sdump(second))
	}
	if second.SHA != first.SHA {
		t.Fatalf("expected same sha on skip, got %s vs %s", second.SHA, first.SHA)
	}
	if second.Dir != "" {
		t.Fatalf("skip must not report a new snapshot dir, got %s", second.Dir)
	}
	assertDirEntries(t, filepath.Join(root, "python", "demo"), []string{fixture.headSHA})
}

func TestSyncSkipsExistingDir(t *testing.T) {
	root := archiveRoot(t)
	// A commit dir without a marker still counts as captured and is left alone.
	preexisting := filepath.Join(root, "python", "demo", fixture.headSHA)
	if err := os.MkdirAll(preexisting, 0755); err != nil {
		t.Fatal(err)
	}

	o := MakeSyncer(root, time.Minute, stats.NilStatsReceiver()).Sync(demoSpec())
	if o.Status != SKIPPED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	assertDirEntries(t, preexisting, []string{})
}

func TestSyncValidatesSpec(t *testing.T) {
	root := archiveRoot(t)
	spec := demoSpec()
	spec.GitURL = ""
	spec.GitRef = ""

	o := MakeSyncer(root, time.Minute, stats.NilStatsReceiver()).Sync(spec)
	if o.Status != FAILED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	var serr *config.SpecError
	if !errors.As(o.Err, &serr) {
		t.Fatalf("expected *config.SpecError, got %T: %v", o.Err, o.Err)
	}
	if !reflect.DeepEqual(serr.Missing, []string{"giturl", "git_ref"}) {
		t.Fatalf("unexpected missing fields: %v", serr.Missing)
	}
	// Validation failures must not touch the archive.
	if _, err := os.Stat(filepath.Join(root, "python")); !os.IsNotExist(err) {
		t.Fatalf("expected untouched root: %v", err)
	}
}

func TestSyncFetchFailure(t *testing.T) {
	root := archiveRoot(t)
	spec := demoSpec()
	spec.GitURL = filepath.Join(fixture.tmp.Dir, "no-such-remote")

	o := MakeSyncer(root, time.Minute, stats.NilStatsReceiver()).Sync(spec)
	if o.Status != FAILED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	var gerr *repo.GitError
	if !errors.As(o.Err, &gerr) {
		t.Fatalf("expected *repo.GitError, got %T: %v", o.Err, o.Err)
	}
	// The scratch dir is cleaned up even when the entry fails.
	assertDirEntries(t, filepath.Join(root, "python", "demo"), []string{})
}

func TestSyncSanitizesPaths(t *testing.T) {
	root := archiveRoot(t)
	spec := demoSpec()
	spec.Name = "my repo!"
	spec.StorePath = "../../etc"

	o := MakeSyncer(root, time.Minute, stats.NilStatsReceiver()).Sync(spec)
	if o.Status != SUCCEEDED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	wantDir := filepath.Join(root, "etc", "my_repo", fixture.headSHA)
	if o.Dir != wantDir {
		t.Fatalf("expected sanitized dir %s, got %s", wantDir, o.Dir)
	}
}

func TestSyncMarkerWriteFailure(t *testing.T) {
	// A tracked file under a dir named like the marker makes the marker path
	// a directory in the export, so the marker write itself must fail.
	clashPath := store.MarkerFilename + "/keep"
	remote, sha, err := createRemote(fixture.tmp, "marker-clash-repo", map[string]string{
		"hello.txt": "hi\n",
		clashPath:   "x\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	root := archiveRoot(t)
	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })
	s := MakeSyncer(root, time.Minute, stat)
	spec := demoSpec()
	spec.Name = "clash"
	spec.GitURL = remote.Dir()

	o := s.Sync(spec)
	if o.Status != SUCCEEDED {
		t.Fatalf("marker failure must not fail the entry: %s", spew.Sdump(o))
	}
	if len(o.Warnings) != 1 {
		t.Fatalf("expected one warning, got %s", spew.Sdump(o.Warnings))
	}
	if err := assertFileContents(o.Dir, "hello.txt", "hi\n"); err != nil {
		t.Fatal(err)
	}
	stats.VerifyStats("marker clash", reg, t, map[string]stats.Rule{
		"syncer/syncOkCounter":    {Checker: stats.Int64EqTest, Value: 1},
		"syncer/markerErrCounter": {Checker: stats.Int64EqTest, Value: 1},
	})

	// The unmarked commit dir still dedups the next run.
	second := s.Sync(spec)
	if second.Status != SKIPPED || second.SHA != sha {
		t.Fatalf("unexpected second outcome: %s", spew.Sdump(second))
	}
}

func TestSyncRecordsStats(t *testing.T) {
	root := archiveRoot(t)
	reg := stats.NewFinagleStatsRegistry()
	stat := stats.NewCustomStatsReceiver(func() stats.StatsRegistry { return reg })
	s := MakeSyncer(root, time.Minute, stat)

	if o := s.Sync(demoSpec()); o.Status != SUCCEEDED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	if o := s.Sync(demoSpec()); o.Status != SKIPPED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}
	bad := demoSpec()
	bad.GitRef = ""
	if o := s.Sync(bad); o.Status != FAILED {
		t.Fatalf("unexpected outcome: %s", spew.Sdump(o))
	}

	stats.VerifyStats("after syncs", reg, t, map[string]stats.Rule{
		"syncer/syncOkCounter":          {Checker: stats.Int64EqTest, Value: 1},
		"syncer/syncSkippedCounter":     {Checker: stats.Int64EqTest, Value: 1},
		"syncer/syncErrCounter":         {Checker: stats.Int64EqTest, Value: 1},
		"syncer/markerErrCounter":       {Checker: stats.DoesNotExistTest, Value: nil},
		"syncer/cleanupErrCounter":      {Checker: stats.DoesNotExistTest, Value: nil},
		"syncer/syncLatency_ms.count":   {Checker: stats.Int64EqTest, Value: 3},
		"syncer/fetchLatency_ms.count":  {Checker: stats.Int64EqTest, Value: 2},
		"syncer/fetchLatency_ms.avg":    {Checker: stats.FloatGTTest, Value: 0.0},
		"syncer/exportLatency_ms.count": {Checker: stats.Int64EqTest, Value: 1},
	})
}

func assertDirEntries(t *testing.T, dir string, want []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("unexpected entries in %s: got %v, want %v", dir, names, want)
	}
}

// asserts file `base` in `dir` has contents `expected` or errors
func assertFileContents(dir string, base string, expected string) error {
	actualBytes, err := os.ReadFile(filepath.Join(dir, base))
	if err != nil {
		return err
	}
	actual := string(actualBytes)
	if expected != actual {
		return fmt.Errorf("bad contents: %q %q", expected, actual)
	}
	return nil
}

func createRemote(tmp *temp.TempDir, name string, files map[string]string) (*repo.Repository, string, error) {
	dir, err := tmp.TempDir(name)
	if err != nil {
		return nil, "", err
	}
	r, err := repo.InitRepo(dir.Dir)
	if err != nil {
		return nil, "", err
	}
	if _, err := r.Run("config", "user.name", "Refpin Test"); err != nil {
		return nil, "", err
	}
	if _, err := r.Run("config", "user.email", "refpintest@twitter.github.io"); err != nil {
		return nil, "", err
	}
	for rel, contents := range files {
		p := filepath.Join(dir.Dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, "", err
		}
		if err := os.WriteFile(p, []byte(contents), 0666); err != nil {
			return nil, "", err
		}
	}
	if _, err := r.Run("add", "."); err != nil {
		return nil, "", err
	}
	if _, err := r.Run("commit", "-m", "created by createRemote"); err != nil {
		return nil, "", err
	}
	if _, err := r.Run("branch", "-M", "main"); err != nil {
		return nil, "", err
	}
	sha, err := r.RunSha("rev-parse", "HEAD")
	if err != nil {
		return nil, "", err
	}
	return r, sha, nil
}

func setup() (*syncerFixture, error) {
	tmp, err := temp.NewTempDir("", "syncer_test")
	if err != nil {
		return nil, err
	}
	remote, sha, err := createRemote(tmp, "remote-repo", map[string]string{
		"hello.txt":      "hi\n",
		"docs/readme.md": "docs\n",
	})
	if err != nil {
		os.RemoveAll(tmp.Dir)
		return nil, err
	}
	return &syncerFixture{tmp: tmp, remote: remote, headSHA: sha}, nil
}

// Pull setup into one place so we only create repos once.
func TestMain(m *testing.M) {
	flag.Parse()
	var err error
	fixture, err = setup()
	if err != nil {
		log.Fatal(err)
	}
	result := m.Run()
	os.RemoveAll(fixture.tmp.Dir)
	os.Exit(result)
}
