// Package store maintains the append-only snapshot archive for one tracked
// repository: <root>/<category>/<name>/<sha>/ trees, each carrying a marker
// file recording the commit hash it captures.
package store

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// MarkerFilename is the sentinel written at the root of every completed
// snapshot, containing the captured commit hash.
const MarkerFilename = ".refpin-snapshot"

var shaRE = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// Error describes a failed archive operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ScanMarkers walks dir collecting the commit hashes recorded in marker
// files. Unreadable or malformed markers are skipped, as are unreadable
// dirs: a damaged archive must never abort a run.
func ScanMarkers(dir string) []string {
	var hashes []string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Name() != MarkerFilename {
			return nil
		}
		txt, err := os.ReadFile(path)
		if err != nil {
			log.Debugf("Could not read marker file: %s", path)
			return nil
		}
		sha := strings.TrimSpace(string(txt))
		if !shaRE.MatchString(sha) {
			log.Debugf("Ignoring malformed marker file: %s", path)
			return nil
		}
		hashes = append(hashes, strings.ToLower(sha))
		return nil
	})
	return hashes
}

// Store binds the archive dir for one repository entry:
// <root>/<category>/<name>.
type Store struct {
	dir      string
	captured map[string]bool
}

// MakeStore creates the dir if needed and scans it once for captured
// commits. The scan runs before any scratch checkout exists under dir, so
// fetched content can never leak into it.
func MakeStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "create", Path: dir, Err: err}
	}
	captured := make(map[string]bool)
	for _, sha := range ScanMarkers(dir) {
		captured[sha] = true
	}
	log.Debugf("Store at %s has %d captured commits", dir, len(captured))
	return &Store{dir: dir, captured: captured}, nil
}

// Where s lives on disk
func (s *Store) Dir() string {
	return s.dir
}

// Captured returns the commit hashes recorded by markers, sorted.
func (s *Store) Captured() []string {
	shas := make([]string, 0, len(s.captured))
	for sha := range s.captured {
		shas = append(shas, sha)
	}
	sort.Strings(shas)
	return shas
}

// CommitDir returns the archive path for sha under s.
func (s *Store) CommitDir(sha string) string {
	return filepath.Join(s.dir, strings.ToLower(sha))
}

// Recorded reports whether a marker recorded sha when s was created.
func (s *Store) Recorded(sha string) bool {
	return s.captured[strings.ToLower(sha)]
}

// Exists reports whether sha is already captured, either recorded by a
// marker or present as a commit dir left by an earlier run.
func (s *Store) Exists(sha string) bool {
	if s.Recorded(sha) {
		return true
	}
	_, err := os.Stat(s.CommitDir(sha))
	return err == nil
}

// Export copies the named tracked files from srcDir into the commit dir for
// sha, preserving permission bits and mtimes. Tracked entries that are not
// regular files (submodule gitlinks show up as bare dirs) are skipped. On
// failure the partially written commit dir is removed.
func (s *Store) Export(srcDir string, files []string, sha string) (string, error) {
	dest := s.CommitDir(sha)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return "", &Error{Op: "export", Path: dest, Err: err}
	}
	for _, rel := range files {
		src := filepath.Join(srcDir, rel)
		fi, err := os.Stat(src)
		if err != nil {
			os.RemoveAll(dest)
			return "", &Error{Op: "export", Path: src, Err: err}
		}
		if !fi.Mode().IsRegular() {
			log.Debugf("Skipping non-regular tracked entry: %s", rel)
			continue
		}
		if err := copyFile(src, filepath.Join(dest, rel), fi); err != nil {
			os.RemoveAll(dest)
			return "", err
		}
	}
	return dest, nil
}

func copyFile(src, dst string, fi os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return &Error{Op: "export", Path: dst, Err: err}
	}
	in, err := os.Open(src)
	if err != nil {
		return &Error{Op: "export", Path: src, Err: err}
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return &Error{Op: "export", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return &Error{Op: "export", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &Error{Op: "export", Path: dst, Err: err}
	}
	// The create perms were masked by umask, keep mode and mtime of the source.
	if err := os.Chmod(dst, fi.Mode().Perm()); err != nil {
		return &Error{Op: "export", Path: dst, Err: err}
	}
	if err := os.Chtimes(dst, fi.ModTime(), fi.ModTime()); err != nil {
		return &Error{Op: "export", Path: dst, Err: err}
	}
	return nil
}

// WriteMarker records sha in the marker file inside dir and in the scanned
// set. The marker is the last step of a snapshot; callers downgrade a
// failure here because the exported tree already stands on its own.
func (s *Store) WriteMarker(dir, sha string) error {
	sha = strings.ToLower(sha)
	path := filepath.Join(dir, MarkerFilename)
	if err := os.WriteFile(path, []byte(sha+"\n"), 0644); err != nil {
		return &Error{Op: "marker", Path: path, Err: err}
	}
	s.captured[sha] = true
	return nil
}
