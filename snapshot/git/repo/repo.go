// Package repo provides utilities for operating on a git repo.
// A sync run ends up with multiple git repos: each repository entry gets its
// own scratch checkout, and each checkout is in its own repo.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/twitter/refpin/common"
)

// ErrNotInstalled means the git CLI could not be found on PATH.
var ErrNotInstalled = errors.New("git CLI not found in PATH")

// CheckInstalled verifies the git CLI is available before any entry is
// processed.
func CheckInstalled() error {
	if _, err := exec.LookPath("git"); err != nil {
		return ErrNotInstalled
	}
	return nil
}

// GitError describes a failed git command.
type GitError struct {
	Argv     []string
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Argv, " "), e.Err)
	if e.TimedOut {
		msg += " (timed out)"
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *GitError) Unwrap() error {
	return e.Err
}

// Repository represents a valid Git repository.
type Repository struct {
	dir string
}

// Where r lives on disk
func (r *Repository) Dir() string {
	return r.dir
}

// Run a git command in r, bounded by the default local command timeout.
func (r *Repository) Run(args ...string) (string, error) {
	return r.RunTimeout(common.DefaultGitTimeout, args...)
}

// RunTimeout runs a git command in r, killing it and returning a GitError
// with TimedOut set if it outlives the given timeout.
func (r *Repository) RunTimeout(timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	gitArgs := append([]string{"-c", "advice.detachedHead=false"}, args...)
	cmd := exec.CommandContext(ctx, "git", gitArgs...)
	cmd.Dir = r.dir
	// Fail fast instead of prompting for credentials on private remotes.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	log.Debugf("$ (cd %s && git %s)", r.dir, strings.Join(args, " "))
	data, err := cmd.Output()
	if err == nil {
		return string(data), nil
	}

	gerr := &GitError{Argv: append([]string{"git"}, args...), Err: err}
	if exitErr, ok := err.(*exec.ExitError); ok {
		gerr.Stderr = strings.TrimSpace(string(exitErr.Stderr))
	}
	if ctx.Err() == context.DeadlineExceeded {
		gerr.TimedOut = true
	}
	log.Debugf("git error: %v", gerr)
	return string(data), gerr
}

// Run a git command that returns a sha.
func (r *Repository) RunSha(args ...string) (string, error) {
	out, err := r.Run(args...)
	if err != nil {
		return out, err
	}
	return validateSha(out)
}

// validateSha trims and validates sha as a git sha, returning the valid sha xor an error
func validateSha(sha string) (string, error) {
	if len(sha) == 40 || len(sha) == 41 && sha[40] == '\n' {
		return sha[0:40], nil
	}
	return "", fmt.Errorf("sha not 40 or 41 (with a \\n) characters: %q", sha)
}

// NewRepository creates a new Repository for path `dir`.
// It checks that `dir` is a valid git repo.
func NewRepository(dir string) (*Repository, error) {
	r := &Repository{dir}
	topLevel, err := r.Run("rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	topLevel = strings.Replace(topLevel, "\n", "", -1)
	log.Debugf("git.NewRepository: %s %s", dir, topLevel)
	r.dir = topLevel
	return r, nil
}

// InitRepo initializes a new git repo in the given directory.
func InitRepo(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	r := &Repository{dir: dir}
	if _, err := r.Run("init"); err != nil {
		return nil, err
	}
	return NewRepository(dir)
}

// FetchRef fetches ref from sourceURL into r, leaving the fetched commit in
// FETCH_HEAD. It prefers a shallow fetch and falls back once to a full fetch
// when the remote rejects the shallow one. A fetch that times out is not
// retried and not fallen back from.
func (r *Repository) FetchRef(sourceURL, ref string, timeout time.Duration) error {
	if _, err := r.Run("remote", "add", "origin", sourceURL); err != nil {
		return err
	}
	_, err := r.RunTimeout(timeout, "fetch", "--depth", "1", "origin", ref)
	if err == nil {
		return nil
	}
	if gerr, ok := err.(*GitError); ok && gerr.TimedOut {
		return err
	}
	log.Warnf("Shallow fetch failed for ref %s; falling back to full fetch.", ref)
	_, err = r.RunTimeout(timeout, "fetch", "origin", ref)
	return err
}

// CheckoutFetchHead checks out the fetched commit on a detached HEAD.
func (r *Repository) CheckoutFetchHead() error {
	_, err := r.Run("checkout", "--detach", "FETCH_HEAD")
	return err
}

// HeadSHA resolves the checked out commit to its full lowercase hash.
func (r *Repository) HeadSHA() (string, error) {
	sha, err := r.RunSha("rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.ToLower(sha), nil
}

// LsFiles lists the paths git tracks in r, relative to the repo root.
func (r *Repository) LsFiles() ([]string, error) {
	out, err := r.Run("ls-files", "-z")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range strings.Split(out, "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}
