// Package gitsource keeps a local checkout of a git-hosted deck up to date.
package gitsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Result reports what Sync did.
type Result string

const (
	Cloned   Result = "cloned"
	Pulled   Result = "pulled"
	UpToDate Result = "up-to-date"
)

// Sync clones url into localPath if it doesn't exist there yet, or pulls
// the latest changes if it does.
func Sync(ctx context.Context, logger *slog.Logger, url, localPath string) (Result, error) {
	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Cloning deck repository", "url", url, "path", localPath)
		if _, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{URL: url}); err != nil {
			return "", fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		return Cloned, nil

	case err != nil:
		return "", fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	logger.Info("Pulling deck repository", "path", localPath)
	repo, err := git.PlainOpen(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return UpToDate, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
	}
	return Pulled, nil
}

// LocalPath maps a repository URL to a checkout directory below baseDir,
// e.g. https://github.com/a/b.git and git@github.com:a/b.git both become
// baseDir/github.com/a/b.
func LocalPath(baseDir, repoURL string) (string, error) {
	var host, repoPath string
	if u, err := url.Parse(repoURL); err == nil && u.Host != "" {
		switch u.Scheme {
		case "http", "https", "ssh", "git":
			host, repoPath = u.Hostname(), u.Path
		}
	} else if user, rest, ok := strings.Cut(repoURL, "@"); ok && user != "" {
		// scp-like syntax: user@host:path
		if h, p, ok := strings.Cut(rest, ":"); ok {
			host, repoPath = h, p
		}
	}

	repoPath = strings.Trim(strings.TrimSuffix(repoPath, ".git"), "/")
	if host == "" || repoPath == "" || strings.Contains(repoPath, "..") {
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}
	return filepath.Join(baseDir, host, filepath.FromSlash(repoPath)), nil
}
