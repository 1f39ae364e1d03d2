package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gpuserve/internal/common/fsutil"
)

// RepoFolder maps "org/name" to "models--org--name".
func RepoFolder(repo string) string {
	return "models--" + strings.ReplaceAll(repo, "/", "--")
}

// RepoFromFolder is the inverse of the cache folder naming. It reports
// false for entries that are not model folders.
func RepoFromFolder(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, "models--")
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(rest, "--", "/"), true
}

func repoDir(cacheDir, repo string) string {
	return filepath.Join(cacheDir, RepoFolder(repo))
}

func snapshotDir(cacheDir, repo, commit string) string {
	return filepath.Join(repoDir(cacheDir, repo), "snapshots", commit)
}

func refPath(cacheDir, repo, rev string) string {
	return filepath.Join(repoDir(cacheDir, repo), "refs", rev)
}

// ReadRef returns the commit recorded for rev.
func ReadRef(cacheDir, repo, rev string) (string, error) {
	b, err := os.ReadFile(refPath(cacheDir, repo, rev))
	if err != nil {
		return "", err
	}
	commit := strings.TrimSpace(string(b))
	if commit == "" {
		return "", fmt.Errorf("empty ref %s@%s", repo, rev)
	}
	return commit, nil
}

func writeRef(cacheDir, repo, rev, commit string) error {
	return fsutil.WriteFileAtomic(refPath(cacheDir, repo, rev), []byte(commit), 0o644)
}

// LocalSnapshot resolves the on-disk snapshot directory for repo@rev
// without touching the network.
func LocalSnapshot(cacheDir, repo, rev string) (string, error) {
	if rev == "" {
		rev = DefaultRevision
	}
	commit, err := ReadRef(cacheDir, repo, rev)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s@%s: %w", repo, rev, ErrNotCached)
		}
		return "", err
	}
	dir := snapshotDir(cacheDir, repo, commit)
	if !fsutil.PathExists(dir) {
		return "", fmt.Errorf("%s@%s: %w", repo, rev, ErrNotCached)
	}
	return dir, nil
}
