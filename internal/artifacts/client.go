// Package artifacts downloads model weight snapshots from a hub-compatible
// HTTP API into a local content cache, and resolves cached snapshots
// without network access.
package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gpuserve/internal/common/fsutil"
)

const (
	DefaultRevision    = "main"
	defaultParallelism = 4
)

// Options select what Snapshot downloads.
type Options struct {
	Revision       string
	IgnorePatterns []string
}

// Result summarizes one Snapshot call.
type Result struct {
	Repo       string
	Commit     string
	Dir        string
	Downloaded int
	Skipped    int
}

// Client fetches repository snapshots into CacheDir.
type Client struct {
	hubURL      string
	cacheDir    string
	token       string
	http        *http.Client
	parallelism int
	logger      zerolog.Logger
}

// Config configures a Client.
type Config struct {
	HubURL      string
	CacheDir    string
	Token       string
	Parallelism int
	HTTPClient  *http.Client
	Logger      *zerolog.Logger
}

// New constructs a Client.
func New(cfg Config) *Client {
	c := &Client{
		hubURL:      strings.TrimRight(cfg.HubURL, "/"),
		cacheDir:    cfg.CacheDir,
		token:       cfg.Token,
		http:        cfg.HTTPClient,
		parallelism: cfg.Parallelism,
		logger:      zerolog.Nop(),
	}
	if c.http == nil {
		c.http = &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          16,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
		}}
	}
	if c.parallelism <= 0 {
		c.parallelism = defaultParallelism
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	return c
}

// CacheDir returns the cache root.
func (c *Client) CacheDir() string { return c.cacheDir }

type revisionInfo struct {
	SHA      string `json:"sha"`
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

// Snapshot downloads every non-ignored file of repo at opts.Revision into
// the cache. Files already present are left alone, so repeated calls are
// cheap. The first failure cancels the remaining downloads and is returned.
func (c *Client) Snapshot(ctx context.Context, repo string, opts Options) (Result, error) {
	rev := opts.Revision
	if rev == "" {
		rev = DefaultRevision
	}
	res := Result{Repo: repo}
	info, err := c.revision(ctx, repo, rev)
	if err != nil {
		return res, err
	}
	if info.SHA == "" {
		return res, fmt.Errorf("resolve %s@%s: empty commit", repo, rev)
	}
	res.Commit = info.SHA
	res.Dir = snapshotDir(c.cacheDir, repo, info.SHA)
	if err := os.MkdirAll(res.Dir, 0o755); err != nil {
		return res, fmt.Errorf("create snapshot dir: %w", err)
	}

	type task struct{ file, dst string }
	var tasks []task
	var skipped int
	for _, s := range info.Siblings {
		if s.RFilename == "" || ignored(s.RFilename, opts.IgnorePatterns) {
			continue
		}
		dst, err := safeJoin(res.Dir, s.RFilename)
		if err != nil {
			return res, err
		}
		if fsutil.PathExists(dst) {
			skipped++
			continue
		}
		tasks = append(tasks, task{file: s.RFilename, dst: dst})
	}

	var downloaded int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, t := range tasks {
		g.Go(func() error {
			if err := c.download(gctx, repo, info.SHA, t.file, t.dst); err != nil {
				return err
			}
			atomic.AddInt64(&downloaded, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	res.Downloaded, res.Skipped = int(downloaded), skipped
	if err := writeRef(c.cacheDir, repo, rev, info.SHA); err != nil {
		return res, fmt.Errorf("write ref: %w", err)
	}
	c.logger.Info().Str("repo", repo).Str("commit", info.SHA).
		Int("downloaded", res.Downloaded).Int("skipped", res.Skipped).Msg("snapshot ready")
	return res, nil
}

func (c *Client) revision(ctx context.Context, repo, rev string) (revisionInfo, error) {
	var info revisionInfo
	u := fmt.Sprintf("%s/api/models/%s/revision/%s", c.hubURL, repo, url.PathEscape(rev))
	resp, err := c.get(ctx, u)
	if err != nil {
		return info, fmt.Errorf("resolve %s@%s: %w", repo, rev, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decode revision %s@%s: %w", repo, rev, err)
	}
	return info, nil
}

func (c *Client) download(ctx context.Context, repo, commit, file, dst string) error {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", c.hubURL, repo, url.PathEscape(commit), escapePath(file))
	resp, err := c.get(ctx, u)
	if err != nil {
		return fmt.Errorf("download %s/%s: %w", repo, file, err)
	}
	defer resp.Body.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".part-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmp := f.Name()
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download %s/%s: %w", repo, file, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", file, err)
	}
	c.logger.Debug().Str("repo", repo).Str("file", file).Int64("bytes", n).Msg("downloaded")
	return nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HubError{URL: u, Status: resp.StatusCode}
	}
	return resp, nil
}

// safeJoin joins a repo-relative file name under dir, rejecting names that
// would escape it.
func safeJoin(dir, file string) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(file))
	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid file name %q", file)
	}
	return p, nil
}

// escapePath escapes each segment of a slash-separated repo path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
