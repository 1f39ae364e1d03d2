package imagespec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpuserve/internal/common/fsutil"
)

// Metadata is recorded for every successful build.
type Metadata struct {
	Digest    string    `json:"digest"`
	Ref       string    `json:"ref"`
	Base      string    `json:"base"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// BuildFunc builds recipe (rendered as dockerfile) and returns the image
// reference it produced.
type BuildFunc func(ctx context.Context, r Recipe, dockerfile string) (string, error)

// Cache records built recipes by digest under dir/images/<hex>/.
type Cache struct {
	dir    string
	logger zerolog.Logger
	now    func() time.Time
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string, logger *zerolog.Logger) *Cache {
	c := &Cache{dir: dir, logger: zerolog.Nop(), now: time.Now}
	if logger != nil {
		c.logger = *logger
	}
	return c
}

func digestHex(digest string) (string, error) {
	algo, hex, ok := strings.Cut(digest, ":")
	if !ok || algo != "sha256" || len(hex) != 64 {
		return "", fmt.Errorf("invalid digest %q", digest)
	}
	return hex, nil
}

func (c *Cache) metadataPath(hex string) string {
	return filepath.Join(c.dir, "images", hex, "metadata.json")
}

// Lookup returns the recorded build for digest, or ErrNotFound.
func (c *Cache) Lookup(digest string) (*Metadata, error) {
	hex, err := digestHex(digest)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(c.metadataPath(hex))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &m, nil
}

// Ensure builds r unless its digest is already recorded. The bool result
// reports whether a build ran. A failed build records nothing.
func (c *Cache) Ensure(ctx context.Context, r Recipe, build BuildFunc) (*Metadata, bool, error) {
	digest, err := r.Digest()
	if err != nil {
		return nil, false, err
	}
	if m, err := c.Lookup(digest); err == nil {
		c.logger.Info().Str("digest", digest).Str("ref", m.Ref).Msg("image cached, skipping build")
		return m, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	df, err := r.Dockerfile()
	if err != nil {
		return nil, false, err
	}
	c.logger.Info().Str("digest", digest).Str("base", r.Base).Int("steps", len(r.Steps)).Msg("building image")
	ref, err := build(ctx, r, df)
	if err != nil {
		return nil, true, fmt.Errorf("build %s: %w", digest, err)
	}
	hex, _ := digestHex(digest)
	m := &Metadata{Digest: digest, Ref: ref, Base: r.Base, Steps: len(r.Steps), CreatedAt: c.now().UTC()}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, true, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := fsutil.WriteFileAtomic(c.metadataPath(hex), data, 0o644); err != nil {
		return nil, true, fmt.Errorf("write metadata: %w", err)
	}
	return m, true, nil
}
