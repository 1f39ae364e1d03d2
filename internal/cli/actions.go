package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"gpuserve/internal/app"
	"gpuserve/internal/config"
	"gpuserve/internal/imagespec"
	"gpuserve/internal/registry"
)

// BuildOptions select the external image builder.
type BuildOptions struct {
	Builder    string
	Repository string
	Context    string
}

func runPrepare(ctx context.Context, cfg config.Config) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	return a.Prepare(ctx)
}

func runListModels(cfg config.Config, out io.Writer) error {
	models, err := registry.LoadDir(cfg.CacheDir)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREVISION\tCOMMIT\tPATH")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ID, m.Revision, m.Commit, m.Path)
	}
	return tw.Flush()
}

func runImageRender(cfg config.Config, out io.Writer) error {
	r, err := imagespec.RecipeFor(cfg.Service)
	if err != nil {
		return err
	}
	df, err := r.Dockerfile()
	if err != nil {
		return err
	}
	digest, err := r.Digest()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# recipe %s\n%s", digest, df)
	return nil
}

func runImageBuild(ctx context.Context, cfg config.Config, opts BuildOptions, out io.Writer) error {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	r, err := imagespec.RecipeFor(cfg.Service)
	if err != nil {
		return err
	}
	cache := imagespec.NewCache(cfg.ImageDataDir, &logger)
	meta, built, err := cache.Ensure(ctx, r, imagespec.CommandBuilder(opts.Builder, nil, opts.Repository, opts.Context))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*imagespec.Metadata
		Built bool `json:"built"`
	}{meta, built})
}
