// Package cli implements the gpuserve command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"gpuserve/internal/config"
)

// Options are the persistent flags shared by all commands. Flag values
// override the config file and the environment.
type Options struct {
	ConfigPath string
	Service    string
	Addr       string
	CacheDir   string
	WorkerURL  string
	LogLevel   string
	LogFormat  string
	CORS       string
}

// Command hooks; tests replace them.
var (
	fnServe       = runServe
	fnPrepare     = runPrepare
	fnImageRender = runImageRender
	fnImageBuild  = runImageBuild
	fnListModels  = runListModels
)

// MainWithArgs runs the command line and returns the process exit code.
func MainWithArgs(args []string) int {
	return mainWithOut(args, os.Stdout, os.Stderr)
}

func mainWithOut(args []string, stdout, stderr io.Writer) int {
	opts := &Options{}
	root := buildRootCmdWith(opts)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

// loadConfig merges file, environment and flags, then applies defaults.
func loadConfig(opts *Options) (config.Config, error) {
	var cfg config.Config
	if opts.ConfigPath != "" {
		c, err := config.Load(opts.ConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	set := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	set(opts.Service, &cfg.Service)
	set(opts.Addr, &cfg.Addr)
	set(opts.CacheDir, &cfg.CacheDir)
	set(opts.WorkerURL, &cfg.WorkerURL)
	set(opts.LogLevel, &cfg.LogLevel)
	set(opts.LogFormat, &cfg.LogFormat)
	if origins := splitCSV(opts.CORS); len(origins) > 0 {
		cfg.CORS.Enabled = true
		cfg.CORS.AllowedOrigins = origins
	}
	if err := cfg.Defaults(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
