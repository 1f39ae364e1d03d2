// Package imagespec describes container images for the model services as
// ordered, immutable recipes, identifies them by content digest and builds
// them through a cache keyed by that digest.
package imagespec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/distribution/reference"
	v1 "github.com/google/go-containerregistry/pkg/v1"
)

// StepKind identifies a recipe step.
type StepKind string

const (
	StepApt      StepKind = "apt"
	StepPip      StepKind = "pip"
	StepRun      StepKind = "run"
	StepGitClone StepKind = "git_clone"
	StepEnv      StepKind = "env"
	StepCopy     StepKind = "copy"
	StepPrepare  StepKind = "prepare"
)

// Step is one ordered build instruction. Only the fields relevant to Kind
// are set; the rest stay zero so the JSON encoding is canonical.
type Step struct {
	Kind         StepKind `json:"kind"`
	Packages     []string `json:"packages,omitempty"`
	IndexURL     string   `json:"index_url,omitempty"`
	Commands     []string `json:"commands,omitempty"`
	Repo         string   `json:"repo,omitempty"`
	Dest         string   `json:"dest,omitempty"`
	Requirements string   `json:"requirements,omitempty"`
	Key          string   `json:"key,omitempty"`
	Value        string   `json:"value,omitempty"`
	Src          string   `json:"src,omitempty"`
	Service      string   `json:"service,omitempty"`
}

// Recipe is a base image plus ordered steps. Builder methods return a new
// Recipe and never modify the receiver.
type Recipe struct {
	Base  string `json:"base"`
	Steps []Step `json:"steps"`
}

// New starts a recipe from base, normalized to a fully qualified reference
// ("python:3.11-slim" -> "docker.io/library/python:3.11-slim").
func New(base string) (Recipe, error) {
	named, err := reference.ParseNormalizedNamed(base)
	if err != nil {
		return Recipe{}, fmt.Errorf("invalid base image %q: %w", base, err)
	}
	return Recipe{Base: reference.TagNameOnly(named).String()}, nil
}

func (r Recipe) with(s Step) Recipe {
	out := Recipe{Base: r.Base, Steps: make([]Step, 0, len(r.Steps)+1)}
	out.Steps = append(out.Steps, r.Steps...)
	out.Steps = append(out.Steps, s)
	return out
}

// AptInstall installs system packages.
func (r Recipe) AptInstall(pkgs ...string) Recipe {
	return r.with(Step{Kind: StepApt, Packages: slices.Clone(pkgs)})
}

// PipInstall installs Python packages from the default index.
func (r Recipe) PipInstall(pkgs ...string) Recipe {
	return r.with(Step{Kind: StepPip, Packages: slices.Clone(pkgs)})
}

// PipInstallIndex installs Python packages with an extra index URL.
func (r Recipe) PipInstallIndex(indexURL string, pkgs ...string) Recipe {
	return r.with(Step{Kind: StepPip, IndexURL: indexURL, Packages: slices.Clone(pkgs)})
}

// RunCommands runs shell commands, one layer per command.
func (r Recipe) RunCommands(cmds ...string) Recipe {
	return r.with(Step{Kind: StepRun, Commands: slices.Clone(cmds)})
}

// GitClone clones repo into dest and, if requirements is set, installs it
// with pip from inside the clone.
func (r Recipe) GitClone(repo, dest, requirements string) Recipe {
	return r.with(Step{Kind: StepGitClone, Repo: repo, Dest: dest, Requirements: requirements})
}

// Env sets an environment variable in the image.
func (r Recipe) Env(key, value string) Recipe {
	return r.with(Step{Kind: StepEnv, Key: key, Value: value})
}

// CopyBinary copies a file from the build context into the image.
func (r Recipe) CopyBinary(src, dest string) Recipe {
	return r.with(Step{Kind: StepCopy, Src: src, Dest: dest})
}

// Prepare runs the service's build hook so weights are baked into a layer.
func (r Recipe) Prepare(service string) Recipe {
	return r.with(Step{Kind: StepPrepare, Service: service})
}

// Validate checks that every step carries the fields its kind requires.
func (r Recipe) Validate() error {
	if r.Base == "" {
		return fmt.Errorf("%w: missing base image", ErrInvalidStep)
	}
	if len(r.Steps) == 0 {
		return ErrEmptyRecipe
	}
	for i, s := range r.Steps {
		var ok bool
		switch s.Kind {
		case StepApt, StepPip:
			ok = len(s.Packages) > 0
		case StepRun:
			ok = len(s.Commands) > 0
		case StepGitClone:
			ok = s.Repo != "" && s.Dest != ""
		case StepEnv:
			ok = s.Key != ""
		case StepCopy:
			ok = s.Src != "" && s.Dest != ""
		case StepPrepare:
			ok = s.Service != ""
		default:
			return fmt.Errorf("%w: step %d: unknown kind %q", ErrInvalidStep, i, s.Kind)
		}
		if !ok {
			return fmt.Errorf("%w: step %d (%s) is incomplete", ErrInvalidStep, i, s.Kind)
		}
	}
	return nil
}

// Digest returns "sha256:<hex>" over the canonical JSON encoding. Equal
// recipes always produce equal digests.
func (r Recipe) Digest() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode recipe: %w", err)
	}
	h, _, err := v1.SHA256(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("hash recipe: %w", err)
	}
	return h.String(), nil
}
