package imagespec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NormalizesBase(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"python:3.11-slim-bookworm", "docker.io/library/python:3.11-slim-bookworm", false},
		{"debian", "docker.io/library/debian:latest", false},
		{"ghcr.io/acme/base:1", "ghcr.io/acme/base:1", false},
		{"Not A Ref", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := New(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Base)
		})
	}
}

func TestBuilderMethodsDoNotMutate(t *testing.T) {
	base, err := New("debian")
	require.NoError(t, err)
	a := base.AptInstall("git")
	b := a.PipInstall("numpy")
	c := a.PipInstall("scipy")
	assert.Len(t, base.Steps, 0)
	assert.Len(t, a.Steps, 1)
	assert.Equal(t, []string{"numpy"}, b.Steps[1].Packages)
	assert.Equal(t, []string{"scipy"}, c.Steps[1].Packages)
}

func TestDigest_StableAndSensitive(t *testing.T) {
	r1, err := MeshRecipe()
	require.NoError(t, err)
	r2, err := MeshRecipe()
	require.NoError(t, err)
	d1, err := r1.Digest()
	require.NoError(t, err)
	d2, err := r2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.True(t, strings.HasPrefix(d1, "sha256:"))
	assert.Len(t, d1, len("sha256:")+64)

	d3, err := r1.Env("EXTRA", "1").Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)

	diff, err := DiffusionRecipe()
	require.NoError(t, err)
	d4, err := diff.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, d1, d4)
}

func TestValidate(t *testing.T) {
	base, err := New("debian")
	require.NoError(t, err)
	_, err = base.Digest()
	assert.ErrorIs(t, err, ErrEmptyRecipe)

	_, err = base.AptInstall().Dockerfile()
	assert.ErrorIs(t, err, ErrInvalidStep)

	bad := Recipe{Base: base.Base, Steps: []Step{{Kind: "bogus"}}}
	_, err = bad.Digest()
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestDockerfile_Mesh(t *testing.T) {
	r, err := MeshRecipe()
	require.NoError(t, err)
	df, err := r.Dockerfile()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(df, "FROM docker.io/library/python:3.11-slim-bookworm\n"))
	assert.Contains(t, df, "apt-get install -y --no-install-recommends git")
	assert.Contains(t, df, "pip install --no-cache-dir torch torchvision torchaudio --extra-index-url https://download.pytorch.org/whl/cu121")
	assert.Contains(t, df, "git clone https://github.com/VAST-AI-Research/TripoSR.git /root/TripoSR")
	assert.Contains(t, df, "pip install --no-cache-dir -r requirements.txt")
	assert.Contains(t, df, "COPY gpuserve /usr/local/bin/gpuserve")
	assert.True(t, strings.HasSuffix(df, "RUN gpuserve prepare --service mesh\n"))
}

func TestDockerfile_DiffusionQuotesSpecifiers(t *testing.T) {
	r, err := DiffusionRecipe()
	require.NoError(t, err)
	df, err := r.Dockerfile()
	require.NoError(t, err)
	assert.Contains(t, df, "'diffusers~=0.24.0'")
	assert.Contains(t, df, "RUN gpuserve prepare --service diffusion")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "abc", shellQuote("abc"))
	assert.Equal(t, "''", shellQuote(""))
	assert.Equal(t, "'a b'", shellQuote("a b"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}

func TestRecipeFor(t *testing.T) {
	_, err := RecipeFor("mesh")
	assert.NoError(t, err)
	_, err = RecipeFor("diffusion")
	assert.NoError(t, err)
	_, err = RecipeFor("llm")
	assert.Error(t, err)
}
