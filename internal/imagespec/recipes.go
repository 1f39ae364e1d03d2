package imagespec

import "fmt"

// Base image and install paths shared by both service images.
const (
	DefaultBase      = "python:3.11-slim-bookworm"
	BinaryPath       = "/usr/local/bin/gpuserve"
	TorchIndexURL    = "https://download.pytorch.org/whl/cu121"
	TripoSRGitURL    = "https://github.com/VAST-AI-Research/TripoSR.git"
	TripoSRCheckout  = "/root/TripoSR"
	defaultCacheRoot = "/root/.cache/gpuserve/hub"
)

func finish(r Recipe, service string) Recipe {
	return r.
		Env("GPUSERVE_CACHE_DIR", defaultCacheRoot).
		CopyBinary("gpuserve", BinaryPath).
		Prepare(service)
}

// MeshRecipe is the image for the mesh reconstruction service.
func MeshRecipe() (Recipe, error) {
	r, err := New(DefaultBase)
	if err != nil {
		return Recipe{}, err
	}
	r = r.AptInstall("git").
		PipInstallIndex(TorchIndexURL, "torch", "torchvision", "torchaudio").
		GitClone(TripoSRGitURL, TripoSRCheckout, "requirements.txt")
	return finish(r, "mesh"), nil
}

// DiffusionRecipe is the image for the img2img diffusion service.
func DiffusionRecipe() (Recipe, error) {
	r, err := New(DefaultBase)
	if err != nil {
		return Recipe{}, err
	}
	r = r.PipInstall(
		"Pillow~=10.1.0",
		"diffusers~=0.24.0",
		"transformers~=4.35.2",
		"accelerate~=0.25",
		"safetensors~=0.4.1",
	)
	return finish(r, "diffusion"), nil
}

// RecipeFor returns the recipe for a service name.
func RecipeFor(service string) (Recipe, error) {
	switch service {
	case "mesh":
		return MeshRecipe()
	case "diffusion":
		return DiffusionRecipe()
	default:
		return Recipe{}, fmt.Errorf("no image recipe for service %q", service)
	}
}
