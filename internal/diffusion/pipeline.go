package diffusion

import (
	"context"
	"image"
)

// LoadOptions are passed to Loader.Load at container start.
type LoadOptions struct {
	ModelPath string
	VAEPath   string
	DType     string
	Variant   string
	DeviceMap string
}

// Loader loads the img2img pipeline once per process.
type Loader interface {
	Load(ctx context.Context, opts LoadOptions) (Pipeline, error)
}

// Params drive one img2img pass.
type Params struct {
	Prompt        string
	Image         image.Image
	Steps         int
	Strength      float64
	GuidanceScale float64
	Seed          int64
}

// Pipeline runs img2img generation on the loaded model.
type Pipeline interface {
	Generate(ctx context.Context, p Params) (image.Image, error)
	Close() error
}
