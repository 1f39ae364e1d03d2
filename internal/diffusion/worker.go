package diffusion

import (
	"context"
	"fmt"
	"image"

	"gpuserve/internal/imaging"
	"gpuserve/internal/worker"
)

// WorkerLoader loads the diffusion pipeline inside the model worker.
type WorkerLoader struct {
	Client *worker.Client
}

type loadRequest struct {
	ModelPath  string `json:"model_path"`
	VAEPath    string `json:"vae_path"`
	TorchDType string `json:"torch_dtype"`
	Variant    string `json:"variant"`
	DeviceMap  string `json:"device_map"`
}

type loadResponse struct {
	PipelineID string `json:"pipeline_id"`
}

// Load implements Loader.
func (l WorkerLoader) Load(ctx context.Context, opts LoadOptions) (Pipeline, error) {
	var out loadResponse
	err := l.Client.PostJSON(ctx, "/v1/img2img/load", loadRequest{
		ModelPath:  opts.ModelPath,
		VAEPath:    opts.VAEPath,
		TorchDType: opts.DType,
		Variant:    opts.Variant,
		DeviceMap:  opts.DeviceMap,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("load img2img pipeline: %w", err)
	}
	if out.PipelineID == "" {
		return nil, fmt.Errorf("load img2img pipeline: worker returned no pipeline id")
	}
	return &workerPipeline{client: l.Client, id: out.PipelineID}, nil
}

type workerPipeline struct {
	client *worker.Client
	id     string
}

type generateRequest struct {
	PipelineID        string  `json:"pipeline_id"`
	Prompt            string  `json:"prompt"`
	Image             string  `json:"image"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Strength          float64 `json:"strength"`
	GuidanceScale     float64 `json:"guidance_scale"`
	Seed              int64   `json:"seed"`
}

type generateResponse struct {
	Image string `json:"image"`
}

func (p *workerPipeline) Generate(ctx context.Context, params Params) (image.Image, error) {
	in, err := imaging.EncodePNGBase64(params.Image)
	if err != nil {
		return nil, err
	}
	var out generateResponse
	err = p.client.PostJSON(ctx, "/v1/img2img/generate", generateRequest{
		PipelineID:        p.id,
		Prompt:            params.Prompt,
		Image:             in,
		NumInferenceSteps: params.Steps,
		Strength:          params.Strength,
		GuidanceScale:     params.GuidanceScale,
		Seed:              params.Seed,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("img2img: %w", err)
	}
	img, err := imaging.DecodeBase64(out.Image)
	if err != nil {
		return nil, fmt.Errorf("img2img output: %w", err)
	}
	return img, nil
}

func (p *workerPipeline) Close() error { return nil }
