package mesh

import (
	"context"
	"image"
)

// LoadOptions are passed to Loader.Load at container start.
type LoadOptions struct {
	ModelPath  string
	ConfigName string
	WeightName string
	ChunkSize  int
	Device     string
}

// Loader loads the reconstruction model once per process.
type Loader interface {
	Load(ctx context.Context, opts LoadOptions) (Reconstructor, error)
}

// SceneCode is an opaque handle to the latent scene produced by a forward
// pass. It is only meaningful to the Reconstructor that returned it.
type SceneCode struct {
	ID string
}

// Reconstructor turns images into scene codes and scene codes into meshes.
type Reconstructor interface {
	Reconstruct(ctx context.Context, imgs []image.Image) ([]SceneCode, error)
	ExtractMeshes(ctx context.Context, codes []SceneCode) ([]Mesh, error)
	Close() error
}

// Mesh is an extracted triangle mesh.
type Mesh interface {
	// Export writes the mesh in Wavefront OBJ format to path.
	Export(ctx context.Context, path string) error
}

// Remover creates background-removal sessions.
type Remover interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session segments the foreground of images. Sessions are not shared
// between requests.
type Session interface {
	Remove(ctx context.Context, img image.Image) (*image.NRGBA, error)
	Close() error
}
