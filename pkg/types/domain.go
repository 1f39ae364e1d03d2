package types

// Model represents a weight snapshot present in the local artifact cache.
type Model struct {
	// Repository identifier.
	// example: stabilityai/TripoSR
	ID string `json:"id" example:"stabilityai/TripoSR"`
	// Revision the snapshot was resolved from.
	// example: main
	Revision string `json:"revision" example:"main"`
	// Commit hash of the snapshot.
	// example: 3f2a1b0c
	Commit string `json:"commit" example:"3f2a1b0c"`
	// Absolute path to the snapshot directory on disk.
	// example: /cache/models--stabilityai--TripoSR/snapshots/3f2a1b0c
	Path string `json:"path" example:"/cache/models--stabilityai--TripoSR/snapshots/3f2a1b0c"`
}

// Artifact is the binary result of one inference request.
type Artifact struct {
	Data        []byte
	ContentType string
	// Filename, when set, is sent as a Content-Disposition attachment name.
	Filename string
}

// Content types produced by the inference endpoints.
const (
	ContentTypeOctetStream = "application/octet-stream"
	ContentTypeJPEG        = "image/jpeg"
)
