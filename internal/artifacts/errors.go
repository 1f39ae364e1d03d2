package artifacts

import (
	"errors"
	"fmt"
)

// ErrNotCached is returned by LocalSnapshot when the repo has no snapshot
// for the requested revision in the cache.
var ErrNotCached = errors.New("snapshot not cached")

// HubError is a non-2xx answer from the artifact hub.
type HubError struct {
	URL    string
	Status int
}

func (e *HubError) Error() string {
	return fmt.Sprintf("hub %s: http %d", e.URL, e.Status)
}
