//go:build !swagger

package httpapi

import "github.com/go-chi/chi/v5"

// MountSwagger does nothing unless built with -tags=swagger; the default
// image carries no API docs.
func MountSwagger(chi.Router) {}
