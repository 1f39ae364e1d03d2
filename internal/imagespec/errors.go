package imagespec

import "errors"

var (
	// ErrNotFound is returned by Cache.Lookup when no build is recorded.
	ErrNotFound = errors.New("image not found")
	// ErrEmptyRecipe is returned when a recipe has no steps.
	ErrEmptyRecipe = errors.New("recipe has no steps")
	// ErrInvalidStep is returned when a step is missing required fields or
	// has an unknown kind.
	ErrInvalidStep = errors.New("invalid recipe step")
)
