package scene

import "errors"

// Domain errors for the scene package. Check them with errors.Is.
var (
	// ErrSceneNotFound is returned when a scene ID does not exist.
	ErrSceneNotFound = errors.New("scene: not found")

	// ErrSceneExists is returned when an ID or slug is already taken.
	ErrSceneExists = errors.New("scene: already exists")

	// ErrSceneDisabled is returned when activating a disabled scene.
	ErrSceneDisabled = errors.New("scene: disabled")

	ErrInvalidScene  = errors.New("scene: invalid")
	ErrInvalidAction = errors.New("scene: invalid action")
	ErrInvalidName   = errors.New("scene: invalid name")
	ErrInvalidSlug   = errors.New("scene: invalid slug")
	ErrNoActions     = errors.New("scene: no actions")

	// ErrExecutionNotFound is returned when an execution ID does not exist.
	ErrExecutionNotFound = errors.New("scene: execution not found")
)

// IsValidation reports whether err is one of the validation errors.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidScene) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidSlug) ||
		errors.Is(err, ErrNoActions)
}
