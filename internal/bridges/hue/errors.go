package hue

import "errors"

var (
	// ErrLightNotFound is returned when the bridge has no light with the id.
	ErrLightNotFound = errors.New("hue: light not found")

	// ErrBadStatus is returned for a non-2xx bridge response.
	ErrBadStatus = errors.New("hue: unexpected bridge response")
)
