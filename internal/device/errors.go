package device

import (
	"errors"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

var (
	// ErrDeviceNotFound is returned when a device ID does not exist.
	// It is the same value as lighting.ErrNotFound.
	ErrDeviceNotFound = lighting.ErrNotFound

	// ErrInvalidDevice is returned when device validation fails.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidName is returned when a device or room name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrRoomNotFound is returned when a referenced room does not exist.
	ErrRoomNotFound = errors.New("device: room not found")

	// ErrNoAdapter is returned when no adapter is registered for a protocol.
	ErrNoAdapter = errors.New("device: no adapter for protocol")

	// ErrCommissioningUnsupported is returned when the adapter cannot
	// commission or decommission devices.
	ErrCommissioningUnsupported = errors.New("device: commissioning not supported by protocol")
)
