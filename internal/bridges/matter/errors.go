package matter

import "errors"

var (
	// ErrRequestTimeout is returned when the controller does not answer in time.
	ErrRequestTimeout = errors.New("matter: controller request timed out")

	// ErrControllerError is returned when the controller answers with an error.
	ErrControllerError = errors.New("matter: controller error")

	// ErrControllerOffline is recorded when the controller reports itself offline.
	ErrControllerOffline = errors.New("matter: controller offline")

	// ErrTransportLost is recorded when the broker connection drops.
	ErrTransportLost = errors.New("matter: broker connection lost")

	// ErrInvalidPairingCode is returned for an empty pairing code.
	ErrInvalidPairingCode = errors.New("matter: pairing code is required")
)

// Controller error codes.
const (
	CodeNodeUnreachable = "NODE_UNREACHABLE"
	CodeUnknownNode     = "UNKNOWN_NODE"
	CodeInvalidCommand  = "INVALID_COMMAND"
	CodeCommissioning   = "COMMISSIONING_FAILED"
	CodeUnauthorized    = "UNAUTHORIZED"
)
