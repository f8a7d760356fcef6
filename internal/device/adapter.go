package device

import (
	"context"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Adapter is the reconciler's view of a protocol adapter.
type Adapter interface {
	Protocol() lighting.Protocol
	ListDevices(ctx context.Context) ([]lighting.DiscoveredDevice, error)
	ReadState(ctx context.Context, externalID string) (lighting.State, error)
	WriteState(ctx context.Context, externalID string, patch lighting.State) error
}

// Commissioner is implemented by adapters that can add devices to, and
// remove them from, their network.
type Commissioner interface {
	Commission(ctx context.Context, pairingCode string) (lighting.DiscoveredDevice, error)
	Decommission(ctx context.Context, externalID string) error
}
