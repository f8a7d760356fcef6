package matter

import (
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting/units"
)

// Device type ids from the mesh device library.
const (
	TypeOnOffLight            uint32 = 0x0100
	TypeDimmableLight         uint32 = 0x0101
	TypeColorTemperatureLight uint32 = 0x010C
	TypeExtendedColorLight    uint32 = 0x010D
	TypeOnOffPlug             uint32 = 0x010A
	TypeDimmablePlug          uint32 = 0x010B
	TypeTemperatureSensor     uint32 = 0x0302
	TypeLightSensor           uint32 = 0x0106
	TypeOccupancySensor       uint32 = 0x0107
	TypeContactSensor         uint32 = 0x0301
)

// Mirek bounds reported for nodes with colour temperature control.
const (
	minMirek = 153
	maxMirek = 500
)

// MapDeviceType maps a mesh device type id to a device type. Unknown ids
// are treated as lights.
func MapDeviceType(id uint32) lighting.DeviceType {
	switch id {
	case TypeOnOffPlug, TypeDimmablePlug:
		return lighting.DeviceTypePlug
	case TypeTemperatureSensor, TypeLightSensor, TypeOccupancySensor:
		return lighting.DeviceTypeSensor
	case TypeContactSensor:
		return lighting.DeviceTypeContactSensor
	default:
		return lighting.DeviceTypeLight
	}
}

// capabilities derives capabilities from the node's clusters and type.
func capabilities(n NodeInfo) lighting.Capabilities {
	ct := n.Clusters.ColorTemperature ||
		n.DeviceTypeID == TypeColorTemperatureLight ||
		n.DeviceTypeID == TypeExtendedColorLight
	caps := lighting.Capabilities{
		SupportsBrightness:       n.Clusters.LevelControl,
		SupportsColor:            n.Clusters.ColorControl,
		SupportsColorTemperature: ct,
	}
	if ct {
		caps.MinMirek = lighting.Int(minMirek)
		caps.MaxMirek = lighting.Int(maxMirek)
	}
	return caps
}

// stateFromAttributes converts raw attributes to canonical state. Colour
// needs both coordinates.
func stateFromAttributes(a Attributes) lighting.State {
	var s lighting.State
	if a.OnOff != nil {
		s.On = lighting.Bool(*a.OnOff)
	}
	if a.CurrentLevel != nil {
		s.Brightness = lighting.Float(units.LevelToBrightness(*a.CurrentLevel))
	}
	if a.CurrentX != nil && a.CurrentY != nil {
		x, y := units.MeshXYToXY(*a.CurrentX, *a.CurrentY)
		s.Color = &lighting.XY{X: x, Y: y}
	}
	if a.ColorTemperatureMireds != nil {
		s.ColorTemperature = lighting.Int(*a.ColorTemperatureMireds)
	}
	return s.Clamped()
}

// discovered converts a node description to a discovered device.
func discovered(n NodeInfo) lighting.DiscoveredDevice {
	s := stateFromAttributes(n.Attributes)
	s.Reachable = lighting.Bool(n.Reachable)
	return lighting.DiscoveredDevice{
		ExternalID:   n.NodeID,
		Name:         nodeName(n),
		Type:         MapDeviceType(n.DeviceTypeID),
		Capabilities: capabilities(n),
		State:        s,
		Online:       n.Reachable,
	}
}

func nodeName(n NodeInfo) string {
	switch {
	case n.Name != "":
		return n.Name
	case n.ProductName != "" && n.VendorName != "":
		return n.VendorName + " " + n.ProductName
	case n.ProductName != "":
		return n.ProductName
	default:
		return "Mesh node " + n.NodeID
	}
}

// invocation is one cluster command.
type invocation struct {
	Command    string
	Parameters map[string]any
}

// commandFor builds the cluster command for one field group of a clamped
// patch. ok is false when the patch does not set the group.
func commandFor(g lighting.FieldGroup, s lighting.State) (invocation, bool) {
	switch g {
	case lighting.GroupOn:
		if s.On == nil {
			return invocation{}, false
		}
		if *s.On {
			return invocation{Command: CommandOn}, true
		}
		return invocation{Command: CommandOff}, true

	case lighting.GroupBrightness:
		if s.Brightness == nil {
			return invocation{}, false
		}
		return invocation{Command: CommandMoveToLevelWithOnOff, Parameters: map[string]any{
			"level":           units.BrightnessToLevel(*s.Brightness),
			"transition_time": transitionTime,
		}}, true

	case lighting.GroupColor:
		if s.Color == nil {
			return invocation{}, false
		}
		x, y := units.XYToMeshXY(s.Color.X, s.Color.Y)
		return invocation{Command: CommandMoveToColor, Parameters: map[string]any{
			"color_x":         x,
			"color_y":         y,
			"transition_time": transitionTime,
		}}, true

	case lighting.GroupColorTemperature:
		if s.ColorTemperature == nil {
			return invocation{}, false
		}
		return invocation{Command: CommandMoveToColorTemperature, Parameters: map[string]any{
			"color_temperature_mireds": *s.ColorTemperature,
			"transition_time":          transitionTime,
		}}, true
	}
	return invocation{}, false
}
