package lighting

import (
	"github.com/nerrad567/gray-logic-lighting/internal/lighting/units"
)

// XY is a CIE 1931 chromaticity coordinate, each component in [0,1].
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the canonical device state. Every field is optional.
type State struct {
	On               *bool    `json:"on,omitempty"`
	Brightness       *float64 `json:"brightness,omitempty"`        // percent, 0-100
	Color            *XY      `json:"color,omitempty"`             // CIE xy
	ColorTemperature *int     `json:"color_temperature,omitempty"` // mirek, 153-500
	Reachable        *bool    `json:"reachable,omitempty"`
}

// FieldGroup names an independently writable part of a State.
type FieldGroup string

const (
	GroupOn               FieldGroup = "on"
	GroupBrightness       FieldGroup = "brightness"
	GroupColor            FieldGroup = "color"
	GroupColorTemperature FieldGroup = "color_temperature"
)

// WriteOrder is the order adapters issue sub-commands in.
var WriteOrder = []FieldGroup{GroupOn, GroupBrightness, GroupColor, GroupColorTemperature}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }

// Int returns a pointer to i.
func Int(i int) *int { return &i }

// Clone returns a deep copy of s.
func (s State) Clone() State {
	var out State
	if s.On != nil {
		out.On = Bool(*s.On)
	}
	if s.Brightness != nil {
		out.Brightness = Float(*s.Brightness)
	}
	if s.Color != nil {
		c := *s.Color
		out.Color = &c
	}
	if s.ColorTemperature != nil {
		out.ColorTemperature = Int(*s.ColorTemperature)
	}
	if s.Reachable != nil {
		out.Reachable = Bool(*s.Reachable)
	}
	return out
}

// Merge returns s overlaid with every field set in patch. Fields nil in
// patch keep their value from s.
func (s State) Merge(patch State) State {
	out := s.Clone()
	p := patch.Clone()
	if p.On != nil {
		out.On = p.On
	}
	if p.Brightness != nil {
		out.Brightness = p.Brightness
	}
	if p.Color != nil {
		out.Color = p.Color
	}
	if p.ColorTemperature != nil {
		out.ColorTemperature = p.ColorTemperature
	}
	if p.Reachable != nil {
		out.Reachable = p.Reachable
	}
	return out
}

// Clamped returns s with every numeric field forced into its legal range.
func (s State) Clamped() State {
	out := s.Clone()
	if out.Brightness != nil {
		*out.Brightness = units.ClampBrightness(*out.Brightness)
	}
	if out.Color != nil {
		out.Color.X, out.Color.Y = units.ClampXY(out.Color.X, out.Color.Y)
	}
	if out.ColorTemperature != nil {
		*out.ColorTemperature = units.ClampMirek(*out.ColorTemperature)
	}
	return out
}

// Equal reports whether s and o hold the same known fields and values.
func (s State) Equal(o State) bool {
	return eqPtr(s.On, o.On) &&
		eqPtr(s.Brightness, o.Brightness) &&
		eqPtr(s.Color, o.Color) &&
		eqPtr(s.ColorTemperature, o.ColorTemperature) &&
		eqPtr(s.Reachable, o.Reachable)
}

// Covers reports whether every field set in patch already holds the same
// value in s, meaning merging patch into s changes nothing.
func (s State) Covers(patch State) bool {
	return s.Merge(patch).Equal(s)
}

// IsEmpty reports whether no field is set.
func (s State) IsEmpty() bool {
	return s.On == nil && s.Brightness == nil && s.Color == nil &&
		s.ColorTemperature == nil && s.Reachable == nil
}

// Groups returns the writable field groups set in s, in WriteOrder.
// Reachable is read-only and never part of a write.
func (s State) Groups() []FieldGroup {
	var groups []FieldGroup
	for _, g := range WriteOrder {
		if s.Has(g) {
			groups = append(groups, g)
		}
	}
	return groups
}

// Has reports whether the field group is set in s.
func (s State) Has(g FieldGroup) bool {
	switch g {
	case GroupOn:
		return s.On != nil
	case GroupBrightness:
		return s.Brightness != nil
	case GroupColor:
		return s.Color != nil
	case GroupColorTemperature:
		return s.ColorTemperature != nil
	}
	return false
}

// Only returns a copy of s holding just the given field groups.
func (s State) Only(groups ...FieldGroup) State {
	c := s.Clone()
	var out State
	for _, g := range groups {
		switch g {
		case GroupOn:
			out.On = c.On
		case GroupBrightness:
			out.Brightness = c.Brightness
		case GroupColor:
			out.Color = c.Color
		case GroupColorTemperature:
			out.ColorTemperature = c.ColorTemperature
		}
	}
	return out
}

// Without returns a copy of s with the given field groups cleared.
func (s State) Without(groups ...FieldGroup) State {
	out := s.Clone()
	for _, g := range groups {
		switch g {
		case GroupOn:
			out.On = nil
		case GroupBrightness:
			out.Brightness = nil
		case GroupColor:
			out.Color = nil
		case GroupColorTemperature:
			out.ColorTemperature = nil
		}
	}
	return out
}

// Writable strips from s the field groups caps does not support. The
// capability set is taken as given; nothing is probed.
func (s State) Writable(caps Capabilities) State {
	var drop []FieldGroup
	for _, g := range s.Groups() {
		if !caps.Supports(g) {
			drop = append(drop, g)
		}
	}
	out := s.Without(drop...)
	out.Reachable = nil
	return out
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
