// Package lighting defines the canonical, protocol-independent model shared
// by the protocol adapters, the event bus and the device reconciler.
//
// A State carries optional fields: a nil field means unknown or not
// applicable, never "off" or "zero". Merging two states overlays only the
// fields that are set, so a partial update can never erase what is known.
package lighting
