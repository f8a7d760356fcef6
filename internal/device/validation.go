package device

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

const (
	maxNameLength       = 100
	maxExternalIDLength = 128
	maxSlugLength       = 50
)

// ValidateDevice checks the identity and naming fields of d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if !d.Protocol.Valid() {
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidDevice, d.Protocol)
	}
	if d.ExternalID == "" || len(d.ExternalID) > maxExternalIDLength {
		return fmt.Errorf("%w: external id must be 1-%d characters", ErrInvalidDevice, maxExternalIDLength)
	}
	return ValidateName(d.Name)
}

// ValidateName checks that a name is non-empty and within length limits.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// fallbackName gives nameless devices a stable display name.
func fallbackName(protocol lighting.Protocol, externalID string) string {
	return fmt.Sprintf("%s %s", protocol, externalID)
}

// GenerateSlug creates a URL-safe slug from a name.
//
//	"Living Room" -> "living-room"
//	"Kitchen_Pendant #2" -> "kitchen-pendant-2"
func GenerateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")

	var b strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	slug = b.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}
