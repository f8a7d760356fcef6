package scene

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting/units"
)

const (
	maxNameLength = 100
	maxSlugLength = 50
	maxActions    = 100
	maxDelayMS    = 300000 // 5 minutes
	slugPattern   = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var slugRegex = regexp.MustCompile(slugPattern)

// ValidateScene returns the first validation failure found in s.
func ValidateScene(s *Scene) error {
	if s == nil {
		return ErrInvalidScene
	}
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.Slug != "" {
		if err := ValidateSlug(s.Slug); err != nil {
			return err
		}
	}

	if len(s.Actions) == 0 {
		return ErrNoActions
	}
	if len(s.Actions) > maxActions {
		return fmt.Errorf("%w: exceeds maximum of %d actions", ErrInvalidAction, maxActions)
	}
	for i, a := range s.Actions {
		if err := ValidateAction(a); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateName checks a scene name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks a slug's format.
func ValidateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("%w: slug cannot be empty", ErrInvalidSlug)
	}
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: must be lowercase alphanumeric with hyphens", ErrInvalidSlug)
	}
	return nil
}

// ValidateAction checks one action. The state must carry at least one
// writable field and every field must be in range; reachability is
// reported by devices, never written.
func ValidateAction(a Action) error {
	if a.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidAction)
	}
	if a.DelayMS < 0 || a.DelayMS > maxDelayMS {
		return fmt.Errorf("%w: delay_ms must be 0-%d", ErrInvalidAction, maxDelayMS)
	}
	if a.State.Reachable != nil {
		return fmt.Errorf("%w: reachable is read-only", ErrInvalidAction)
	}
	if a.State.IsEmpty() {
		return fmt.Errorf("%w: state is empty", ErrInvalidAction)
	}
	if !a.State.Clamped().Equal(a.State) {
		return fmt.Errorf("%w: state out of range (brightness 0-100, color x/y 0-1, color_temperature %d-%d)",
			ErrInvalidAction, units.MinMirek, units.MaxMirek)
	}
	return nil
}

// GenerateSlug derives a URL-safe slug from a name.
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
	slug = strings.Trim(b.String(), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID returns a new scene or execution ID.
func GenerateID() string {
	return uuid.New().String()
}
