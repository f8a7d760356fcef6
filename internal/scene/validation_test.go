package scene

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

func on() lighting.State { return lighting.State{On: lighting.Bool(true)} }

func validScene() *Scene {
	return &Scene{
		Name:    "Evening",
		Enabled: true,
		Actions: []Action{{DeviceID: "dev-desk", State: on()}},
	}
}

func TestValidateScene(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scene)
		wantErr error
	}{
		{name: "valid", mutate: func(*Scene) {}},
		{name: "blank name", mutate: func(s *Scene) { s.Name = "  " }, wantErr: ErrInvalidName},
		{name: "long name", mutate: func(s *Scene) { s.Name = strings.Repeat("a", 101) }, wantErr: ErrInvalidName},
		{name: "bad slug", mutate: func(s *Scene) { s.Slug = "Not A Slug" }, wantErr: ErrInvalidSlug},
		{name: "no actions", mutate: func(s *Scene) { s.Actions = nil }, wantErr: ErrNoActions},
		{
			name: "too many actions",
			mutate: func(s *Scene) {
				s.Actions = make([]Action, 101)
				for i := range s.Actions {
					s.Actions[i] = Action{DeviceID: "d", State: on()}
				}
			},
			wantErr: ErrInvalidAction,
		},
		{
			name:    "action without device",
			mutate:  func(s *Scene) { s.Actions[0].DeviceID = "" },
			wantErr: ErrInvalidAction,
		},
		{
			name:    "empty state",
			mutate:  func(s *Scene) { s.Actions[0].State = lighting.State{} },
			wantErr: ErrInvalidAction,
		},
		{
			name:    "reachable is read-only",
			mutate:  func(s *Scene) { s.Actions[0].State.Reachable = lighting.Bool(true) },
			wantErr: ErrInvalidAction,
		},
		{
			name:    "brightness out of range",
			mutate:  func(s *Scene) { s.Actions[0].State.Brightness = lighting.Float(120) },
			wantErr: ErrInvalidAction,
		},
		{
			name:    "mirek out of range",
			mutate:  func(s *Scene) { s.Actions[0].State.ColorTemperature = lighting.Int(90) },
			wantErr: ErrInvalidAction,
		},
		{
			name:    "negative delay",
			mutate:  func(s *Scene) { s.Actions[0].DelayMS = -1 },
			wantErr: ErrInvalidAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScene()
			tt.mutate(s)

			err := ValidateScene(s)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestValidateScene_Nil(t *testing.T) {
	assert.ErrorIs(t, ValidateScene(nil), ErrInvalidScene)
}

func TestGenerateSlug(t *testing.T) {
	tests := map[string]string{
		"Evening":               "evening",
		"Movie Night":           "movie-night",
		"  Reading_Light!  ":    "reading-light",
		"Wake -- up":            "wake-up",
		strings.Repeat("x", 60): strings.Repeat("x", 50),
	}
	for in, want := range tests {
		assert.Equal(t, want, GenerateSlug(in), in)
	}
}

func TestIsValidation_OtherErrors(t *testing.T) {
	assert.False(t, IsValidation(ErrSceneNotFound))
	assert.False(t, IsValidation(nil))
}
