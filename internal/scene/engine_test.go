package scene

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// mockWriter records state writes and fails the devices listed in fail.
type mockWriter struct {
	mu     sync.Mutex
	writes []write
	fail   map[string]error
}

type write struct {
	id    string
	patch lighting.State
	at    time.Time
}

func (m *mockWriter) WriteState(ctx context.Context, id string, patch lighting.State) (*device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, write{id: id, patch: patch, at: time.Now()})
	if err := m.fail[id]; err != nil {
		return nil, err
	}
	return &device.Device{ID: id, State: patch}, nil
}

func (m *mockWriter) written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.writes))
	for i, w := range m.writes {
		ids[i] = w.id
	}
	return ids
}

// mockHub captures broadcasts.
type mockHub struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (m *mockHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, channel)
	m.payloads = append(m.payloads, payload)
}

func setupEngine(t *testing.T, actions ...Action) (*Engine, *mockWriter, *mockRepository, string) {
	t.Helper()
	repo := newMockRepository()
	reg := NewRegistry(repo)
	s := &Scene{Name: "Test", Enabled: true, Actions: actions}
	require.NoError(t, reg.CreateScene(context.Background(), s))

	writer := &mockWriter{fail: map[string]error{}}
	return NewEngine(reg, writer, repo), writer, repo, s.ID
}

func act(id string, parallel bool) Action {
	return Action{DeviceID: id, State: lighting.State{On: lighting.Bool(true), Brightness: lighting.Float(60)}, Parallel: parallel}
}

func TestGroupActions(t *testing.T) {
	groups := groupActions([]Action{act("a", false), act("b", true), act("c", true), act("d", false), act("e", true)})

	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 2)
	assert.Equal(t, 3, groups[1][0].index)
	assert.Equal(t, "e", groups[1][1].DeviceID)

	assert.Nil(t, groupActions(nil))

	// A leading parallel action still starts the first group.
	assert.Len(t, groupActions([]Action{act("a", true), act("b", false)}), 2)
}

func TestActivate_AllSucceed(t *testing.T) {
	engine, writer, repo, id := setupEngine(t, act("dev-1", false), act("dev-2", true), act("dev-3", false))
	hub := &mockHub{}
	engine.SetBroadcaster(hub)

	exec, err := engine.Activate(context.Background(), id, "usr-owner")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, 3, exec.ActionsTotal)
	assert.Equal(t, 3, exec.ActionsCompleted)
	assert.Zero(t, exec.ActionsFailed)
	assert.Empty(t, exec.Failures)
	assert.Equal(t, "usr-owner", exec.Subject)
	require.NotNil(t, exec.CompletedAt)

	ids := writer.written()
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, ids[:2])
	assert.Equal(t, "dev-3", ids[2], "second group runs after the first")

	stored, err := repo.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stored.Status)

	require.Len(t, hub.channels, 1)
	assert.Equal(t, "scene_activated", hub.channels[0])
	payload := hub.payloads[0].(map[string]any)
	assert.Equal(t, id, payload["scene_id"])
	assert.Equal(t, StatusCompleted, payload["status"])
}

func TestActivate_WritesPatchUnchanged(t *testing.T) {
	a := Action{DeviceID: "dev-1", State: lighting.State{
		Color:            &lighting.XY{X: 0.3, Y: 0.4},
		ColorTemperature: lighting.Int(300),
	}}
	engine, writer, _, id := setupEngine(t, a)

	_, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)

	require.Len(t, writer.writes, 1)
	assert.True(t, writer.writes[0].patch.Equal(a.State))
	assert.Nil(t, writer.writes[0].patch.On)
}

func TestActivate_FailFastSkipsLaterGroups(t *testing.T) {
	engine, writer, _, id := setupEngine(t, act("dev-1", false), act("dev-2", false), act("dev-3", false))
	writer.fail["dev-1"] = lighting.ErrDeviceUnreachable

	exec, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, 0, exec.ActionsCompleted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, 2, exec.ActionsSkipped)
	require.Len(t, exec.Failures, 1)
	assert.Equal(t, ActionFailure{
		ActionIndex: 0,
		DeviceID:    "dev-1",
		Kind:        "unreachable",
		Message:     exec.Failures[0].Message,
	}, exec.Failures[0])
	assert.Equal(t, []string{"dev-1"}, writer.written())
}

func TestActivate_ContinueOnErrorGivesPartial(t *testing.T) {
	first := act("dev-1", false)
	first.ContinueOnError = true
	engine, writer, _, id := setupEngine(t, first, act("dev-2", false))
	writer.fail["dev-1"] = lighting.ErrNotFound

	exec, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)

	assert.Equal(t, StatusPartial, exec.Status)
	assert.Equal(t, 1, exec.ActionsCompleted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Zero(t, exec.ActionsSkipped)
	assert.Equal(t, "not_found", exec.Failures[0].Kind)
	assert.Equal(t, []string{"dev-1", "dev-2"}, writer.written())
}

func TestActivate_ParallelGroupFinishesBeforeAbort(t *testing.T) {
	engine, writer, _, id := setupEngine(t, act("dev-1", false), act("dev-2", true), act("dev-3", false))
	writer.fail["dev-1"] = &lighting.ConnectionError{Protocol: lighting.ProtocolBridge, Err: errors.New("refused")}

	exec, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, exec.Status)
	assert.Equal(t, 1, exec.ActionsCompleted, "the parallel sibling still ran")
	assert.Equal(t, 1, exec.ActionsSkipped)
	assert.Equal(t, "connection", exec.Failures[0].Kind)
	assert.ElementsMatch(t, []string{"dev-1", "dev-2"}, writer.written())
}

func TestActivate_Delay(t *testing.T) {
	delayed := act("dev-2", false)
	delayed.DelayMS = 50
	engine, writer, _, id := setupEngine(t, act("dev-1", false), delayed)

	start := time.Now()
	_, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)

	require.Len(t, writer.writes, 2)
	assert.GreaterOrEqual(t, writer.writes[1].at.Sub(start), 50*time.Millisecond)
}

func TestActivate_CancelledDuringDelay(t *testing.T) {
	delayed := act("dev-1", false)
	delayed.DelayMS = 5000
	engine, writer, _, id := setupEngine(t, delayed, act("dev-2", false))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	exec, err := engine.Activate(ctx, id, "")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, exec.Status)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, 1, exec.ActionsSkipped)
	assert.Equal(t, "cancelled", exec.Failures[0].Kind)
	assert.Empty(t, writer.written())
}

func TestActivate_DisabledAndMissing(t *testing.T) {
	engine, writer, _, id := setupEngine(t, act("dev-1", false))
	ctx := context.Background()

	s, err := engine.registry.GetScene(ctx, id)
	require.NoError(t, err)
	s.Enabled = false
	require.NoError(t, engine.registry.UpdateScene(ctx, s))

	_, err = engine.Activate(ctx, id, "")
	assert.ErrorIs(t, err, ErrSceneDisabled)

	_, err = engine.Activate(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrSceneNotFound)
	assert.Empty(t, writer.written())
}

func TestActivate_HistoryFailureDoesNotStopActivation(t *testing.T) {
	engine, writer, repo, id := setupEngine(t, act("dev-1", false))
	repo.execErr = errors.New("db locked")

	exec, err := engine.Activate(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, []string{"dev-1"}, writer.written())
}

func TestActivate_NilRepository(t *testing.T) {
	reg := NewRegistry(newMockRepository())
	s := &Scene{Name: "No History", Enabled: true, Actions: []Action{act("dev-1", false)}}
	require.NoError(t, reg.CreateScene(context.Background(), s))

	engine := NewEngine(reg, &mockWriter{}, nil)
	exec, err := engine.Activate(context.Background(), s.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, exec.Status)
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "cancelled"},
		{lighting.ErrNotFound, "not_found"},
		{lighting.ErrInvalidState, "invalid_state"},
		{&lighting.PartialFailureError{ExternalID: "1", Failed: map[lighting.FieldGroup]error{
			lighting.GroupColor: errors.New("x"),
		}}, "partial_failure"},
		{lighting.ErrNotConnected, "connection"},
		{lighting.ErrNoCredential, "connection"},
		{lighting.ErrDeviceUnreachable, "unreachable"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, failureKind(tt.err), tt.err.Error())
	}
}
