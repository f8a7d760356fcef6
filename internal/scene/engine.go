package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// maxSceneExecutionTime bounds one activation, delays included.
const maxSceneExecutionTime = 60 * time.Second

// recordTimeout bounds the execution-history writes, which outlive a
// cancelled activation.
const recordTimeout = 2 * time.Second

// StateWriter applies a partial state to a catalogued device and reports
// the adapter's failure, if any. *device.Reconciler implements it.
type StateWriter interface {
	WriteState(ctx context.Context, id string, patch lighting.State) (*device.Device, error)
}

// Broadcaster pushes activation results to live clients. The API's
// WebSocket hub implements it.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Engine activates scenes.
//
// Actions are split into sequential groups by their Parallel flag; the
// actions of one group run concurrently. A failed action stops the
// remaining groups unless it has ContinueOnError set.
//
// Activate is safe for concurrent use.
type Engine struct {
	registry *Registry
	writer   StateWriter
	repo     Repository

	mu     sync.RWMutex
	hub    Broadcaster
	logger Logger
}

// NewEngine creates an engine. repo records execution history and may be
// nil.
func NewEngine(registry *Registry, writer StateWriter, repo Repository) *Engine {
	return &Engine{
		registry: registry,
		writer:   writer,
		repo:     repo,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// SetBroadcaster sets where activation results are announced.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	e.hub = b
	e.mu.Unlock()
}

func (e *Engine) deps() (Broadcaster, Logger) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hub, e.logger
}

// indexedAction is an action with its position in Scene.Actions.
type indexedAction struct {
	index int
	Action
}

// Activate applies every action of a scene and returns the execution
// record. It returns an error only when the scene cannot be started; action
// failures are reported in the record.
func (e *Engine) Activate(ctx context.Context, sceneID, subject string) (*Execution, error) {
	ctx, cancel := context.WithTimeout(ctx, maxSceneExecutionTime)
	defer cancel()

	s, err := e.registry.GetScene(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if !s.Enabled {
		return nil, ErrSceneDisabled
	}

	hub, logger := e.deps()

	started := time.Now().UTC()
	exec := &Execution{
		ID:           GenerateID(),
		SceneID:      s.ID,
		Subject:      subject,
		Status:       StatusRunning,
		ActionsTotal: len(s.Actions),
		StartedAt:    started,
	}
	e.record(ctx, logger, exec, true)

	logger.Info("scene activation started",
		"scene_id", s.ID,
		"scene_name", s.Name,
		"execution_id", exec.ID,
		"actions", len(s.Actions),
	)

	aborted := false
	for _, group := range groupActions(s.Actions) {
		if aborted {
			exec.ActionsSkipped += len(group)
			continue
		}
		if ctx.Err() != nil {
			exec.ActionsSkipped += len(group)
			exec.Status = StatusCancelled
			aborted = true
			continue
		}

		failures := e.executeGroup(ctx, logger, s.ID, group)
		exec.ActionsCompleted += len(group) - len(failures)
		exec.ActionsFailed += len(failures)
		exec.Failures = append(exec.Failures, failures...)

		for _, f := range failures {
			if !s.Actions[f.ActionIndex].ContinueOnError {
				aborted = true
			}
		}
	}

	done := time.Now().UTC()
	exec.CompletedAt = &done
	exec.DurationMS = int(done.Sub(started).Milliseconds())

	switch {
	case exec.Status == StatusCancelled:
	case ctx.Err() != nil && (exec.ActionsFailed > 0 || exec.ActionsSkipped > 0):
		exec.Status = StatusCancelled
	case exec.ActionsFailed > 0 && aborted:
		exec.Status = StatusFailed
	case exec.ActionsFailed > 0:
		exec.Status = StatusPartial
	default:
		exec.Status = StatusCompleted
	}
	e.record(ctx, logger, exec, false)

	logger.Info("scene activation complete",
		"scene_id", s.ID,
		"execution_id", exec.ID,
		"status", exec.Status,
		"completed", exec.ActionsCompleted,
		"failed", exec.ActionsFailed,
		"skipped", exec.ActionsSkipped,
		"duration_ms", exec.DurationMS,
	)

	if hub != nil {
		hub.Broadcast("scene_activated", map[string]any{
			"scene_id":     s.ID,
			"scene_name":   s.Name,
			"execution_id": exec.ID,
			"status":       exec.Status,
			"duration_ms":  exec.DurationMS,
		})
	}
	return exec, nil
}

// record stores the execution. History is best-effort: a failed write is
// logged and the activation carries on.
func (e *Engine) record(ctx context.Context, logger Logger, exec *Execution, create bool) {
	if e.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	var err error
	if create {
		err = e.repo.CreateExecution(ctx, exec)
	} else {
		err = e.repo.UpdateExecution(ctx, exec)
	}
	if err != nil {
		logger.Warn("recording scene execution failed", "execution_id", exec.ID, "error", err)
	}
}

// executeGroup runs the actions of one group concurrently and returns the
// failures in action order.
func (e *Engine) executeGroup(ctx context.Context, logger Logger, sceneID string, group []indexedAction) []ActionFailure {
	results := make([]error, len(group))

	var wg sync.WaitGroup
	for i, a := range group {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = e.executeAction(ctx, a)
		}()
	}
	wg.Wait()

	var failures []ActionFailure
	for i, err := range results {
		if err == nil {
			continue
		}
		a := group[i]
		logger.Warn("scene action failed",
			"scene_id", sceneID,
			"device_id", a.DeviceID,
			"action", a.index,
			"error", err,
		)
		failures = append(failures, ActionFailure{
			ActionIndex: a.index,
			DeviceID:    a.DeviceID,
			Kind:        failureKind(err),
			Message:     err.Error(),
		})
	}
	return failures
}

func (e *Engine) executeAction(ctx context.Context, a indexedAction) error {
	if a.DelayMS > 0 {
		timer := time.NewTimer(time.Duration(a.DelayMS) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return fmt.Errorf("action delayed: %w", ctx.Err())
		}
	}

	if _, err := e.writer.WriteState(ctx, a.DeviceID, a.State.Clone()); err != nil {
		return fmt.Errorf("device %q: %w", a.DeviceID, err)
	}
	return nil
}

// groupActions splits actions into sequential groups. An action with
// Parallel set joins the current group; any other action starts a new one.
//
//	actions: [A, B(parallel), C(parallel), D]
//	groups:  [[A, B, C], [D]]
func groupActions(actions []Action) [][]indexedAction {
	if len(actions) == 0 {
		return nil
	}

	var groups [][]indexedAction
	current := []indexedAction{{index: 0, Action: actions[0]}}
	for i, a := range actions[1:] {
		ia := indexedAction{index: i + 1, Action: a}
		if a.Parallel {
			current = append(current, ia)
			continue
		}
		groups = append(groups, current)
		current = []indexedAction{ia}
	}
	return append(groups, current)
}

// failureKind names the error class of a failed action.
func failureKind(err error) string {
	var (
		connErr    *lighting.ConnectionError
		partialErr *lighting.PartialFailureError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, lighting.ErrNotFound):
		return "not_found"
	case errors.Is(err, lighting.ErrInvalidState):
		return "invalid_state"
	case errors.As(err, &partialErr):
		return "partial_failure"
	case errors.As(err, &connErr), errors.Is(err, lighting.ErrNotConnected), errors.Is(err, lighting.ErrNoCredential):
		return "connection"
	case errors.Is(err, lighting.ErrDeviceUnreachable):
		return "unreachable"
	default:
		return "error"
	}
}
