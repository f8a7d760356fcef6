package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-lighting/internal/audit"
	"github.com/nerrad567/gray-logic-lighting/internal/auth"
	"github.com/nerrad567/gray-logic-lighting/internal/scene"
)

// sceneRoutes mounts /scenes. Reading needs device:read, activation
// device:operate and editing device:configure.
func (s *Server) sceneRoutes(r chi.Router) {
	r.With(s.requirePermission(auth.PermDeviceRead)).Group(func(r chi.Router) {
		r.Get("/", s.handleListScenes)
		r.Get("/{id}", s.handleGetScene)
		r.Get("/{id}/executions", s.handleListSceneExecutions)
	})

	r.With(s.requirePermission(auth.PermDeviceOperate)).
		Post("/{id}/activate", s.handleActivateScene)

	r.With(s.requirePermission(auth.PermDeviceConfigure)).Group(func(r chi.Router) {
		r.Post("/", s.handleCreateScene)
		r.Put("/{id}", s.handleUpdateScene)
		r.Delete("/{id}", s.handleDeleteScene)
	})
}

// sceneRequest is the body of POST /scenes and PUT /scenes/{id}.
type sceneRequest struct {
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	RoomID    *string        `json:"room_id"`
	Icon      *string        `json:"icon"`
	Enabled   *bool          `json:"enabled"`
	Actions   []scene.Action `json:"actions"`
	SortOrder int            `json:"sort_order"`
}

func (req sceneRequest) toScene(id string) *scene.Scene {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &scene.Scene{
		ID:        id,
		Name:      req.Name,
		Slug:      req.Slug,
		RoomID:    req.RoomID,
		Icon:      req.Icon,
		Enabled:   enabled,
		Actions:   req.Actions,
		SortOrder: req.SortOrder,
	}
}

func decodeSceneRequest(w http.ResponseWriter, r *http.Request) (sceneRequest, bool) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req sceneRequest
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, "invalid scene body: "+err.Error())
		return req, false
	}
	return req, true
}

// handleListScenes returns every scene. Query parameter room_id filters by
// room.
func (s *Server) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := s.scenes.ListScenes(r.Context(), r.URL.Query().Get("room_id"))
	if err != nil {
		s.logger.Error("listing scenes failed", "error", err)
		writeInternalError(w, "failed to list scenes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": scenes, "count": len(scenes)})
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	sc, err := s.scenes.GetScene(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeSceneError(w, err, "failed to get scene")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSceneRequest(w, r)
	if !ok {
		return
	}

	sc := req.toScene("")
	err := s.scenes.CreateScene(r.Context(), sc)
	s.recordAudit(r, audit.Entry{Action: audit.ActionSceneChange, Details: map[string]any{
		"scene_id": sc.ID,
		"op":       "create",
	}}, err)
	if err != nil {
		s.writeSceneError(w, err, "failed to create scene")
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleUpdateScene(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSceneRequest(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.scenes.GetScene(r.Context(), id); err != nil {
		s.writeSceneError(w, err, "failed to update scene")
		return
	}

	sc := req.toScene(id)
	err := s.scenes.UpdateScene(r.Context(), sc)
	s.recordAudit(r, audit.Entry{Action: audit.ActionSceneChange, Details: map[string]any{
		"scene_id": id,
		"op":       "update",
	}}, err)
	if err != nil {
		s.writeSceneError(w, err, "failed to update scene")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.scenes.DeleteScene(r.Context(), id)
	if errors.Is(err, scene.ErrSceneNotFound) {
		writeNotFound(w, "scene not found")
		return
	}
	s.recordAudit(r, audit.Entry{Action: audit.ActionSceneChange, Details: map[string]any{
		"scene_id": id,
		"op":       "delete",
	}}, err)
	if err != nil {
		s.writeSceneError(w, err, "failed to delete scene")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateScene runs a scene and returns its execution record. Action
// failures are reported in the record with a 200; only a scene that cannot
// start is an error.
func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var subject string
	if claims := claimsFromContext(r.Context()); claims != nil {
		subject = claims.Subject
	}

	exec, err := s.sceneEngine.Activate(r.Context(), id, subject)
	if errors.Is(err, scene.ErrSceneNotFound) {
		writeNotFound(w, "scene not found")
		return
	}

	details := map[string]any{"scene_id": id}
	if exec != nil {
		details["execution_id"] = exec.ID
		details["status"] = string(exec.Status)
	}
	s.recordAudit(r, audit.Entry{Action: audit.ActionSceneRun, Details: details}, err)
	if err != nil {
		s.writeSceneError(w, err, "failed to activate scene")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleListSceneExecutions returns recent activations, newest first.
// Query parameter limit caps the count.
func (s *Server) handleListSceneExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	execs, err := s.scenes.ListExecutions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeSceneError(w, err, "failed to list executions")
		return
	}
	if execs == nil {
		execs = []scene.Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs, "count": len(execs)})
}

func (s *Server) writeSceneError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, scene.ErrSceneNotFound):
		writeNotFound(w, "scene not found")
	case errors.Is(err, scene.ErrSceneExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, scene.ErrSceneDisabled), scene.IsValidation(err):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
