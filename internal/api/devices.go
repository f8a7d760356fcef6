package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-lighting/internal/audit"
	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// handleListDevices returns every catalogued device, optionally filtered.
//
// Query parameters:
//   - protocol: bridge or mesh
//   - room_id: filter by room
//   - online: true or false
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices failed", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}

	q := r.URL.Query()
	protocol := q.Get("protocol")
	roomID := q.Get("room_id")
	online := q.Get("online")
	if online != "" && online != "true" && online != "false" {
		writeBadRequest(w, "online must be true or false")
		return
	}

	filtered := make([]device.Device, 0, len(devices))
	for _, d := range devices {
		if protocol != "" && string(d.Protocol) != protocol {
			continue
		}
		if roomID != "" && (d.RoomID == nil || *d.RoomID != roomID) {
			continue
		}
		if online != "" && d.Online != (online == "true") {
			continue
		}
		filtered = append(filtered, d)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": filtered, "count": len(filtered)})
}

// handleGetDevice returns one device, refreshed by a best-effort live read.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSetDeviceState writes a partial state to the device and returns the
// device as it stands afterwards.
func (s *Server) handleSetDeviceState(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var patch lighting.State
	if err := dec.Decode(&patch); err != nil {
		writeBadRequest(w, "invalid state body: "+err.Error())
		return
	}
	if patch.Reachable != nil {
		writeBadRequest(w, "reachable is read-only")
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.devices.SetState(r.Context(), id, patch)
	entry := audit.Entry{Action: audit.ActionSetState, DeviceID: id, Details: patchDetails(patch)}
	if d != nil {
		entry.Protocol = d.Protocol
	}
	s.recordAudit(r, entry, err)
	if err != nil {
		writeServiceError(w, err, "failed to set device state")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSyncDevices runs a full sync against every adapter. Failing
// adapters are reported in the result, not as an error status.
func (s *Server) handleSyncDevices(w http.ResponseWriter, r *http.Request) {
	result, err := s.devices.SyncAll(r.Context())
	s.recordAudit(r, audit.Entry{Action: audit.ActionSync, Details: map[string]any{
		"discovered": result.Discovered,
		"upserted":   result.Upserted,
		"errors":     len(result.Errors),
	}}, err)
	if err != nil {
		s.logger.Error("device sync failed", "error", err)
		writeInternalError(w, "device sync failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeleteDevice decommissions a device and removes it from the
// catalogue.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.devices.Decommission(r.Context(), id)
	if errors.Is(err, lighting.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	s.recordAudit(r, audit.Entry{Action: audit.ActionDecommission, DeviceID: id}, err)
	if err != nil {
		s.logger.Warn("decommission failed", "device_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commissionRequest is the body of POST /commissioning/{protocol}.
type commissionRequest struct {
	PairingCode string `json:"pairing_code"`
}

// handleCommission adds a device through the protocol's commissioning flow.
func (s *Server) handleCommission(w http.ResponseWriter, r *http.Request) {
	protocol := lighting.Protocol(chi.URLParam(r, "protocol"))

	var req commissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.PairingCode) == "" {
		writeBadRequest(w, "pairing_code is required")
		return
	}

	d, err := s.devices.Commission(r.Context(), protocol, req.PairingCode)
	entry := audit.Entry{Action: audit.ActionCommission, Protocol: protocol}
	if d != nil {
		entry.DeviceID = d.ID
		entry.Details = map[string]any{"external_id": d.ExternalID}
	}
	s.recordAudit(r, entry, err)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, d)
	case errors.Is(err, device.ErrNoAdapter), errors.Is(err, device.ErrCommissioningUnsupported):
		writeBadRequest(w, fmt.Sprintf("protocol %q cannot commission devices", protocol))
	default:
		s.logger.Warn("commissioning failed", "protocol", protocol, "error", err)
		writeServiceErrorOr(w, err, http.StatusBadGateway)
	}
}

// handleListRooms returns the rooms discovered by sync.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.devices.Rooms(r.Context())
	if err != nil {
		s.logger.Error("listing rooms failed", "error", err)
		writeInternalError(w, "failed to list rooms")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms, "count": len(rooms)})
}

// handleListAdapters reports each adapter's connection record.
func (s *Server) handleListAdapters(w http.ResponseWriter, _ *http.Request) {
	conns := make([]lighting.Connection, 0, len(s.adapters))
	for _, a := range s.adapters {
		conns = append(conns, a.Connection())
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapters": conns, "count": len(conns)})
}

// patchDetails flattens the fields present in a state patch for the audit
// trail.
func patchDetails(p lighting.State) map[string]any {
	out := map[string]any{}
	if p.On != nil {
		out["on"] = *p.On
	}
	if p.Brightness != nil {
		out["brightness"] = *p.Brightness
	}
	if p.Color != nil {
		out["color_x"] = p.Color.X
		out["color_y"] = p.Color.Y
	}
	if p.ColorTemperature != nil {
		out["color_temperature"] = *p.ColorTemperature
	}
	return out
}
