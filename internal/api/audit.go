package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-lighting/internal/audit"
)

// auditWriteTimeout bounds an audit insert made after the request context
// may already be cancelled.
const auditWriteTimeout = 2 * time.Second

// recordAudit stores e with the caller's subject and the outcome of err.
// Failures are logged and never reach the client.
func (s *Server) recordAudit(r *http.Request, e audit.Entry, err error) {
	if s.audit == nil {
		return
	}
	if claims := claimsFromContext(r.Context()); claims != nil {
		e.Subject = claims.Subject
	}
	e.Outcome = audit.OutcomeOK
	if err != nil {
		e.Outcome = audit.OutcomeFailed
		if e.Details == nil {
			e.Details = map[string]any{}
		}
		e.Details["error"] = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditWriteTimeout)
	defer cancel()
	if createErr := s.audit.Create(ctx, &e); createErr != nil {
		s.logger.Warn("audit write failed", "action", e.Action, "error", createErr)
	}
}

// handleListAudit returns recorded administrative actions, newest first.
// Query parameters: action, device_id, subject, limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusOK, audit.ListResult{Entries: []audit.Entry{}})
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:   audit.Action(q.Get("action")),
		DeviceID: q.Get("device_id"),
		Subject:  q.Get("subject"),
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
