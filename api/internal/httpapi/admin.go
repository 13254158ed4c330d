package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/repos"
	"cityfix/api/internal/scoring"
	"cityfix/shared/httpx"
	"cityfix/shared/sla"
	"cityfix/shared/workflow"
)

func (s *Server) handleAdminListRequests(w http.ResponseWriter, r *http.Request) {
	_, _, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := repos.ListFilter{
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
	}
	if filter.Status != "" {
		valid := false
		for _, known := range workflow.AllStatuses() {
			if known == workflow.NormalizeStatus(filter.Status) {
				valid = true
				break
			}
		}
		if !valid {
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "unknown status filter", nil)
			return
		}
	}
	if filter.Priority != "" && !sla.ValidPriority(filter.Priority) {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "unknown priority filter", nil)
		return
	}
	if raw := strings.TrimSpace(q.Get("categoryId")); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "invalid categoryId filter", nil)
			return
		}
		filter.CategoryID = &parsed
	}
	if raw := strings.TrimSpace(q.Get("overdue")); raw != "" {
		switch strings.ToLower(raw) {
		case "true":
			v := true
			filter.Overdue = &v
		case "false":
			v := false
			filter.Overdue = &v
		default:
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "overdue filter must be true or false", nil)
			return
		}
	}
	filter.Limit, filter.Offset = pagination(r)

	reqs, err := s.Requests.ListAll(r.Context(), filter)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": toRequestResponses(reqs)})
}

type assignBody struct {
	WorkerID      string `json:"workerId"`
	DeadlineHours *int   `json:"deadlineHours"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	_, adminID, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body assignBody
	if !decodeJSON(w, r, &body) {
		return
	}
	workerID, err := uuid.Parse(strings.TrimSpace(body.WorkerID))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "invalid workerId", nil)
		return
	}

	req, err := s.Requests.Assign(r.Context(), requestID, workerID, body.DeadlineHours, adminID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

type rejectBody struct {
	Penalty *int `json:"penalty"`
}

func (s *Server) handleAdminReject(w http.ResponseWriter, r *http.Request) {
	_, adminID, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body rejectBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Penalty == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidPenalty, "penalty is required", nil)
		return
	}

	req, err := s.Requests.AdminReject(r.Context(), requestID, *body.Penalty, adminID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	_, _, ok := requireRole(w, r, workflow.RoleAdmin)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	workers, err := s.Users.ListWorkers(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	out := make([]map[string]any, 0, len(workers))
	for _, worker := range workers {
		out = append(out, map[string]any{
			"id":          worker.UserID,
			"displayName": worker.DisplayName,
			"ratingAvg":   scoring.EffectiveRating(worker.RatingAvg, worker.RatingCount),
			"ratingCount": worker.RatingCount,
			"createdAt":   worker.CreatedAt.Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"workers": out})
}
