package httpapi

import (
	"net/http"
	"strings"

	"cityfix/api/internal/lifecycle"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

// Worker task routes: a task is a request assigned to the calling worker.

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	_, workerID, ok := requireRole(w, r, workflow.RoleWorker)
	if !ok {
		return
	}

	var statuses []string
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		status := workflow.NormalizeStatus(raw)
		if status == "" {
			continue
		}
		valid := false
		for _, known := range workflow.AllStatuses() {
			if known == status {
				valid = true
				break
			}
		}
		if !valid {
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "unknown status filter", nil)
			return
		}
		statuses = append(statuses, status)
	}

	limit, offset := pagination(r)
	reqs, err := s.Requests.ListByWorker(r.Context(), workerID, statuses, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"tasks": toRequestResponses(reqs)})
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	_, workerID, ok := requireRole(w, r, workflow.RoleWorker)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	req, err := s.Requests.StartWork(r.Context(), requestID, workerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

type completeTaskBody struct {
	AfterPhotos []string `json:"afterPhotos"`
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	_, workerID, ok := requireRole(w, r, workflow.RoleWorker)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body completeTaskBody
	if !decodeJSON(w, r, &body) {
		return
	}

	req, err := s.Requests.CompleteWork(r.Context(), requestID, workerID, body.AfterPhotos)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}
