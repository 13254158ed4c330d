package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cityfix/api/internal/lifecycle"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

type createRequestBody struct {
	Description  string   `json:"description"`
	Priority     string   `json:"priority"`
	CategoryID   *string  `json:"categoryId"`
	Lat          *float64 `json:"lat"`
	Lng          *float64 `json:"lng"`
	Address      string   `json:"address"`
	BeforePhotos []string `json:"beforePhotos"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	_, citizenID, ok := requireRole(w, r, workflow.RoleCitizen)
	if !ok {
		return
	}
	var body createRequestBody
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Lat == nil || body.Lng == nil {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "lat and lng are required", nil)
		return
	}

	var categoryID *uuid.UUID
	if body.CategoryID != nil && strings.TrimSpace(*body.CategoryID) != "" {
		parsed, err := uuid.Parse(*body.CategoryID)
		if err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "invalid categoryId", nil)
			return
		}
		if _, err := s.Categories.GetCategoryByID(r.Context(), parsed.String()); err != nil {
			httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "unknown categoryId", nil)
			return
		}
		categoryID = &parsed
	}

	address := strings.TrimSpace(body.Address)
	if address == "" && s.Geo != nil {
		if result, err := s.Geo.Reverse(r.Context(), *body.Lat, *body.Lng); err == nil {
			address = result.Address
		} else {
			s.Logger.Debug(r.Context(), "geocode_skip", "reverse geocode failed", slog.String("error", err.Error()))
		}
	}

	req, err := lifecycle.NewRequest(citizenID, categoryID, body.Description, body.Priority, *body.Lat, *body.Lng, body.BeforePhotos, address, s.Policy, time.Now().UTC())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	created, err := s.Requests.CreateRequest(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) handleListOwnRequests(w http.ResponseWriter, r *http.Request) {
	_, citizenID, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit, offset := pagination(r)
	reqs, err := s.Requests.ListByCitizen(r.Context(), citizenID, limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"requests": toRequestResponses(reqs)})
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	req, err := s.Requests.GetRequestByID(r.Context(), requestID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// Visible to the owner, the assigned worker, and admins.
	allowed := actor.Role == workflow.RoleAdmin ||
		req.CitizenID == actorID ||
		(req.WorkerID != nil && *req.WorkerID == actorID)
	if !allowed {
		httpx.WriteError(w, r, http.StatusForbidden, lifecycle.CodeForbidden, "not allowed to view this request", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

type confirmBody struct {
	Rating *int `json:"rating"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	_, citizenID, ok := requireRole(w, r, workflow.RoleCitizen)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var body confirmBody
	if r.ContentLength != 0 && !decodeJSON(w, r, &body) {
		return
	}

	req, err := s.Requests.Confirm(r.Context(), requestID, citizenID, body.Rating)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) handleRework(w http.ResponseWriter, r *http.Request) {
	_, citizenID, ok := requireRole(w, r, workflow.RoleCitizen)
	if !ok {
		return
	}
	requestID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	req, err := s.Requests.Rework(r.Context(), requestID, citizenID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestResponse(req))
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
