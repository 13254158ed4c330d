package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/models"
	"cityfix/shared/actorx"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

func statusForCode(code string) int {
	switch code {
	case lifecycle.CodeInvalidInput, lifecycle.CodeInvalidDeadline, lifecycle.CodeInvalidPenalty,
		lifecycle.CodeRatingRequired, lifecycle.CodePhotoRequired:
		return http.StatusBadRequest
	case lifecycle.CodeForbidden:
		return http.StatusForbidden
	case lifecycle.CodeNotFound:
		return http.StatusNotFound
	case lifecycle.CodeClosedRequest, lifecycle.CodeNotDone, lifecycle.CodeNotAssigned,
		lifecycle.CodeNotInProgress, lifecycle.CodeWorkerMissing:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *lifecycle.Error
	if errors.As(err, &domainErr) {
		httpx.WriteError(w, r, statusForCode(domainErr.Code), domainErr.Code, domainErr.Message, nil)
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteError(w, r, http.StatusNotFound, lifecycle.CodeNotFound, "resource not found", nil)
		return
	}
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
}

// requireActor returns the caller's identity or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (actorx.Actor, uuid.UUID, bool) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing actor context", nil)
		return actorx.Actor{}, uuid.Nil, false
	}
	id, err := uuid.Parse(actor.ID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid actor id", nil)
		return actorx.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

// requireRole enforces a role on top of requireActor, writing a 403 on
// mismatch. Admins pass any role check.
func requireRole(w http.ResponseWriter, r *http.Request, role string) (actorx.Actor, uuid.UUID, bool) {
	actor, id, ok := requireActor(w, r)
	if !ok {
		return actorx.Actor{}, uuid.Nil, false
	}
	if actor.Role != role && actor.Role != workflow.RoleAdmin {
		httpx.WriteError(w, r, http.StatusForbidden, lifecycle.CodeForbidden, "insufficient role", nil)
		return actorx.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, lifecycle.CodeInvalidInput, "invalid json body", nil)
		return false
	}
	return true
}

type statusChangeResponse struct {
	EventType   string     `json:"eventType"`
	FromStatus  *string    `json:"fromStatus,omitempty"`
	ToStatus    *string    `json:"toStatus,omitempty"`
	OccurredAt  time.Time  `json:"occurredAt"`
	ActorUserID *uuid.UUID `json:"actorUserId,omitempty"`
	ActorRole   string     `json:"actorRole,omitempty"`
}

type requestResponse struct {
	ID                 uuid.UUID              `json:"id"`
	CitizenID          uuid.UUID              `json:"citizenId"`
	WorkerID           *uuid.UUID             `json:"workerId,omitempty"`
	CategoryID         *uuid.UUID             `json:"categoryId,omitempty"`
	Description        string                 `json:"description"`
	Priority           string                 `json:"priority"`
	Status             string                 `json:"status"`
	Lat                float64                `json:"lat"`
	Lng                float64                `json:"lng"`
	Address            string                 `json:"address,omitempty"`
	BeforePhotos       []string               `json:"beforePhotos"`
	AfterPhotos        []string               `json:"afterPhotos"`
	Deadline           time.Time              `json:"deadline"`
	Overdue            bool                   `json:"overdue"`
	ReworkCount        int                    `json:"reworkCount"`
	Rating             *int                   `json:"rating,omitempty"`
	WorkStartedAt      *time.Time             `json:"workStartedAt,omitempty"`
	WorkEndedAt        *time.Time             `json:"workEndedAt,omitempty"`
	CitizenConfirmedAt *time.Time             `json:"citizenConfirmedAt,omitempty"`
	AdminRejectedAt    *time.Time             `json:"adminRejectedAt,omitempty"`
	AdminPenaltyPoints *int                   `json:"adminPenaltyPoints,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
	UpdatedAt          time.Time              `json:"updatedAt"`
	StatusHistory      []statusChangeResponse `json:"statusHistory,omitempty"`
}

func toRequestResponse(req models.Request) requestResponse {
	out := requestResponse{
		ID:                 req.RequestID,
		CitizenID:          req.CitizenID,
		WorkerID:           req.WorkerID,
		CategoryID:         req.CategoryID,
		Description:        req.Description,
		Priority:           req.Priority,
		Status:             req.Status,
		Lat:                req.Lat,
		Lng:                req.Lng,
		Address:            req.Address,
		BeforePhotos:       emptyIfNil(req.BeforePhotos),
		AfterPhotos:        emptyIfNil(req.AfterPhotos),
		Deadline:           req.Deadline,
		Overdue:            req.Overdue,
		ReworkCount:        req.ReworkCount,
		Rating:             req.Rating,
		WorkStartedAt:      req.WorkStartedAt,
		WorkEndedAt:        req.WorkEndedAt,
		CitizenConfirmedAt: req.CitizenConfirmedAt,
		AdminRejectedAt:    req.AdminRejectedAt,
		AdminPenaltyPoints: req.AdminPenaltyPoints,
		CreatedAt:          req.CreatedAt,
		UpdatedAt:          req.UpdatedAt,
	}
	for _, entry := range req.StatusHistory {
		out.StatusHistory = append(out.StatusHistory, statusChangeResponse{
			EventType:   entry.EventType,
			FromStatus:  entry.FromStatus,
			ToStatus:    entry.ToStatus,
			OccurredAt:  entry.OccurredAt,
			ActorUserID: entry.ActorUserID,
			ActorRole:   entry.ActorRole,
		})
	}
	return out
}

func toRequestResponses(reqs []models.Request) []requestResponse {
	out := make([]requestResponse, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestResponse(req))
	}
	return out
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
