package lifecycle

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"cityfix/api/internal/models"
	"cityfix/api/internal/scoring"
	"cityfix/shared/sla"
	"cityfix/shared/workflow"
)

const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeNotFound        = "NOT_FOUND"
	CodeForbidden       = "FORBIDDEN"
	CodeClosedRequest   = "CLOSED_REQUEST"
	CodeInvalidDeadline = "INVALID_DEADLINE"
	CodePhotoRequired   = "PHOTO_REQUIRED"
	CodeNotDone         = "NOT_DONE"
	CodeRatingRequired  = "RATING_REQUIRED"
	CodeWorkerMissing   = "WORKER_MISSING"
	CodeInvalidPenalty  = "INVALID_PENALTY"
	CodeNotAssigned     = "NOT_ASSIGNED"
	CodeNotInProgress   = "NOT_IN_PROGRESS"
)

// Error is a domain rule violation. The code maps onto the HTTP error
// envelope; the message is safe to return to clients.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(code string, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeOf extracts the domain code from an error, or "" for non-domain errors.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

const minDescriptionLen = 4

// NewRequest validates citizen input and builds an ACCEPTED request with its
// deadline computed from the SLA policy. The creation history entry is
// attributed to the citizen.
func NewRequest(citizenID uuid.UUID, categoryID *uuid.UUID, description string, priority string, lat float64, lng float64, beforePhotos []string, address string, policy sla.Policy, now time.Time) (models.Request, error) {
	description = strings.TrimSpace(description)
	if len([]rune(description)) < minDescriptionLen {
		return models.Request{}, newError(CodeInvalidInput, "description must be at least 4 characters")
	}

	priority = sla.NormalizePriority(priority)
	if priority == "" {
		priority = sla.PriorityMedium
	}
	if !sla.ValidPriority(priority) {
		return models.Request{}, newError(CodeInvalidInput, "priority must be low, medium or high")
	}

	if !isFinite(lat) || !isFinite(lng) {
		return models.Request{}, newError(CodeInvalidInput, "lat and lng must be finite numbers")
	}

	req := models.Request{
		RequestID:    uuid.New(),
		CitizenID:    citizenID,
		CategoryID:   categoryID,
		Description:  description,
		Priority:     priority,
		Status:       workflow.StatusAccepted,
		Lat:          lat,
		Lng:          lng,
		Address:      strings.TrimSpace(address),
		BeforePhotos: cleanPhotos(beforePhotos),
		Deadline:     policy.ComputeDeadline(priority, now),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	appendHistory(&req, "", workflow.StatusAccepted, workflow.EventRequestCreated, &citizenID, workflow.RoleCitizen, now, nil)
	return req, nil
}

// Assign routes a request to a worker. Allowed from any open status,
// including reassignment away from an in-progress worker. An optional
// deadline override in whole hours replaces the SLA deadline.
func Assign(req *models.Request, workerID uuid.UUID, deadlineHours *int, actorID uuid.UUID, now time.Time) error {
	if workflow.IsClosed(req.Status) {
		return newError(CodeClosedRequest, "request is closed")
	}
	if deadlineHours != nil {
		deadline, ok := sla.DeadlineForHours(*deadlineHours, now)
		if !ok {
			return newError(CodeInvalidDeadline, "deadlineHours must be between 1 and 720")
		}
		req.Deadline = deadline
	}

	from := req.Status
	req.WorkerID = &workerID
	req.Status = workflow.StatusAssigned
	req.UpdatedAt = now
	appendHistory(req, from, workflow.StatusAssigned, workflow.EventRequestAssigned, &actorID, workflow.RoleAdmin, now, map[string]any{"worker_id": workerID.String()})
	return nil
}

// Start moves an assigned request into active work. Only the assigned worker
// may start, and only from ASSIGNED. Repeating start on a request already
// IN_PROGRESS is a no-op.
func Start(req *models.Request, workerID uuid.UUID, now time.Time) error {
	if workflow.IsClosed(req.Status) {
		return newError(CodeClosedRequest, "request is closed")
	}
	if req.WorkerID == nil || *req.WorkerID != workerID {
		return newError(CodeForbidden, "only the assigned worker can start work")
	}
	if req.Status == workflow.StatusInProgress {
		return nil
	}
	if req.Status != workflow.StatusAssigned {
		return newError(CodeNotAssigned, "request is not in ASSIGNED status")
	}

	from := req.Status
	started := now
	req.WorkStartedAt = &started
	req.WorkEndedAt = nil
	req.Status = workflow.StatusInProgress
	req.UpdatedAt = now
	appendHistory(req, from, workflow.StatusInProgress, workflow.EventWorkStarted, &workerID, workflow.RoleWorker, now, nil)
	return nil
}

// Complete closes out active work. The assigned worker must attach at least
// one after photo; photos accumulate across rework rounds.
func Complete(req *models.Request, workerID uuid.UUID, afterPhotos []string, now time.Time) error {
	if workflow.IsClosed(req.Status) {
		return newError(CodeClosedRequest, "request is closed")
	}
	if req.WorkerID == nil || *req.WorkerID != workerID {
		return newError(CodeForbidden, "only the assigned worker can complete work")
	}
	if req.Status != workflow.StatusInProgress {
		return newError(CodeNotInProgress, "request is not in IN_PROGRESS status")
	}
	photos := cleanPhotos(afterPhotos)
	if len(photos) == 0 {
		return newError(CodePhotoRequired, "at least one after photo is required")
	}

	from := req.Status
	ended := now
	req.AfterPhotos = append(req.AfterPhotos, photos...)
	req.WorkEndedAt = &ended
	req.Status = workflow.StatusDone
	req.UpdatedAt = now
	appendHistory(req, from, workflow.StatusDone, workflow.EventWorkCompleted, &workerID, workflow.RoleWorker, now, map[string]any{"after_photos": len(photos)})
	return nil
}

// ConfirmOutcome reports what a confirmation changed. A repeat confirmation
// is a no-op with FirstConfirm false.
type ConfirmOutcome struct {
	FirstConfirm bool
	Rating       int
	WorkerID     uuid.UUID
}

// Confirm records the owning citizen's acceptance of a DONE request. The
// first confirmation requires a rating and an assigned worker; the rating
// feeds the worker's running average and the citizen earns reward points.
func Confirm(req *models.Request, citizenID uuid.UUID, rating *int, now time.Time) (ConfirmOutcome, error) {
	if req.CitizenID != citizenID {
		return ConfirmOutcome{}, newError(CodeForbidden, "only the request owner can confirm")
	}
	if req.Status != workflow.StatusDone {
		return ConfirmOutcome{}, newError(CodeNotDone, "request is not in DONE status")
	}
	if req.CitizenConfirmedAt != nil {
		return ConfirmOutcome{FirstConfirm: false}, nil
	}
	if rating == nil || !scoring.ValidRating(*rating) {
		return ConfirmOutcome{}, newError(CodeRatingRequired, "rating is required (1..5) on first confirmation")
	}
	if req.WorkerID == nil {
		return ConfirmOutcome{}, newError(CodeWorkerMissing, "request has no assigned worker to rate")
	}

	confirmed := now
	r := *rating
	req.CitizenConfirmedAt = &confirmed
	req.Rating = &r
	req.UpdatedAt = now
	appendHistory(req, req.Status, req.Status, workflow.EventRequestConfirmed, &citizenID, workflow.RoleCitizen, now, map[string]any{"rating": r})
	return ConfirmOutcome{FirstConfirm: true, Rating: r, WorkerID: *req.WorkerID}, nil
}

// Rework reopens a DONE request because the citizen disputes the fix. The
// completion evidence of the disputed round is cleared and the rework counter
// advances.
func Rework(req *models.Request, citizenID uuid.UUID, now time.Time) error {
	if req.CitizenID != citizenID {
		return newError(CodeForbidden, "only the request owner can request rework")
	}
	if req.Status != workflow.StatusDone {
		return newError(CodeNotDone, "request is not in DONE status")
	}

	from := req.Status
	req.Status = workflow.StatusInProgress
	req.WorkEndedAt = nil
	req.CitizenConfirmedAt = nil
	req.Rating = nil
	req.ReworkCount++
	req.UpdatedAt = now
	appendHistory(req, from, workflow.StatusInProgress, workflow.EventReworkRequested, &citizenID, workflow.RoleCitizen, now, map[string]any{"rework_count": req.ReworkCount})
	return nil
}

// AdminReject terminates an open request and strips the work assignment. The
// penalty in [0, 100] is deducted from the citizen's points by the caller.
func AdminReject(req *models.Request, penalty int, actorID uuid.UUID, now time.Time) error {
	if workflow.IsClosed(req.Status) {
		return newError(CodeClosedRequest, "request is closed")
	}
	if !scoring.ValidPenalty(penalty) {
		return newError(CodeInvalidPenalty, "penalty must be an integer between 0 and 100")
	}

	from := req.Status
	rejected := now
	req.WorkerID = nil
	req.WorkStartedAt = nil
	req.WorkEndedAt = nil
	req.AdminRejectedAt = &rejected
	req.AdminPenaltyPoints = &penalty
	req.Status = workflow.StatusRejected
	req.UpdatedAt = now
	appendHistory(req, from, workflow.StatusRejected, workflow.EventRequestRejected, &actorID, workflow.RoleAdmin, now, map[string]any{"penalty": penalty})
	return nil
}

// RefreshOverdue recomputes the stored overdue flag and reports whether it
// changed. Reads never trust the stored flag; this only keeps the persisted
// column close to the truth.
func RefreshOverdue(req *models.Request, policy sla.Policy, now time.Time) bool {
	overdue := policy.IsOverdue(req.Status, req.Deadline, now)
	if overdue == req.Overdue {
		return false
	}
	req.Overdue = overdue
	return true
}

// CloseAt returns the instant a request counts as closed for duration
// analytics: work end when present, otherwise citizen confirmation.
func CloseAt(req models.Request) *time.Time {
	if req.WorkEndedAt != nil {
		return req.WorkEndedAt
	}
	return req.CitizenConfirmedAt
}

func appendHistory(req *models.Request, from string, to string, eventType string, actorID *uuid.UUID, actorRole string, now time.Time, payload map[string]any) {
	entry := models.StatusChange{
		RequestID:   req.RequestID,
		EventType:   eventType,
		OccurredAt:  now,
		ActorUserID: actorID,
		ActorRole:   actorRole,
	}
	if from != "" {
		entry.FromStatus = &from
	}
	if to != "" {
		entry.ToStatus = &to
	}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			entry.Payload = b
		}
	}
	req.StatusHistory = append(req.StatusHistory, entry)
}

func cleanPhotos(photos []string) []string {
	out := make([]string, 0, len(photos))
	for _, p := range photos {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
