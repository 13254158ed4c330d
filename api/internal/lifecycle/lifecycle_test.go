package lifecycle

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"cityfix/shared/sla"
	"cityfix/shared/workflow"
)

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestNewRequestValidation(t *testing.T) {
	citizenID := uuid.New()
	policy := sla.DefaultPolicy()

	if _, err := NewRequest(citizenID, nil, "abc", "high", 0, 0, nil, "", policy, testNow); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for short description, got %v", err)
	}
	if _, err := NewRequest(citizenID, nil, "valid description", "urgent", 0, 0, nil, "", policy, testNow); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for unknown priority, got %v", err)
	}
	if _, err := NewRequest(citizenID, nil, "valid description", "high", math.NaN(), 0, nil, "", policy, testNow); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for NaN lat, got %v", err)
	}
	if _, err := NewRequest(citizenID, nil, "valid description", "high", 0, math.Inf(1), nil, "", policy, testNow); CodeOf(err) != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT for infinite lng, got %v", err)
	}
}

func TestNewRequestDefaults(t *testing.T) {
	citizenID := uuid.New()
	policy := sla.DefaultPolicy()

	req, err := NewRequest(citizenID, nil, "pothole on main street", "", 52.52, 13.405, []string{" ", "a.jpg"}, "", policy, testNow)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Priority != sla.PriorityMedium {
		t.Fatalf("expected default priority medium, got %q", req.Priority)
	}
	if req.Status != workflow.StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %q", req.Status)
	}
	if req.Deadline != testNow.Add(policy.MediumWindow) {
		t.Fatalf("unexpected deadline: %v", req.Deadline)
	}
	if len(req.BeforePhotos) != 1 || req.BeforePhotos[0] != "a.jpg" {
		t.Fatalf("expected blank photos dropped, got %v", req.BeforePhotos)
	}
	if len(req.StatusHistory) != 1 {
		t.Fatalf("expected one history entry, got %d", len(req.StatusHistory))
	}
	entry := req.StatusHistory[0]
	if entry.EventType != workflow.EventRequestCreated || entry.ActorRole != workflow.RoleCitizen {
		t.Fatalf("unexpected creation entry: %+v", entry)
	}
}

func TestAssignHappyPathAndDeadlineOverride(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	policy := sla.DefaultPolicy()

	req, err := NewRequest(citizenID, nil, "broken swing", "low", 1, 1, nil, "", policy, testNow)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	later := testNow.Add(5 * time.Minute)
	hours := 48
	if err := Assign(&req, workerID, &hours, adminID, later); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if req.Status != workflow.StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %q", req.Status)
	}
	if req.WorkerID == nil || *req.WorkerID != workerID {
		t.Fatalf("expected worker to be set")
	}
	if req.Deadline != later.Add(48*time.Hour) {
		t.Fatalf("expected overridden deadline, got %v", req.Deadline)
	}
	last := req.StatusHistory[len(req.StatusHistory)-1]
	if last.EventType != workflow.EventRequestAssigned || last.ActorRole != workflow.RoleAdmin {
		t.Fatalf("unexpected assignment entry: %+v", last)
	}
}

func TestAssignRejectsBadDeadlineAndClosedRequest(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "broken swing", "low", 1, 1, nil, "", sla.DefaultPolicy(), testNow)

	bad := 0
	if err := Assign(&req, workerID, &bad, adminID, testNow); CodeOf(err) != CodeInvalidDeadline {
		t.Fatalf("expected INVALID_DEADLINE, got %v", err)
	}
	bad = 721
	if err := Assign(&req, workerID, &bad, adminID, testNow); CodeOf(err) != CodeInvalidDeadline {
		t.Fatalf("expected INVALID_DEADLINE for 721, got %v", err)
	}

	req.Status = workflow.StatusRejected
	if err := Assign(&req, workerID, nil, adminID, testNow); CodeOf(err) != CodeClosedRequest {
		t.Fatalf("expected CLOSED_REQUEST, got %v", err)
	}
}

func TestStartRules(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	otherWorker := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "leaking hydrant", "high", 1, 1, nil, "", sla.DefaultPolicy(), testNow)

	if err := Start(&req, workerID, testNow); CodeOf(err) != CodeForbidden {
		t.Fatalf("expected FORBIDDEN before assignment, got %v", err)
	}

	if err := Assign(&req, workerID, nil, adminID, testNow); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := Start(&req, otherWorker, testNow); CodeOf(err) != CodeForbidden {
		t.Fatalf("expected FORBIDDEN for wrong worker, got %v", err)
	}

	started := testNow.Add(time.Minute)
	if err := Start(&req, workerID, started); err != nil {
		t.Fatalf("start: %v", err)
	}
	if req.Status != workflow.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %q", req.Status)
	}
	if req.WorkStartedAt == nil || !req.WorkStartedAt.Equal(started) {
		t.Fatalf("expected work start recorded")
	}

	history := len(req.StatusHistory)
	if err := Start(&req, workerID, started.Add(time.Minute)); err != nil {
		t.Fatalf("double start should be a no-op, got %v", err)
	}
	if len(req.StatusHistory) != history {
		t.Fatalf("double start must not append history")
	}
	if !req.WorkStartedAt.Equal(started) {
		t.Fatalf("double start must not move workStartedAt")
	}
}

func TestCompleteRequiresPhotosAndAccumulates(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "graffiti on wall", "medium", 1, 1, nil, "", sla.DefaultPolicy(), testNow)
	_ = Assign(&req, workerID, nil, adminID, testNow)
	_ = Start(&req, workerID, testNow)

	if err := Complete(&req, workerID, nil, testNow); CodeOf(err) != CodePhotoRequired {
		t.Fatalf("expected PHOTO_REQUIRED, got %v", err)
	}
	if err := Complete(&req, workerID, []string{"  "}, testNow); CodeOf(err) != CodePhotoRequired {
		t.Fatalf("expected PHOTO_REQUIRED for blank photos, got %v", err)
	}

	done := testNow.Add(10 * time.Minute)
	if err := Complete(&req, workerID, []string{"after1.jpg"}, done); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if req.Status != workflow.StatusDone || req.WorkEndedAt == nil {
		t.Fatalf("expected DONE with work end, got %q", req.Status)
	}

	if err := Rework(&req, citizenID, done.Add(time.Minute)); err != nil {
		t.Fatalf("rework: %v", err)
	}
	if err := Complete(&req, workerID, []string{"after2.jpg"}, done.Add(2*time.Minute)); err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if len(req.AfterPhotos) != 2 {
		t.Fatalf("expected after photos to accumulate across rework rounds, got %v", req.AfterPhotos)
	}
}

func TestConfirmFirstTimeAndIdempotence(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "dead tree branch", "medium", 1, 1, nil, "", sla.DefaultPolicy(), testNow)
	_ = Assign(&req, workerID, nil, adminID, testNow)
	_ = Start(&req, workerID, testNow)
	_ = Complete(&req, workerID, []string{"after.jpg"}, testNow)

	if _, err := Confirm(&req, uuid.New(), intPtr(5), testNow); CodeOf(err) != CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner, got %v", err)
	}
	if _, err := Confirm(&req, citizenID, nil, testNow); CodeOf(err) != CodeRatingRequired {
		t.Fatalf("expected RATING_REQUIRED, got %v", err)
	}
	if _, err := Confirm(&req, citizenID, intPtr(0), testNow); CodeOf(err) != CodeRatingRequired {
		t.Fatalf("expected RATING_REQUIRED for out-of-range rating, got %v", err)
	}
	if _, err := Confirm(&req, citizenID, intPtr(6), testNow); CodeOf(err) != CodeRatingRequired {
		t.Fatalf("expected RATING_REQUIRED for out-of-range rating, got %v", err)
	}

	out, err := Confirm(&req, citizenID, intPtr(4), testNow)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !out.FirstConfirm || out.Rating != 4 || out.WorkerID != workerID {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if req.Rating == nil || *req.Rating != 4 || req.CitizenConfirmedAt == nil {
		t.Fatalf("expected rating persisted on request")
	}

	repeat, err := Confirm(&req, citizenID, intPtr(1), testNow.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if repeat.FirstConfirm {
		t.Fatalf("expected repeat confirmation to be a no-op")
	}
	if *req.Rating != 4 {
		t.Fatalf("expected original rating to stand, got %d", *req.Rating)
	}
}

func TestConfirmRequiresDoneAndWorker(t *testing.T) {
	citizenID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "fallen sign", "medium", 1, 1, nil, "", sla.DefaultPolicy(), testNow)

	if _, err := Confirm(&req, citizenID, intPtr(5), testNow); CodeOf(err) != CodeNotDone {
		t.Fatalf("expected NOT_DONE, got %v", err)
	}

	req.Status = workflow.StatusDone
	if _, err := Confirm(&req, citizenID, intPtr(5), testNow); CodeOf(err) != CodeWorkerMissing {
		t.Fatalf("expected WORKER_MISSING, got %v", err)
	}
}

func TestReworkClearsEvidenceAndCounts(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "clogged drain", "high", 1, 1, nil, "", sla.DefaultPolicy(), testNow)
	_ = Assign(&req, workerID, nil, adminID, testNow)
	_ = Start(&req, workerID, testNow)
	_ = Complete(&req, workerID, []string{"a.jpg"}, testNow)
	_, _ = Confirm(&req, citizenID, intPtr(2), testNow)

	if err := Rework(&req, uuid.New(), testNow); CodeOf(err) != CodeForbidden {
		t.Fatalf("expected FORBIDDEN for non-owner, got %v", err)
	}

	// Confirmed requests stay DONE; rework is still allowed on them.
	if err := Rework(&req, citizenID, testNow.Add(time.Minute)); err != nil {
		t.Fatalf("rework: %v", err)
	}
	if req.Status != workflow.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %q", req.Status)
	}
	if req.WorkEndedAt != nil || req.CitizenConfirmedAt != nil || req.Rating != nil {
		t.Fatalf("expected completion evidence cleared")
	}
	if req.ReworkCount != 1 {
		t.Fatalf("expected rework count 1, got %d", req.ReworkCount)
	}
	if req.WorkerID == nil || *req.WorkerID != workerID {
		t.Fatalf("expected worker assignment to survive rework")
	}

	if err := Rework(&req, citizenID, testNow); CodeOf(err) != CodeNotDone {
		t.Fatalf("expected NOT_DONE for open request, got %v", err)
	}
}

func TestAdminRejectClearsAssignment(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "abandoned bike", "low", 1, 1, nil, "", sla.DefaultPolicy(), testNow)
	_ = Assign(&req, workerID, nil, adminID, testNow)
	_ = Start(&req, workerID, testNow)

	if err := AdminReject(&req, 101, adminID, testNow); CodeOf(err) != CodeInvalidPenalty {
		t.Fatalf("expected INVALID_PENALTY, got %v", err)
	}
	if err := AdminReject(&req, -1, adminID, testNow); CodeOf(err) != CodeInvalidPenalty {
		t.Fatalf("expected INVALID_PENALTY for negative, got %v", err)
	}

	if err := AdminReject(&req, 25, adminID, testNow); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if req.Status != workflow.StatusRejected {
		t.Fatalf("expected REJECTED, got %q", req.Status)
	}
	if req.WorkerID != nil || req.WorkStartedAt != nil || req.WorkEndedAt != nil {
		t.Fatalf("expected assignment and work timestamps cleared")
	}
	if req.AdminRejectedAt == nil || !req.AdminRejectedAt.Equal(testNow) {
		t.Fatalf("expected adminRejectedAt recorded")
	}
	if req.AdminPenaltyPoints == nil || *req.AdminPenaltyPoints != 25 {
		t.Fatalf("expected penalty 25 recorded, got %v", req.AdminPenaltyPoints)
	}

	if err := AdminReject(&req, 10, adminID, testNow); CodeOf(err) != CodeClosedRequest {
		t.Fatalf("expected CLOSED_REQUEST on repeat reject, got %v", err)
	}
}

func TestHistoryTracksEveryMutation(t *testing.T) {
	citizenID := uuid.New()
	workerID := uuid.New()
	adminID := uuid.New()
	req, _ := NewRequest(citizenID, nil, "noise complaint sensor", "medium", 1, 1, nil, "", sla.DefaultPolicy(), testNow)
	_ = Assign(&req, workerID, nil, adminID, testNow)
	_ = Start(&req, workerID, testNow)
	_ = Complete(&req, workerID, []string{"a.jpg"}, testNow)
	_, _ = Confirm(&req, citizenID, intPtr(5), testNow)

	want := []string{
		workflow.EventRequestCreated,
		workflow.EventRequestAssigned,
		workflow.EventWorkStarted,
		workflow.EventWorkCompleted,
		workflow.EventRequestConfirmed,
	}
	if len(req.StatusHistory) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(req.StatusHistory))
	}
	for i, ev := range want {
		if req.StatusHistory[i].EventType != ev {
			t.Fatalf("entry %d: expected %q, got %q", i, ev, req.StatusHistory[i].EventType)
		}
	}
	last := req.StatusHistory[len(req.StatusHistory)-1]
	if last.ToStatus == nil || *last.ToStatus != req.Status {
		t.Fatalf("expected last entry to match current status")
	}
}

func TestRefreshOverdue(t *testing.T) {
	citizenID := uuid.New()
	policy := sla.DefaultPolicy()
	req, _ := NewRequest(citizenID, nil, "flickering lamp", "high", 1, 1, nil, "", policy, testNow)

	if changed := RefreshOverdue(&req, policy, testNow); changed {
		t.Fatalf("expected no change before deadline")
	}
	past := req.Deadline.Add(time.Minute)
	if changed := RefreshOverdue(&req, policy, past); !changed || !req.Overdue {
		t.Fatalf("expected overdue past deadline")
	}

	req.Status = workflow.StatusDone
	if changed := RefreshOverdue(&req, policy, past); !changed || req.Overdue {
		t.Fatalf("expected closed request to clear overdue")
	}
}

func TestCloseAtPrefersWorkEnd(t *testing.T) {
	ended := testNow.Add(time.Hour)
	confirmed := testNow.Add(2 * time.Hour)
	req, _ := NewRequest(uuid.New(), nil, "close-at probe", "medium", 1, 1, nil, "", sla.DefaultPolicy(), testNow)

	if CloseAt(req) != nil {
		t.Fatalf("expected nil close time for open request")
	}
	req.CitizenConfirmedAt = &confirmed
	if got := CloseAt(req); got == nil || !got.Equal(confirmed) {
		t.Fatalf("expected confirmation fallback")
	}
	req.WorkEndedAt = &ended
	if got := CloseAt(req); got == nil || !got.Equal(ended) {
		t.Fatalf("expected work end to win")
	}
}

func intPtr(v int) *int {
	return &v
}
