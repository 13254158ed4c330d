package workflow

import "testing"

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusAccepted, StatusAssigned) {
		t.Fatalf("expected ACCEPTED -> ASSIGNED to be allowed")
	}
	if !CanTransition(StatusDone, StatusInProgress) {
		t.Fatalf("expected DONE -> IN_PROGRESS (rework) to be allowed")
	}
	if CanTransition(StatusRejected, StatusAssigned) {
		t.Fatalf("expected REJECTED to be terminal")
	}
	if CanTransition(StatusAccepted, StatusDone) {
		t.Fatalf("expected ACCEPTED -> DONE to be blocked")
	}
}

func TestCanTransitionRejectFromOpenStatuses(t *testing.T) {
	for _, from := range []string{StatusAccepted, StatusAssigned, StatusInProgress} {
		if !CanTransition(from, StatusRejected) {
			t.Fatalf("expected %s -> REJECTED to be allowed", from)
		}
	}
	if CanTransition(StatusDone, StatusRejected) {
		t.Fatalf("expected DONE -> REJECTED to be blocked (closed request)")
	}
}

func TestEventTypeForTransition(t *testing.T) {
	if ev := EventTypeForTransition(StatusDone, StatusInProgress); ev != EventReworkRequested {
		t.Fatalf("expected rework event, got %q", ev)
	}
	if ev := EventTypeForTransition(StatusAssigned, StatusAssigned); ev != "" {
		t.Fatalf("expected empty event for same-status, got %q", ev)
	}
}

func TestIsClosed(t *testing.T) {
	if !IsClosed(StatusDone) || !IsClosed(StatusRejected) {
		t.Fatalf("expected DONE and REJECTED to be closed")
	}
	if IsClosed(StatusInProgress) {
		t.Fatalf("expected IN_PROGRESS to be open")
	}
}
