package sla

import (
	"testing"
	"time"

	"cityfix/shared/workflow"
)

func TestWindowOrdering(t *testing.T) {
	p := DefaultPolicy()
	if p.Window(PriorityHigh) >= p.Window(PriorityMedium) {
		t.Fatalf("expected high window shorter than medium")
	}
	if p.Window(PriorityMedium) >= p.Window(PriorityLow) {
		t.Fatalf("expected medium window shorter than low")
	}
}

func TestComputeDeadline(t *testing.T) {
	p := DefaultPolicy()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got := p.ComputeDeadline(PriorityHigh, t0)
	if got != t0.Add(p.HighWindow) {
		t.Fatalf("unexpected deadline: %v", got)
	}
}

func TestDeadlineForHours(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, ok := DeadlineForHours(0, t0); ok {
		t.Fatalf("expected 0 hours to be rejected")
	}
	if _, ok := DeadlineForHours(721, t0); ok {
		t.Fatalf("expected 721 hours to be rejected")
	}
	deadline, ok := DeadlineForHours(24, t0)
	if !ok || deadline != t0.Add(24*time.Hour) {
		t.Fatalf("unexpected deadline: %v ok=%v", deadline, ok)
	}
}

func TestIsOverdueClosedNeverOverdue(t *testing.T) {
	p := DefaultPolicy()
	deadline := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	later := deadline.Add(48 * time.Hour)
	for _, status := range []string{workflow.StatusDone, workflow.StatusRejected} {
		if p.IsOverdue(status, deadline, later) {
			t.Fatalf("expected %s to never be overdue", status)
		}
	}
}

func TestIsOverdueGateOpen(t *testing.T) {
	p := DefaultPolicy()
	p.Gate = GateOpen
	deadline := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := deadline.Add(time.Minute)
	for _, status := range []string{workflow.StatusAccepted, workflow.StatusAssigned, workflow.StatusInProgress} {
		if !p.IsOverdue(status, deadline, past) {
			t.Fatalf("expected %s past deadline to be overdue under open gating", status)
		}
	}
	if p.IsOverdue(workflow.StatusAccepted, deadline, deadline.Add(-time.Minute)) {
		t.Fatalf("expected request before deadline to not be overdue")
	}
}

func TestIsOverdueGateInProgress(t *testing.T) {
	p := DefaultPolicy()
	p.Gate = GateInProgress
	deadline := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := deadline.Add(time.Minute)
	if p.IsOverdue(workflow.StatusAccepted, deadline, past) {
		t.Fatalf("expected ACCEPTED to not be overdue under in_progress gating")
	}
	if p.IsOverdue(workflow.StatusAssigned, deadline, past) {
		t.Fatalf("expected ASSIGNED to not be overdue under in_progress gating")
	}
	if !p.IsOverdue(workflow.StatusInProgress, deadline, past) {
		t.Fatalf("expected IN_PROGRESS past deadline to be overdue")
	}
}
