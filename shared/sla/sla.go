package sla

import (
	"strings"
	"time"

	"cityfix/shared/workflow"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Overdue gating modes. GateOpen marks any non-closed request overdue once the
// deadline passes; GateInProgress only tracks requests that are being worked on.
const (
	GateOpen       = "open"
	GateInProgress = "in_progress"
)

const (
	MinDeadlineHours = 1
	MaxDeadlineHours = 720
)

// Policy maps priority to an SLA window and decides which statuses are
// overdue-tracked. Windows are configuration, not constants.
type Policy struct {
	HighWindow   time.Duration
	MediumWindow time.Duration
	LowWindow    time.Duration
	Gate         string
}

func DefaultPolicy() Policy {
	return Policy{
		HighWindow:   10 * time.Minute,
		MediumWindow: 20 * time.Minute,
		LowWindow:    45 * time.Minute,
		Gate:         GateOpen,
	}
}

func NormalizePriority(priority string) string {
	return strings.ToLower(strings.TrimSpace(priority))
}

func ValidPriority(priority string) bool {
	switch NormalizePriority(priority) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

func ValidGate(gate string) bool {
	switch strings.ToLower(strings.TrimSpace(gate)) {
	case GateOpen, GateInProgress:
		return true
	default:
		return false
	}
}

func (p Policy) Window(priority string) time.Duration {
	switch NormalizePriority(priority) {
	case PriorityHigh:
		return p.HighWindow
	case PriorityLow:
		return p.LowWindow
	default:
		return p.MediumWindow
	}
}

// ComputeDeadline returns the absolute deadline for a request created at
// referenceTime with the given priority.
func (p Policy) ComputeDeadline(priority string, referenceTime time.Time) time.Time {
	return referenceTime.Add(p.Window(priority))
}

// DeadlineForHours computes an admin-chosen deadline at assignment time.
// The hour count must be an integer in [MinDeadlineHours, MaxDeadlineHours].
func DeadlineForHours(hours int, referenceTime time.Time) (time.Time, bool) {
	if hours < MinDeadlineHours || hours > MaxDeadlineHours {
		return time.Time{}, false
	}
	return referenceTime.Add(time.Duration(hours) * time.Hour), true
}

// IsOverdue is the authoritative overdue check. It never trusts a stored flag:
// closed requests are never overdue, gating decides which open statuses are
// tracked, and the deadline is compared against now on every call.
func (p Policy) IsOverdue(status string, deadline time.Time, now time.Time) bool {
	status = workflow.NormalizeStatus(status)
	if workflow.IsClosed(status) {
		return false
	}
	if deadline.IsZero() {
		return false
	}
	if p.Gate == GateInProgress && status != workflow.StatusInProgress {
		return false
	}
	return now.After(deadline)
}
