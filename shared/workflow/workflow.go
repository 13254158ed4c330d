package workflow

import "strings"

const (
	StatusAccepted   = "ACCEPTED"
	StatusAssigned   = "ASSIGNED"
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusRejected   = "REJECTED"
)

const (
	RoleCitizen = "citizen"
	RoleWorker  = "worker"
	RoleAdmin   = "admin"
)

const (
	EventRequestCreated   = "request_created"
	EventRequestAssigned  = "request_assigned"
	EventWorkStarted      = "work_started"
	EventWorkCompleted    = "work_completed"
	EventRequestConfirmed = "request_confirmed"
	EventReworkRequested  = "rework_requested"
	EventRequestRejected  = "request_rejected"
)

// REJECTED is terminal. DONE can reopen to IN_PROGRESS via citizen rework.
var requestTransitions = map[string]map[string]string{
	StatusAccepted: {
		StatusAssigned: EventRequestAssigned,
		StatusRejected: EventRequestRejected,
	},
	StatusAssigned: {
		StatusAssigned:   EventRequestAssigned,
		StatusInProgress: EventWorkStarted,
		StatusRejected:   EventRequestRejected,
	},
	StatusInProgress: {
		StatusAssigned: EventRequestAssigned,
		StatusDone:     EventWorkCompleted,
		StatusRejected: EventRequestRejected,
	},
	StatusDone: {
		StatusInProgress: EventReworkRequested,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func IsClosed(status string) bool {
	status = NormalizeStatus(status)
	return status == StatusDone || status == StatusRejected
}

func IsTerminal(status string) bool {
	return NormalizeStatus(status) == StatusRejected
}

func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	if fromStatus == toStatus {
		return true
	}
	next := requestTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func EventTypeForTransition(fromStatus string, toStatus string) string {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	if fromStatus == toStatus {
		return ""
	}
	next := requestTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

func AllStatuses() []string {
	return []string{
		StatusAccepted,
		StatusAssigned,
		StatusInProgress,
		StatusDone,
		StatusRejected,
	}
}

func ValidRole(role string) bool {
	switch NormalizeRole(role) {
	case RoleCitizen, RoleWorker, RoleAdmin:
		return true
	default:
		return false
	}
}
