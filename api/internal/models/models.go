package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	UserID      uuid.UUID
	Subject     string
	Email       string
	DisplayName string
	Role        string
	Points      int
	RatingAvg   float64
	RatingCount int
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

type Category struct {
	CategoryID uuid.UUID
	Name       string
	System     bool
	CreatedAt  time.Time
}

type Request struct {
	RequestID          uuid.UUID
	CitizenID          uuid.UUID
	WorkerID           *uuid.UUID
	CategoryID         *uuid.UUID
	Description        string
	Priority           string
	Status             string
	Lat                float64
	Lng                float64
	Address            string
	BeforePhotos       []string
	AfterPhotos        []string
	Deadline           time.Time
	Overdue            bool
	ReworkCount        int
	Rating             *int
	WorkStartedAt      *time.Time
	WorkEndedAt        *time.Time
	CitizenConfirmedAt *time.Time
	AdminRejectedAt    *time.Time
	AdminPenaltyPoints *int
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// StatusHistory is loaded on demand; empty on list queries.
	StatusHistory []StatusChange
}

type StatusChange struct {
	EventID     uuid.UUID
	RequestID   uuid.UUID
	EventType   string
	FromStatus  *string
	ToStatus    *string
	OccurredAt  time.Time
	ActorUserID *uuid.UUID
	ActorRole   string
	Payload     []byte
}

type OutboxEvent struct {
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	Topic         string
	Payload       []byte
	Status        string
	Attempts      int
	NextRetryAt   *time.Time
	LockedAt      *time.Time
	LockedBy      *string
	LastError     *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	PublishedAt   *time.Time
}

type AuditLog struct {
	AuditID      uuid.UUID
	OccurredAt   time.Time
	ActorUserID  *uuid.UUID
	Subject      string
	Action       string
	ResourceType *string
	ResourceID   *string
	RequestID    string
	Method       string
	Path         string
	StatusCode   int
	DurationMS   int64
	ClientIP     string
	UserAgent    string
	Details      []byte
}
