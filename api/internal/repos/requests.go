package repos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityfix/api/internal/lifecycle"
	"cityfix/api/internal/models"
	"cityfix/api/internal/scoring"
	"cityfix/shared/events"
	"cityfix/shared/metricsx"
	"cityfix/shared/sla"
	"cityfix/shared/workflow"
)

type RequestsRepo struct {
	pool         *pgxpool.Pool
	policy       sla.Policy
	rewardPoints int
}

func NewRequestsRepo(pool *pgxpool.Pool, policy sla.Policy, rewardPoints int) *RequestsRepo {
	return &RequestsRepo{pool: pool, policy: policy, rewardPoints: rewardPoints}
}

const requestColumns = `request_id, citizen_id, worker_id, category_id, description, priority, status,
	lat, lng, address, before_photos, after_photos, deadline, overdue, rework_count, rating,
	work_started_at, work_ended_at, citizen_confirmed_at, admin_rejected_at, admin_penalty_points, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (models.Request, error) {
	var req models.Request
	err := row.Scan(
		&req.RequestID, &req.CitizenID, &req.WorkerID, &req.CategoryID, &req.Description, &req.Priority, &req.Status,
		&req.Lat, &req.Lng, &req.Address, &req.BeforePhotos, &req.AfterPhotos, &req.Deadline, &req.Overdue, &req.ReworkCount, &req.Rating,
		&req.WorkStartedAt, &req.WorkEndedAt, &req.CitizenConfirmedAt, &req.AdminRejectedAt, &req.AdminPenaltyPoints, &req.CreatedAt, &req.UpdatedAt,
	)
	return req, err
}

// CreateRequest persists a freshly built request together with its creation
// history entry and outbox event in one transaction.
func (r *RequestsRepo) CreateRequest(ctx context.Context, req models.Request) (models.Request, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Request{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO requests (
			request_id, citizen_id, worker_id, category_id, description, priority, status,
			lat, lng, address, before_photos, after_photos, deadline, overdue, rework_count, rating,
			work_started_at, work_ended_at, citizen_confirmed_at, admin_rejected_at, admin_penalty_points, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23
		)
	`, req.RequestID, req.CitizenID, req.WorkerID, req.CategoryID, req.Description, req.Priority, req.Status,
		req.Lat, req.Lng, req.Address, req.BeforePhotos, req.AfterPhotos, req.Deadline, req.Overdue, req.ReworkCount, req.Rating,
		req.WorkStartedAt, req.WorkEndedAt, req.CitizenConfirmedAt, req.AdminRejectedAt, req.AdminPenaltyPoints, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return models.Request{}, err
	}

	if err = r.insertHistory(ctx, tx, req.StatusHistory); err != nil {
		return models.Request{}, err
	}
	if err = r.insertOutbox(ctx, tx, req, workflow.EventRequestCreated, req.CreatedAt); err != nil {
		return models.Request{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Request{}, err
	}
	return req, nil
}

func (r *RequestsRepo) GetRequestByID(ctx context.Context, requestID uuid.UUID) (models.Request, error) {
	req, err := scanRequest(r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE request_id = $1
	`, requestID))
	if err != nil {
		return models.Request{}, err
	}

	req.StatusHistory, err = r.loadHistory(ctx, requestID)
	if err != nil {
		return models.Request{}, err
	}

	r.refreshOverdue(ctx, []*models.Request{&req})
	return req, nil
}

func (r *RequestsRepo) ListByCitizen(ctx context.Context, citizenID uuid.UUID, limit int, offset int) ([]models.Request, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE citizen_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, citizenID, clampLimit(limit), offset)
}

func (r *RequestsRepo) ListByWorker(ctx context.Context, workerID uuid.UUID, statuses []string, limit int, offset int) ([]models.Request, error) {
	if len(statuses) == 0 {
		statuses = []string{workflow.StatusAssigned, workflow.StatusInProgress, workflow.StatusDone}
	}
	return r.list(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE worker_id = $1 AND status = ANY($2)
		ORDER BY deadline ASC, created_at ASC
		LIMIT $3 OFFSET $4
	`, workerID, statuses, clampLimit(limit), offset)
}

// ListFilter narrows the admin request listing. Zero values mean no filter.
type ListFilter struct {
	Status     string
	Priority   string
	CategoryID *uuid.UUID
	Overdue    *bool
	Limit      int
	Offset     int
}

func (r *RequestsRepo) ListAll(ctx context.Context, filter ListFilter) ([]models.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR priority = $2)
		  AND ($3::uuid IS NULL OR category_id = $3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`
	reqs, err := r.list(ctx, query, workflow.NormalizeStatus(filter.Status), sla.NormalizePriority(filter.Priority), filter.CategoryID, clampLimit(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	if filter.Overdue == nil {
		return reqs, nil
	}
	filtered := make([]models.Request, 0, len(reqs))
	for _, req := range reqs {
		if req.Overdue == *filter.Overdue {
			filtered = append(filtered, req)
		}
	}
	return filtered, nil
}

func (r *RequestsRepo) list(ctx context.Context, query string, args ...any) ([]models.Request, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*models.Request, len(reqs))
	for i := range reqs {
		refs[i] = &reqs[i]
	}
	r.refreshOverdue(ctx, refs)
	return reqs, nil
}

// Assign routes a request to a worker, optionally overriding the deadline.
// The target user must exist and hold the worker role.
func (r *RequestsRepo) Assign(ctx context.Context, requestID uuid.UUID, workerID uuid.UUID, deadlineHours *int, actorID uuid.UUID) (models.Request, error) {
	users := NewUsersRepo(r.pool)
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		worker, err := users.GetUserByIDTx(ctx, tx, workerID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return "", &lifecycle.Error{Code: lifecycle.CodeInvalidInput, Message: "worker not found"}
			}
			return "", err
		}
		if workflow.NormalizeRole(worker.Role) != workflow.RoleWorker {
			return "", &lifecycle.Error{Code: lifecycle.CodeInvalidInput, Message: "user is not a worker"}
		}
		if err := lifecycle.Assign(req, workerID, deadlineHours, actorID, now); err != nil {
			return "", err
		}
		return workflow.EventRequestAssigned, nil
	})
}

func (r *RequestsRepo) StartWork(ctx context.Context, requestID uuid.UUID, workerID uuid.UUID) (models.Request, error) {
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		before := len(req.StatusHistory)
		if err := lifecycle.Start(req, workerID, now); err != nil {
			return "", err
		}
		if len(req.StatusHistory) == before {
			return "", nil
		}
		return workflow.EventWorkStarted, nil
	})
}

func (r *RequestsRepo) CompleteWork(ctx context.Context, requestID uuid.UUID, workerID uuid.UUID, afterPhotos []string) (models.Request, error) {
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		if err := lifecycle.Complete(req, workerID, afterPhotos, now); err != nil {
			return "", err
		}
		return workflow.EventWorkCompleted, nil
	})
}

// Confirm applies citizen acceptance. The first confirmation rewards the
// citizen and folds the rating into the worker's running mean, all inside
// the same transaction as the request update.
func (r *RequestsRepo) Confirm(ctx context.Context, requestID uuid.UUID, citizenID uuid.UUID, rating *int) (models.Request, error) {
	users := NewUsersRepo(r.pool)
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		outcome, err := lifecycle.Confirm(req, citizenID, rating, now)
		if err != nil {
			return "", err
		}
		if !outcome.FirstConfirm {
			return "", nil
		}

		worker, err := users.LockUserTx(ctx, tx, outcome.WorkerID)
		if err != nil {
			return "", err
		}
		nextAvg, nextCount := nextWorkerRating(worker, outcome.Rating)
		if err := users.ApplyRatingTx(ctx, tx, outcome.WorkerID, nextAvg, nextCount); err != nil {
			return "", err
		}
		if err := users.AddPointsTx(ctx, tx, citizenID, r.rewardPoints); err != nil {
			return "", err
		}
		return workflow.EventRequestConfirmed, nil
	})
}

func (r *RequestsRepo) Rework(ctx context.Context, requestID uuid.UUID, citizenID uuid.UUID) (models.Request, error) {
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		if err := lifecycle.Rework(req, citizenID, now); err != nil {
			return "", err
		}
		return workflow.EventReworkRequested, nil
	})
}

// AdminReject terminates a request and deducts the penalty from the owning
// citizen in the same transaction.
func (r *RequestsRepo) AdminReject(ctx context.Context, requestID uuid.UUID, penalty int, actorID uuid.UUID) (models.Request, error) {
	users := NewUsersRepo(r.pool)
	return r.transition(ctx, requestID, func(tx pgx.Tx, req *models.Request, now time.Time) (string, error) {
		if err := lifecycle.AdminReject(req, penalty, actorID, now); err != nil {
			return "", err
		}
		if penalty > 0 {
			citizen, err := users.LockUserTx(ctx, tx, req.CitizenID)
			if err != nil {
				return "", err
			}
			if err := users.SetPointsTx(ctx, tx, req.CitizenID, scoring.ApplyPenalty(citizen.Points, penalty)); err != nil {
				return "", err
			}
		}
		return workflow.EventRequestRejected, nil
	})
}

// transition runs one state change under a row lock: load FOR UPDATE, apply
// the domain mutation, persist the row, append the new history entries and
// the outbox event, then commit. An empty event type from the mutation means
// a no-op (idempotent repeat) that commits without side effects.
func (r *RequestsRepo) transition(ctx context.Context, requestID uuid.UUID, mutate func(tx pgx.Tx, req *models.Request, now time.Time) (string, error)) (models.Request, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Request{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	req, err := scanRequest(tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE request_id = $1
		FOR UPDATE
	`, requestID))
	if err != nil {
		return models.Request{}, err
	}

	fromStatus := req.Status
	now := time.Now().UTC()
	historyBefore := len(req.StatusHistory)

	eventType, err := mutate(tx, &req, now)
	if err != nil {
		return models.Request{}, err
	}

	if eventType == "" && len(req.StatusHistory) == historyBefore {
		if err = tx.Commit(ctx); err != nil {
			return models.Request{}, err
		}
		return req, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE requests SET
			worker_id = $2, status = $3, deadline = $4, overdue = $5, rework_count = $6, rating = $7,
			after_photos = $8, work_started_at = $9, work_ended_at = $10, citizen_confirmed_at = $11,
			admin_rejected_at = $12, admin_penalty_points = $13, updated_at = $14
		WHERE request_id = $1
	`, req.RequestID, req.WorkerID, req.Status, req.Deadline, req.Overdue, req.ReworkCount, req.Rating,
		req.AfterPhotos, req.WorkStartedAt, req.WorkEndedAt, req.CitizenConfirmedAt,
		req.AdminRejectedAt, req.AdminPenaltyPoints, req.UpdatedAt)
	if err != nil {
		return models.Request{}, err
	}

	if err = r.insertHistory(ctx, tx, req.StatusHistory[historyBefore:]); err != nil {
		return models.Request{}, err
	}
	if eventType != "" {
		if err = r.insertOutbox(ctx, tx, req, eventType, now); err != nil {
			return models.Request{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Request{}, err
	}
	if req.Status != fromStatus {
		metricsx.IncRequestTransition(fromStatus, req.Status)
	}
	return req, nil
}

func (r *RequestsRepo) insertHistory(ctx context.Context, db DBTX, entries []models.StatusChange) error {
	for _, entry := range entries {
		if entry.EventID == uuid.Nil {
			entry.EventID = uuid.New()
		}
		_, err := db.Exec(ctx, `
			INSERT INTO request_status_history (event_id, request_id, event_type, from_status, to_status, occurred_at, actor_user_id, actor_role, payload)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.EventID, entry.RequestID, entry.EventType, entry.FromStatus, entry.ToStatus, entry.OccurredAt, entry.ActorUserID, entry.ActorRole, entry.Payload)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RequestsRepo) loadHistory(ctx context.Context, requestID uuid.UUID) ([]models.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, request_id, event_type, from_status, to_status, occurred_at, actor_user_id, actor_role, payload
		FROM request_status_history
		WHERE request_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []models.StatusChange
	for rows.Next() {
		var entry models.StatusChange
		if err := rows.Scan(&entry.EventID, &entry.RequestID, &entry.EventType, &entry.FromStatus, &entry.ToStatus, &entry.OccurredAt, &entry.ActorUserID, &entry.ActorRole, &entry.Payload); err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

func (r *RequestsRepo) insertOutbox(ctx context.Context, db DBTX, req models.Request, eventType string, now time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"request_id":   req.RequestID,
		"citizen_id":   req.CitizenID,
		"worker_id":    req.WorkerID,
		"status":       req.Status,
		"priority":     req.Priority,
		"deadline":     req.Deadline,
		"rework_count": req.ReworkCount,
	})
	if err != nil {
		return err
	}
	envelope := events.Envelope{
		EventID:       uuid.New(),
		OccurredAt:    now,
		AggregateType: "request",
		AggregateID:   req.RequestID,
		EventType:     eventType,
		Payload:       payload,
	}
	if n := len(req.StatusHistory); n > 0 {
		last := req.StatusHistory[n-1]
		if last.ActorUserID != nil {
			envelope.ActorUserID = last.ActorUserID.String()
		}
		envelope.ActorRole = last.ActorRole
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	outbox := NewOutboxRepo(r.pool)
	_, err = outbox.Insert(ctx, db, models.OutboxEvent{
		EventID:       envelope.EventID,
		AggregateType: envelope.AggregateType,
		AggregateID:   envelope.AggregateID,
		Topic:         events.TopicRequestEvents,
		Payload:       body,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	return err
}

// refreshOverdue recomputes the overdue flag for loaded rows and persists the
// drift best effort. Reads stay correct even when the write is lost.
func (r *RequestsRepo) refreshOverdue(ctx context.Context, reqs []*models.Request) {
	now := time.Now().UTC()
	var markIDs, clearIDs []uuid.UUID
	for _, req := range reqs {
		if !lifecycle.RefreshOverdue(req, r.policy, now) {
			continue
		}
		if req.Overdue {
			markIDs = append(markIDs, req.RequestID)
			metricsx.IncSLABreach()
		} else {
			clearIDs = append(clearIDs, req.RequestID)
		}
	}
	if len(markIDs) > 0 {
		_, _ = r.pool.Exec(ctx, `UPDATE requests SET overdue = TRUE WHERE request_id = ANY($1)`, markIDs)
	}
	if len(clearIDs) > 0 {
		_, _ = r.pool.Exec(ctx, `UPDATE requests SET overdue = FALSE WHERE request_id = ANY($1)`, clearIDs)
	}
}

// Summary aggregates operational counters for the analytics endpoint.
type Summary struct {
	Total           int
	ByStatus        map[string]int
	Overdue         int
	AvgCloseMinutes *float64
}

// CountByCitizen returns how many requests a citizen has filed.
func (r *RequestsRepo) CountByCitizen(ctx context.Context, citizenID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM requests WHERE citizen_id = $1
	`, citizenID).Scan(&count)
	return count, err
}

// CountByWorker returns a worker's request counts grouped by status.
func (r *RequestsRepo) CountByWorker(ctx context.Context, workerID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM requests
		WHERE worker_id = $1
		GROUP BY status
	`, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *RequestsRepo) Summarize(ctx context.Context) (Summary, error) {
	summary := Summary{ByStatus: map[string]int{}}

	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM requests
		GROUP BY status
	`)
	if err != nil {
		return Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, err
		}
		summary.ByStatus[status] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	overdueQuery := `
		SELECT COUNT(*)
		FROM requests
		WHERE status NOT IN ($1, $2) AND deadline < now()
	`
	args := []any{workflow.StatusDone, workflow.StatusRejected}
	if r.policy.Gate == sla.GateInProgress {
		overdueQuery += ` AND status = $3`
		args = append(args, workflow.StatusInProgress)
	}
	if err := r.pool.QueryRow(ctx, overdueQuery, args...).Scan(&summary.Overdue); err != nil {
		return Summary{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (COALESCE(work_ended_at, citizen_confirmed_at) - created_at)) / 60.0)
		FROM requests
		WHERE COALESCE(work_ended_at, citizen_confirmed_at) IS NOT NULL
	`).Scan(&summary.AvgCloseMinutes)
	if err != nil {
		return Summary{}, err
	}

	return summary, nil
}

func nextWorkerRating(worker models.User, rating int) (float64, int) {
	return scoring.NextRating(worker.RatingAvg, worker.RatingCount, rating)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
