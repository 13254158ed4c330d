package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityfix/api/internal/models"
)

type UsersRepo struct {
	pool *pgxpool.Pool
}

func NewUsersRepo(pool *pgxpool.Pool) *UsersRepo {
	return &UsersRepo{pool: pool}
}

const userColumns = "user_id, subject, email, display_name, role, points, rating_avg, rating_count, created_at, last_login_at"

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	err := row.Scan(&user.UserID, &user.Subject, &user.Email, &user.DisplayName, &user.Role, &user.Points, &user.RatingAvg, &user.RatingCount, &user.CreatedAt, &user.LastLoginAt)
	return user, err
}

// UpsertUserFromAuth creates or refreshes a user row on login. The role is
// only taken from the token on first sight; an existing role never changes
// through login.
func (r *UsersRepo) UpsertUserFromAuth(ctx context.Context, subject string, email string, displayName string, role string) (models.User, error) {
	now := time.Now().UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (subject, email, display_name, role, created_at, last_login_at)
		VALUES ($1, $2, $3, COALESCE($4, 'citizen'), $5, $5)
		ON CONFLICT (subject) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			last_login_at = EXCLUDED.last_login_at
		RETURNING `+userColumns+`
	`, subject, nullIfEmpty(email), nullIfEmpty(displayName), nullIfEmpty(role), now)
	return scanUser(row)
}

func (r *UsersRepo) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID)
	return scanUser(row)
}

func (r *UsersRepo) GetUserByIDTx(ctx context.Context, db DBTX, userID uuid.UUID) (models.User, error) {
	row := db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
	`, userID)
	return scanUser(row)
}

// ListWorkers returns worker accounts ordered by rating for admin routing.
// Workers nobody has rated yet sort at the 5.0 baseline, same as the read
// mapping in scoring.EffectiveRating.
func (r *UsersRepo) ListWorkers(ctx context.Context, limit int, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'worker'
		ORDER BY CASE WHEN rating_count = 0 THEN 5.0 ELSE rating_avg END DESC, rating_count DESC, created_at ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Leaderboard lists citizens by points descending, ties broken by account
// age. The limit is clamped to [1, 100].
func (r *UsersRepo) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'citizen'
		ORDER BY points DESC, created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CountPointsAhead counts citizens with strictly more points, which places a
// user at countAhead+1 under dense ranking semantics when combined with the
// distinct-points count. The simpler countAhead+1 is what the leaderboard
// reports for the caller's own rank.
func (r *UsersRepo) CountPointsAhead(ctx context.Context, points int) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT points)
		FROM users
		WHERE role = 'citizen' AND points > $1
	`, points).Scan(&count)
	return count, err
}

// AddPointsTx credits reward points inside a transition transaction.
func (r *UsersRepo) AddPointsTx(ctx context.Context, db DBTX, userID uuid.UUID, delta int) error {
	_, err := db.Exec(ctx, `
		UPDATE users
		SET points = points + $2
		WHERE user_id = $1
	`, userID, delta)
	return err
}

// SetPointsTx writes an absolute points balance computed by a caller holding
// the row lock.
func (r *UsersRepo) SetPointsTx(ctx context.Context, db DBTX, userID uuid.UUID, points int) error {
	_, err := db.Exec(ctx, `
		UPDATE users
		SET points = $2
		WHERE user_id = $1
	`, userID, points)
	return err
}

// ApplyRatingTx folds a confirmation rating into the worker's running mean.
// The row is locked so concurrent confirmations serialize.
func (r *UsersRepo) ApplyRatingTx(ctx context.Context, db DBTX, workerID uuid.UUID, nextAvg float64, nextCount int) error {
	_, err := db.Exec(ctx, `
		UPDATE users
		SET rating_avg = $2, rating_count = $3
		WHERE user_id = $1
	`, workerID, nextAvg, nextCount)
	return err
}

// LockUserTx takes a row lock and returns the current rating state.
func (r *UsersRepo) LockUserTx(ctx context.Context, db DBTX, userID uuid.UUID) (models.User, error) {
	row := db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	return scanUser(row)
}

func nullIfEmpty(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
