package repos

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cityfix/api/internal/models"
)

var ErrCategoryExists = errors.New("category already exists")

type CategoriesRepo struct {
	pool *pgxpool.Pool
}

func NewCategoriesRepo(pool *pgxpool.Pool) *CategoriesRepo {
	return &CategoriesRepo{pool: pool}
}

var systemCategories = []string{"Lighting", "Trash", "Road"}

// EnsureSystemCategories seeds the built-in categories. Safe to run on every
// startup.
func (r *CategoriesRepo) EnsureSystemCategories(ctx context.Context) error {
	now := time.Now().UTC()
	for _, name := range systemCategories {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO categories (name, system, created_at)
			VALUES ($1, TRUE, $2)
			ON CONFLICT (name) DO NOTHING
		`, name, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CategoriesRepo) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category_id, name, system, created_at
		FROM categories
		ORDER BY system DESC, name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.System, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *CategoriesRepo) GetCategoryByID(ctx context.Context, categoryID string) (models.Category, error) {
	var c models.Category
	err := r.pool.QueryRow(ctx, `
		SELECT category_id, name, system, created_at
		FROM categories
		WHERE category_id = $1
	`, categoryID).Scan(&c.CategoryID, &c.Name, &c.System, &c.CreatedAt)
	return c, err
}

// CreateCategory adds an admin-defined category. Duplicate names conflict.
func (r *CategoriesRepo) CreateCategory(ctx context.Context, name string) (models.Category, error) {
	name = strings.TrimSpace(name)
	var c models.Category
	err := r.pool.QueryRow(ctx, `
		INSERT INTO categories (name, system, created_at)
		VALUES ($1, FALSE, $2)
		ON CONFLICT (name) DO NOTHING
		RETURNING category_id, name, system, created_at
	`, name, time.Now().UTC()).Scan(&c.CategoryID, &c.Name, &c.System, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Category{}, ErrCategoryExists
	}
	return c, err
}
