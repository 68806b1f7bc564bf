package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type AdminRepository struct {
	db *sql.DB
}

func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT 1 FROM admins WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var dummy int
	if err := row.Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check admin: %w", err)
	}
	return true, nil
}

func (r *AdminRepository) List(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM admins ORDER BY user_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AdminRepository) Add(ctx context.Context, userID int64) error {
	const query = `INSERT IGNORE INTO admins (user_id) VALUES (?)`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

func (r *AdminRepository) Remove(ctx context.Context, userID int64) error {
	const query = `DELETE FROM admins WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	return nil
}
