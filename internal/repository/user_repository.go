package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), subscription_end_date, trial_tasks_used, single_tasks_purchased, created_at, updated_at
FROM users WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var u models.User
	var end sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &end, &u.TrialTasksUsed, &u.SingleTasksPurchased, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if end.Valid {
		u.SubscriptionEnd = &end.Time
	}
	return &u, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), subscription_end_date, trial_tasks_used, single_tasks_purchased, created_at, updated_at
FROM users WHERE username = ?`
	row := r.db.QueryRowContext(ctx, query, username)
	var u models.User
	var end sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &end, &u.TrialTasksUsed, &u.SingleTasksPurchased, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user by username: %w", err)
	}
	if end.Valid {
		u.SubscriptionEnd = &end.Time
	}
	return &u, nil
}

// Upsert creates the user row on first contact or refreshes the stored username.
func (r *UserRepository) Upsert(ctx context.Context, userID int64, username string) error {
	const query = `
INSERT INTO users (user_id, username, trial_tasks_used, single_tasks_purchased)
VALUES (?, NULLIF(?, ''), 0, 0)
ON DUPLICATE KEY UPDATE username = NULLIF(VALUES(username), '')`
	if _, err := r.db.ExecContext(ctx, query, userID, username); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (r *UserRepository) SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error {
	const query = `UPDATE users SET subscription_end_date = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, end, userID); err != nil {
		return fmt.Errorf("set subscription end: %w", err)
	}
	return nil
}

// ConsumeTrialTask burns one trial credit. The WHERE clause keeps the counter
// under the allowance even under concurrent debits.
func (r *UserRepository) ConsumeTrialTask(ctx context.Context, userID int64, allowance int) (bool, error) {
	const query = `
UPDATE users SET trial_tasks_used = trial_tasks_used + 1, updated_at = NOW()
WHERE user_id = ? AND trial_tasks_used < ?`
	res, err := r.db.ExecContext(ctx, query, userID, allowance)
	if err != nil {
		return false, fmt.Errorf("consume trial task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("trial rows affected: %w", err)
	}
	return affected > 0, nil
}

// ConsumeSingleTask burns one purchased credit; never drives the counter negative.
func (r *UserRepository) ConsumeSingleTask(ctx context.Context, userID int64) (bool, error) {
	const query = `
UPDATE users SET single_tasks_purchased = single_tasks_purchased - 1, updated_at = NOW()
WHERE user_id = ? AND single_tasks_purchased > 0`
	res, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("consume single task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("single rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) AddSingleTasks(ctx context.Context, userID int64, count int) error {
	const query = `UPDATE users SET single_tasks_purchased = single_tasks_purchased + ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, count, userID); err != nil {
		return fmt.Errorf("add single tasks: %w", err)
	}
	return nil
}

func (r *UserRepository) ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	const query = `
SELECT user_id, COALESCE(username, ''), subscription_end_date
FROM users WHERE subscription_end_date > NOW()
ORDER BY subscription_end_date`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var s models.Subscriber
		if err := rows.Scan(&s.UserID, &s.Username, &s.SubscriptionEnd); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT user_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
