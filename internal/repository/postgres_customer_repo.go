package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freecorps/pulse/internal/model"
)

// PostgresCustomerRepo はPostgreSQLを使用した決済顧客リポジトリ。
type PostgresCustomerRepo struct {
	db *sql.DB
}

// NewPostgresCustomerRepo はPostgresCustomerRepoを生成する。
func NewPostgresCustomerRepo(db *sql.DB) *PostgresCustomerRepo {
	return &PostgresCustomerRepo{db: db}
}

// FindActiveByUserID はユーザーの有効な顧客を取得する。見つからない場合はnilを返す。
func (r *PostgresCustomerRepo) FindActiveByUserID(ctx context.Context, userID string) (*model.Customer, error) {
	c := &model.Customer{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, customer_id, email, plan_type, status, permissions, created_at
		 FROM stripe_customers WHERE user_id = $1 AND status = $2
		 ORDER BY created_at DESC LIMIT 1`,
		userID, model.CustomerStatusActive,
	).Scan(&c.ID, &c.UserID, &c.CustomerID, &c.Email, &c.PlanType, &c.Status, pq.Array(&c.Permissions), &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active customer: %w", err)
	}
	return c, nil
}

// CreateWithEvent は顧客の作成とWebhookイベントの記録を同一トランザクションで行う。
func (r *PostgresCustomerRepo) CreateWithEvent(ctx context.Context, c *model.Customer, eventID, eventType string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO stripe_customers (id, user_id, customer_id, email, plan_type, status, permissions, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.UserID, c.CustomerID, c.Email, string(c.PlanType), c.Status, pq.Array(c.Permissions), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}

	if eventID != "" {
		if err := recordEvent(ctx, tx, eventID, eventType); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
