package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresWebhookEventRepo はPostgreSQLを使用した処理済みWebhookイベントのリポジトリ。
type PostgresWebhookEventRepo struct {
	db *sql.DB
}

// NewPostgresWebhookEventRepo はPostgresWebhookEventRepoを生成する。
func NewPostgresWebhookEventRepo(db *sql.DB) *PostgresWebhookEventRepo {
	return &PostgresWebhookEventRepo{db: db}
}

// Exists は指定IDのイベントが処理済みかを返す。
func (r *PostgresWebhookEventRepo) Exists(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM webhook_events WHERE id = $1)`,
		eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return exists, nil
}

// Record はイベントを処理済みとして記録する。記録済みの場合は何もしない。
func (r *PostgresWebhookEventRepo) Record(ctx context.Context, eventID, eventType string) error {
	return recordEvent(ctx, r.db, eventID, eventType)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func recordEvent(ctx context.Context, db execer, eventID, eventType string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, type) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		eventID, eventType,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

var _ WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)
