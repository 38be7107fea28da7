// Package cleanup は処理済みWebhookイベント記録の自動削除ジョブを提供する。
// 重複配信の判定に使うwebhook_eventsは決済プロバイダーの再送期間を過ぎれば不要になるため、
// 保持期間（デフォルト30日）を超過した記録を日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultRetentionDays はWebhookイベント記録の既定の保持日数。
	DefaultRetentionDays = 30
	// DefaultBatchSize は1回のDELETEで削除する最大件数。
	DefaultBatchSize = 1000
)

// purgeQuery は期限切れの記録を最大$2件削除する。ロックを短く保つため分割して実行する。
const purgeQuery = `DELETE FROM webhook_events
WHERE id IN (
	SELECT id FROM webhook_events
	WHERE created_at < now() - $1::interval
	LIMIT $2
)`

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PurgeRecorder は削除件数をメトリクスに記録する。
type PurgeRecorder interface {
	RecordWebhookEventsPurged(count int64)
}

// CleanupJob は保持期間を超過したWebhookイベント記録の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	recorder      PurgeRecorder
	logger        *slog.Logger
	RetentionDays int // 記録の保持日数（デフォルト: 30）
	BatchSize     int
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合はDefaultRetentionDaysを使う。recorderはnilでもよい。
func NewCleanupJob(db Executor, recorder PurgeRecorder, retentionDays int, logger *slog.Logger) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &CleanupJob{
		db:            db,
		recorder:      recorder,
		logger:        logger,
		RetentionDays: retentionDays,
		BatchSize:     DefaultBatchSize,
	}
}

// Run は保持期間を超過したWebhookイベント記録をBatchSize件ずつ削除する。
// 削除件数がBatchSizeを下回った時点で終了する。対象がなくてもエラーにはならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	interval := fmt.Sprintf("%d days", j.RetentionDays)
	batch := j.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	var deletedCount int64
	batches := 0
	for {
		n, err := j.purgeBatch(ctx, interval, batch)
		if err != nil {
			j.logger.Error("Webhookイベント記録の削除に失敗しました",
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.RetentionDays),
				slog.Int64("deleted_count", deletedCount),
			)
			j.record(deletedCount)
			return err
		}
		deletedCount += n
		batches++
		if n < int64(batch) || ctx.Err() != nil {
			break
		}
	}

	j.record(deletedCount)
	j.logger.Info("Webhookイベント記録のクリーンアップが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("batches", batches),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) purgeBatch(ctx context.Context, interval string, batch int) (int64, error) {
	result, err := j.db.ExecContext(ctx, purgeQuery, interval, batch)
	if err != nil {
		return 0, fmt.Errorf("Webhookイベント記録の削除に失敗: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return n, nil
}

// record は途中で失敗した場合も削除済みの件数を記録する。
func (j *CleanupJob) record(count int64) {
	if j.recorder != nil && count > 0 {
		j.recorder.RecordWebhookEventsPurged(count)
	}
}

// Start は起動直後に1回、以降はintervalごとにRunを実行する。ctxが終了するまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	j.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *CleanupJob) runOnce(ctx context.Context) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}
}
