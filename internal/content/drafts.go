package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freecorps/pulse/internal/autosave"
	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/repository"
)

// DraftConfig はDraftManagerの設定。
type DraftConfig struct {
	// Delay は最後の編集から保存までの待ち時間。
	Delay time.Duration
	// IdleTTL は最後の編集から下書きをメモリから破棄するまでの時間。
	IdleTTL time.Duration
	// CleanupInterval は破棄判定の実行間隔。
	CleanupInterval time.Duration
}

// DefaultDraftConfig はデフォルト設定を返す。
func DefaultDraftConfig() DraftConfig {
	return DraftConfig{
		Delay:           autosave.DefaultDelay,
		IdleTTL:         15 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type draft struct {
	saver      *autosave.Saver[model.PostPatch]
	patch      model.PostPatch
	lastAccess time.Time
}

// DraftManager は編集中の記事ごとに遅延保存を管理する。
// 同じ記事への編集はパッチを累積し、最後の編集から一定時間後にまとめて保存する。
type DraftManager struct {
	posts    repository.PostRepository
	config   DraftConfig
	onStatus func(model.SyncStatus)
	logger   *slog.Logger

	mu     sync.Mutex
	drafts map[string]*draft

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewDraftManager はDraftManagerを生成し、バックグラウンドで破棄ループを開始する。
// onStatusには保存状態の遷移が通知される。内部のロック保持中に呼ばれることがあるため、DraftManagerを呼び出してはならない。
func NewDraftManager(posts repository.PostRepository, config DraftConfig, onStatus func(model.SyncStatus), logger *slog.Logger) *DraftManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &DraftManager{
		posts:    posts,
		config:   config,
		onStatus: onStatus,
		logger:   logger,
		drafts:   make(map[string]*draft),
		stopCh:   make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Edit は記事の下書きにパッチを反映し、保存を予約し直す。
// 取得後に下書きが破棄されていた場合は作り直してから反映する。
func (m *DraftManager) Edit(ctx context.Context, postID string, patch model.PostPatch) (model.SyncStatus, error) {
	if err := ValidatePatch(patch); err != nil {
		return "", err
	}

	for {
		m.mu.Lock()
		d, ok := m.drafts[postID]
		m.mu.Unlock()

		if !ok {
			post, err := m.posts.FindByID(ctx, postID)
			if err != nil {
				return "", fmt.Errorf("記事の取得に失敗しました: %w", err)
			}
			if post == nil {
				return "", model.NewPostNotFoundError(postID)
			}
			d = m.getOrCreate(postID)
		}

		// DiscardやevictIdleと同じロック内で反映し、破棄済みのSaverに予約しない。
		m.mu.Lock()
		if m.drafts[postID] != d {
			m.mu.Unlock()
			continue
		}
		d.patch = d.patch.Merge(patch)
		d.lastAccess = time.Now()
		d.saver.Update(d.patch)
		m.mu.Unlock()

		return d.saver.Status(), nil
	}
}

func (m *DraftManager) getOrCreate(postID string) *draft {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.drafts[postID]; ok {
		return d
	}

	persist := func(ctx context.Context, patch model.PostPatch) error {
		if err := m.posts.ApplyPatch(ctx, postID, patch); err != nil {
			m.logger.Warn("draft autosave failed",
				slog.String("post_id", postID),
				slog.String("error", err.Error()),
			)
			return err
		}
		return nil
	}

	opts := []autosave.Option{autosave.WithDelay(m.config.Delay)}
	if m.onStatus != nil {
		opts = append(opts, autosave.WithStatusHook(m.onStatus))
	}
	d := &draft{
		saver:      autosave.New(persist, opts...),
		lastAccess: time.Now(),
	}
	m.drafts[postID] = d
	return d
}

// Status は記事の保存状態を返す。編集中でない記事はsavedとする。
func (m *DraftManager) Status(postID string) model.SyncStatus {
	m.mu.Lock()
	d, ok := m.drafts[postID]
	m.mu.Unlock()
	if !ok {
		return model.SyncStatusSaved
	}
	return d.saver.Status()
}

// Flush は記事の保留中の下書きを即座に保存する。
func (m *DraftManager) Flush(ctx context.Context, postID string) error {
	m.mu.Lock()
	d, ok := m.drafts[postID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return d.saver.Flush(ctx)
}

// FlushAll は全ての保留中の下書きを保存する。
func (m *DraftManager) FlushAll(ctx context.Context) error {
	m.mu.Lock()
	savers := make([]*autosave.Saver[model.PostPatch], 0, len(m.drafts))
	for _, d := range m.drafts {
		savers = append(savers, d.saver)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range savers {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard は記事の下書きを保存せずに破棄する。記事の削除時に使う。
func (m *DraftManager) Discard(postID string) {
	m.mu.Lock()
	d, ok := m.drafts[postID]
	delete(m.drafts, postID)
	m.mu.Unlock()
	if ok {
		d.saver.Stop()
	}
}

// Count はメモリ上の下書き数を返す。
func (m *DraftManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.drafts)
}

// Close は破棄ループを停止し、保留中の下書きを保存する。
func (m *DraftManager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return m.FlushAll(ctx)
}

func (m *DraftManager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(context.Background(), time.Now())
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle は最後の編集からIdleTTLを超えた下書きを保存してから破棄する。
func (m *DraftManager) evictIdle(ctx context.Context, now time.Time) int {
	m.mu.Lock()
	idle := make(map[string]*draft)
	for id, d := range m.drafts {
		if now.Sub(d.lastAccess) > m.config.IdleTTL {
			idle[id] = d
			delete(m.drafts, id)
		}
	}
	m.mu.Unlock()

	for id, d := range idle {
		if err := d.saver.Flush(ctx); err != nil {
			m.logger.Warn("draft flush on eviction failed",
				slog.String("post_id", id),
				slog.String("error", err.Error()),
			)
		}
		d.saver.Stop()
	}
	return len(idle)
}
