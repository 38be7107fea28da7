package authstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freecorps/pulse/internal/identity"
)

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	// IdleTTL は最終アクセスからメモリ上のStoreを破棄するまでの時間。
	// 破棄後もスナップショットから復元できる。
	IdleTTL time.Duration
	// CleanupInterval は破棄判定の実行間隔。
	CleanupInterval time.Duration
}

// DefaultManagerConfig はデフォルト設定を返す。
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		IdleTTL:         30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type managedStore struct {
	store      *Store
	lastAccess time.Time
}

// Manager はブラウザセッションIDごとのStoreを管理する。
type Manager struct {
	factory identity.Factory
	opts    Options
	config  ManagerConfig

	mu     sync.Mutex
	stores map[string]*managedStore

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewManager はManagerを生成し、バックグラウンドで破棄ループを開始する。
func NewManager(factory identity.Factory, opts Options, config ManagerConfig) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	m := &Manager{
		factory: factory,
		opts:    opts,
		config:  config,
		stores:  make(map[string]*managedStore),
		stopCh:  make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Get は指定IDのStoreを返す。
// メモリ上にない場合は新規に生成し、スナップショットがあれば復元する。
func (m *Manager) Get(ctx context.Context, id string) (*Store, error) {
	if id == "" {
		return nil, fmt.Errorf("empty store id")
	}

	m.mu.Lock()
	if ms, ok := m.stores[id]; ok {
		ms.lastAccess = time.Now()
		m.mu.Unlock()
		return ms.store, nil
	}
	m.mu.Unlock()

	store := New(id, m.factory(), m.opts)
	if m.opts.Persister != nil {
		snap, err := m.opts.Persister.Load(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to restore auth state: %w", err)
		}
		if snap != nil {
			store.restore(snap)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// ダブルチェック
	if ms, ok := m.stores[id]; ok {
		ms.lastAccess = time.Now()
		return ms.store, nil
	}
	m.stores[id] = &managedStore{store: store, lastAccess: time.Now()}
	return store, nil
}

// Count はメモリ上のStore数を返す。テストおよびメトリクス用。
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// Stop は破棄ループを停止する。
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle(time.Now())
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからIdleTTLを超えたStoreをメモリから破棄する。
// 匿名のStoreはスナップショットも削除し、保存先がSweeperなら期限切れを掃除する。
func (m *Manager) evictIdle(now time.Time) int {
	m.mu.Lock()
	var evicted []*Store
	for id, ms := range m.stores {
		if now.Sub(ms.lastAccess) > m.config.IdleTTL {
			delete(m.stores, id)
			evicted = append(evicted, ms.store)
		}
	}
	m.mu.Unlock()

	if m.opts.Persister == nil {
		return len(evicted)
	}

	ctx := context.Background()
	for _, s := range evicted {
		if !s.anonymous() {
			continue
		}
		if err := m.opts.Persister.Delete(ctx, s.ID()); err != nil {
			m.opts.Logger.Warn("failed to delete anonymous auth snapshot",
				slog.String("error", err.Error()),
			)
		}
	}
	if sw, ok := m.opts.Persister.(Sweeper); ok {
		if n := sw.Sweep(now); n > 0 {
			m.opts.Logger.Info("swept expired auth snapshots", slog.Int("count", n))
		}
	}
	return len(evicted)
}
