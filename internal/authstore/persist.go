package authstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Persister はスナップショットの保存先のインターフェース。
type Persister interface {
	// Save はスナップショットを保存する。
	Save(ctx context.Context, id string, snap Snapshot) error
	// Load はスナップショットを取得する。存在しない場合や検証に失敗した場合はnilを返す。
	Load(ctx context.Context, id string) (*Snapshot, error)
	// Delete はスナップショットを削除する。
	Delete(ctx context.Context, id string) error
}

// Sweeper は期限切れスナップショットを自前で掃除する必要がある保存先が実装する。
// Redisのように保存先がTTLを管理する場合は不要。
type Sweeper interface {
	Sweep(now time.Time) int
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryPersister はプロセス内メモリにスナップショットを保持する。
// 単一インスタンス構成やテストで使う。
type MemoryPersister struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.RWMutex
	data map[string]memoryEntry
}

// NewMemoryPersister はMemoryPersisterを生成する。
// ttlは保存からの有効期間で、0以下の場合は期限なし。
func NewMemoryPersister(ttl time.Duration) *MemoryPersister {
	return &MemoryPersister{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]memoryEntry),
	}
}

// Save はスナップショットを保存する。保存のたびに期限を延長する。
func (p *MemoryPersister) Save(ctx context.Context, id string, snap Snapshot) error {
	b, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	entry := memoryEntry{data: b}
	if p.ttl > 0 {
		entry.expiresAt = p.now().Add(p.ttl)
	}
	p.mu.Lock()
	p.data[id] = entry
	p.mu.Unlock()
	return nil
}

// Load はスナップショットを取得する。期限切れのものは存在しない扱い。
func (p *MemoryPersister) Load(ctx context.Context, id string) (*Snapshot, error) {
	p.mu.RLock()
	entry, ok := p.data[id]
	p.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if entry.expired(p.now()) {
		p.Delete(ctx, id)
		return nil, nil
	}

	snap, err := DecodeSnapshot(entry.data)
	if err != nil {
		slog.Warn("discarding invalid auth snapshot",
			slog.String("error", err.Error()),
		)
		p.Delete(ctx, id)
		return nil, nil
	}
	return snap, nil
}

// Delete はスナップショットを削除する。
func (p *MemoryPersister) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	delete(p.data, id)
	p.mu.Unlock()
	return nil
}

// Sweep は期限切れのスナップショットを削除し、削除件数を返す。
func (p *MemoryPersister) Sweep(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := 0
	for id, entry := range p.data {
		if entry.expired(now) {
			delete(p.data, id)
			removed++
		}
	}
	return removed
}

// Len は保持中のスナップショット数を返す。
func (p *MemoryPersister) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.data)
}

// compile-time interface check
var (
	_ Persister = (*MemoryPersister)(nil)
	_ Sweeper   = (*MemoryPersister)(nil)
)
