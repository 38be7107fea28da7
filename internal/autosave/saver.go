// Package autosave は連続する編集を間引いて保存する遅延保存を提供する。
// Updateのたびに保留中の保存を取り消して新しい保存を予約するため、
// 遅延時間内の連続した更新は最後のペイロードだけが保存される。
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/freecorps/pulse/internal/model"
)

// DefaultDelay は最後の更新から保存までの待ち時間。
const DefaultDelay = 2 * time.Second

// PersistFunc はペイロードを保存する関数。
type PersistFunc[T any] func(ctx context.Context, payload T) error

// timer は予約済みの保存を取り消すためのハンドル。
type timer interface {
	Stop() bool
}

// afterFunc はdの経過後にfを呼び出す予約を作る。テストで差し替える。
type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Option はSaverの設定を変更する。
type Option func(*options)

type options struct {
	delay    time.Duration
	timeout  time.Duration
	onStatus func(model.SyncStatus)
}

// WithDelay は保存までの待ち時間を設定する。
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// WithTimeout は1回の保存処理のタイムアウトを設定する。
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithStatusHook は保存結果の状態遷移を通知する関数を設定する。
func WithStatusHook(fn func(model.SyncStatus)) Option {
	return func(o *options) { o.onStatus = fn }
}

// Saver は最新の保留ペイロード1件だけを保持する遅延保存。
// 状態は saved | saving | error の3値で、失敗時は自動で再試行しない。
type Saver[T any] struct {
	persist PersistFunc[T]
	opts    options
	after   afterFunc

	mu      sync.Mutex
	timer   timer
	pending *T
	gen     uint64
	status  model.SyncStatus
}

// New はSaverを生成する。初期状態はsaved。
func New[T any](persist PersistFunc[T], opts ...Option) *Saver[T] {
	o := options{delay: DefaultDelay, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	return &Saver[T]{
		persist: persist,
		opts:    o,
		after:   realAfterFunc,
		status:  model.SyncStatusSaved,
	}
}

// Update は保留中の保存を取り消し、payloadの保存を予約し直す。
func (s *Saver[T]) Update(payload T) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.pending = &payload
	s.status = model.SyncStatusSaving
	s.timer = s.after(s.opts.delay, func() { s.fire(gen) })
	s.mu.Unlock()

	s.notify(model.SyncStatusSaving)
}

// fire は予約時刻に呼ばれる。予約後に新しい更新があった場合は何もしない。
func (s *Saver[T]) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.pending == nil {
		s.mu.Unlock()
		return
	}
	payload := *s.pending
	s.pending = nil
	s.timer = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.timeout)
	defer cancel()
	s.save(ctx, gen, payload)
}

// save はペイロードを保存し、世代が変わっていなければ状態を更新する。
// 保存中に新しい更新があった場合はsavingのまま残す。
func (s *Saver[T]) save(ctx context.Context, gen uint64, payload T) error {
	err := s.persist(ctx, payload)

	next := model.SyncStatusSaved
	if err != nil {
		next = model.SyncStatusError
	}

	s.mu.Lock()
	current := gen == s.gen
	if current {
		s.status = next
	}
	s.mu.Unlock()

	if current {
		s.notify(next)
	}
	return err
}

// Flush は保留中のペイロードがあれば即座に保存する。
func (s *Saver[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	gen := s.gen
	payload := *s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.save(ctx, gen, payload)
}

// Stop は保留中の保存を破棄する。
func (s *Saver[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
}

// Status は現在の保存状態を返す。
func (s *Saver[T]) Status() model.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pending は保存待ちのペイロードがあるかを返す。
func (s *Saver[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *Saver[T]) notify(status model.SyncStatus) {
	if s.opts.onStatus != nil {
		s.opts.onStatus(status)
	}
}
