package authstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/freecorps/pulse/internal/identity"
	"github.com/freecorps/pulse/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisPersister_SaveLoad(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Hour)
	ctx := context.Background()

	snap := Snapshot{
		Version:     SnapshotVersion,
		User:        &model.User{ID: "user-1", Email: "a@b.com"},
		MFARequired: true,
		MFAStep:     model.MFAStepSelect,
		Session:     "secret",
	}
	if err := p.Save(ctx, "sid-1", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if ttl := mr.TTL(redisKeyPrefix + "sid-1"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	got, err := p.Load(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.User.Email != "a@b.com" || got.MFAStep != model.MFAStepSelect || got.Session != "secret" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestRedisPersister_LoadMissing(t *testing.T) {
	_, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Hour)

	got, err := p.Load(context.Background(), "missing")
	if err != nil || got != nil {
		t.Errorf("Load = %+v, %v", got, err)
	}
}

func TestRedisPersister_Expires(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Minute)
	ctx := context.Background()

	p.Save(ctx, "sid-1", Snapshot{Version: SnapshotVersion})
	mr.FastForward(2 * time.Minute)

	got, err := p.Load(ctx, "sid-1")
	if err != nil || got != nil {
		t.Errorf("Load after expiry = %+v, %v", got, err)
	}
}

func TestRedisPersister_DiscardsInvalidSnapshot(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Hour)

	mr.Set(redisKeyPrefix+"sid-1", `{"v":42}`)

	got, err := p.Load(context.Background(), "sid-1")
	if err != nil || got != nil {
		t.Errorf("Load = %+v, %v", got, err)
	}
	if mr.Exists(redisKeyPrefix + "sid-1") {
		t.Error("expected invalid snapshot to be deleted")
	}
}

func TestRedisPersister_Delete(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Hour)
	ctx := context.Background()

	p.Save(ctx, "sid-1", Snapshot{Version: SnapshotVersion})
	if err := p.Delete(ctx, "sid-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if mr.Exists(redisKeyPrefix + "sid-1") {
		t.Error("expected key to be deleted")
	}
}

func TestRedisPersister_StoreRoundTrip(t *testing.T) {
	// 再起動後も別のStoreインスタンスでMFA待ちの状態が復元されること
	_, client := newTestRedis(t)
	p := NewRedisPersister(client, time.Hour)
	ctx := context.Background()

	gw := &mockGateway{
		createEmailPasswordSessionFn: func(ctx context.Context, email, password string) (*model.Session, error) {
			return nil, errMoreFactors()
		},
	}
	s := New("sid-1", gw, Options{Persister: p})
	s.Login(ctx, "a@b.com", "pw")

	m := NewManager(func() identity.Gateway { return &mockGateway{} }, Options{Persister: p}, DefaultManagerConfig())
	defer m.Stop()

	restored, err := m.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st := restored.State(); !st.MFARequired || st.MFAStep != model.MFAStepSelect {
		t.Errorf("restored state = %+v", st)
	}
}
