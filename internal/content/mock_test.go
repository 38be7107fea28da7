package content

import (
	"context"
	"sync"

	"github.com/freecorps/pulse/internal/model"
)

// --- モック ---

type mockPostRepo struct {
	mu         sync.Mutex
	posts      map[string]*model.Post
	patches    []model.PostPatch
	listFn     func(ctx context.Context, filter model.PostFilter) ([]*model.Post, error)
	applyErr   error
	findErr    error
	deletedIDs []string
}

func newMockPostRepo(posts ...*model.Post) *mockPostRepo {
	m := &mockPostRepo{posts: make(map[string]*model.Post)}
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return m
}

func (m *mockPostRepo) List(ctx context.Context, filter model.PostFilter) ([]*model.Post, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, nil
}

func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.posts[id], nil
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[post.ID] = post
	return nil
}

func (m *mockPostRepo) ApplyPatch(ctx context.Context, id string, patch model.PostPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	m.patches = append(m.patches, patch)
	return nil
}

func (m *mockPostRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockPostRepo) appliedPatches() []model.PostPatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PostPatch(nil), m.patches...)
}

type mockGameRepo struct {
	games   map[string]*model.Game
	updated *model.Game
	deleted string
}

func (m *mockGameRepo) List(ctx context.Context) ([]*model.Game, error) {
	var out []*model.Game
	for _, g := range m.games {
		out = append(out, g)
	}
	return out, nil
}
func (m *mockGameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	return m.games[id], nil
}
func (m *mockGameRepo) Create(ctx context.Context, game *model.Game) error {
	if m.games == nil {
		m.games = make(map[string]*model.Game)
	}
	m.games[game.ID] = game
	return nil
}
func (m *mockGameRepo) Update(ctx context.Context, game *model.Game) error {
	m.updated = game
	return nil
}
func (m *mockGameRepo) Delete(ctx context.Context, id string) error {
	m.deleted = id
	return nil
}

type mockEditorRepo struct {
	editors map[string]*model.Editor
	updated *model.Editor
}

func (m *mockEditorRepo) List(ctx context.Context) ([]*model.Editor, error) {
	var out []*model.Editor
	for _, e := range m.editors {
		out = append(out, e)
	}
	return out, nil
}
func (m *mockEditorRepo) FindByID(ctx context.Context, id string) (*model.Editor, error) {
	return m.editors[id], nil
}
func (m *mockEditorRepo) Create(ctx context.Context, editor *model.Editor) error {
	if m.editors == nil {
		m.editors = make(map[string]*model.Editor)
	}
	m.editors[editor.ID] = editor
	return nil
}
func (m *mockEditorRepo) Update(ctx context.Context, editor *model.Editor) error {
	m.updated = editor
	return nil
}
func (m *mockEditorRepo) Delete(ctx context.Context, id string) error {
	delete(m.editors, id)
	return nil
}

type mockMembers struct {
	editors map[string]bool
	err     error
}

func (m *mockMembers) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return teamID == model.TeamEditor && m.editors[userID], nil
}

func strPtr(s string) *string { return &s }
