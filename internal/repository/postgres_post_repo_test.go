package repository

import (
	"database/sql/driver"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/freecorps/pulse/internal/model"
)

// 各Postgresリポジトリがインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ PostRepository = (*PostgresPostRepo)(nil)
	var _ GameRepository = (*PostgresGameRepo)(nil)
	var _ EditorRepository = (*PostgresEditorRepo)(nil)
	var _ ForumPostRepository = (*PostgresForumPostRepo)(nil)
	var _ CommentRepository = (*PostgresCommentRepo)(nil)
	var _ ProfileRepository = (*PostgresProfileRepo)(nil)
	var _ CustomerRepository = (*PostgresCustomerRepo)(nil)
	var _ WebhookEventRepository = (*PostgresWebhookEventRepo)(nil)
}

func TestBuildPostListQuery_NoFilter(t *testing.T) {
	query, args := buildPostListQuery(model.PostFilter{})

	if strings.Contains(query, "WHERE") {
		t.Errorf("query should not contain WHERE: %s", query)
	}
	if !strings.Contains(query, "ORDER BY created_at DESC LIMIT $1") {
		t.Errorf("query = %s", query)
	}
	if len(args) != 1 || args[0] != 25 {
		t.Errorf("args = %v, want [25]", args)
	}
}

func TestBuildPostListQuery_AllFilters(t *testing.T) {
	query, args := buildPostListQuery(model.PostFilter{
		GameIDs:  []string{"g1", "g2"},
		EditorID: "e1",
		Type:     model.PostTypeAnalysis,
		Limit:    10,
		Offset:   20,
	})

	for _, want := range []string{
		"game_id::text = ANY($1)",
		"editor_id::text = $2",
		"type = $3",
		"LIMIT $4",
		"OFFSET $5",
	} {
		if !strings.Contains(query, want) {
			t.Errorf("query missing %q: %s", want, query)
		}
	}
	if len(args) != 5 {
		t.Fatalf("len(args) = %d, want 5", len(args))
	}
	if _, ok := args[0].(driver.Valuer); !ok {
		t.Errorf("args[0] = %T, want driver.Valuer", args[0])
	}
	if args[1] != "e1" || args[2] != "analysis" || args[3] != 10 || args[4] != 20 {
		t.Errorf("args = %v", args[1:])
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "23503"}) {
		t.Error("foreign key violation should not be a unique violation")
	}
	if IsUniqueViolation(nil) {
		t.Error("nil should not be a unique violation")
	}
}
