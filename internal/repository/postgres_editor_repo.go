package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freecorps/pulse/internal/model"
)

// PostgresEditorRepo はPostgreSQLを使用した編集者リポジトリ。
type PostgresEditorRepo struct {
	db *sql.DB
}

// NewPostgresEditorRepo はPostgresEditorRepoを生成する。
func NewPostgresEditorRepo(db *sql.DB) *PostgresEditorRepo {
	return &PostgresEditorRepo{db: db}
}

const editorColumns = `id, name, image_url, description, permissions, created_at, updated_at`

func scanEditor(row rowScanner) (*model.Editor, error) {
	e := &model.Editor{}
	err := row.Scan(&e.ID, &e.Name, &e.ImageURL, &e.Description,
		pq.Array(&e.Permissions), &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// List は編集者を名前順に返す。
func (r *PostgresEditorRepo) List(ctx context.Context) ([]*model.Editor, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+editorColumns+` FROM editors ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("編集者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var editors []*model.Editor
	for rows.Next() {
		e, err := scanEditor(rows)
		if err != nil {
			return nil, fmt.Errorf("編集者行の読み取りに失敗しました: %w", err)
		}
		editors = append(editors, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("編集者一覧の走査に失敗しました: %w", err)
	}
	return editors, nil
}

// FindByID は指定IDの編集者を取得する。見つからない場合はnilを返す。
func (r *PostgresEditorRepo) FindByID(ctx context.Context, id string) (*model.Editor, error) {
	e, err := scanEditor(r.db.QueryRowContext(ctx, `SELECT `+editorColumns+` FROM editors WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("編集者の取得に失敗しました: %w", err)
	}
	return e, nil
}

// Create は編集者を作成する。
func (r *PostgresEditorRepo) Create(ctx context.Context, e *model.Editor) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO editors (id, name, image_url, description, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Name, e.ImageURL, e.Description, pq.Array(e.Permissions), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("編集者の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は編集者情報を更新する。
func (r *PostgresEditorRepo) Update(ctx context.Context, e *model.Editor) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE editors SET name = $2, image_url = $3, description = $4, updated_at = NOW() WHERE id = $1`,
		e.ID, e.Name, e.ImageURL, e.Description,
	)
	if err != nil {
		return fmt.Errorf("編集者の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("編集者が見つかりません: %s", e.ID)
	}
	return nil
}

// Delete は指定IDの編集者を削除する。
func (r *PostgresEditorRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM editors WHERE id = $1`, id); err != nil {
		return fmt.Errorf("編集者の削除に失敗しました: %w", err)
	}
	return nil
}

var _ EditorRepository = (*PostgresEditorRepo)(nil)
