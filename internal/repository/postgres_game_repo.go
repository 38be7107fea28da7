package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freecorps/pulse/internal/model"
)

// PostgresGameRepo はPostgreSQLを使用したゲームリポジトリ。
type PostgresGameRepo struct {
	db *sql.DB
}

// NewPostgresGameRepo はPostgresGameRepoを生成する。
func NewPostgresGameRepo(db *sql.DB) *PostgresGameRepo {
	return &PostgresGameRepo{db: db}
}

const gameColumns = `id, name, image_url, abbreviation, image_url_upper, permissions, created_at, updated_at`

func scanGame(row rowScanner) (*model.Game, error) {
	g := &model.Game{}
	err := row.Scan(&g.ID, &g.Name, &g.ImageURL, &g.Abbreviation, &g.ImageURLUpper,
		pq.Array(&g.Permissions), &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// List はゲームを名前順に返す。
func (r *PostgresGameRepo) List(ctx context.Context) ([]*model.Game, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("ゲーム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var games []*model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("ゲーム行の読み取りに失敗しました: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ゲーム一覧の走査に失敗しました: %w", err)
	}
	return games, nil
}

// FindByID は指定IDのゲームを取得する。見つからない場合はnilを返す。
func (r *PostgresGameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ゲームの取得に失敗しました: %w", err)
	}
	return g, nil
}

// Create はゲームを作成する。
func (r *PostgresGameRepo) Create(ctx context.Context, g *model.Game) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (id, name, image_url, abbreviation, image_url_upper, permissions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.ImageURL, g.Abbreviation, g.ImageURLUpper, pq.Array(g.Permissions), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ゲームの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はゲーム情報を更新する。権限リストは作成時のまま変更しない。
func (r *PostgresGameRepo) Update(ctx context.Context, g *model.Game) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE games SET name = $2, image_url = $3, abbreviation = $4, image_url_upper = $5, updated_at = NOW()
		 WHERE id = $1`,
		g.ID, g.Name, g.ImageURL, g.Abbreviation, g.ImageURLUpper,
	)
	if err != nil {
		return fmt.Errorf("ゲームの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("ゲームが見つかりません: %s", g.ID)
	}
	return nil
}

// Delete は指定IDのゲームを削除する。関連する記事のgame_idはNULLになる。
func (r *PostgresGameRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM games WHERE id = $1`, id); err != nil {
		return fmt.Errorf("ゲームの削除に失敗しました: %w", err)
	}
	return nil
}

var _ GameRepository = (*PostgresGameRepo)(nil)
