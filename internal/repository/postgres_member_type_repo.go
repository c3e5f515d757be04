package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/memberhub/internal/model"
)

// PostgresMemberTypeRepo はPostgreSQLを使用した会員種別リポジトリ。
type PostgresMemberTypeRepo struct {
	db *sql.DB
}

// NewPostgresMemberTypeRepo はPostgresMemberTypeRepoを生成する。
func NewPostgresMemberTypeRepo(db *sql.DB) *PostgresMemberTypeRepo {
	return &PostgresMemberTypeRepo{db: db}
}

// FindByID は指定IDの会員種別を取得する。見つからない場合はnilを返す。
func (r *PostgresMemberTypeRepo) FindByID(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error) {
	mt := &model.MemberType{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, discount, month_posts_limit FROM member_types WHERE id = $1`,
		string(id),
	).Scan(&mt.ID, &mt.Discount, &mt.MonthPostsLimit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会員種別の取得に失敗しました: %w", err)
	}
	return mt, nil
}

// List は全会員種別を返す。
func (r *PostgresMemberTypeRepo) List(ctx context.Context) ([]*model.MemberType, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, discount, month_posts_limit FROM member_types ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("会員種別一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	types := []*model.MemberType{}
	for rows.Next() {
		mt := &model.MemberType{}
		if err := rows.Scan(&mt.ID, &mt.Discount, &mt.MonthPostsLimit); err != nil {
			return nil, fmt.Errorf("会員種別行の読み取りに失敗しました: %w", err)
		}
		types = append(types, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会員種別一覧の走査に失敗しました: %w", err)
	}
	return types, nil
}

// Update は会員種別の属性を部分更新する。
func (r *PostgresMemberTypeRepo) Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error) {
	mt := &model.MemberType{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE member_types SET
		   discount          = COALESCE($2, discount),
		   month_posts_limit = COALESCE($3, month_posts_limit)
		 WHERE id = $1
		 RETURNING id, discount, month_posts_limit`,
		string(id), patch.Discount, patch.MonthPostsLimit,
	).Scan(&mt.ID, &mt.Discount, &mt.MonthPostsLimit)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("会員種別の更新に失敗しました: %w", err)
	}
	return mt, nil
}

// compile-time interface check
var _ MemberTypeRepository = (*PostgresMemberTypeRepo)(nil)
