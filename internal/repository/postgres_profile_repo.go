package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/memberhub/internal/model"
)

const profileColumns = `id, avatar, sex, birthday, country, street, city, member_type_id, user_id`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(&p.ID, &p.Avatar, &p.Sex, &p.Birthday, &p.Country, &p.Street, &p.City, &p.MemberTypeID, &p.UserID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByUserID はユーザーIDでプロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーによるプロフィールの検索に失敗しました: %w", err)
	}
	return p, nil
}

// List は全プロフィールを作成順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	profiles := []*model.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフィール行の読み取りに失敗しました: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィール一覧の走査に失敗しました: %w", err)
	}
	return profiles, nil
}

// Create はプロフィールを作成する。
func (r *PostgresProfileRepo) Create(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Avatar, p.Sex, p.Birthday, p.Country, p.Street, p.City, p.MemberTypeID, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はプロフィールを部分更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error) {
	var memberTypeID *string
	if patch.MemberTypeID != nil {
		s := string(*patch.MemberTypeID)
		memberTypeID = &s
	}
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`UPDATE profiles SET
		   avatar         = COALESCE($2, avatar),
		   sex            = COALESCE($3, sex),
		   birthday       = COALESCE($4, birthday),
		   country        = COALESCE($5, country),
		   street         = COALESCE($6, street),
		   city           = COALESCE($7, city),
		   member_type_id = COALESCE($8, member_type_id)
		 WHERE id = $1
		 RETURNING `+profileColumns,
		id, patch.Avatar, patch.Sex, patch.Birthday, patch.Country, patch.Street, patch.City, memberTypeID,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return p, nil
}

// Delete はプロフィールを削除する。
func (r *PostgresProfileRepo) Delete(ctx context.Context, id string) (*model.Profile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`DELETE FROM profiles WHERE id = $1 RETURNING `+profileColumns, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return p, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
