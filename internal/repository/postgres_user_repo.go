package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/memberhub/internal/model"
)

const userColumns = `id, first_name, last_name, email, subscribed_to_user_ids`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// 購読リストは text[] 列に保持し、逆引きはGINインデックス付きの ANY 検索で行う。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var subscribed []string
	if err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, pq.Array(&subscribed)); err != nil {
		return nil, err
	}
	if subscribed == nil {
		subscribed = []string{}
	}
	user.SubscribedToUserIDs = subscribed
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// List は全ユーザーを作成順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
}

// ListBySubscribedTo は購読リストに指定ユーザーIDを含むユーザーを返す。
func (r *PostgresUserRepo) ListBySubscribedTo(ctx context.Context, userID string) ([]*model.User, error) {
	return r.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE $1 = ANY(subscribed_to_user_ids) ORDER BY created_at ASC, id ASC`,
		userID,
	)
}

func (r *PostgresUserRepo) queryUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}
	return users, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	subscribed := user.SubscribedToUserIDs
	if subscribed == nil {
		subscribed = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, email, subscribed_to_user_ids)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.FirstName, user.LastName, user.Email, pq.Array(subscribed),
	)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は表示属性を部分更新し、更新後のユーザーを返す。
func (r *PostgresUserRepo) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET
		   first_name = COALESCE($2, first_name),
		   last_name  = COALESCE($3, last_name),
		   email      = COALESCE($4, email)
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, patch.FirstName, patch.LastName, patch.Email,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return user, nil
}

// SetSubscriptions は購読リストを丸ごと置き換える。
func (r *PostgresUserRepo) SetSubscriptions(ctx context.Context, id string, subscribedToUserIDs []string) (*model.User, error) {
	if subscribedToUserIDs == nil {
		subscribedToUserIDs = []string{}
	}
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET subscribed_to_user_ids = $2 WHERE id = $1 RETURNING `+userColumns,
		id, pq.Array(subscribedToUserIDs),
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("購読リストの更新に失敗しました: %w", err)
	}
	return user, nil
}

// Delete はユーザーを削除し、削除前のユーザーを返す。
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING `+userColumns,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
