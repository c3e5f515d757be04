package repository

import (
	"context"
	"slices"
	"sync"

	"github.com/hitoshi/memberhub/internal/model"
)

// table は挿入順を保持するインメモリのテーブル。
// 呼び出し側が MemoryStore のロックを保持している前提で操作する。
type table[K comparable, V any] struct {
	rows  map[K]*V
	order []K
}

func newTable[K comparable, V any]() *table[K, V] {
	return &table[K, V]{rows: make(map[K]*V)}
}

func (t *table[K, V]) get(id K) (*V, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *table[K, V]) put(id K, v *V) {
	if _, exists := t.rows[id]; !exists {
		t.order = append(t.order, id)
	}
	t.rows[id] = v
}

func (t *table[K, V]) remove(id K) (*V, bool) {
	v, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	delete(t.rows, id)
	if i := slices.Index(t.order, id); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
	return v, true
}

// each は挿入順に行を走査する。fnがfalseを返すと打ち切る。
func (t *table[K, V]) each(fn func(v *V) bool) {
	for _, id := range t.order {
		if !fn(t.rows[id]) {
			return
		}
	}
}

// MemoryStore はプロセス内で完結するデータストア。
// 各リポジトリ操作は単一のRWMutexの下で実行されるため、1回の呼び出しはアトミック。
// 読み出し結果はすべてコピーで返し、呼び出し側の変更がストアに波及しないようにする。
type MemoryStore struct {
	mu          sync.RWMutex
	users       *table[string, model.User]
	profiles    *table[string, model.Profile]
	posts       *table[string, model.Post]
	memberTypes *table[model.MemberTypeID, model.MemberType]
}

// NewMemoryStore は会員種別の初期データを投入済みのMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:       newTable[string, model.User](),
		profiles:    newTable[string, model.Profile](),
		posts:       newTable[string, model.Post](),
		memberTypes: newTable[model.MemberTypeID, model.MemberType](),
	}
	for _, mt := range model.DefaultMemberTypes() {
		mt := mt
		s.memberTypes.put(mt.ID, &mt)
	}
	return s
}

// PingContext は常に成功する。HealthChecker を満たすために提供する。
func (s *MemoryStore) PingContext(ctx context.Context) error {
	return ctx.Err()
}

// --- ユーザー ---

// MemoryUserRepo はMemoryStoreを使用したユーザーリポジトリ。
type MemoryUserRepo struct {
	store *MemoryStore
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo(store *MemoryStore) *MemoryUserRepo {
	return &MemoryUserRepo{store: store}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users.get(id)
	if !ok {
		return nil, nil
	}
	return u.Clone(), nil
}

// List は全ユーザーを作成順で返す。
func (r *MemoryUserRepo) List(ctx context.Context) ([]*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users := make([]*model.User, 0, len(r.store.users.order))
	r.store.users.each(func(u *model.User) bool {
		users = append(users, u.Clone())
		return true
	})
	return users, nil
}

// ListBySubscribedTo は購読リストに指定ユーザーIDを含むユーザーを返す。
func (r *MemoryUserRepo) ListBySubscribedTo(ctx context.Context, userID string) ([]*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	users := []*model.User{}
	r.store.users.each(func(u *model.User) bool {
		if u.IsSubscribedBy(userID) {
			users = append(users, u.Clone())
		}
		return true
	})
	return users, nil
}

// Create はユーザーを作成する。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.users.put(user.ID, user.Clone())
	return nil
}

// Update は表示属性を部分更新し、更新後のユーザーを返す。
func (r *MemoryUserRepo) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(u)
	return u.Clone(), nil
}

// SetSubscriptions は購読リストを丸ごと置き換える。
func (r *MemoryUserRepo) SetSubscriptions(ctx context.Context, id string, subscribedToUserIDs []string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	u.SubscribedToUserIDs = slices.Clone(subscribedToUserIDs)
	return u.Clone(), nil
}

// Delete はユーザーを削除し、削除前のユーザーを返す。
func (r *MemoryUserRepo) Delete(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	u, ok := r.store.users.remove(id)
	if !ok {
		return nil, ErrNotFound
	}
	return u.Clone(), nil
}

// --- プロフィール ---

// MemoryProfileRepo はMemoryStoreを使用したプロフィールリポジトリ。
type MemoryProfileRepo struct {
	store *MemoryStore
}

// NewMemoryProfileRepo はMemoryProfileRepoを生成する。
func NewMemoryProfileRepo(store *MemoryStore) *MemoryProfileRepo {
	return &MemoryProfileRepo{store: store}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *MemoryProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.profiles.get(id)
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

// FindByUserID はユーザーIDでプロフィールを検索する。見つからない場合はnilを返す。
func (r *MemoryProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var found *model.Profile
	r.store.profiles.each(func(p *model.Profile) bool {
		if p.UserID == userID {
			c := *p
			found = &c
			return false
		}
		return true
	})
	return found, nil
}

// List は全プロフィールを作成順で返す。
func (r *MemoryProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	profiles := make([]*model.Profile, 0, len(r.store.profiles.order))
	r.store.profiles.each(func(p *model.Profile) bool {
		c := *p
		profiles = append(profiles, &c)
		return true
	})
	return profiles, nil
}

// Create はプロフィールを作成する。
func (r *MemoryProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c := *profile
	r.store.profiles.put(profile.ID, &c)
	return nil
}

// Update はプロフィールを部分更新する。
func (r *MemoryProfileRepo) Update(ctx context.Context, id string, patch model.ProfilePatch) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.profiles.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(p)
	c := *p
	return &c, nil
}

// Delete はプロフィールを削除する。
func (r *MemoryProfileRepo) Delete(ctx context.Context, id string) (*model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.profiles.remove(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// --- 投稿 ---

// MemoryPostRepo はMemoryStoreを使用した投稿リポジトリ。
type MemoryPostRepo struct {
	store *MemoryStore
}

// NewMemoryPostRepo はMemoryPostRepoを生成する。
func NewMemoryPostRepo(store *MemoryStore) *MemoryPostRepo {
	return &MemoryPostRepo{store: store}
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *MemoryPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.posts.get(id)
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

// ListByUserID はユーザーの投稿一覧を返す。
func (r *MemoryPostRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	posts := []*model.Post{}
	r.store.posts.each(func(p *model.Post) bool {
		if p.UserID == userID {
			c := *p
			posts = append(posts, &c)
		}
		return true
	})
	return posts, nil
}

// List は全投稿を作成順で返す。
func (r *MemoryPostRepo) List(ctx context.Context) ([]*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	posts := make([]*model.Post, 0, len(r.store.posts.order))
	r.store.posts.each(func(p *model.Post) bool {
		c := *p
		posts = append(posts, &c)
		return true
	})
	return posts, nil
}

// Create は投稿を作成する。
func (r *MemoryPostRepo) Create(ctx context.Context, post *model.Post) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	c := *post
	r.store.posts.put(post.ID, &c)
	return nil
}

// Update は投稿を部分更新する。
func (r *MemoryPostRepo) Update(ctx context.Context, id string, patch model.PostPatch) (*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.posts.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(p)
	c := *p
	return &c, nil
}

// Delete は投稿を削除する。
func (r *MemoryPostRepo) Delete(ctx context.Context, id string) (*model.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	p, ok := r.store.posts.remove(id)
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

// --- 会員種別 ---

// MemoryMemberTypeRepo はMemoryStoreを使用した会員種別リポジトリ。
type MemoryMemberTypeRepo struct {
	store *MemoryStore
}

// NewMemoryMemberTypeRepo はMemoryMemberTypeRepoを生成する。
func NewMemoryMemberTypeRepo(store *MemoryStore) *MemoryMemberTypeRepo {
	return &MemoryMemberTypeRepo{store: store}
}

// FindByID は指定IDの会員種別を取得する。見つからない場合はnilを返す。
func (r *MemoryMemberTypeRepo) FindByID(ctx context.Context, id model.MemberTypeID) (*model.MemberType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	mt, ok := r.store.memberTypes.get(id)
	if !ok {
		return nil, nil
	}
	c := *mt
	return &c, nil
}

// List は全会員種別を返す。
func (r *MemoryMemberTypeRepo) List(ctx context.Context) ([]*model.MemberType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	types := make([]*model.MemberType, 0, len(r.store.memberTypes.order))
	r.store.memberTypes.each(func(mt *model.MemberType) bool {
		c := *mt
		types = append(types, &c)
		return true
	})
	return types, nil
}

// Update は会員種別の属性を部分更新する。
func (r *MemoryMemberTypeRepo) Update(ctx context.Context, id model.MemberTypeID, patch model.MemberTypePatch) (*model.MemberType, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	mt, ok := r.store.memberTypes.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(mt)
	c := *mt
	return &c, nil
}

// compile-time interface checks
var (
	_ UserRepository       = (*MemoryUserRepo)(nil)
	_ ProfileRepository    = (*MemoryProfileRepo)(nil)
	_ PostRepository       = (*MemoryPostRepo)(nil)
	_ MemberTypeRepository = (*MemoryMemberTypeRepo)(nil)
	_ HealthChecker        = (*MemoryStore)(nil)
)
