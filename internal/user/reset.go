package user

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// resetTokenTTL はリセットトークンの有効期間。
const resetTokenTTL = 30 * time.Minute

// resetTokenStore はパスワードリセットトークンをプロセス内で保持する。
// トークンは有効期間を過ぎると自動的に破棄される。
type resetTokenStore struct {
	tokens *cache.Cache
}

// newResetTokenStore はresetTokenStoreを生成する。
func newResetTokenStore() *resetTokenStore {
	return &resetTokenStore{
		tokens: cache.New(resetTokenTTL, 10*time.Minute),
	}
}

// Issue は指定ユーザーに対する新しいリセットトークンを発行する。
func (r *resetTokenStore) Issue(userID string) string {
	token := uuid.NewString()
	r.tokens.Set(token, userID, cache.DefaultExpiration)
	return token
}

// Lookup はトークンに対応するユーザーIDを返す。
// トークンが存在しないか期限切れの場合はfalseを返す。
func (r *resetTokenStore) Lookup(token string) (string, bool) {
	v, ok := r.tokens.Get(token)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Invalidate はトークンを無効化する。使用済みトークンの再利用を防ぐ。
func (r *resetTokenStore) Invalidate(token string) {
	r.tokens.Delete(token)
}
