package user

import (
	"context"
	"database/sql"
	"embed"
	"strings"
	"time"
)

//go:embed migrations
var migrationsFS embed.FS

// User はユーザーのDBレコードを表す。
type User struct {
	// ID はユーザーの一意識別子。
	ID string
	// Username はログイン用のユーザー名。
	Username string
	// Email はメールアドレス。
	Email string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// FullName は氏名。
	FullName string
	// Roles は保持するロールの一覧。
	Roles []string
	// CenterID は所属センターのID。未所属の場合は空文字列。
	CenterID string
	// Enabled は有効フラグ。falseは論理削除済みを表す。
	Enabled bool
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// Store はユーザーテーブルへのクエリを提供する。
type Store struct {
	db *sql.DB
}

// NewStore はStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// userColumns はSELECT句で取得するカラムの並び。scanUserと対応する。
const userColumns = "id, username, email, password_hash, full_name, roles, center_id, enabled, created_at, updated_at"

// sortColumns はソート指定として受け付けるキーとカラム名の対応。
// ここに無いキーが指定された場合はcreated_atでソートする。
var sortColumns = map[string]string{
	"username":   "username",
	"email":      "email",
	"fullName":   "full_name",
	"full_name":  "full_name",
	"createdAt":  "created_at",
	"created_at": "created_at",
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser は1行をUserに変換する。
func scanUser(row rowScanner) (User, error) {
	var u User
	var roles string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&roles, &u.CenterID, &u.Enabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	u.Roles = parseRoles(roles)
	return u, nil
}

// Create は新しいユーザーを登録する。
func (s *Store) Create(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, full_name, roles, center_id, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.PasswordHash, u.FullName, joinRoles(u.Roles), u.CenterID, u.Enabled)
	return err
}

// GetByID は指定IDのユーザーを取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// GetByEmail は指定メールアドレスのユーザーを取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	return scanUser(row)
}

// UsernameTaken は指定ユーザー名が既に使用されているかを返す。
// excludeIDで指定したユーザー自身は除外する（更新時の重複チェック用）。
func (s *Store) UsernameTaken(ctx context.Context, username, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE username = ? AND id != ?", username, excludeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EmailTaken は指定メールアドレスが既に使用されているかを返す。
// excludeIDで指定したユーザー自身は除外する（更新時の重複チェック用）。
func (s *Store) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE email = ? AND id != ?", email, excludeID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListParams はユーザー一覧取得の条件。
type ListParams struct {
	// ExcludeID は一覧から除外するユーザーID（リクエストしたユーザー自身）。
	ExcludeID string
	// IncludeDisabled は論理削除済みユーザーを含めるかどうか。
	IncludeDisabled bool
	// SortBy はソートキー。sortColumnsに無い値はcreated_at扱い。
	SortBy string
	// Limit は取得件数。
	Limit int
	// Offset は取得開始位置。
	Offset int
}

// List は条件に一致するユーザー一覧を取得する。
func (s *Store) List(ctx context.Context, p ListParams) ([]User, error) {
	column, ok := sortColumns[p.SortBy]
	if !ok {
		column = "created_at"
	}

	query := "SELECT " + userColumns + " FROM users WHERE id != ?"
	if !p.IncludeDisabled {
		query += " AND enabled = 1"
	}
	query += " ORDER BY " + column + " LIMIT ? OFFSET ?"

	rows, err := s.db.QueryContext(ctx, query, p.ExcludeID, p.Limit, p.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count は条件に一致するユーザー数を返す。
func (s *Store) Count(ctx context.Context, excludeID string, includeDisabled bool) (int, error) {
	query := "SELECT COUNT(*) FROM users WHERE id != ?"
	if !includeDisabled {
		query += " AND enabled = 1"
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, excludeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListByCenter は指定センターに所属するユーザー一覧を取得する。
func (s *Store) ListByCenter(ctx context.Context, centerID string, includeDisabled bool) ([]User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE center_id = ?"
	if !includeDisabled {
		query += " AND enabled = 1"
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, centerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CenterHasUsers は指定センターに有効なユーザーが1人以上いるかを返す。
func (s *Store) CenterHasUsers(ctx context.Context, centerID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE center_id = ? AND enabled = 1", centerID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update はユーザーのプロフィール項目を更新する。
func (s *Store) Update(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, email = ?, full_name = ?, roles = ?, center_id = ?, updated_at = datetime('now')
		WHERE id = ?
	`, u.Username, u.Email, u.FullName, joinRoles(u.Roles), u.CenterID, u.ID)
	return err
}

// UpdatePasswordHash はユーザーのパスワードハッシュを更新する。
func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = datetime('now') WHERE id = ?
	`, passwordHash, id)
	return err
}

// Disable はユーザーを論理削除する。
func (s *Store) Disable(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET enabled = 0, updated_at = datetime('now') WHERE id = ?
	`, id)
	return err
}

// HardDelete はユーザーを物理削除する。
func (s *Store) HardDelete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

// joinRoles はロール一覧をDB格納用のカンマ区切り文字列に変換する。
func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}

// parseRoles はDB格納されたカンマ区切り文字列をロール一覧に変換する。
func parseRoles(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			roles = append(roles, p)
		}
	}
	if len(roles) == 0 {
		return nil
	}
	return roles
}
