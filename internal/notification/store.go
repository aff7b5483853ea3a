package notification

import (
	"context"
	"database/sql"
	"embed"
	"time"
)

//go:embed migrations
var migrationsFS embed.FS

// Notification は通知のDBレコードを表す。
type Notification struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーID。
	UserID string
	// Title は通知のタイトル。
	Title string
	// Message は通知メッセージ。
	Message string
	// IsRead は既読フラグ。
	IsRead bool
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// Store は通知テーブルへのクエリを提供する。
type Store struct {
	db *sql.DB
}

// NewStore はStoreを生成する。
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// notificationColumns はSELECT句で取得するカラムの並び。scanNotificationと対応する。
const notificationColumns = "id, user_id, title, message, is_read, created_at"

// scanNotification は1行をNotificationに変換する。
func scanNotification(row interface{ Scan(dest ...any) error }) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Create は新しい通知を登録する。
func (s *Store) Create(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message)
		VALUES (?, ?, ?, ?)
	`, n.ID, n.UserID, n.Title, n.Message)
	return err
}

// GetByID は指定IDの通知を取得する。
// 見つからない場合はsql.ErrNoRowsを返す。
func (s *Store) GetByID(ctx context.Context, id string) (Notification, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)
	return scanNotification(row)
}

// ListByUser は指定ユーザーの通知一覧を新しい順で取得する。
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Notification, error) {
	return s.list(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE user_id = ? ORDER BY created_at DESC, id", userID)
}

// ListUnreadByUser は指定ユーザーの未読通知一覧を新しい順で取得する。
func (s *Store) ListUnreadByUser(ctx context.Context, userID string) ([]Notification, error) {
	return s.list(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE user_id = ? AND is_read = 0 ORDER BY created_at DESC, id", userID)
}

// list は通知一覧クエリの共通処理。
func (s *Store) list(ctx context.Context, query string, args ...any) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkRead は指定通知を既読にする。
func (s *Store) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE id = ?", id)
	return err
}

// MarkAllRead は指定ユーザーの全通知を既読にする。
func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET is_read = 1 WHERE user_id = ?", userID)
	return err
}
