package user

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/hospital/pkg/httpclient"
	"github.com/nao1215/hospital/pkg/middleware"
	"github.com/nao1215/hospital/pkg/migration"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のユーザーサーバーをインメモリSQLiteで構築する。
// adminHandlerは管理サービスのモックとして全リクエストに応答する。
// nilを渡すと常に404を返す（センターなし・ドクター未連携の状態）。
func setupTestServer(t *testing.T, adminHandler http.HandlerFunc) *Server {
	t.Helper()

	if adminHandler == nil {
		adminHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}
	}

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		t.Fatalf("マイグレーション適用に失敗: %v", err)
	}

	admin := httptest.NewServer(adminHandler)
	t.Cleanup(admin.Close)

	notification := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(notification.Close)

	router := gin.New()
	router.Use(middleware.TrustIdentity())

	s := &Server{
		router:       router,
		port:         "0",
		db:           sqlDB,
		store:        NewStore(sqlDB),
		admin:        NewAdminClient(admin.URL),
		notification: httpclient.New(notification.URL),
		resetTokens:  newResetTokenStore(),
	}
	s.setupRoutes()

	return s
}

// createTestUser はテスト用にユーザーをDBに直接挿入するヘルパー関数。
func createTestUser(t *testing.T, s *Server, u User) {
	t.Helper()

	if u.PasswordHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte("default-password"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("パスワードハッシュ化に失敗: %v", err)
		}
		u.PasswordHash = string(hash)
	}
	if err := s.store.Create(t.Context(), u); err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
}

// doRequest は識別ヘッダー付きのテストリクエストを実行するヘルパー関数。
// rolesはカンマ区切りでX-Rolesヘッダーに設定する。
func doRequest(s *Server, method, path, userID, roles string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if roles != "" {
		req.Header.Set("X-Roles", roles)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディを指定の型にパースするヘルパー関数。
func parseJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスのパースに失敗: %v, body=%s", err, w.Body.String())
	}
	return v
}

// registerBody はテスト用のユーザー登録ボディを生成する。
func registerBody(username, email, centerID string) map[string]any {
	return map[string]any{
		"username":  username,
		"email":     email,
		"password":  "secret-password",
		"full_name": "山田太郎",
		"roles":     []string{"PATIENT"},
		"center_id": centerID,
	}
}

// TestUserHealthCheck はヘルスチェックエンドポイントのテスト。
func TestUserHealthCheck(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, nil)

	t.Run("サービスヘルスチェックが200を返すこと", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/health", "", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("疎通確認エンドポイントが認証なしで200を返すこと", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/health-test", "", "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestHandleRegister はユーザー登録のテスト。
func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("センター指定なしで登録できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("yamada", "yamada@example.com", ""))

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		created := parseJSON[userResponse](t, w)
		if created.Username != "yamada" {
			t.Errorf("username: got %q, want %q", created.Username, "yamada")
		}
		if !created.Enabled {
			t.Error("登録直後のユーザーが無効になっている")
		}
	})

	t.Run("管理サービスがセンター存在を返せば登録できること", func(t *testing.T) {
		t.Parallel()

		var gotPath string
		s := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		})

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("sato", "sato@example.com", "center-42"))

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}
		if gotPath != "/admin/centers/center-42/exists" {
			t.Errorf("確認パス: got %q, want %q", gotPath, "/admin/centers/center-42/exists")
		}
	})

	t.Run("センターが存在しない場合は404で登録されないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("sato", "sato@example.com", "center-42"))

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
		if _, err := s.store.GetByEmail(t.Context(), "sato@example.com"); !errors.Is(err, sql.ErrNoRows) {
			t.Error("センター確認に失敗したのにユーザーが登録されている")
		}
	})

	t.Run("管理サービスが5xxの場合は503で登録されないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("sato", "sato@example.com", "center-42"))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
		if _, err := s.store.GetByEmail(t.Context(), "sato@example.com"); !errors.Is(err, sql.ErrNoRows) {
			t.Error("管理サービス停止中なのにユーザーが登録されている")
		}
	})

	t.Run("ユーザー名が重複している場合は409を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("yamada", "other@example.com", ""))

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("メールアドレスが重複している場合は409を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			registerBody("suzuki", "yamada@example.com", ""))

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("ADMINロールなしは403を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPost, "/auth/register", "user-1", "PATIENT",
			registerBody("yamada", "yamada@example.com", ""))

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("必須項目が欠けている場合は400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
			map[string]any{"username": "yamada"})

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleListUsers はユーザー一覧取得のテスト。
func TestHandleListUsers(t *testing.T) {
	t.Parallel()

	t.Run("一覧から自分自身が除外されセンター名が解決されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"id":"1","name":"北センター"},{"id":"2","name":"南センター"}]`))
		})
		createTestUser(t, s, User{ID: "admin-1", Username: "admin", Email: "admin@example.com", Enabled: true})
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", CenterID: "1", Enabled: true})
		createTestUser(t, s, User{ID: "u-2", Username: "suzuki", Email: "suzuki@example.com", CenterID: "2", Enabled: true})
		createTestUser(t, s, User{ID: "u-3", Username: "tanaka", Email: "tanaka@example.com", CenterID: "99", Enabled: true})

		w := doRequest(s, http.MethodGet, "/auth/users", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON[struct {
			Users []userResponse `json:"users"`
			Total int            `json:"total"`
		}](t, w)

		if result.Total != 3 {
			t.Errorf("total: got %d, want 3", result.Total)
		}
		names := make(map[string]string, len(result.Users))
		for _, u := range result.Users {
			if u.ID == "admin-1" {
				t.Error("リクエストしたユーザー自身が一覧に含まれている")
			}
			names[u.Username] = u.CenterName
		}
		if names["yamada"] != "北センター" {
			t.Errorf("yamadaのセンター名: got %q, want %q", names["yamada"], "北センター")
		}
		if names["suzuki"] != "南センター" {
			t.Errorf("suzukiのセンター名: got %q, want %q", names["suzuki"], "南センター")
		}
		// 管理サービスの応答に含まれないセンターはプレースホルダー名で表示する
		if names["tanaka"] != unknownCenterName {
			t.Errorf("tanakaのセンター名: got %q, want %q", names["tanaka"], unknownCenterName)
		}
	})

	t.Run("管理サービスが停止していても一覧は取得できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", CenterID: "1", Enabled: true})

		w := doRequest(s, http.MethodGet, "/auth/users", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSON[struct {
			Users []userResponse `json:"users"`
		}](t, w)
		if len(result.Users) != 1 {
			t.Fatalf("ユーザー件数: got %d, want 1", len(result.Users))
		}
		if result.Users[0].CenterName != unknownCenterName {
			t.Errorf("センター名: got %q, want %q", result.Users[0].CenterName, unknownCenterName)
		}
	})

	t.Run("論理削除済みユーザーはincludeDeleted指定時のみ含まれること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})
		createTestUser(t, s, User{ID: "u-2", Username: "suzuki", Email: "suzuki@example.com", Enabled: false})

		w := doRequest(s, http.MethodGet, "/auth/users", "admin-1", "ADMIN", nil)
		result := parseJSON[struct {
			Users []userResponse `json:"users"`
		}](t, w)
		if len(result.Users) != 1 {
			t.Errorf("通常一覧のユーザー件数: got %d, want 1", len(result.Users))
		}

		w = doRequest(s, http.MethodGet, "/auth/users?includeDeleted=true", "admin-1", "ADMIN", nil)
		result = parseJSON[struct {
			Users []userResponse `json:"users"`
		}](t, w)
		if len(result.Users) != 2 {
			t.Errorf("includeDeleted一覧のユーザー件数: got %d, want 2", len(result.Users))
		}
	})

	t.Run("ページネーションが機能すること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "a-yamada", Email: "a@example.com", Enabled: true})
		createTestUser(t, s, User{ID: "u-2", Username: "b-suzuki", Email: "b@example.com", Enabled: true})
		createTestUser(t, s, User{ID: "u-3", Username: "c-tanaka", Email: "c@example.com", Enabled: true})

		w := doRequest(s, http.MethodGet, "/auth/users?page=1&size=2&sortBy=username", "admin-1", "ADMIN", nil)
		result := parseJSON[struct {
			Users []userResponse `json:"users"`
			Total int            `json:"total"`
			Page  int            `json:"page"`
		}](t, w)

		if result.Total != 3 {
			t.Errorf("total: got %d, want 3", result.Total)
		}
		if result.Page != 1 {
			t.Errorf("page: got %d, want 1", result.Page)
		}
		if len(result.Users) != 1 {
			t.Fatalf("2ページ目のユーザー件数: got %d, want 1", len(result.Users))
		}
		if result.Users[0].Username != "c-tanaka" {
			t.Errorf("2ページ目の先頭: got %q, want %q", result.Users[0].Username, "c-tanaka")
		}
	})

	t.Run("ADMINロールなしは403を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodGet, "/auth/users", "user-1", "PATIENT", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleGetMe は自分自身のユーザー情報取得のテスト。
func TestHandleGetMe(t *testing.T) {
	t.Parallel()

	t.Run("X-User-Idヘッダーのユーザーを取得できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Roles: []string{"PATIENT"}, Enabled: true})

		w := doRequest(s, http.MethodGet, "/auth/users/me", "u-1", "PATIENT", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		me := parseJSON[userResponse](t, w)
		if me.ID != "u-1" {
			t.Errorf("id: got %q, want %q", me.ID, "u-1")
		}
	})

	t.Run("ユーザーIDヘッダーなしは401を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodGet, "/auth/users/me", "", "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

// TestHandleGetUser はユーザー詳細取得のテスト。
func TestHandleGetUser(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, nil)
	createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})
	createTestUser(t, s, User{ID: "u-2", Username: "suzuki", Email: "suzuki@example.com", Enabled: false})

	t.Run("存在するユーザーを取得できること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/users/u-1", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("存在しないユーザーは404を返すこと", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/users/no-such", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("enabledフィルタが一致しない場合は404を返すこと", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/users/u-2?enabled=true", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}

		w = doRequest(s, http.MethodGet, "/auth/users/u-2?enabled=false", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}
	})
}

// TestHandleUpdateUser はユーザー更新のテスト。
func TestHandleUpdateUser(t *testing.T) {
	t.Parallel()

	t.Run("プロフィールを更新できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodPut, "/auth/users/u-1", "admin-1", "ADMIN", map[string]any{
			"username":  "yamada-new",
			"email":     "yamada-new@example.com",
			"full_name": "山田次郎",
			"roles":     []string{"DOCTOR"},
		})

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		updated := parseJSON[userResponse](t, w)
		if updated.Username != "yamada-new" {
			t.Errorf("username: got %q, want %q", updated.Username, "yamada-new")
		}
		if len(updated.Roles) != 1 || updated.Roles[0] != "DOCTOR" {
			t.Errorf("roles: got %v, want [DOCTOR]", updated.Roles)
		}
	})

	t.Run("他ユーザーと重複するメールアドレスへの変更は409を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})
		createTestUser(t, s, User{ID: "u-2", Username: "suzuki", Email: "suzuki@example.com", Enabled: true})

		w := doRequest(s, http.MethodPut, "/auth/users/u-1", "admin-1", "ADMIN", map[string]any{
			"username": "yamada",
			"email":    "suzuki@example.com",
		})

		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("センター変更時は管理サービスに存在を確認すること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", CenterID: "1", Enabled: true})

		w := doRequest(s, http.MethodPut, "/auth/users/u-1", "admin-1", "ADMIN", map[string]any{
			"username":  "yamada",
			"email":     "yamada@example.com",
			"center_id": "99",
		})

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}

		// 変更されていないことを確認する
		u, err := s.store.GetByID(t.Context(), "u-1")
		if err != nil {
			t.Fatalf("ユーザー取得に失敗: %v", err)
		}
		if u.CenterID != "1" {
			t.Errorf("center_id: got %q, want %q", u.CenterID, "1")
		}
	})

	t.Run("存在しないユーザーは404を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPut, "/auth/users/no-such", "admin-1", "ADMIN", map[string]any{
			"username": "yamada",
			"email":    "yamada@example.com",
		})

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleListByCenter はセンター所属ユーザー一覧のテスト。
func TestHandleListByCenter(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, nil)
	createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", CenterID: "center-1", Enabled: true})
	createTestUser(t, s, User{ID: "u-2", Username: "suzuki", Email: "suzuki@example.com", CenterID: "center-1", Enabled: false})
	createTestUser(t, s, User{ID: "u-3", Username: "tanaka", Email: "tanaka@example.com", CenterID: "center-2", Enabled: true})

	t.Run("指定センターの有効なユーザーのみ取得できること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/users/by-center/center-1", "viewer-1", "PATIENT", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		users := parseJSON[[]userResponse](t, w)
		if len(users) != 1 {
			t.Fatalf("ユーザー件数: got %d, want 1", len(users))
		}
		if users[0].ID != "u-1" {
			t.Errorf("id: got %q, want %q", users[0].ID, "u-1")
		}
	})

	t.Run("includeDisabled指定で無効ユーザーも含まれること", func(t *testing.T) {
		w := doRequest(s, http.MethodGet, "/auth/users/by-center/center-1?includeDisabled=true", "viewer-1", "PATIENT", nil)
		users := parseJSON[[]userResponse](t, w)
		if len(users) != 2 {
			t.Errorf("ユーザー件数: got %d, want 2", len(users))
		}
	})

	t.Run("所属ユーザーの存在確認がステータスコードのみで応答すること", func(t *testing.T) {
		w := doRequest(s, http.MethodHead, "/auth/users/by-center/center-1/exists", "viewer-1", "PATIENT", nil)
		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}

		w = doRequest(s, http.MethodHead, "/auth/users/by-center/no-such/exists", "viewer-1", "PATIENT", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleDeleteCenterUser はドクター連携確認付きのユーザー削除のテスト。
func TestHandleDeleteCenterUser(t *testing.T) {
	t.Parallel()

	t.Run("ドクター未連携なら論理削除が実行されること", func(t *testing.T) {
		t.Parallel()

		// 管理サービスが404 = ドクター未連携
		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/c/u-7", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusNoContent, w.Body.String())
		}

		u, err := s.store.GetByID(t.Context(), "u-7")
		if err != nil {
			t.Fatalf("ユーザー取得に失敗: %v", err)
		}
		if u.Enabled {
			t.Error("論理削除後もユーザーが有効のままになっている")
		}
	})

	t.Run("hard指定で物理削除が実行されること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/c/u-7?hard=true", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}

		if _, err := s.store.GetByID(t.Context(), "u-7"); !errors.Is(err, sql.ErrNoRows) {
			t.Error("物理削除後もユーザーが残っている")
		}
	})

	t.Run("ドクター連携中は409で削除されないこと", func(t *testing.T) {
		t.Parallel()

		// 管理サービスが200 = ドクター連携あり
		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/c/u-7?hard=true", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusConflict)
		}

		u, err := s.store.GetByID(t.Context(), "u-7")
		if err != nil {
			t.Fatalf("ユーザー取得に失敗: %v", err)
		}
		if !u.Enabled {
			t.Error("削除を拒否したのにユーザーが変更されている")
		}
	})

	t.Run("管理サービスが5xxの場合は503で削除されないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/c/u-7", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusServiceUnavailable)
		}

		if _, err := s.store.GetByID(t.Context(), "u-7"); err != nil {
			t.Error("削除を保留したのにユーザーが削除されている")
		}
	})

	t.Run("存在しないユーザーは404を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodDelete, "/auth/c/no-such", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleDeleteUser はドクター連携確認なしのユーザー削除のテスト。
func TestHandleDeleteUser(t *testing.T) {
	t.Parallel()

	t.Run("ドクター連携確認を行わずに削除できること", func(t *testing.T) {
		t.Parallel()

		// 管理サービスに問い合わせた場合は200（連携あり）を返すが、
		// このエンドポイントは確認自体を行わない
		var adminCalled bool
		s := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
			adminCalled = true
			w.WriteHeader(http.StatusOK)
		})
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/u-7", "admin-1", "ADMIN", nil)
		if w.Code != http.StatusNoContent {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusNoContent)
		}
		if adminCalled {
			t.Error("ドクター連携確認なしの削除で管理サービスへ問い合わせた")
		}
	})

	t.Run("ADMINロールなしは403を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-7", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		w := doRequest(s, http.MethodDelete, "/auth/u-7", "user-1", "PATIENT", nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestHandleRequestReset はパスワードリセット要求のテスト。
func TestHandleRequestReset(t *testing.T) {
	t.Parallel()

	t.Run("登録済みメールアドレスと未登録で同じ応答を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		known := doRequest(s, http.MethodPost, "/auth/request-reset", "", "",
			map[string]string{"email": "yamada@example.com"})
		unknown := doRequest(s, http.MethodPost, "/auth/request-reset", "", "",
			map[string]string{"email": "no-such@example.com"})

		if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
			t.Fatalf("ステータスコード: known=%d, unknown=%d, want 200", known.Code, unknown.Code)
		}
		// アカウントの存在有無をレスポンスから推測できてはならない
		if known.Body.String() != unknown.Body.String() {
			t.Errorf("応答が異なる: known=%s, unknown=%s", known.Body.String(), unknown.Body.String())
		}
	})

	t.Run("メールアドレスなしは400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPost, "/auth/request-reset", "", "", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleResetPassword はパスワードリセット実行のテスト。
func TestHandleResetPassword(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでパスワードを更新できること", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		oldHash, err := bcrypt.GenerateFromPassword([]byte("old-password"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("パスワードハッシュ化に失敗: %v", err)
		}
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", PasswordHash: string(oldHash), Enabled: true})

		token := s.resetTokens.Issue("u-1")

		w := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": token, "new_password": "brand-new-password"})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		u, err := s.store.GetByID(t.Context(), "u-1")
		if err != nil {
			t.Fatalf("ユーザー取得に失敗: %v", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("brand-new-password")) != nil {
			t.Error("新しいパスワードでハッシュが一致しない")
		}
	})

	t.Run("使用済みトークンは再利用できないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", Enabled: true})

		token := s.resetTokens.Issue("u-1")

		first := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": token, "new_password": "brand-new-password"})
		if first.Code != http.StatusOK {
			t.Fatalf("1回目のステータスコード: got %d, want %d", first.Code, http.StatusOK)
		}

		second := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": token, "new_password": "another-password"})
		if second.Code != http.StatusBadRequest {
			t.Errorf("2回目のステータスコード: got %d, want %d", second.Code, http.StatusBadRequest)
		}
	})

	t.Run("現在と同じパスワードへの変更は400でハッシュが変わらないこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)
		hash, err := bcrypt.GenerateFromPassword([]byte("same-password"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("パスワードハッシュ化に失敗: %v", err)
		}
		createTestUser(t, s, User{ID: "u-1", Username: "yamada", Email: "yamada@example.com", PasswordHash: string(hash), Enabled: true})

		token := s.resetTokens.Issue("u-1")

		w := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": token, "new_password": "same-password"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}

		u, err := s.store.GetByID(t.Context(), "u-1")
		if err != nil {
			t.Fatalf("ユーザー取得に失敗: %v", err)
		}
		if u.PasswordHash != string(hash) {
			t.Error("変更を拒否したのにハッシュが更新されている")
		}

		// 拒否されたトークンは消費されず、別のパスワードでやり直せる
		retry := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": token, "new_password": "different-password"})
		if retry.Code != http.StatusOK {
			t.Errorf("再試行のステータスコード: got %d, want %d", retry.Code, http.StatusOK)
		}
	})

	t.Run("不明なトークンは400を返すこと", func(t *testing.T) {
		t.Parallel()

		s := setupTestServer(t, nil)

		w := doRequest(s, http.MethodPost, "/auth/reset-password", "", "",
			map[string]string{"token": "no-such-token", "new_password": "whatever"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestResetTokenStore はリセットトークン保管庫のテスト。
func TestResetTokenStore(t *testing.T) {
	t.Parallel()

	t.Run("発行したトークンでユーザーIDを引けること", func(t *testing.T) {
		t.Parallel()

		store := newResetTokenStore()
		token := store.Issue("u-1")

		userID, ok := store.Lookup(token)
		if !ok {
			t.Fatal("発行直後のトークンが見つからない")
		}
		if userID != "u-1" {
			t.Errorf("userID: got %q, want %q", userID, "u-1")
		}
	})

	t.Run("無効化したトークンは引けないこと", func(t *testing.T) {
		t.Parallel()

		store := newResetTokenStore()
		token := store.Issue("u-1")
		store.Invalidate(token)

		if _, ok := store.Lookup(token); ok {
			t.Error("無効化済みのトークンが引けてしまう")
		}
	})

	t.Run("トークンごとに異なる値が発行されること", func(t *testing.T) {
		t.Parallel()

		store := newResetTokenStore()
		if store.Issue("u-1") == store.Issue("u-1") {
			t.Error("同一のトークンが発行された")
		}
	})
}

// TestRegisterStoresHashedPassword は平文パスワードが保存されないことのテスト。
func TestRegisterStoresHashedPassword(t *testing.T) {
	t.Parallel()

	s := setupTestServer(t, nil)

	w := doRequest(s, http.MethodPost, "/auth/register", "admin-1", "ADMIN",
		registerBody("yamada", "yamada@example.com", ""))
	if w.Code != http.StatusCreated {
		t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
	}

	u, err := s.store.GetByEmail(t.Context(), "yamada@example.com")
	if err != nil {
		t.Fatalf("ユーザー取得に失敗: %v", err)
	}
	if u.PasswordHash == "secret-password" {
		t.Error("パスワードが平文のまま保存されている")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret-password")) != nil {
		t.Error("保存されたハッシュが登録パスワードと一致しない")
	}
	if time.Since(u.CreatedAt) > time.Hour {
		t.Errorf("created_atが不正: %v", u.CreatedAt)
	}
}
