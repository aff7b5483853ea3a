package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/hospital/pkg/httpclient"
	"github.com/nao1215/hospital/pkg/middleware"
	"github.com/nao1215/hospital/pkg/migration"
)

// Server はユーザー管理サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// store はユーザーテーブルへのクエリ実行オブジェクト。
	store *Store
	// admin は管理サービスへの確認呼び出しクライアント。
	admin *AdminClient
	// notification は通知サービスへのHTTPクライアント。
	notification *httpclient.Client
	// resetTokens はパスワードリセットトークンの保管庫。
	resetTokens *resetTokenStore
}

// NewServer は新しいユーザーサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/user.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("マイグレーション適用に失敗: %w", err)
	}

	adminURL := getEnvOr("ADMIN_URL", "http://localhost:8085")
	notificationURL := getEnvOr("NOTIFICATION_URL", "http://localhost:8086")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.TrustIdentity())

	s := &Server{
		router:       router,
		port:         port,
		db:           sqlDB,
		store:        NewStore(sqlDB),
		admin:        NewAdminClient(adminURL),
		notification: httpclient.New(notificationURL),
		resetTokens:  newResetTokenStore(),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 認証はGatewayが済ませており、ここでは識別ヘッダーを信頼して
// ロールによるアクセス制御のみ行う。
func (s *Server) setupRoutes() {
	auth := s.router.Group("/auth")
	{
		// 疎通確認（認証不要）
		auth.GET("/health-test", s.handleHealthTest())

		// パスワードリセット（認証不要）
		auth.POST("/request-reset", s.handleRequestReset())
		auth.POST("/reset-password", s.handleResetPassword())

		// ユーザー登録・管理（ADMINのみ）
		auth.POST("/register", middleware.RequireRoles("ADMIN"), s.handleRegister())
		auth.GET("/users", middleware.RequireRoles("ADMIN"), s.handleListUsers())
		auth.GET("/users/:id", middleware.RequireRoles("ADMIN"), s.handleGetUser())
		auth.PUT("/users/:id", middleware.RequireRoles("ADMIN"), s.handleUpdateUser())
		auth.DELETE("/c/:id", middleware.RequireRoles("ADMIN"), s.handleDeleteCenterUser())
		auth.DELETE("/:id", middleware.RequireRoles("ADMIN"), s.handleDeleteUser())

		// 認証済みユーザー向け
		auth.GET("/users/me", s.handleGetMe())
		auth.GET("/users/by-center/:centerId", s.handleListByCenter())
		auth.HEAD("/users/by-center/:centerId/exists", s.handleCenterHasUsers())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	})
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はログイン用のユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password は平文パスワード。保存前にハッシュ化する。
	Password string `json:"password" binding:"required"`
	// FullName は氏名。
	FullName string `json:"full_name"`
	// Roles は付与するロールの一覧。
	Roles []string `json:"roles"`
	// CenterID は所属センターのID。
	CenterID string `json:"center_id"`
}

// updateUserRequest はユーザー更新リクエストのJSON構造。
type updateUserRequest struct {
	// Username はログイン用のユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// FullName は氏名。
	FullName string `json:"full_name"`
	// Roles は付与するロールの一覧。
	Roles []string `json:"roles"`
	// CenterID は所属センターのID。
	CenterID string `json:"center_id"`
}

// requestResetRequest はパスワードリセット要求のJSON構造。
type requestResetRequest struct {
	// Email はリセット対象のメールアドレス。
	Email string `json:"email" binding:"required"`
}

// resetPasswordRequest はパスワードリセット実行のJSON構造。
type resetPasswordRequest struct {
	// Token はリセットトークン。
	Token string `json:"token" binding:"required"`
	// NewPassword は新しい平文パスワード。
	NewPassword string `json:"new_password" binding:"required"`
}

// userResponse はユーザーのJSONレスポンス構造。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Username はログイン用のユーザー名。
	Username string `json:"username"`
	// Email はメールアドレス。
	Email string `json:"email"`
	// FullName は氏名。
	FullName string `json:"full_name"`
	// Roles は保持するロールの一覧。
	Roles []string `json:"roles"`
	// CenterID は所属センターのID。
	CenterID string `json:"center_id"`
	// CenterName は所属センター名。一覧取得時のみ設定される。
	CenterName string `json:"center_name,omitempty"`
	// Enabled は有効フラグ。
	Enabled bool `json:"enabled"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

// toUserResponse はDBレコードをJSONレスポンスに変換する。
func toUserResponse(u User) userResponse {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		Roles:     roles,
		CenterID:  u.CenterID,
		Enabled:   u.Enabled,
		CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: u.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// outboundContext は管理・通知サービス呼び出し用のコンテキストを生成する。
// リクエストのコンテキストを引き継ぐため、呼び出し元の中断が転送先にも伝わる。
func outboundContext(c *gin.Context) context.Context {
	return httpclient.WithIdentity(c.Request.Context(), httpclient.Identity{
		UserID:   middleware.GetUserID(c),
		Roles:    strings.Join(middleware.GetRoles(c), ","),
		CenterID: middleware.GetCenterID(c),
	})
}

// handleHealthTest は疎通確認を処理するハンドラを返す。
func (s *Server) handleHealthTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// センターIDが指定されている場合は、登録前に管理サービスへ
// センターの存在を確認する。確認に失敗した場合はユーザーを登録しない。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		taken, err := s.store.UsernameTaken(c.Request.Context(), req.Username, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー名の重複確認に失敗しました"})
			log.Printf("ユーザー名重複確認エラー: %v", err)
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名は既に使用されています"})
			return
		}

		taken, err = s.store.EmailTaken(c.Request.Context(), req.Email, "")
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メールアドレスの重複確認に失敗しました"})
			log.Printf("メールアドレス重複確認エラー: %v", err)
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "メールアドレスは既に使用されています"})
			return
		}

		// センター指定がある場合は登録前に存在を確認する
		if req.CenterID != "" {
			if err := s.admin.ValidateCenterExists(outboundContext(c), req.CenterID); err != nil {
				s.respondAdminError(c, err)
				return
			}
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		userID := uuid.NewString()
		if err := s.store.Create(c.Request.Context(), User{
			ID:           userID,
			Username:     req.Username,
			Email:        req.Email,
			PasswordHash: string(hash),
			FullName:     req.FullName,
			Roles:        req.Roles,
			CenterID:     req.CenterID,
			Enabled:      true,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの登録に失敗しました"})
			log.Printf("ユーザー登録エラー: %v", err)
			return
		}

		created, err := s.store.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "登録したユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toUserResponse(created))
	}
}

// handleListUsers はユーザー一覧取得を処理するハンドラを返す。
// リクエストしたユーザー自身は一覧から除外する。
// 各ユーザーの所属センター名は管理サービスへの1回の問い合わせで解決し、
// 解決できなかったセンターにはプレースホルダー名を表示する。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := middleware.GetUserID(c)
		if callerID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		page := parseIntOr(c.Query("page"), 0)
		if page < 0 {
			page = 0
		}
		size := parseIntOr(c.Query("size"), 10)
		if size <= 0 {
			size = 10
		}
		if size > 100 {
			size = 100
		}
		includeDeleted := c.Query("includeDeleted") == "true"

		users, err := s.store.List(c.Request.Context(), ListParams{
			ExcludeID:       callerID,
			IncludeDisabled: includeDeleted,
			SortBy:          c.DefaultQuery("sortBy", "created_at"),
			Limit:           size,
			Offset:          page * size,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		total, err := s.store.Count(c.Request.Context(), callerID, includeDeleted)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー数の取得に失敗しました"})
			log.Printf("ユーザー数取得エラー: %v", err)
			return
		}

		// センター名を1回の問い合わせでまとめて解決する
		centerIDs := make([]string, 0, len(users))
		for _, u := range users {
			centerIDs = append(centerIDs, u.CenterID)
		}
		names := s.admin.ResolveCenterNames(outboundContext(c), centerIDs, includeDeleted)

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			resp := toUserResponse(u)
			if u.CenterID != "" {
				name, ok := names[u.CenterID]
				if !ok || name == "" {
					name = unknownCenterName
				}
				resp.CenterName = name
			}
			responses = append(responses, resp)
		}

		c.JSON(http.StatusOK, gin.H{
			"users": responses,
			"total": total,
			"page":  page,
			"size":  size,
		})
	}
}

// handleGetMe は自分自身のユーザー情報取得を処理するハンドラを返す。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		u, err := s.store.GetByID(c.Request.Context(), userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(u))
	}
}

// handleGetUser はユーザー詳細取得を処理するハンドラを返す。
// enabledクエリパラメータが指定された場合、有効フラグが一致しない
// ユーザーは存在しない扱いとする。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.store.GetByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if enabled := c.Query("enabled"); enabled != "" {
			if u.Enabled != (enabled == "true") {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
		}

		c.JSON(http.StatusOK, toUserResponse(u))
	}
}

// handleUpdateUser はユーザー更新を処理するハンドラを返す。
// 所属センターを変更する場合は管理サービスへセンターの存在を確認する。
func (s *Server) handleUpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		existing, err := s.store.GetByID(c.Request.Context(), userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		taken, err := s.store.UsernameTaken(c.Request.Context(), req.Username, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー名の重複確認に失敗しました"})
			log.Printf("ユーザー名重複確認エラー: %v", err)
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "ユーザー名は既に使用されています"})
			return
		}

		taken, err = s.store.EmailTaken(c.Request.Context(), req.Email, userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "メールアドレスの重複確認に失敗しました"})
			log.Printf("メールアドレス重複確認エラー: %v", err)
			return
		}
		if taken {
			c.JSON(http.StatusConflict, gin.H{"error": "メールアドレスは既に使用されています"})
			return
		}

		// センターが変更される場合のみ存在を確認する
		if req.CenterID != "" && req.CenterID != existing.CenterID {
			if err := s.admin.ValidateCenterExists(outboundContext(c), req.CenterID); err != nil {
				s.respondAdminError(c, err)
				return
			}
		}

		if err := s.store.Update(c.Request.Context(), User{
			ID:       userID,
			Username: req.Username,
			Email:    req.Email,
			FullName: req.FullName,
			Roles:    req.Roles,
			CenterID: req.CenterID,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの更新に失敗しました"})
			log.Printf("ユーザー更新エラー: %v", err)
			return
		}

		updated, err := s.store.GetByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "更新後のユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(updated))
	}
}

// handleListByCenter はセンター所属ユーザー一覧取得を処理するハンドラを返す。
func (s *Server) handleListByCenter() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetUserID(c) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		includeDisabled := c.Query("includeDisabled") == "true"
		users, err := s.store.ListByCenter(c.Request.Context(), c.Param("centerId"), includeDisabled)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("センター所属ユーザー取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			responses = append(responses, toUserResponse(u))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleCenterHasUsers はセンター所属ユーザーの存在確認を処理するハンドラを返す。
// ボディを持たず、ステータスコードのみで結果を表す。
func (s *Server) handleCenterHasUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetUserID(c) == "" {
			c.Status(http.StatusUnauthorized)
			return
		}

		has, err := s.store.CenterHasUsers(c.Request.Context(), c.Param("centerId"))
		if err != nil {
			c.Status(http.StatusInternalServerError)
			log.Printf("センター所属ユーザー確認エラー: %v", err)
			return
		}

		if has {
			c.Status(http.StatusNoContent)
		} else {
			c.Status(http.StatusNotFound)
		}
	}
}

// handleDeleteCenterUser はセンター利用者の削除を処理するハンドラを返す。
// 削除前に管理サービスへドクターとの連携有無を確認し、連携が残っている
// 場合は削除しない。hard=trueで物理削除、それ以外は論理削除を行う。
func (s *Server) handleDeleteCenterUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if _, err := s.store.GetByID(c.Request.Context(), userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		// ドクターとの連携が残っている間は削除できない
		if err := s.admin.CheckDoctorAssigned(outboundContext(c), userID); err != nil {
			s.respondAdminError(c, err)
			return
		}

		s.deleteUser(c, userID)
	}
}

// handleDeleteUser は一般ユーザーの削除を処理するハンドラを返す。
// ドクター連携の確認は行わない。hard=trueで物理削除、それ以外は論理削除を行う。
func (s *Server) handleDeleteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		if _, err := s.store.GetByID(c.Request.Context(), userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		s.deleteUser(c, userID)
	}
}

// deleteUser はhardクエリパラメータに応じて物理削除または論理削除を行う。
func (s *Server) deleteUser(c *gin.Context, userID string) {
	if c.Query("hard") == "true" {
		if err := s.store.HardDelete(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの削除に失敗しました"})
			log.Printf("ユーザー物理削除エラー: %v", err)
			return
		}
	} else {
		if err := s.store.Disable(c.Request.Context(), userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの無効化に失敗しました"})
			log.Printf("ユーザー論理削除エラー: %v", err)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

// handleRequestReset はパスワードリセット要求を処理するハンドラを返す。
// メールアドレスの存在有無を問わず同じレスポンスを返し、
// アカウントの存在を外部から推測できないようにする。
func (s *Server) handleRequestReset() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req requestResetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u, err := s.store.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				log.Printf("ユーザー取得エラー: %v", err)
			}
		} else if u.Enabled {
			token := s.resetTokens.Issue(u.ID)
			go s.sendResetNotice(u.ID, token)
		}

		c.JSON(http.StatusOK, gin.H{"message": "登録されているメールアドレスの場合、リセット手順を通知します"})
	}
}

// sendResetNotice はリセットトークンの通知を通知サービスに送信する。
// リクエスト処理とは切り離して実行し、送信に失敗しても
// リセット要求自体は成功として扱う。
func (s *Server) sendResetNotice(userID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body := map[string]any{
		"user_id": userID,
		"title":   "パスワードリセット",
		"message": fmt.Sprintf("パスワードリセットを受け付けました。リセットトークン: %s（30分間有効）", token),
	}
	if err := s.notification.PostJSON(ctx, "/internal/notifications", body, nil); err != nil {
		log.Printf("リセット通知の送信に失敗: %v", err)
	}
}

// handleResetPassword はパスワードリセット実行を処理するハンドラを返す。
// トークンはパスワード更新が成功した場合のみ消費する。
func (s *Server) handleResetPassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetPasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		userID, ok := s.resetTokens.Lookup(req.Token)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "無効または期限切れのトークンです"})
			return
		}

		u, err := s.store.GetByID(c.Request.Context(), userID)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "無効または期限切れのトークンです"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		// 現在と同じパスワードへの変更は受け付けない
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.NewPassword)) == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "新しいパスワードが現在のパスワードと同じです"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		if err := s.store.UpdatePasswordHash(c.Request.Context(), userID, string(hash)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの更新に失敗しました"})
			log.Printf("パスワード更新エラー: %v", err)
			return
		}

		s.resetTokens.Invalidate(req.Token)
		c.JSON(http.StatusOK, gin.H{"message": "パスワードを更新しました"})
	}
}

// respondAdminError は管理サービスへの確認結果のエラーをHTTPレスポンスに対応付ける。
func (s *Server) respondAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCenterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "指定されたセンターが見つかりません"})
	case errors.Is(err, ErrDoctorAssigned):
		c.JSON(http.StatusConflict, gin.H{"error": "ドクターが連携しているため削除できません。先に連携を解除してください"})
	case errors.Is(err, ErrAdminUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "管理サービスに接続できません。時間をおいて再試行してください"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "管理サービスへの確認に失敗しました"})
		log.Printf("管理サービス確認エラー: %v", err)
	}
}

// parseIntOr は文字列を整数に変換する。変換できない場合はデフォルト値を返す。
func parseIntOr(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return v
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
