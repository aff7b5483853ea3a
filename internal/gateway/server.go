package gateway

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/hospital/pkg/middleware"
)

// defaultPublicPaths は認証なしで通過できるパスのパターン。
// `*` は1セグメント、`**` は複数セグメントにマッチする。
var defaultPublicPaths = []string{
	"/health",
	"/swagger-ui.html",
	"/swagger-ui/**",
	"/v3/api-docs",
	"/v3/api-docs/**",
	"/v3/api-docs/swagger-config",
	"/**/v3/api-docs",
	"/**/v3/api-docs/**",
	"/auth/login",
	"/auth/request-reset",
	"/auth/reset-password",
	"/auth/health-test",
}

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// jwtSecret はJWT検証用の秘密鍵。
	jwtSecret string
	// serviceURLs は内部サービスのURL。
	serviceURLs serviceURLConfig
	// httpClient はプロキシ転送用のHTTPクライアント。
	httpClient *http.Client
}

// serviceURLConfig は内部サービスのURL設定。
type serviceURLConfig struct {
	User         string
	Notification string
	Admin        string
}

// NewServer は新しいGatewayサーバーを生成する。
// Gatewayはデータベースを持たず、トークン検証と転送のみを行う。
func NewServer(port string) *Server {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "dev-secret-key"
	}

	urls := serviceURLConfig{
		User:         getEnvOr("USER_URL", "http://localhost:8081"),
		Notification: getEnvOr("NOTIFICATION_URL", "http://localhost:8086"),
		Admin:        getEnvOr("ADMIN_URL", "http://localhost:8085"),
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")
	publicPaths := parsePublicPaths(os.Getenv("PUBLIC_PATHS"))

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))
	router.Use(middleware.GatewayAuth(jwtSecret, publicPaths))

	s := &Server{
		router:      router,
		port:        port,
		jwtSecret:   jwtSecret,
		serviceURLs: urls,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	s.setupRoutes()

	return s
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 認証の判定はGatewayAuthミドルウェアが行うため、ここでは転送先のみ定義する。
func (s *Server) setupRoutes() {
	// 認証・ユーザー管理サービス（プロキシ）
	auth := s.router.Group("/auth")
	{
		auth.GET("/health-test", s.handleProxy(s.serviceURLs.User, "/auth/health-test"))
		auth.POST("/login", s.handleProxy(s.serviceURLs.User, "/auth/login"))
		auth.POST("/register", s.handleProxy(s.serviceURLs.User, "/auth/register"))
		auth.POST("/request-reset", s.handleProxy(s.serviceURLs.User, "/auth/request-reset"))
		auth.POST("/reset-password", s.handleProxy(s.serviceURLs.User, "/auth/reset-password"))
		auth.GET("/users", s.handleProxy(s.serviceURLs.User, "/auth/users"))
		auth.GET("/users/me", s.handleProxy(s.serviceURLs.User, "/auth/users/me"))
		auth.GET("/users/:id", s.handleProxyWithParam(s.serviceURLs.User, "/auth/users/", "id"))
		auth.PUT("/users/:id", s.handleProxyWithParam(s.serviceURLs.User, "/auth/users/", "id"))
		auth.GET("/users/by-center/:centerId", s.handleProxyWithParam(s.serviceURLs.User, "/auth/users/by-center/", "centerId"))
		auth.HEAD("/users/by-center/:centerId/exists", s.handleProxyWithParam(s.serviceURLs.User, "/auth/users/by-center/", "centerId", "/exists"))
		auth.DELETE("/c/:id", s.handleProxyWithParam(s.serviceURLs.User, "/auth/c/", "id"))
		auth.DELETE("/:id", s.handleProxyWithParam(s.serviceURLs.User, "/auth/", "id"))
	}

	// 通知サービス（プロキシ）
	notifications := s.router.Group("/notifications")
	{
		notifications.GET("", s.handleProxy(s.serviceURLs.Notification, "/notifications"))
		notifications.GET("/unread", s.handleProxy(s.serviceURLs.Notification, "/notifications/unread"))
		notifications.PUT("/read-all", s.handleProxy(s.serviceURLs.Notification, "/notifications/read-all"))
		notifications.PUT("/:id/read", s.handleProxyWithParam(s.serviceURLs.Notification, "/notifications/", "id", "/read"))
	}

	// 管理サービス（プロキシ）
	// 管理サービスは外部チームの管轄のためパスを列挙せず丸ごと転送する。
	s.router.Any("/admin/*path", s.handleProxyCatchAll(s.serviceURLs.Admin, "/admin"))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}

// handleProxy は指定されたサービスにリクエストをプロキシするハンドラを返す。
func (s *Server) handleProxy(baseURL, path string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + path
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// handleProxyWithParam はURLパラメータを含むプロキシハンドラを返す。
func (s *Server) handleProxyWithParam(baseURL, pathPrefix, paramName string, pathSuffix ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + pathPrefix + c.Param(paramName)
		for _, suffix := range pathSuffix {
			proxyURL += suffix
		}
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// handleProxyCatchAll はプレフィックス配下の全パスをプロキシするハンドラを返す。
func (s *Server) handleProxyCatchAll(baseURL, prefix string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxyURL := baseURL + prefix + c.Param("path")
		if c.Request.URL.RawQuery != "" {
			proxyURL += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, c.Request.Method, proxyURL)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// GatewayAuthが設定した識別ヘッダーとAuthorizationヘッダーを転送する。
// 呼び出し元がリクエストを中断した場合、コンテキスト経由で転送先にも伝わる。
func (s *Server) doProxy(c *gin.Context, method, url string) {
	req, err := http.NewRequestWithContext(c.Request.Context(), method, url, c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "プロキシリクエストの作成に失敗しました"})
		return
	}

	// 元のリクエストヘッダーを転送
	req.Header.Set("Content-Type", c.GetHeader("Content-Type"))
	req.Header.Set("Authorization", c.GetHeader("Authorization"))
	req.Header.Set("X-User-Id", c.GetHeader("X-User-Id"))
	req.Header.Set("X-Roles", c.GetHeader("X-Roles"))
	req.Header.Set("X-Center-Id", c.GetHeader("X-Center-Id"))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "内部サービスとの通信に失敗しました"})
		log.Printf("プロキシエラー: url=%s, error=%v", url, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "レスポンスの読み取りに失敗しました"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// parsePublicPaths はPUBLIC_PATHS環境変数をパターン一覧に変換する。
// 未設定の場合はデフォルトのパターン一覧を返す。
func parsePublicPaths(env string) []string {
	if env == "" {
		return defaultPublicPaths
	}

	var patterns []string
	for _, p := range strings.Split(env, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return defaultPublicPaths
	}
	return patterns
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
