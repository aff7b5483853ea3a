package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nao1215/hospital/pkg/pathmatch"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
// gatewayが検証し、ユーザーID・ロール・センターIDを下流サービスへ伝播する。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"userId"`
	// Roles はユーザーに付与されたロール名のリスト。
	Roles []string `json:"roles"`
	// CenterID はユーザーが所属する医療センターのID。未所属の場合は空。
	CenterID string `json:"centerId,omitempty"`
}

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// トークン発行フロー自体は本システムの範囲外のため、テストと運用ツールが使用する。
func GenerateJWT(secret, userID string, roles []string, centerID string) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "hospital-auth",
		},
		UserID:   userID,
		Roles:    roles,
		CenterID: centerID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はJWTトークンを検証し、クレームを取り出す。
// 署名不正・ペイロード不正・期限切れ・未対応の署名方式はすべてエラーになる。
// クレームは検証に成功した場合にのみ返る。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("予期しない署名方式: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("トークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効")
	}
	return claims, nil
}

// GatewayAuth は全リクエストを認証するgateway用のGinミドルウェアを返す。
//
// CORSプリフライト（OPTIONS）と公開パスは認証なしで通過させる。
// それ以外はBearerトークンを検証し、成功時にクレームから信頼ヘッダー
// （X-User-Id / X-Roles / X-Center-Id）をリクエストに上書き設定する。
// クライアントが直接付与した信頼ヘッダーは経路を問わず常に破棄される。
// 検証失敗の理由は応答で区別しない（内部情報を漏らさないため一律401）。
func GatewayAuth(secret string, publicPaths []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			stripTrustHeaders(c.Request)
			c.Next()
			return
		}

		if pathmatch.MatchAny(publicPaths, c.Request.URL.Path) {
			stripTrustHeaders(c.Request)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		// 不在のクレームは空文字列として必ずヘッダーを設定する
		c.Request.Header.Set(headerKeyUserID, claims.UserID)
		c.Request.Header.Set(headerKeyRoles, strings.Join(claims.Roles, ","))
		c.Request.Header.Set(headerKeyCenterID, claims.CenterID)
		c.Next()
	}
}

// stripTrustHeaders はクライアントが偽装した信頼ヘッダーを取り除く。
// 認証を通らない経路でも下流に未検証の識別情報を渡さない。
func stripTrustHeaders(r *http.Request) {
	r.Header.Del(headerKeyUserID)
	r.Header.Del(headerKeyRoles)
	r.Header.Del(headerKeyCenterID)
}
