package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// gatewayから下流サービスへ識別情報を伝播するためのHTTPヘッダーキー。
const (
	headerKeyUserID   = "X-User-Id"
	headerKeyRoles    = "X-Roles"
	headerKeyCenterID = "X-Center-Id"
)

// TrustIdentity はgatewayが設定した信頼ヘッダーをコンテキストに取り込む
// 下流サービス用のGinミドルウェアを返す。
// ヘッダーは検証済みの値としてそのまま信頼する。gatewayが唯一の入口で
// あることがこの信頼の前提となる。
func TrustIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", c.GetHeader(headerKeyUserID))
		c.Set("roles", splitRoles(c.GetHeader(headerKeyRoles)))
		c.Set("center_id", c.GetHeader(headerKeyCenterID))
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// TrustIdentityミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetRoles はGinコンテキストから呼び出し元のロールリストを取得する。
// 未設定の場合は空のリストを返す。
func GetRoles(c *gin.Context) []string {
	roles, _ := c.Get("roles")
	if r, ok := roles.([]string); ok {
		return r
	}
	return nil
}

// GetCenterID はGinコンテキストから所属センターIDを取得する。
func GetCenterID(c *gin.Context) string {
	centerID, _ := c.Get("center_id")
	if id, ok := centerID.(string); ok {
		return id
	}
	return ""
}

// splitRoles はカンマ連結されたロールヘッダー値をリストに分解する。
// 空要素と前後の空白は取り除く。
func splitRoles(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if role := strings.TrimSpace(p); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
