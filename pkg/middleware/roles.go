package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoles は呼び出し元のロールを検査するGinミドルウェアを返す。
//
// 要求ロールが1つもない場合は認証済みの全員に開放する（認証自体は
// gatewayで保証済み）。それ以外は呼び出し元のロールとの積が空でない
// 場合にのみ通過させ、不足していればビジネスロジックの実行前に403で
// 打ち切る。ロールはTrustIdentityが取り込んだX-Rolesヘッダーの値を
// そのまま信頼する。
func RequireRoles(required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(required) == 0 {
			c.Next()
			return
		}

		callerRoles := GetRoles(c)
		for _, want := range required {
			for _, have := range callerRoles {
				if want == have {
					c.Next()
					return
				}
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "この操作に必要な権限がありません",
		})
	}
}
