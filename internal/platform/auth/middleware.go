package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"VMS-backend/internal/platform/logger"
)

const (
	CtxAccountIDKey = "account_id"
	CtxRoleKey      = "role"

	codeUnauthenticated = "UNAUTHENTICATED"
	codeForbidden       = "FORBIDDEN"
)

// AbortFunc: 認証・認可失敗時のレスポンスを書く
type AbortFunc func(c *gin.Context, status int, code, msg string)

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": msg}})
}

// RequireAuth: Authorization: Bearer <token> を検証して context に account_id/role を詰める
func RequireAuth(secret []byte) gin.HandlerFunc { return RequireAuthWith(secret, abort) }

// RequireAuthWith: 失敗時のレスポンス形式をエンドポイント側で決める版
func RequireAuthWith(secret []byte, abort AbortFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "missing Authorization header")
			return
		}

		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "invalid Authorization header")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "empty token")
			return
		}

		claims, err := ParseAccessToken(secret, tokenStr)
		if err != nil {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "invalid token")
			return
		}

		accountID, err := claims.AccountID()
		if err != nil {
			abort(c, http.StatusUnauthorized, codeUnauthenticated, "invalid sub")
			return
		}

		c.Set(CtxAccountIDKey, accountID)
		c.Set(CtxRoleKey, claims.Role)
		ctx := context.WithValue(c.Request.Context(), logger.AccountIDKey, accountID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole: 例) operator のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			abort(c, http.StatusForbidden, codeForbidden, "missing role")
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			abort(c, http.StatusForbidden, codeForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// AccountID: RequireAuth 通過後のアカウントID。未認証なら ok=false
func AccountID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxAccountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func Role(c *gin.Context) string {
	v, ok := c.Get(CtxRoleKey)
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}
