package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextClaimsKey stores the parsed access token claims.
	ContextClaimsKey = "claims"
)

// bearerToken extracts the token of an "Authorization: Bearer" header.
// code is the error code to report when ok is false.
func bearerToken(ctx *gin.Context) (token string, code int, msg string, ok bool) {
	authHeader := ctx.GetHeader("Authorization")
	if authHeader == "" {
		return "", 40101, "authorization header missing", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", 40102, "invalid authorization header format", false
	}
	token = strings.TrimSpace(parts[1])
	if token == "" {
		return "", 40103, "empty bearer token", false
	}
	return token, 0, "", true
}

// authenticate validates the bearer access token of the request.
func authenticate(ctx *gin.Context) (*utils.Claims, int, string) {
	token, code, msg, ok := bearerToken(ctx)
	if !ok {
		return nil, code, msg
	}
	claims, err := utils.ParseTokenOfType(token, utils.TokenTypeAccess)
	if err != nil {
		return nil, 40105, "invalid token"
	}
	if utils.IsTokenBlacklisted(ctx.Request.Context(), claims.ID) {
		return nil, 40104, "token revoked"
	}
	return claims, 0, ""
}

func setIdentity(ctx *gin.Context, claims *utils.Claims) {
	ctx.Set(ContextUserIDKey, claims.UserID)
	ctx.Set(ContextUsernameKey, claims.Username)
	ctx.Set(ContextClaimsKey, claims)
}

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims, code, msg := authenticate(ctx)
		if claims == nil {
			utils.Error(ctx, http.StatusUnauthorized, code, msg)
			return
		}
		setIdentity(ctx, claims)
		ctx.Next()
	}
}

// AuthOptional attaches the identity when a valid access token is present
// and otherwise lets the request through anonymously.
func AuthOptional() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if claims, _, _ := authenticate(ctx); claims != nil {
			setIdentity(ctx, claims)
		}
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired. The staff flags are read from
// the database so revoked rights apply before the token expires.
func AdminRequired(accounts *store.AccountStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, _ := UserID(ctx)
		user, err := accounts.Get(ctx.Request.Context(), userID)
		if err != nil || !user.IsAdmin() {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin permission required")
			return
		}
		ctx.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(ContextUserIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id != 0
}

// Claims returns the access token claims of the request, if any.
func Claims(ctx *gin.Context) (*utils.Claims, bool) {
	value, exists := ctx.Get(ContextClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*utils.Claims)
	return claims, ok
}
