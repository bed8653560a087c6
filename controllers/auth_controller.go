package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/config"
	"github.com/cppla/teamfeed/middleware"
	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

const adminPageSize = 10

// AuthController handles registration, login, tokens, the own profile and
// the staff-only account endpoints.
type AuthController struct {
	accounts *store.AccountStore
}

// NewAuthController creates an AuthController.
func NewAuthController(accounts *store.AccountStore) *AuthController {
	return &AuthController{accounts: accounts}
}

func (a *AuthController) issue(ctx *gin.Context, status int, user *models.User) {
	pair, err := utils.GenerateTokenPair(user.ID, user.Username)
	if err != nil {
		respondError(ctx, store.Internal(err, "generate tokens"))
		return
	}
	utils.Respond(ctx, status, 0, "success", gin.H{
		"user":    store.NewAccountView(*user),
		"access":  pair.Access,
		"refresh": pair.Refresh,
	})
}

// Register creates an account and signs it in.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	user, err := a.accounts.Register(ctx.Request.Context(), store.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		Name:     req.Name,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	a.issue(ctx, http.StatusCreated, user)
}

// Login verifies credentials by email or username and issues tokens.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	user, err := a.accounts.Authenticate(ctx.Request.Context(), req.Email, req.Username, req.Password, req.Role)
	if err != nil {
		respondError(ctx, err)
		return
	}
	a.issue(ctx, http.StatusOK, user)
}

// Refresh exchanges a refresh token for a new access token.
func (a *AuthController) Refresh(ctx *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
		badRequest(ctx, "refresh token required")
		return
	}
	claims, err := utils.ParseTokenOfType(strings.TrimSpace(req.Refresh), utils.TokenTypeRefresh)
	if err != nil || utils.IsTokenBlacklisted(ctx.Request.Context(), claims.ID) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid refresh token")
		return
	}
	// the account may have been removed since the token was issued
	if _, err := a.accounts.Get(ctx.Request.Context(), claims.UserID); err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid refresh token")
		return
	}
	hours := config.Get().AccessTokenHours
	access, err := utils.GenerateToken(claims.UserID, claims.Username, utils.TokenTypeAccess, time.Duration(hours)*time.Hour)
	if err != nil {
		respondError(ctx, store.Internal(err, "generate token"))
		return
	}
	utils.Success(ctx, gin.H{"access": access})
}

// Logout invalidates the token by blacklisting it until expiration. A
// refresh token sent in the body is revoked as well.
func (a *AuthController) Logout(ctx *gin.Context) {
	claims, ok := middleware.Claims(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return
	}
	reqCtx := ctx.Request.Context()
	if claims.ExpiresAt != nil {
		utils.BlacklistToken(reqCtx, claims.ID, claims.ExpiresAt.Time)
	}

	var req struct {
		Refresh string `json:"refresh"`
	}
	if ctx.ShouldBindJSON(&req) == nil && req.Refresh != "" {
		rc, err := utils.ParseTokenOfType(req.Refresh, utils.TokenTypeRefresh)
		if err == nil && rc.UserID == claims.UserID && rc.ExpiresAt != nil {
			utils.BlacklistToken(reqCtx, rc.ID, rc.ExpiresAt.Time)
		}
	}
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	user, err := a.accounts.Get(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, store.NewAccountView(*user))
}

var profileFields = []string{"name", "bio", "location", "gender", "contact", "theme_color"}

// UpdateMe patches profile fields from a JSON body, or from a multipart
// form that may also carry "avatar" and "cover" images.
func (a *AuthController) UpdateMe(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	reqCtx := ctx.Request.Context()

	var patch store.ProfilePatch
	var images map[string]store.Upload
	if isMultipart(ctx) {
		form, ok := multipartForm(ctx, a.accounts.MaxRequestBytes())
		if !ok {
			return
		}
		values := map[string]*string{}
		for _, f := range profileFields {
			if v, ok := form.Value[f]; ok && len(v) > 0 {
				s := v[0]
				values[f] = &s
			}
		}
		patch = store.ProfilePatch{
			Name:       values["name"],
			Bio:        values["bio"],
			Location:   values["location"],
			Gender:     values["gender"],
			Contact:    values["contact"],
			ThemeColor: values["theme_color"],
		}
		images = map[string]store.Upload{}
		for _, slot := range []string{store.ImageAvatar, store.ImageCover} {
			if files := form.File[slot]; len(files) > 0 {
				images[slot] = store.UploadFromFileHeader(files[0])
			}
		}
	} else if err := ctx.ShouldBindJSON(&patch); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}

	user, err := a.accounts.UpdateProfile(reqCtx, userID, patch)
	if err != nil {
		respondError(ctx, err)
		return
	}
	for _, slot := range []string{store.ImageAvatar, store.ImageCover} {
		up, ok := images[slot]
		if !ok {
			continue
		}
		if user, err = a.accounts.SetImage(reqCtx, userID, slot, up); err != nil {
			respondError(ctx, err)
			return
		}
	}
	utils.Success(ctx, store.NewAccountView(*user))
}

// Image serves an account's avatar or cover.
func (a *AuthController) Image(slot string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := pathID(ctx, "id")
		if !ok {
			return
		}
		contentType, rc, err := a.accounts.OpenImage(ctx.Request.Context(), id, slot)
		if err != nil {
			respondError(ctx, err)
			return
		}
		defer rc.Close()
		ctx.DataFromReader(http.StatusOK, -1, contentType, rc, map[string]string{
			"X-Content-Type-Options": "nosniff",
			"Cache-Control":          "private, max-age=300",
		})
	}
}

// ListUsers returns the latest accounts for staff.
func (a *AuthController) ListUsers(ctx *gin.Context) {
	users, err := a.accounts.ListRecent(ctx.Request.Context(), adminPageSize)
	if err != nil {
		respondError(ctx, err)
		return
	}
	views := make([]store.AccountView, 0, len(users))
	for _, u := range users {
		views = append(views, store.NewAccountView(u))
	}
	utils.Success(ctx, gin.H{"results": views})
}

// GetUser returns one account for staff.
func (a *AuthController) GetUser(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	user, err := a.accounts.Get(ctx.Request.Context(), id)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, store.NewAccountView(*user))
}

// ResetPassword sets a new password for an account on behalf of staff.
func (a *AuthController) ResetPassword(ctx *gin.Context) {
	id, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	if err := a.accounts.ResetPassword(ctx.Request.Context(), id, req.Password); err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"message": "password reset"})
}
