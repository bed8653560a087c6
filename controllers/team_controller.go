package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

// TeamController handles teams, invite codes and team posts.
type TeamController struct {
	teams *store.TeamStore
}

func NewTeamController(teams *store.TeamStore) *TeamController {
	return &TeamController{teams: teams}
}

// ListTeams returns the teams the caller belongs to.
func (t *TeamController) ListTeams(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	teams, err := t.teams.ListTeams(ctx.Request.Context(), userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, teams)
}

func (t *TeamController) CreateTeam(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	team, err := t.teams.CreateTeam(ctx.Request.Context(), userID, req.Name, req.Description)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, team)
}

// JoinTeam enrolls the caller with an invite code. Body: {invite_code}.
func (t *TeamController) JoinTeam(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	var req struct {
		InviteCode string `json:"invite_code"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	team, err := t.teams.JoinByCode(ctx.Request.Context(), userID, req.InviteCode)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, team)
}

func (t *TeamController) ListTeamPosts(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	teamID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	posts, err := t.teams.ListTeamPosts(ctx.Request.Context(), teamID, userID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, posts)
}

// CreateTeamPost publishes in a team. Team and author come from the route
// and the token, never from the body.
func (t *TeamController) CreateTeamPost(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	teamID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var req struct {
		Title   string      `json:"title"`
		Content string      `json:"content"`
		Meta    interface{} `json:"meta"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request payload")
		return
	}
	post, err := t.teams.CreateTeamPost(ctx.Request.Context(), teamID, userID, store.TeamPostInput{
		Title:   req.Title,
		Content: req.Content,
		Meta:    req.Meta,
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Created(ctx, post)
}
