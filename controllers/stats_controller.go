package controllers

import (
	"github.com/gin-gonic/gin"

	"github.com/cppla/teamfeed/store"
	"github.com/cppla/teamfeed/utils"
)

// StatsController provides the calendar statistics of the caller.
type StatsController struct {
	stats *store.StatsStore
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(stats *store.StatsStore) *StatsController {
	return &StatsController{stats: stats}
}

// Calendar returns daily activity and completion for ?from=&to=.
func (s *StatsController) Calendar(ctx *gin.Context) {
	userID, ok := mustUserID(ctx)
	if !ok {
		return
	}
	out, err := s.stats.Calendar(ctx.Request.Context(), userID, ctx.Query("from"), ctx.Query("to"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, out)
}
