package sessions

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/voxlog/api/types"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// List returns the most recent sessions
// @Summary      List sessions
// @Description  Most recent sessions first, across all chats
// @Tags         sessions
// @Produce      json
// @Param        limit query int false "Maximum number of sessions (default 20, max 100)"
// @Success      200 {object} types.SessionsResponse
// @Failure      400 {object} types.ErrorResponse "Invalid limit"
// @Failure      401 {object} types.ErrorResponse "Missing or invalid token"
// @Failure      500 {object} types.ErrorResponse
// @Security     ApiKeyAuth
// @Router       /api/v1/sessions [get]
func List(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, ok := types.ParseLimitQuery(c, defaultLimit, maxLimit)
		if !ok {
			return
		}

		list, err := deps.Sessions.ListSessions(c.Request.Context(), limit)
		if err != nil {
			log.Printf("[ERROR] Failed to list sessions: %v", err)
			types.SendError(c, err)
			return
		}

		summaries := types.ToSessionSummaries(list)
		c.JSON(http.StatusOK, types.SessionsResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Sessions retrieved"},
			Sessions:     summaries,
			Count:        len(summaries),
		})
	}
}
