package sessions

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/voxlog/api/types"
)

// Get returns one session with its clips and errors
// @Summary      Get a session
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session id"
// @Success      200 {object} types.SessionResponse
// @Failure      400 {object} types.ErrorResponse "Invalid session id"
// @Failure      404 {object} types.ErrorResponse "Session not found"
// @Security     ApiKeyAuth
// @Router       /api/v1/sessions/{id} [get]
func Get(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		session, err := deps.Sessions.GetSession(c.Request.Context(), id)
		if err != nil {
			log.Printf("[WARN] Failed to load session %s: %v", id, err)
			types.SendError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.SessionResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Session retrieved"},
			Session:      types.ToSessionDetail(session),
		})
	}
}
