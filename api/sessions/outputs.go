package sessions

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/voxlog/api/types"
)

// Outputs lists the files the processing pipeline produced for a session
// @Summary      List pipeline outputs
// @Tags         sessions
// @Produce      json
// @Param        id path string true "Session id"
// @Success      200 {object} types.OutputsResponse
// @Failure      404 {object} types.ErrorResponse "Session not found"
// @Security     ApiKeyAuth
// @Router       /api/v1/sessions/{id}/outputs [get]
func Outputs(deps *types.Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		session, err := deps.Sessions.GetSession(c.Request.Context(), id)
		if err != nil {
			types.SendError(c, err)
			return
		}

		outputs := []string{}
		if deps.Outputs != nil {
			outputs, err = deps.Outputs.ListOutputs(session)
			if err != nil {
				log.Printf("[ERROR] Failed to list outputs for session %s: %v", id, err)
				types.SendError(c, err)
				return
			}
		}

		c.JSON(http.StatusOK, types.OutputsResponse{
			BaseResponse: types.BaseResponse{Status: types.StatusOK, Message: "Outputs retrieved"},
			SessionID:    session.ID,
			Outputs:      outputs,
			Count:        len(outputs),
		})
	}
}
