package version

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/killallgit/voxlog/api/types"
)

// Get handles version requests
// @Summary      Version information
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]interface{}
// @Router       /version [get]
func Get(build types.BuildInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "voxlog",
			"version":     build.Version,
			"git_commit":  build.GitCommit,
			"build_time":  build.BuildTime,
			"description": "Telegram voice-note capture and transcription daemon",
			"status":      "running",
		})
	}
}
