package sessions

import (
	"github.com/gin-gonic/gin"
	"github.com/killallgit/voxlog/api/types"
)

// RegisterRoutes registers session routes
func RegisterRoutes(router *gin.RouterGroup, deps *types.Dependencies) {
	router.GET("", List(deps))
	router.GET("/:id", Get(deps))
	router.GET("/:id/outputs", Outputs(deps))
}
