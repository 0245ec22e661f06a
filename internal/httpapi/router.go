package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter assembles the gin handler tree. Every route but /health sits
// behind the shared API key; mutating admin routes additionally require
// the admin key when one is configured.
func NewRouter(api *API, apiKey, adminKey string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequireAPIKey(apiKey))

	admin := RequireAdminKey(adminKey)

	r.GET("/health", api.health)
	r.GET("/handshake", api.handshake)

	r.POST("/text", api.ingestText)

	r.POST("/register", admin, api.registerTarget)
	r.GET("/targets", api.listTargets)
	r.DELETE("/targets/:name", admin, api.deleteTarget)

	r.GET("/sessions", api.listSessions)
	r.POST("/sessions/:source_id/end", api.endSession)

	r.GET("/state", api.getState)
	r.PUT("/state", admin, api.updateState)
	r.GET("/state/history", api.stateHistory)

	r.GET("/config", api.getAllConfig)
	r.PUT("/config", admin, api.updateConfigBatch)
	r.GET("/config/:key", api.getConfigKey)
	r.PUT("/config/:key", admin, api.updateConfigKey)

	return r
}
