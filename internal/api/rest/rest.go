package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/myeurocoins/coin-catalog/internal/api/middleware"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Catalog endpoints (public read access)
		v1.GET("/coins", handler.GetCoins)
		v1.GET("/coins/filters", handler.GetFilterOptions)
		v1.GET("/coins/:id", handler.GetCoin)
		v1.GET("/stats", handler.GetStats)

		// Group endpoints (public read access)
		v1.GET("/groups", handler.ListGroups)
		v1.GET("/groups/:group_key", handler.GetGroup)
		v1.GET("/groups/:group_key/members", handler.GetGroupMembers)
		v1.GET("/groups/:group_key/coins", handler.GetGroupCoins)
		v1.GET("/groups/:group_key/coins/:id/owners", handler.GetGroupCoinOwners)

		// Group management (requires authentication)
		v1.POST("/groups", middleware.Auth(authCfg), handler.CreateGroup)
		v1.PATCH("/groups/:group_key", middleware.Auth(authCfg), handler.RenameGroup)
		v1.DELETE("/groups/:group_key", middleware.Auth(authCfg), handler.DeleteGroup)
		v1.POST("/groups/:group_key/members", middleware.Auth(authCfg), handler.AddGroupMember)
		v1.PATCH("/groups/:group_key/members/:name", middleware.Auth(authCfg), handler.UpdateGroupMember)
		v1.DELETE("/groups/:group_key/members/:name", middleware.Auth(authCfg), handler.RemoveGroupMember)

		// Ownership endpoints (requires authentication)
		v1.POST("/ownership", middleware.Auth(authCfg), handler.AddOwnership)
		v1.DELETE("/ownership", middleware.Auth(authCfg), handler.RemoveOwnership)
		v1.GET("/owners/:name/coins", middleware.Auth(authCfg), handler.GetOwnedCoins)
		v1.GET("/owners/:name/coins/:id/history", middleware.Auth(authCfg), handler.GetOwnershipHistory)

		// Admin endpoints (requires API key authentication only)
		admin := v1.Group("/admin", middleware.APIKeyAuth(authCfg))
		{
			admin.POST("/catalog/classify", handler.ClassifyCatalogUpload)
			admin.POST("/catalog/import", handler.ImportCatalog)
			admin.GET("/catalog/export", handler.ExportCatalog)
			admin.POST("/catalog/reset", handler.ResetCatalog)

			admin.GET("/history", handler.GetHistory)
			admin.GET("/history/names", handler.GetHistoryNames)
			admin.POST("/history/classify", handler.ClassifyHistoryUpload)
			admin.POST("/history/import", handler.ImportHistory)
			admin.GET("/history/export", handler.ExportHistory)
			admin.POST("/history/reset", handler.ResetHistory)
		}
	}
}
