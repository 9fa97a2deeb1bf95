package api

import (
	"github.com/voxforge/voxforge/pkg/logger"
	"github.com/voxforge/voxforge/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes wires every spec §6 route onto a fresh gin engine.
func SetupRoutes(handler *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(logger.GinLogger())
	router.Use(middleware.CompressionMiddleware())

	router.GET("/health", handler.HealthCheck)

	jobs := router.Group("/jobs")
	{
		jobs.POST("", handler.CreateJob)
		jobs.GET("", handler.ListJobs)
		jobs.GET("/:id", handler.GetJob)
		jobs.GET("/:id/formats", handler.GetJobFormats)

		download := jobs.Group("/:id/download")
		download.Use(middleware.NoCompressionMiddleware())
		download.GET("", handler.DownloadJob)

		jobs.DELETE("/:id", handler.DeleteJob)
	}

	voices := router.Group("/voices")
	{
		uploads := voices.Group("/clone")
		uploads.Use(middleware.NoCompressionMiddleware())
		uploads.POST("", handler.CloneVoice)

		voices.GET("", handler.ListVoices)
		voices.GET("/:id", handler.GetVoice)
		voices.DELETE("/:id", handler.DeleteVoice)
	}

	qualityProfiles := router.Group("/quality-profiles")
	{
		qualityProfiles.POST("", handler.CreateQualityProfile)
		qualityProfiles.GET("", handler.ListQualityProfiles)
		qualityProfiles.GET("/:id", handler.GetQualityProfile)
		qualityProfiles.PATCH("/:id", handler.UpdateQualityProfile)
		qualityProfiles.DELETE("/:id", handler.DeleteQualityProfile)
		qualityProfiles.POST("/:id/duplicate", handler.DuplicateQualityProfile)
		qualityProfiles.POST("/:id/set-default", handler.SetDefaultQualityProfile)
	}

	return router
}
