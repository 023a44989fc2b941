package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/photovault/internal/api/handler"
	"github.com/timmy/photovault/internal/api/middleware"
	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/logger"
	"github.com/timmy/photovault/internal/queue"
)

// Services are the dependencies the HTTP surface calls into.
type Services struct {
	Media      handler.AssetMediaService
	Duplicates handler.DuplicateLister
	Jobs       queue.Queue
	Checks     map[string]handler.Check
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg config.ServerConfig, svc Services, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(svc.Checks)
	mediaHandler := handler.NewAssetMediaHandler(svc.Media, cfg.MaxUploadSizeMB<<20)
	duplicateHandler := handler.NewDuplicateHandler(svc.Duplicates, svc.Jobs)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1", middleware.RequireUser())
	{
		// Assets
		v1.POST("/assets", mediaHandler.Upload)
		v1.PUT("/assets/:id/original", mediaHandler.Replace)
		v1.POST("/assets/exist", mediaHandler.CheckExisting)
		v1.POST("/assets/bulk-upload-check", mediaHandler.BulkUploadCheck)

		// Duplicates
		v1.GET("/duplicates", duplicateHandler.GetDuplicates)
		v1.POST("/jobs/duplicates", duplicateHandler.TriggerDetection)
	}

	return r
}
