package routes

import (
	"time"

	"crypto_backend_project/controllers"
	"crypto_backend_project/middleware"
	"crypto_backend_project/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, backfill *services.BackfillService, realtime *services.RealtimePriceService) {
	// Initialize controllers
	cryptoController := controllers.NewCryptoController(db, backfill)
	alertController := controllers.NewAlertController(db)
	userController := controllers.NewUserController(db)

	writeLimiter := middleware.NewRateLimiter(60, time.Minute)

	// API v1 group
	api := router.Group("/api/v1")
	api.Use(middleware.WriteRateLimitMiddleware(writeLimiter))
	{
		// Catalog and history routes
		cryptos := api.Group("/cryptos")
		{
			cryptos.GET("", cryptoController.GetCryptos)
			cryptos.GET("/:externalID", cryptoController.GetCrypto)
			cryptos.GET("/:externalID/history", cryptoController.GetCryptoHistory)
			cryptos.POST("/:externalID/backfill", cryptoController.BackfillCrypto)
		}

		// User and alert routes
		users := api.Group("/users")
		{
			users.POST("", userController.Register)
			users.GET("/:userID", userController.GetUser)
			users.GET("/:userID/alerts", alertController.GetAlerts)
			users.POST("/:userID/alerts", alertController.UpsertAlert)
			users.PUT("/:userID/alerts", alertController.UpsertAlert)
			users.DELETE("/:userID/alerts/:externalID", alertController.DeleteAlert)
		}
	}

	// Realtime price stream
	if realtime != nil {
		router.GET("/ws/prices", func(c *gin.Context) {
			realtime.HandleWebSocket(c.Writer, c.Request)
		})
	}
}
