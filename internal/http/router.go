package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/olympus-market/olympus-client/internal/httpui"
)

func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     uniqueOrigins(s.cfg.AllowedOrigins),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}))
	r.Use(loopbackOnly())

	r.GET("/healthz", s.handleHealth)

	r.GET("/session", s.handleSession)
	r.POST("/session/connect", s.handleConnect)
	r.POST("/session/disconnect", s.handleDisconnect)

	r.GET("/views", s.handleViews)
	r.GET("/nfts/mine", s.handleOwned)
	r.GET("/marketplace", s.handleMarketplace)
	r.GET("/auctions", s.handleAuctions)
	r.GET("/collections", s.handleCollections)

	intents := r.Group("/nfts", withTimeout(intentTimeout))
	{
		intents.POST("/mint", s.handleMint)
		intents.POST("/:id/list", s.handleList)
		intents.POST("/:id/cancel", s.handleCancel)
		intents.POST("/:id/buy", s.handleBuy)
		intents.POST("/:id/transfer", s.handleTransfer)
		intents.POST("/:id/auction", s.handleCreateAuction)
		intents.POST("/:id/bid", s.handleBid)
		intents.POST("/:id/settle", s.handleSettle)
	}

	r.GET("/events", s.handleEvents)

	r.NoRoute(func(c *gin.Context) {
		method := c.Request.Method
		if s.cfg.UI != nil && (method == http.MethodGet || method == http.MethodHead) && !httpui.IsAPIPath(c.Request.URL.Path) {
			// gin presets 404 on NoRoute.
			c.Status(http.StatusOK)
			s.cfg.UI.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, apiResponse{OK: false, Code: "not_found", Error: "not found"})
	})

	return r
}
