package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RouterParams struct {
	Handler *Handler
	// WebSocket, when set, is mounted at /ws.
	WebSocket http.HandlerFunc
	Logger    zerolog.Logger
}

// SetupRouter configures all routes of the engine
func SetupRouter(params RouterParams) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestLogger(params.Logger.With().Str("component", "http").Logger()))

	h := params.Handler
	router.GET("/health", h.Health)
	if params.WebSocket != nil {
		router.GET("/ws", gin.WrapF(params.WebSocket))
	}

	auctions := router.Group("/auctions")
	{
		auctions.GET("", h.ListAuctions)
		auctions.GET("/:id", h.GetAuction)
		auctions.GET("/:id/bids", h.GetBids)
	}

	authed := router.Group("", RequireUser)
	{
		authed.POST("/auctions", h.CreateAuction)
		authed.POST("/auctions/:id/bids", h.PlaceBid)
		authed.POST("/auctions/:id/proxy", h.SetupProxyBid)
		authed.DELETE("/auctions/:id/proxy", h.CancelProxyBid)
		authed.POST("/auctions/:id/extend", h.ExtendAuction)
		authed.POST("/auctions/:id/cancel", h.CancelAuction)
		authed.POST("/auctions/:id/end", h.EndAuction)
		authed.POST("/auctions/:id/settle", h.SettleAuction)
		authed.POST("/bids/:id/retract", h.RetractBid)
	}

	return router
}
