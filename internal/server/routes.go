package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	// Optional API key authentication
	if cfg.APIKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1 := e.Group("/v1")
	v1.GET("/health", h.Health)
	v1.GET("/deadletters", h.DeadLettersList)

	// Endpoints that reach the RPC provider are rate limited per client
	limiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.rateLimit()),
		Burst:     cfg.rateBurst(),
		ExpiresIn: 2 * time.Minute,
	}))

	tokens := v1.Group("/tokens/:mint")
	tokens.GET("/prices", h.TokenPrices)
	tokens.GET("/dump", h.TokenDump)
	tokens.GET("/pools", h.TokenPools, limiter)
	tokens.POST("/dump/detect", h.DetectDump, limiter)

	if h.Watchlist != nil {
		wl := v1.Group("/watchlist")
		wl.GET("", h.WatchlistList)
		wl.POST("", h.WatchlistUpsert)
		wl.GET("/:mint", h.WatchlistGet)
		wl.PUT("/:mint", h.WatchlistUpdate)
		wl.DELETE("/:mint", h.WatchlistDelete)
	}

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
