package main

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"support-gateway/internal/gateway"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, gw *gateway.Gateway, db *sql.DB) {
	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Clients authenticate during the websocket handshake; there is no
	// separate auth middleware on this route.
	r.GET("/ws", gw.Handle)
}
