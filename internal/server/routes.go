// Package server wires the HTTP surface of the signaling server: health,
// ICE configuration and the websocket upgrade endpoint.
package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MentalFish/huddle/internal/auth"
	"github.com/MentalFish/huddle/internal/config"
	"github.com/MentalFish/huddle/internal/gateway"
)

// Configure the websocket upgrader. Origin checking is handled by the
// OriginFilter middleware, before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New builds the gin engine for the signaling server.
func New(cfg *config.ServerConfig, hub *gateway.Hub, authn auth.Authenticator, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	if len(cfg.AllowedOrigins) > 0 {
		router.Use(OriginFilter(cfg.AllowedOrigins))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	router.GET("/webrtc/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": cfg.ICEServers()})
	})

	router.GET("/ws/:roomID", ServeWs(hub, authn, log))

	return router
}

// ServeWs returns the handler for signaling upgrades. The session credential
// is resolved exactly once, here; the rest of the core trusts the result.
func ServeWs(hub *gateway.Hub, authn auth.Authenticator, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomID")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "roomID is required"})
			return
		}

		userID, err := authn.Authenticate(c.Request)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
				return
			}
			log.Error("auth collaborator failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication unavailable"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("upgrade failed", "room", roomID, "err", err)
			return
		}

		hub.HandleConn(ws, roomID, userID)
	}
}

// OriginFilter rejects browser requests from origins outside the allowlist.
// Requests without an Origin header (non-browser clients) pass through.
func OriginFilter(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
	}
}
