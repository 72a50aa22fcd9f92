package server

import (
	"net/http"

	"econ-empire/internal/config"
	"econ-empire/internal/game"

	"github.com/gin-gonic/gin"
)

type Server struct {
	sessions *game.Sessions
	ws       *Hub
	auth     *Authenticator
	cfg      config.Config
}

// New wires the HTTP surface to sessions. hub must be the Broadcaster the
// sessions were built with so realtime events reach websocket clients.
func New(sessions *game.Sessions, hub *Hub, cfg config.Config) *Server {
	registerValidators()
	return &Server{
		sessions: sessions,
		ws:       hub,
		auth:     NewAuthenticator(cfg.JWTSecret),
		cfg:      cfg,
	}
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ws/games/:gameID", s.handleWebsocket)
	r.GET("/api/games/:gameID/state", s.handleState)

	api := r.Group("/api", s.requireIdentity())
	api.POST("/games", s.handleCreateGame)

	games := api.Group("/games/:gameID")
	games.POST("/start", s.handleStart)
	games.POST("/rounds/next", s.handleAdvance)
	games.POST("/rounds/:roundID/end", s.handleCloseRound)
	games.POST("/rounds/:roundID/tariffs", s.handleSubmitTariffs)
	games.POST("/end", s.handleEndGame)
	games.POST("/assign", s.handleAssign)
	games.GET("/me", s.handleMe)
	games.GET("/economy", s.handleEconomy)
	games.GET("/tariff-changes", s.handleTariffChanges)
	games.GET("/tariff-matrix", s.handleTariffMatrix)
	games.GET("/dashboard", s.handleDashboard)
	games.GET("/chat", s.handleListChat)
	games.POST("/chat", s.handlePostChat)
	return r
}
