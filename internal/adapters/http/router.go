package http

import (
	"context"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/metrics"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName   = "HuddleSessions"
	sessionUserID = "user_id"
	ctxUserID     = "user_id"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Server bundles what the routes need besides the orchestrator.
type Server struct {
	Orch    *orch.Orchestrator
	Store   Store
	Signal  *signal.SignalWSController
	Metrics *metrics.Metrics
}

func SetupRouter(ctx context.Context, cfg *config.Config, s *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = cfg.AllowedOrigins
	corsCfg.AllowCredentials = true
	corsCfg.AllowHeaders = []string{"Authorization", "Content-Type", "Origin", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.ExposeHeaders = []string{"Set-Cookie"}
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	if s.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Strs("origins", cfg.AllowedOrigins).Msg("router setup")

	api := r.Group("/api")
	api.GET("/health", s.health)
	api.PUT("/session", s.openSession)

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		s.Signal.HandleSignal(ctx, c)
	})

	authed := api.Group("", requireUser())
	authed.POST("/students", s.upsertStudent)

	authed.GET("/groups", s.listGroups)
	authed.POST("/groups", s.createGroup)
	authed.POST("/groups/:group_id/join", s.joinGroup)
	authed.POST("/groups/:group_id/leave", s.leaveGroup)
	authed.GET("/groups/:group_id/calls", s.activeCalls)

	authed.GET("/messages/:group_id", s.history)
	authed.POST("/messages/send", s.sendMessage)
	authed.POST("/messages/delete", s.deleteMessages)
	authed.DELETE("/messages/:message_id", s.deleteMessage)

	return r
}
