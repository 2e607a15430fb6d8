package routes

import (
	"net/http"
	"time"

	"chat-relay/internal/api/handlers"
	"chat-relay/internal/api/middleware"
	"chat-relay/internal/websocket"
	"chat-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are everything the HTTP surface needs. Limiter and Unread may be
// nil.
type Deps struct {
	Hub            *websocket.Hub
	Upgrader       *gorilla.Upgrader
	Messages       handlers.HistoryReader
	Unread         handlers.UnreadLister
	Limiter        middleware.RateLimiter
	Gatherer       prometheus.Gatherer
	Logger         *logger.Logger
	AllowedOrigins []string
	HistoryLimit   int
	WSRateLimit    int
	WSRateWindow   time.Duration
}

type Router struct {
	engine          *gin.Engine
	deps            Deps
	wsHandler       *handlers.WSHandler
	messageHandler  *handlers.MessageHandler
	presenceHandler *handlers.PresenceHandler
	rateLimitMW     *middleware.RateLimitMiddleware
}

func NewRouter(deps Deps) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi(deps.Logger))

	return &Router{
		engine:          engine,
		deps:            deps,
		wsHandler:       handlers.NewWSHandler(deps.Hub, deps.Upgrader),
		messageHandler:  handlers.NewMessageHandler(deps.Messages, deps.HistoryLimit, deps.Logger),
		presenceHandler: handlers.NewPresenceHandler(deps.Hub, deps.Unread, deps.Logger),
		rateLimitMW:     middleware.NewRateLimitMiddleware(deps.Limiter, deps.Logger),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if r.deps.Gatherer != nil {
		r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.engine.Group("/api/v1")

	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(r.deps.WSRateLimit, r.deps.WSRateWindow),
		r.wsHandler.HandleWebSocket,
	)

	api.GET("/rooms/:room/messages", r.messageHandler.GetRoomMessages)
	api.GET("/presence", r.presenceHandler.GetPresence)
	if r.deps.Unread != nil {
		api.GET("/users/:id/unread", r.presenceHandler.GetUnread)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
