package delivery

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketlive-ws/internal/broker"
	"marketlive-ws/internal/chat"
	"marketlive-ws/internal/config"
	"marketlive-ws/internal/live"
	"marketlive-ws/internal/logging"
	"marketlive-ws/internal/notification"
	"marketlive-ws/internal/presence"
)

// Services bundles the domain services the HTTP surface fronts.
type Services struct {
	Chat          *chat.Service
	Notifications *notification.Service
	Live          *live.Registry
	Presence      *presence.Tracker
}

type Server struct {
	config        *config.Config
	app           *fiber.App
	broker        *broker.Broker
	verifier      TokenVerifier
	wsManager     *WSManager
	health        map[string]HealthChecker
	chat          *chat.Service
	notifications *notification.Service
	live          *live.Registry
	presence      *presence.Tracker
}

func NewServer(cfg *config.Config, svc Services, b *broker.Broker, verifier TokenVerifier, wsManager *WSManager, health map[string]HealthChecker) *Server {
	s := &Server{
		config:        cfg,
		broker:        b,
		verifier:      verifier,
		wsManager:     wsManager,
		health:        health,
		chat:          svc.Chat,
		notifications: svc.Notifications,
		live:          svc.Live,
		presence:      svc.Presence,
	}
	s.app = s.newApp()
	return s
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Marketlive Realtime Server",
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: ErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Access-Control-Request-Method,Access-Control-Request-Headers",
		ExposeHeaders:    "Content-Length,Access-Control-Allow-Origin,Access-Control-Allow-Headers,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400, // 24 hours
	}

	// Set origins based on environment
	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		logging.Info().Str("origins", corsConfig.AllowOrigins).Msg("CORS configured for production")
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
		logging.Info().Msg("CORS configured for development with wildcard origin")
	}
	if corsConfig.AllowOrigins == "*" {
		corsConfig.AllowCredentials = false
	}

	app.Use(cors.New(corsConfig))

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	s.registerAPI(app)

	// WebSocket middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.wsManager.HandleConnection))

	return app
}

func (s *Server) registerAPI(app *fiber.App) {
	api := app.Group("/api")
	requireAuth := AuthMiddleware(s.verifier)

	chatAPI := api.Group("/chat", requireAuth)
	chatAPI.Post("/messages", s.handleSendMessage)
	chatAPI.Get("/conversations", s.handleListConversations)
	chatAPI.Get("/conversations/:id/messages", s.handleListMessages)
	chatAPI.Post("/conversations/:id/read", s.handleMarkMessagesRead)
	chatAPI.Get("/conversations/:id/typing", s.handleTypingUsers)
	chatAPI.Get("/unread", s.handleUnreadSummary)

	notifications := api.Group("/notifications", requireAuth)
	notifications.Get("/", s.handleListNotifications)
	notifications.Get("/unread-count", s.handleUnreadNotificationCount)
	notifications.Patch("/:id/read", s.handleMarkNotificationRead)
	notifications.Post("/read-all", s.handleMarkAllNotificationsRead)
	api.Get("/stores/:storeId/notifications", requireAuth, s.handleListStoreNotifications)

	// Viewers read live selections without an account.
	liveAPI := api.Group("/live/:storeId/products")
	liveAPI.Get("/", s.handleGetLiveProducts)
	liveAPI.Put("/", requireAuth, s.handleSetLiveProducts)
	liveAPI.Post("/:productId/toggle", requireAuth, s.handleToggleLiveProduct)

	// The beacon authenticates from its query string.
	api.Post("/online-status/beacon", s.handleOnlineBeacon)
	api.Get("/online-status/:userId", requireAuth, s.handleGetOnlineStatus)
	api.Put("/online-status", requireAuth, s.handleSetOnlineStatus)
}

// App exposes the Fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	logging.Info().Str("port", s.config.Port).Msg("Marketlive server (WebSocket + REST) starting")
	return s.app.Listen(":" + s.config.Port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
