package server

import (
	"backend-theentity/internal/auth"
	"backend-theentity/internal/config"
	"backend-theentity/internal/progression"
	"backend-theentity/internal/save"
	"backend-theentity/internal/strava"
	"backend-theentity/internal/stream"
	"backend-theentity/internal/webhook"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App         *fiber.App
	Cfg         config.Config
	DB          *pgxpool.Pool
	Redis       *redis.Client
	Stream      *stream.Hub
	Progression *progression.Service
}

func NewServer(cfg config.Config, balance config.Balance, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	deps := progression.Deps{
		Store:     save.NewStore(db),
		Events:    s.Stream,
		Balance:   balance,
		Namespace: cfg.AppNamespace,
	}
	if cfg.StravaClientID != "" {
		deps.Strava = strava.NewClient(cfg)
	}
	s.Progression = progression.NewService(deps)

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.Cfg.AppNamespace, s.DB))
	webhook.RegisterRoutes(s.App.Group("/webhooks"), webhook.NewService(s.Progression, s.Redis, s.Cfg.StravaVerifyToken))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, jwtMiddleware)
	progression.RegisterRoutes(s.App, s.Progression, jwtMiddleware, s.Cfg.PaymentCallbackSecret)
}

// Close releases the realtime hub. The pools are owned by the caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}
