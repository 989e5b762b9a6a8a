package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/argon-desk/argon_desk/internal/broker"
	"github.com/argon-desk/argon_desk/internal/config"
	"github.com/argon-desk/argon_desk/internal/manager"
	"github.com/argon-desk/argon_desk/internal/middleware"
	"github.com/argon-desk/argon_desk/internal/notification"
	"github.com/argon-desk/argon_desk/internal/payments"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

// brokerAddsPerMinute bounds POST /brokers; each add contacts the remote broker.
const brokerAddsPerMinute = 10

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg     config.Config
	Manager *manager.Manager
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Logger  *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Manager == nil {
		return fmt.Errorf("routes: account manager is required")
	}
	if !d.Cfg.IsDev() && d.Cfg.APIToken == "" {
		return fmt.Errorf("API_TOKEN is required when APP_ENV=%s", d.Cfg.AppEnv)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1", middleware.APIToken(d.Cfg.APIToken))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	// Mutating routes replay cached responses when the client repeats an Idempotency-Key.
	api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))

	RegisterWalletRoutes(api, wallet.NewHandler(d.Manager), notification.NewStreamHandler(d.Manager.Updates()))
	RegisterAccountRoutes(api, manager.NewHandler(d.Manager))
	RegisterPaymentRoutes(api, payments.NewHandler(d.Manager))
	RegisterBrokerRoutes(api, broker.NewHandler(d.Manager), middleware.RateLimit(d.Cache, "brokers", brokerAddsPerMinute))

	return nil
}
