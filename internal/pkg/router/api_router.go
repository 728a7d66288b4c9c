package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/frameloft/FrameLoft/app/controllers"
	"github.com/frameloft/FrameLoft/internal/pkg/accountcontext"
	"github.com/frameloft/FrameLoft/internal/pkg/cache"
	"github.com/frameloft/FrameLoft/internal/pkg/constants"
	"github.com/frameloft/FrameLoft/internal/pkg/env"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Use(accountcontext.Middleware)

	api := app.Group(constants.APIRoute)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "FrameLoft API",
		})
	})

	v1 := api.Group("/v1")

	// The webhook limiter is shared across replicas so a single noisy
	// provider cannot bypass it by hitting different instances.
	v1.Post(constants.BillingWebhookRoute, limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}), controllers.HandleBillingWebhook)

	v1.Post(constants.AssetsRoute, controllers.HandleAssetUpload)
	v1.Delete(constants.AssetByUUIDRoute, controllers.HandleAssetDelete)
	v1.Get(constants.AccountUsageRoute, controllers.HandleAccountUsage)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

// newLimiterStorage builds a Redis-backed store for the rate limiter,
// reusing the connection settings of the cache client. Database 1 keeps
// limiter keys out of the cache keyspace.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		addr := client.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
