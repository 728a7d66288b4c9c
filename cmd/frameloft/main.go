package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/frameloft/FrameLoft/app/controllers"
	"github.com/frameloft/FrameLoft/internal/pkg/cache"
	"github.com/frameloft/FrameLoft/internal/pkg/database"
	"github.com/frameloft/FrameLoft/internal/pkg/env"
	"github.com/frameloft/FrameLoft/internal/pkg/mail"
	"github.com/frameloft/FrameLoft/internal/pkg/notifier"
	"github.com/frameloft/FrameLoft/internal/pkg/objectstore"
	"github.com/frameloft/FrameLoft/internal/pkg/router"
)

func main() {
	app := NewApplication()

	manager := notifier.GetManager(mail.StorageAlertSender{})
	manager.Start()

	// shut the scan worker down cleanly on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	storeCfg, err := objectstore.LoadConfig()
	if err != nil {
		log.Fatalf("object store config: %v", err)
	}
	store, err := objectstore.NewClient(storeCfg)
	if err != nil {
		log.Fatalf("object store: %v", err)
	}
	controllers.SetObjectStore(store)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 104857600, // 100 MiB, matches the largest single upload we accept
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
