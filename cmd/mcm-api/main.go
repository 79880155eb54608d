package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/moncompte-mobilite/mcm-api/app/controllers"
	"github.com/moncompte-mobilite/mcm-api/app/repository"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/cache"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/database"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/eligibility"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/env"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/invoice"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/mail"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/mq"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/registry"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/router"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/storage"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/subscription"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/timestamping"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "3000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/mcm-api to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()
	incentives := repository.NewCachedIncentiveRepository(repos.Incentive)

	storageConfig, err := storage.LoadConfig()
	if err != nil {
		panic(err)
	}
	blobs, err := storage.NewClient(storageConfig)
	if err != nil {
		panic(err)
	}

	renderer, err := invoice.NewRenderer(basePath + "views")
	if err != nil {
		panic(err)
	}
	mailer, err := mail.NewHTMLMailer(basePath + "views")
	if err != nil {
		panic(err)
	}

	checker := eligibility.NewEngine(incentives,
		eligibility.NewEvaluators(repos.Citizen, repos.Subscription, registry.NewClient()))
	certifier := timestamping.NewService(timestamping.NewClient(), repos.SubscriptionTimestamp)

	service := subscription.NewService(subscription.Deps{
		Subscriptions: repos.Subscription,
		Incentives:    incentives,
		Citizens:      repos.Citizen,
		Funders:       repos.Funder,
		Metadata:      repos.Metadata,
		Blobs:         blobs,
		Queue:         mq.NewPublisher(),
		Mailer:        mailer,
		Invoices:      renderer,
		Certifier:     certifier,
		Checker:       checker,
	})
	controllers.SetSubscriptionService(service)
	controllers.SetTimestampRepositories(repos.SubscriptionTimestamp, repos.Funder)

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 10485760, // 10 MiB, attachments are proofs not media
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
