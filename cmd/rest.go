package cmd

import (
	"strings"
	"time"

	"github.com/AzielCF/az-postsync/ui/rest"
	"github.com/AzielCF/az-postsync/ui/rest/middleware"
	"github.com/AzielCF/az-postsync/usecase"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the run API and reconcile on a schedule",
	Long: `Starts the HTTP API (manual runs, run history, due slots, health) and the
periodic reconciliation loop in the same process.`,
	Run: restServer,
}

func init() {
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	restCmd.Flags().Bool("no-scheduler", false, "serve the API without the periodic loop")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := postsync.cfg

	// Override basic auth if flag is provided
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}

	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.SplitN(basicAuth, ":", 2)
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	app := newRestApp(account, cfg.App.BasePath, cfg.App.Debug)

	ctx := cmd.Context()
	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	var scheduler *usecase.TaskScheduler
	if !noScheduler {
		scheduler = usecase.NewTaskScheduler(postsync.reconcile, cfg.Engine.Interval, cfg.Engine.RunOnStart)
		scheduler.StartLoop(ctx)
	}

	// Graceful shutdown handler
	go func() {
		<-ctx.Done()
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start: ", err.Error())
	}

	if scheduler != nil {
		scheduler.Stop()
	}
}

func newRestApp(account map[string]string, basePath string, debug bool) *fiber.App {
	app := fiber.New(fiber.Config{
		Network:      "tcp",
		AppName:      "Postsync",
		ServerHeader: "Hidden",
		// a manual run can take minutes with retries and polling
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
	})

	// Security: RequestID for audit trails
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if debug {
		app.Use(logger.New())
	}

	// Unauthenticated liveness for load balancers, dependency details stay behind auth
	rest.InitRestHealth(app.Group(basePath), nil)

	apiGroup := app.Group(basePath + "/api")
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			// Allow CORS preflight without credentials.
			return c.Method() == fiber.MethodOptions
		},
	}))

	rest.InitRestReconcile(apiGroup, postsync.reconcile)
	rest.InitRestHealth(apiGroup, postsync.health)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	return app
}
