package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/open-legged/controller/domain/controller"
	"github.com/open-legged/controller/domain/diagnostic"
	"github.com/open-legged/controller/pkg/api"
	"github.com/open-legged/controller/pkg/config"
	"github.com/open-legged/controller/pkg/kinematics"
	customlog "github.com/open-legged/controller/pkg/log"
	"github.com/open-legged/controller/pkg/processing"
	"github.com/open-legged/controller/pkg/zeromq"
	"github.com/open-legged/controller/services"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
)

const (
	flagConfigDir = "config-dir"
	flagHTTPPort  = "http-port"

	shutdownTimeout = 5 * time.Second
)

func main() {
	app := &cli.App{
		Name:  "legged-controller",
		Usage: "joint control core for a quadruped robot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfigDir,
				Value:   "config",
				EnvVars: []string{"LEGGED_CONFIG_DIR"},
				Usage:   "directory containing controller_config.yaml",
			},
			&cli.IntFlag{
				Name:    flagHTTPPort,
				EnvVars: []string{"PORT"},
				Usage:   "override server.http_port from the bootstrap config",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	bootstrapCfg, err := config.LoadBootstrapConfig(c.String(flagConfigDir))
	if err != nil {
		return fmt.Errorf("failed to load bootstrap config: %w", err)
	}
	if c.IsSet(flagHTTPPort) {
		bootstrapCfg.Server.HTTPPort = c.Int(flagHTTPPort)
	}

	log, err := customlog.NewLogrusLogger(bootstrapCfg.Logging.Level, bootstrapCfg.Logging.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	configService, err := services.NewControllerConfigService(bootstrapCfg.ControllerConfigPath(), log)
	if err != nil {
		return err
	}
	cfg := configService.GetCurrentConfig()
	channels := cfg.Channels()
	log.Infof("Controller for robot '%s' at %.0f Hz", cfg.RobotID, cfg.Controller.FrequencyHz)

	model := kinematics.NewQuadruped(kinematics.LegGeometry{
		HipX:             cfg.Model.HipX,
		HipY:             cfg.Model.HipY,
		HipLateralOffset: cfg.Model.HipLateralOffset,
		ThighLength:      cfg.Model.ThighLength,
		ShankLength:      cfg.Model.ShankLength,
	})

	clk := clock.New()
	diagService := diagnostic.NewDiagnosticService(clk)

	registry := processing.NewTopicRegistry(log)
	registry.LoadFromChannels(channels)
	director := processing.NewMessageDirector(log, registry, &processing.DirectorOptions{
		HighQueueSize:     1,
		StandardQueueSize: cfg.Controller.InboundQueueSize,
	})

	zmqService, err := zeromq.NewZeroMQService(bootstrapCfg.ZeroMQ, director,
		[]string{channels.GenCoord, channels.GenVel}, controller.StatusCode, log)
	if err != nil {
		return fmt.Errorf("failed to create ZeroMQ service: %w", err)
	}

	stream := api.NewCommandStream(log)
	ctl, err := controller.New(cfg, controller.Dependencies{
		Model:    model,
		Director: director,
		Publisher: controller.MultiPublisher{
			zeromq.NewCommandPublisher(zmqService, channels, registry),
			stream,
		},
		Diagnostics: diagService,
		Clock:       clk,
		Logger:      log,
	})
	if err != nil {
		return multierr.Append(err, zmqService.Close())
	}
	zeromq.RegisterModeHandlers(zmqService, ctl, cfg.ModeRequestTimeout(), log)

	diagService.AddSource("inbound_queues", func() interface{} { return director.GetPoolMetrics() })
	diagService.AddSource("topics", func() interface{} { return registry.GetTopicStats() })
	diagService.AddSource("command_stream_clients", func() interface{} { return stream.ClientCount() })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var app *fiber.App
	shutdown := func() error {
		log.Infof("Shutting down...")
		var err error
		stream.Close()
		if app != nil {
			err = multierr.Append(err, app.ShutdownWithTimeout(shutdownTimeout))
		}
		zmqService.StopInbound()
		ctl.Stop()
		err = multierr.Append(err, zmqService.Close())
		if err != nil {
			log.Errorf("Shutdown finished with errors: %v", err)
		} else {
			log.Infof("Shutdown complete")
		}
		return err
	}

	ctl.Start()
	if err := zmqService.Start(); err != nil {
		return multierr.Append(err, shutdown())
	}
	if err := ctl.Initialize(ctx); err != nil {
		log.Errorf("Controller failed to initialize: %v", err)
		return multierr.Append(err, shutdown())
	}

	app = newHTTPApp(ctl, configService, diagService, stream, cfg.ModeRequestTimeout(), log)
	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", bootstrapCfg.Server.HTTPPort)
		log.Infof("HTTP server starting on %s", addr)
		serverErr <- app.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Infof("Received shutdown signal")
		return shutdown()
	case err := <-serverErr:
		log.Errorf("HTTP server stopped: %v", err)
		app = nil
		return multierr.Append(err, shutdown())
	}
}

func newHTTPApp(ctl *controller.Controller, configService services.ControllerConfigService,
	diagService *diagnostic.DiagnosticService, stream *api.CommandStream,
	modeTimeout time.Duration, log customlog.Logger) *fiber.App {

	app := fiber.New(fiber.Config{
		AppName:               "Legged Controller",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "legged controller",
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "ready": ctl.Status().Ready})
	})

	api.RegisterControllerRoutes(app, ctl, modeTimeout, log)
	api.RegisterConfigRoutes(app, configService, log)
	app.Get("/api/v1/diagnostics", diagService.GetMetricsHandler)
	api.RegisterWebSocketRoutes(app, stream)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
