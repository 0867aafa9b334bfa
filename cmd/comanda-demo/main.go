package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/events"
	"github.com/aquamarinepk/aqm/middleware"
	"github.com/juju/clock"

	"github.com/appetiteclub/comanda/internal/demo"
	"github.com/appetiteclub/comanda/pkg"
)

const (
	appNamespace = "COMANDA_DEMO"
	appName      = "comanda-demo"
	appVersion   = "0.1.0"
)

func main() {
	config, err := aqm.LoadConfig(appNamespace, os.Args[1:])
	if err != nil {
		log.Fatalf("%s(%s) cannot setup: %v", appName, appVersion, err)
	}

	logLevel, _ := config.GetString("log.level")
	logger := aqm.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	var lifecycles []interface{}

	// Realtime events are mirrored to NATS only when a URL is configured
	var publisher events.Publisher
	if natsURL, _ := config.GetString("nats.url"); natsURL != "" {
		pub, err := pkg.NewNATSPublisher(natsURL, appName)
		if err != nil {
			log.Fatalf("%s(%s) cannot connect to NATS publisher: %v", appName, appVersion, err)
		}
		publisher = pub
		lifecycles = append(lifecycles, aqm.LifecycleHooks{
			OnStop: func(context.Context) error {
				return pub.Close()
			},
		})
	}

	opts := []demo.StoreOption{demo.WithClock(clock.WallClock)}
	if secret, _ := config.GetString("demo.secret"); secret != "" {
		opts = append(opts, demo.WithSecret([]byte(secret)))
	}
	if pending, _ := config.GetString("demo.pending_batch"); pending == "true" {
		opts = append(opts, demo.WithPendingBatch())
	}
	store := demo.NewStore(opts...)

	hub := demo.NewHub(store.Authenticate, publisher, clock.WallClock, logger)
	demo.WithBroadcaster(hub)(store)
	lifecycles = append(lifecycles, hub)

	handler := demo.NewHandler(store, hub, logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: false,
	})

	options := []aqm.Option{
		aqm.WithConfig(config),
		aqm.WithLogger(logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler),
		aqm.WithLifecycle(lifecycles...),
		aqm.WithHealthChecks(appName),
	}

	ms := aqm.NewMicro(options...)
	logger.Infof("Starting %s(%s) with seeded accounts, password %q", appName, appVersion, demo.DemoPassword)

	if err := ms.Run(ctx); err != nil {
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}
