package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aquamarinepk/aqm"
	"github.com/aquamarinepk/aqm/middleware"
	"github.com/juju/clock"

	"github.com/appetiteclub/comanda/internal/backend"
	"github.com/appetiteclub/comanda/internal/metrics"
	"github.com/appetiteclub/comanda/internal/notify"
	"github.com/appetiteclub/comanda/internal/realtime"
	"github.com/appetiteclub/comanda/internal/session"
	"github.com/appetiteclub/comanda/internal/terminal"
	"github.com/appetiteclub/comanda/internal/ticket"
)

const (
	appNamespace = "COMANDA"
	appName      = "comanda"
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

	collector := metrics.NewCollector()
	registry := metrics.NewRegistry(collector)

	// Backend client, shared by every session through WithToken
	backendURL := config.GetStringOrDef("backend.url", "http://localhost:8090")
	base := backend.NewClient(backendURL,
		backend.WithTimeout(duration(config, "backend.timeout", 0)),
		backend.WithLogger(logger),
	)

	sessions := session.NewManager(base, clock.WallClock, logger)

	// Realtime channel: the backend websocket by default, NATS when configured
	var transport realtime.Transport
	switch config.GetStringOrDef("realtime.transport", "websocket") {
	case "nats":
		natsURL := config.GetStringOrDef("nats.url", "nats://localhost:4222")
		transport = realtime.NewNATSTransport(natsURL, logger)
	default:
		wsURL := config.GetStringOrDef("realtime.url", backendURL+"/ws")
		transport = realtime.NewWebsocketTransport(wsURL, logger)
	}
	channel := realtime.NewChannel(transport, collector, logger)

	maxNotifications, err := strconv.Atoi(config.GetStringOrDef("notify.max", strconv.Itoa(notify.DefaultMax)))
	if err != nil {
		log.Fatalf("%s(%s) invalid notify.max: %v", appName, appVersion, err)
	}
	center := notify.NewCenter(maxNotifications, clock.WallClock, logger)

	// Ticket printing
	layoutPath, _ := config.GetString("print.layout")
	layout, err := ticket.LoadLayout(layoutPath)
	if err != nil {
		log.Fatalf("%s(%s) cannot load ticket layout: %v", appName, appVersion, err)
	}
	renderer, err := ticket.NewRenderer(layout)
	if err != nil {
		log.Fatalf("%s(%s) cannot build ticket renderer: %v", appName, appVersion, err)
	}

	var printer ticket.Printer
	if device, _ := config.GetString("print.device"); device != "" {
		printer = ticket.NewDevicePrinter(device)
	} else {
		printer = ticket.NewFilePrinter(config.GetStringOrDef("print.spool.dir", "spool"))
	}
	spooler := ticket.NewSpooler(printer,
		ticket.WithSettle(duration(config, "print.settle", ticket.DefaultSettle)),
		ticket.WithMetrics(collector),
		ticket.WithLogger(logger),
	)

	term := terminal.New(terminal.Deps{
		Sessions: sessions,
		Channel:  channel,
		Center:   center,
		Metrics:  collector,
		Renderer: renderer,
		Spooler:  spooler,
		Clock:    clock.WallClock,
		Debounce: duration(config, "realtime.debounce", realtime.DefaultDebounce),
	}, logger)

	handler := terminal.NewHandler(term, metrics.Handler(registry), logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      logger,
		DisableCORS: false, // The terminal UI may be served from another origin
	})

	options := []aqm.Option{
		aqm.WithConfig(config),
		aqm.WithLogger(logger),
		aqm.WithHTTPMiddleware(stack...),
		aqm.WithHTTPServerModules("web.port", handler),
		aqm.WithLifecycle(term),
		aqm.WithHealthChecks(appName),
	}

	ms := aqm.NewMicro(options...)
	logger.Infof("Starting %s(%s)", appName, appVersion)

	if err := ms.Run(ctx); err != nil {
		log.Fatalf("%s(%s) stopped: %v", appName, appVersion, err)
	}

	logger.Infof("%s(%s) stopped", appName, appVersion)
}

// duration reads key as a Go duration, falling back to def when unset.
func duration(config *aqm.Config, key string, def time.Duration) time.Duration {
	raw, _ := config.GetString(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s(%s) invalid %s: %v", appName, appVersion, key, err)
	}
	return d
}
