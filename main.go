package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"bike-arcade-controller/bridge"
	"bike-arcade-controller/config"
	"bike-arcade-controller/controller"
	"bike-arcade-controller/events"
	"bike-arcade-controller/logging"
	"bike-arcade-controller/metrics"
	"bike-arcade-controller/types"
	"bike-arcade-controller/utils"
	"bike-arcade-controller/web"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	hub := logging.NewHub()
	logger, err := logging.New(cfg.Log, hub)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging error:", err)
		os.Exit(1)
	}
	log := logging.Component(logger, "system")

	m := metrics.New()
	ctrl, err := controller.New(cfg, logger, m)
	if err != nil {
		log.WithError(err).Fatal("controller setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🖥️ Running on %s\n", runtime.GOOS)
	fmt.Println("🔌 Scanning serial ports...")
	opened, err := ctrl.Start(ctx)
	if err != nil {
		log.WithError(err).Error("port scan failed")
	}
	fmt.Printf("✅ %d port(s) opened, waiting for devices to identify\n", opened)

	if cfg.Bridge.Enabled {
		if err := startBridge(ctx, cfg, ctrl, logger); err != nil {
			log.WithError(err).Warn("keyboard bridge disabled")
		}
	}

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web, ctrl, hub, m, logging.Component(logger, "web"))
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				log.WithError(err).Error("web server stopped")
			}
		}()
		fmt.Println("🌐 Dashboard on http://localhost" + cfg.Web.Addr)
	}

	go watchDevices(ctx, ctrl)

	<-ctx.Done()
	fmt.Println("👋 Shutting down...")
	ctrl.Stop()
}

func startBridge(ctx context.Context, cfg *config.Config, ctrl *controller.Controller, logger *logrus.Logger) error {
	presser, err := bridge.NewKeyboardPresser()
	if err != nil {
		return err
	}
	b, err := bridge.New(cfg.Bridge, cfg.Buttons, presser, logging.Component(logger, "bridge"))
	if err != nil {
		return err
	}
	go b.Run(ctx, ctrl.Subscribe(events.ButtonPress))
	fmt.Println("⌨️ Keyboard bridge enabled")
	return nil
}

// watchDevices prints the device table whenever a device identifies or goes away.
func watchDevices(ctx context.Context, ctrl *controller.Controller) {
	sub := ctrl.Subscribe(events.DeviceReady, events.DeviceDisconnected)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C:
			if !ok {
				return
			}
			printStatus(ctrl.Status())
		}
	}
}

func printStatus(status types.ControllerStatus) {
	held := make(map[string]string, len(status.Devices))
	for _, d := range status.Devices {
		held[d.Role] = d.Port
	}

	fmt.Println("📡 Device status:")
	for i, b := range status.Buttons {
		port, ok := held[b.Role.String()]
		if !ok {
			port = "-"
		}
		led := "off"
		if i < len(status.Leds) {
			led = utils.OnOff(status.Leds[i].On)
		}
		fmt.Printf("🕹️ Button %d %s: %s (%s), LED %s\n", b.Role, b.Color, utils.BoolToString(ok), port, led)
	}
	port, ok := held[types.RoleCadence.String()]
	if !ok {
		port = "-"
	}
	fmt.Printf("🚲 Cadence sensor: %s (%s), %d revolutions at %d rpm\n",
		utils.BoolToString(ok), port, status.Cadence.Count, status.Cadence.RPM)
}
