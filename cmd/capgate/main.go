// Command capgate starts the Wi-Fi assessment toolkit: it wires every
// adapter to its port, registers the built-in plugins, and serves the
// captive portal, the admin control plane, and the gRPC plugin surface
// side by side until it receives a termination signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nexusdevtools/capgate/internal/adapters/admin"
	"github.com/nexusdevtools/capgate/internal/adapters/airodump"
	"github.com/nexusdevtools/capgate/internal/adapters/capture"
	"github.com/nexusdevtools/capgate/internal/adapters/cracking"
	"github.com/nexusdevtools/capgate/internal/adapters/dnsmasq"
	"github.com/nexusdevtools/capgate/internal/adapters/hostapd"
	"github.com/nexusdevtools/capgate/internal/adapters/iptables"
	"github.com/nexusdevtools/capgate/internal/adapters/netscan"
	"github.com/nexusdevtools/capgate/internal/adapters/nmcli"
	"github.com/nexusdevtools/capgate/internal/adapters/portal"
	"github.com/nexusdevtools/capgate/internal/adapters/wireless"
	"github.com/nexusdevtools/capgate/internal/config"
	"github.com/nexusdevtools/capgate/internal/core/domain"
	"github.com/nexusdevtools/capgate/internal/core/runctx"
	"github.com/nexusdevtools/capgate/internal/eventlog"
	"github.com/nexusdevtools/capgate/internal/grpcapi"
	"github.com/nexusdevtools/capgate/internal/logging"
	"github.com/nexusdevtools/capgate/internal/plugin"
	"github.com/nexusdevtools/capgate/internal/plugin/builtin"
	"github.com/nexusdevtools/capgate/internal/reporting"
	"github.com/nexusdevtools/capgate/internal/shellexec"
	"github.com/nexusdevtools/capgate/internal/telemetry"
	"github.com/nexusdevtools/capgate/internal/workflow/crack"
	"github.com/nexusdevtools/capgate/internal/workflow/eviltwin"
	"google.golang.org/grpc"
)

func main() {
	// Bootstrap logging exactly the way the teacher's cmd/wmap/main.go sets
	// up slog before any component has its own logger; every adapter built
	// below switches to internal/logging once constructed.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	logging.SetDebug(cfg.Debug)
	log := logging.Component("main")

	telemetry.InitMetrics()
	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		log.Warn("tracer init failed, continuing without spans: %v", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracer(shutdownCtx)
		}()
	}

	events, err := eventlog.New(eventlogPath(cfg))
	if err != nil {
		log.Error("failed to open event log: %v", err)
		os.Exit(1)
	}
	defer events.Close()

	history, err := eventlog.NewHistory(cfg.DBPath)
	if err != nil {
		log.Warn("failed to open run-history database, continuing without it: %v", err)
	}
	_ = history // opened here; no component of this process reads or writes it

	rc := runctx.New()
	shell := shellexec.New()

	ifaceScanner := netscan.NewInterfaceScanner(shell)
	devScanner := netscan.NewDeviceScanner(shell)

	discovered, err := ifaceScanner.Scan(ctx)
	if err != nil {
		log.Warn("interface discovery failed, workflows will have nothing to auto-select from: %v", err)
	} else {
		rc.Store().UpdateInterfaces(discovered)
		log.Info("discovered %d interfaces", len(discovered))

		var devices []domain.Device
		for _, iface := range discovered {
			if !iface.IsUp || iface.Mode == domain.ModeMonitor {
				continue
			}
			found, err := devScanner.Scan(ctx, iface.Name)
			if err != nil {
				log.Warn("device scan on %s failed: %v", iface.Name, err)
				continue
			}
			devices = append(devices, found...)
		}
		rc.Store().UpdateDevices(devices)
		log.Info("discovered %d devices", len(devices))
	}

	interfaces := wireless.New(shell, rc.Store())
	scanner := airodump.New(shell)
	apManager := hostapd.New(shell, cfg.StateDir)
	dhcpdns := dnsmasq.New(shell, cfg.StateDir)
	redirector := iptables.New(shell)
	verifier := nmcli.New(shell)
	captureManager := capture.New(shell)
	crackingManager := cracking.New(shell, cfg.WordlistDir)

	webServer := portal.New()
	evilTwin := eviltwin.New(interfaces, scanner, apManager, dhcpdns, redirector, webServer, verifier, events)
	crackWF := crack.New(interfaces, scanner, captureManager, crackingManager, events)

	builtin.RegisterAll(evilTwin, crackWF)

	loader := plugin.New(pluginDir(cfg))
	if err := loader.Discover(ctx); err != nil {
		log.Warn("plugin discovery failed: %v", err)
	}

	reportGen := reporting.NewGenerator(events)

	errCh := make(chan error, 3)

	grpcServer := grpcapi.NewServer(loader, events, rc)
	go serveGRPC(ctx, log, grpcServer, cfg.GRPCPort, errCh)

	adminServer, err := admin.New(loader, events, rc, reportGen, os.Getenv("CAPGATE_ADMIN_PASSWORD"))
	if err != nil {
		log.Error("failed to initialize admin surface: %v", err)
		os.Exit(1)
	}
	go func() {
		if err := adminServer.Start(ctx, cfg.AdminBind, cfg.AdminPort); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	log.Info("capgate started, run id %s", rc.ID())

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("fatal component error: %v", err)
		cancel()
	}

	time.Sleep(1 * time.Second)
	log.Info("shutdown complete")
}

func serveGRPC(ctx context.Context, log *logging.Logger, server *grpc.Server, port int, errCh chan<- error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		errCh <- fmt.Errorf("listen for gRPC: %w", err)
		return
	}

	go func() {
		<-ctx.Done()
		server.GracefulStop()
	}()

	log.Info("gRPC plugin service listening on :%d", port)
	if err := server.Serve(lis); err != nil {
		errCh <- fmt.Errorf("gRPC server: %w", err)
	}
}

func eventlogPath(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "events.jsonl")
}

func pluginDir(cfg *config.Config) string {
	return filepath.Join(cfg.StateDir, "plugins")
}
