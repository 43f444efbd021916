package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"go.uber.org/zap"

	"github.com/flatterer/web/internal/config"
	"github.com/flatterer/web/internal/module"
	"github.com/flatterer/web/internal/telemetry"
	uiserver "github.com/flatterer/web/internal/ui/server"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
		// If a second signal arrives, force exit immediately.
		<-sigCh
		log.Println("second interrupt received, forcing shutdown")
		os.Exit(1)
	}()
	defer func() {
		signal.Stop(sigCh)
		cancel()
	}()

	configPath := flag.String("config", "config.json", "path to server configuration")
	host := flag.String("host", "", "interface to listen on (defaults to HOST or config.json server.host)")
	port := flag.String("port", "", "port to listen on (defaults to PORT or config.json server.port)")
	staticDir := flag.String("static", "", "directory holding the built front-end (defaults to STATIC_FILES)")
	logDir := flag.String("logs", "", "directory for category logs (defaults to FLATTERER_LOG_DIR)")
	wasmModule := flag.String("wasm-module", "", "path or URL of the flattening module (defaults to FLATTERER_WASM_MODULE)")
	dev := flag.Bool("dev", false, "human readable module logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	applyFlags(&cfg, *host, *port, *staticDir, *logDir, *wasmModule)

	zl, err := newZap(*dev)
	if err != nil {
		log.Fatalf("module logger: %v", err)
	}
	defer zl.Sync()
	module.SetLogger(zl)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	opts := uiserver.Options{Config: cfg}
	if cfg.Server.OpenBrowser {
		opts.Ready = func(addr string) {
			if err := browser.OpenURL("http://" + addr); err != nil {
				log.Printf("open browser: %v", err)
			}
		}
	}

	if err := uiserver.Run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server error: %v", err)
	}
}

// applyFlags lets non-empty command line values override the loaded
// configuration.
func applyFlags(cfg *config.Config, host, port, staticDir, logDir, wasmModule string) {
	if host != "" {
		cfg.Server.Host = host
	}
	if port != "" {
		cfg.Server.Port = port
	}
	if staticDir != "" {
		cfg.App.StaticFiles = staticDir
	}
	if logDir != "" {
		cfg.App.LogDir = logDir
	}
	if wasmModule != "" {
		cfg.Wasm.Module = wasmModule
	}
}

func newZap(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
