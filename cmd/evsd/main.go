// Command evsd hosts the EVS camera multiplexer: an Enumerator serving
// HalCameras over a diagnostics HTTP surface. The hardware camera layer
// itself is out of scope (spec.md §1), so this binary backs every opened
// camera with the in-memory fake driver from pkg/hwcamera/fake — enough to
// exercise the full registration/delivery/master pipeline end to end.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ethan/evs-multiplexer/pkg/config"
	"github.com/ethan/evs-multiplexer/pkg/diagnostics"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera"
	"github.com/ethan/evs-multiplexer/pkg/hwcamera/fake"
	"github.com/ethan/evs-multiplexer/pkg/logger"
	"github.com/ethan/evs-multiplexer/pkg/registry"
)

func main() {
	logFlags := logger.RegisterFlags(flag.CommandLine)
	flag.Parse()

	logCfg, err := logFlags.ToConfig()
	if err != nil {
		log.Fatalf("invalid logging flags: %v", err)
	}
	log_, err := logger.New(logCfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	logger.SetDefault(log_)
	defer log_.Close()
	log_.Info("logging configured", "flags", logFlags.String())

	cfg := config.Default()
	if envPath := os.Getenv("EVS_CONFIG"); envPath != "" {
		loaded, err := config.Load(envPath)
		if err != nil {
			log_.Warn("failed to load config override, using defaults", "path", envPath, "err", err)
		} else {
			cfg = loaded
		}
	}

	tracer := logger.NewFrameTracer(os.Stdout, zerolog.InfoLevel)

	reg := registry.New(func(cameraID string) (hwcamera.Device, error) {
		log_.Info("opening fake hardware device", "camera_id", cameraID)
		return fake.New(), nil
	}, cfg, log_, tracer)

	diag := diagnostics.NewServer(reg, log_)
	addr := ":8090"
	if v := os.Getenv("EVS_DIAG_ADDR"); v != "" {
		addr = v
	}
	if err := diag.Start(addr); err != nil {
		log.Fatalf("failed to start diagnostics server: %v", err)
	}
	log_.Info("diagnostics server listening", "addr", addr)

	// Touch one camera so the dump endpoint has something to show even
	// before any real client connects.
	if _, err := reg.OpenCamera("camera-0"); err != nil {
		log_.Error("failed to open default camera", "err", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log_.Info("evsd running, press Ctrl+C to stop")
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := diag.Stop(shutdownCtx); err != nil {
		log_.Error("error stopping diagnostics server", "err", err)
	}
	log_.Info("shutdown complete")
}
