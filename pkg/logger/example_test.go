package logger_test

import (
	"os"

	"github.com/ethan/evs-multiplexer/pkg/logger"
)

// Example showing basic logger usage.
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("multiplexer started", "camera_id", "front-left")
	log.Warn("timeline creation failed, degrading to pull mode", "client", "vcam-3")
	log.Error("hardware rejected stream start", "error", "timeout")
}

// Example showing debug category usage.
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugMaster)
	cfg.EnableCategory(logger.DebugPool)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.DebugMaster("forceMaster displaced previous master", "new_master", "vcam-1")
	log.DebugPool("changeFramesInFlight", "target", 6)

	// Delivery debugging is not enabled, so this is a no-op.
	log.DebugDelivery("re-queued request", "client", "vcam-2")
}

// Example showing JSON format output.
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "evsd.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("evsd.json")

	log.Info("client registered",
		"client_id", "vcam-4",
		"allowed_buffers", 2)
}
