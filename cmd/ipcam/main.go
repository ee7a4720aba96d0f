package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/genert/ipcam"
)

func main() {
	settingsFile := flag.String("settings", "", "Path to application's settings (JSON)")
	port := flag.Int("port", 0, "WebSocket server port (default: 8765)")
	mode := flag.String("mode", "", "socket, display or mjpeg (default: socket)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Run object detection on IP camera stream\n\nUsage: %s [flags] <ip_address>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	/* Read settings */
	settings, err := ipcam.NewSettings(*settingsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if flag.NArg() > 0 {
		settings.CameraSettings.Address = flag.Arg(0)
	}
	if *port > 0 {
		settings.StreamSettings.Port = *port
	}
	if *mode != "" {
		settings.Mode = *mode
	}
	if *logLevel != "" {
		settings.LogSettings.Level = *logLevel
	}
	if settings.CameraSettings.Address == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := ipcam.NewLogger(settings.LogSettings, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	entry := log.NewEntry(logger)
	entry.Debugf("gocv version: %s, opencv lib version: %s", gocv.Version(), gocv.OpenCVVersion())

	app, err := ipcam.NewApp(settings, entry)
	if err != nil {
		if errors.Is(err, ipcam.ErrResourceMissing) {
			entry.Error(ipcam.Describe(err))
		} else {
			entry.WithError(err).Error("Startup failed")
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := app.Run(ctx)

	entry.Info("Shutting down...")
	// Hard release memory
	if err := app.Close(); err != nil {
		entry.WithError(err).Warn("Can't release model")
	}
	if runErr != nil {
		entry.Error(ipcam.Describe(runErr))
		stop()
		os.Exit(1)
	}
}
