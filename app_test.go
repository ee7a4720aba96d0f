package ipcam

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestNewAppFailsOnMissingClassList(t *testing.T) {
	dir := t.TempDir()
	settings := DefaultSettings()
	settings.CameraSettings.Address = "10.0.0.2"
	settings.NeuralNetworkSettings.Classes = filepath.Join(dir, "utils", "coco.txt")
	settings.NeuralNetworkSettings.Weights = filepath.Join(dir, "weights", "yolov8n.onnx")

	app, err := NewApp(settings, nil)
	if app != nil {
		t.Error("no application should be built")
	}
	if !errors.Is(err, ErrResourceMissing) {
		t.Fatalf("NewApp() = %v, want ErrResourceMissing", err)
	}
	// the class list is checked first, so the diagnostic names it rather than the weights
	if msg := Describe(err); !strings.Contains(msg, settings.NeuralNetworkSettings.Classes) {
		t.Errorf("diagnostic %q should name the class list", msg)
	}
}

func TestRunMJPEGFailsWhenPortTaken(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	settings := DefaultSettings()
	settings.Mode = ModeMJPEG
	settings.MjpegSettings.Host = "127.0.0.1"
	settings.MjpegSettings.Port = busy.Addr().(*net.TCPAddr).Port

	var opens int32
	open := func(ctx context.Context) (FrameSource, error) {
		atomic.AddInt32(&opens, 1)
		return &fakeSource{frames: -1}, nil
	}
	app := newApplication(settings, testClasses, &fakeDetector{}, nil, open, moduleLogger(nil, "app"))

	if err := app.Run(context.Background()); err == nil {
		t.Fatal("Run() should fail when the MJPEG port is taken")
	}
	if got := atomic.LoadInt32(&opens); got != 0 {
		t.Errorf("camera opened %d times without a viewer endpoint", got)
	}
}

func TestStartMJPEGStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := StartMJPEGStream(ctx, "127.0.0.1:0", nil, nil)
	if err != nil || stream == nil {
		t.Fatalf("StartMJPEGStream() = %v, %v", stream, err)
	}
}
