package ipcam

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Relay modes
const (
	ModeSocket  = "socket"
	ModeDisplay = "display"
	ModeMJPEG   = "mjpeg"
)

// Camera protocols
const (
	ProtocolMJPEG = "mjpeg"
	ProtocolUDP   = "udp"
)

// AppSettings Settings for application
type AppSettings struct {
	Mode                  string                `json:"mode"`
	CameraSettings        CameraSettings        `json:"camera_settings"`
	NeuralNetworkSettings NeuralNetworkSettings `json:"neural_network_settings"`
	StreamSettings        StreamSettings        `json:"stream_settings"`
	DisplaySettings       DisplaySettings       `json:"display_settings"`
	MjpegSettings         MjpegSettings         `json:"mjpeg_settings"`
	LogSettings           LogSettings           `json:"log_settings"`
	// ColorSeed fixes the per-class palette between runs
	ColorSeed int64 `json:"color_seed"`
}

// CameraSettings settings for camera settings
type CameraSettings struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Path     string `json:"path"`
	// UDP only
	HeaderSize    int `json:"header_size"`
	ReadTimeoutMs int `json:"read_timeout_ms"`
}

// URL camera endpoint for the MJPEG protocol
func (cs CameraSettings) URL() string {
	return CameraURL(cs.Address, cs.Port, cs.Path)
}

// NeuralNetworkSettings Neural network
type NeuralNetworkSettings struct {
	Target        string   `json:"target"`
	Backend       string   `json:"backend"`
	Weights       string   `json:"weights"`
	Config        string   `json:"config"`
	Classes       string   `json:"classes"`
	Layout        string   `json:"layout"`
	InputSize     int      `json:"input_size"`
	ConfThreshold float32  `json:"conf_threshold"`
	NmsThreshold  float32  `json:"nms_threshold"`
	TargetClasses []string `json:"target_classes"`
}

// StyleSettings presentation parameters for boxes and labels
type StyleSettings struct {
	Thickness     int     `json:"thickness"`
	Font          string  `json:"font"`
	FontScale     float64 `json:"font_scale"`
	TextThickness int     `json:"text_thickness"`
	LabelMargin   int     `json:"label_margin"`
}

// StreamSettings websocket relay
type StreamSettings struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	IntervalMs      int           `json:"interval_ms"`
	JPEGQuality     int           `json:"jpeg_quality"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	WriteTimeoutMs  int           `json:"write_timeout_ms"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	AnnotationStyle StyleSettings `json:"annotation_style"`
}

// Addr listen address
func (ss StreamSettings) Addr() string {
	return fmt.Sprintf("%s:%d", ss.Host, ss.Port)
}

// Interval pause between two pushed frames
func (ss StreamSettings) Interval() time.Duration {
	return time.Duration(ss.IntervalMs) * time.Millisecond
}

// WriteTimeout deadline for one websocket write
func (ss StreamSettings) WriteTimeout() time.Duration {
	return time.Duration(ss.WriteTimeoutMs) * time.Millisecond
}

// DisplaySettings local window
type DisplaySettings struct {
	WindowTitle     string        `json:"window_title"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	QuitKeys        string        `json:"quit_keys"`
	AnnotationStyle StyleSettings `json:"annotation_style"`
}

// MjpegSettings settings for output
type MjpegSettings struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	JPEGQuality     int           `json:"jpeg_quality"`
	AnnotationStyle StyleSettings `json:"annotation_style"`
}

// Addr listen address
func (ms MjpegSettings) Addr() string {
	return fmt.Sprintf("%s:%d", ms.Host, ms.Port)
}

// LogSettings logger
type LogSettings struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultSettings values used when the settings file omits them
func DefaultSettings() *AppSettings {
	streamStyle := StyleSettings{Thickness: 2, Font: "simplex", FontScale: 0.5, TextThickness: 1, LabelMargin: 10}
	return &AppSettings{
		Mode: ModeSocket,
		CameraSettings: CameraSettings{
			Protocol:      ProtocolMJPEG,
			Port:          8080,
			Path:          "/video",
			HeaderSize:    72,
			ReadTimeoutMs: 5000,
		},
		NeuralNetworkSettings: NeuralNetworkSettings{
			Weights:       "weights/yolov8n.onnx",
			Classes:       "utils/coco.txt",
			Layout:        LayoutYOLOv8,
			Backend:       "default",
			Target:        "cpu",
			InputSize:     640,
			ConfThreshold: 0.45,
			NmsThreshold:  0.7,
		},
		StreamSettings: StreamSettings{
			Host:            "0.0.0.0",
			Port:            8765,
			IntervalMs:      100,
			JPEGQuality:     DefaultJPEGQuality,
			Width:           640,
			Height:          480,
			WriteTimeoutMs:  5000,
			AllowedOrigins:  []string{"*"},
			AnnotationStyle: streamStyle,
		},
		DisplaySettings: DisplaySettings{
			WindowTitle:     "Object Detection",
			Width:           1920,
			Height:          1080,
			QuitKeys:        "q\x1b",
			AnnotationStyle: StyleSettings{Thickness: 3, Font: "complex", FontScale: 1.0, TextThickness: 2, LabelMargin: 10},
		},
		MjpegSettings: MjpegSettings{
			Host:            "0.0.0.0",
			Port:            8081,
			Width:           640,
			Height:          480,
			JPEGQuality:     DefaultJPEGQuality,
			AnnotationStyle: streamStyle,
		},
		LogSettings: LogSettings{Level: "info", Format: "text"},
	}
}

// NewSettings Create new AppSettings from content of configuration file.
// Missing fields keep their defaults; an empty fileName returns the defaults.
func NewSettings(fileName string) (*AppSettings, error) {
	settings := DefaultSettings()
	if fileName == "" {
		return settings, nil
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read settings file %s", fileName)
	}
	if err = json.Unmarshal(content, settings); err != nil {
		return nil, errors.Wrapf(err, "Can't parse settings file %s", fileName)
	}
	return settings, nil
}

// Validate checks settings that can't be defaulted
func (s *AppSettings) Validate() error {
	switch s.Mode {
	case ModeSocket, ModeDisplay, ModeMJPEG:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}

	if s.CameraSettings.Address == "" {
		return fmt.Errorf("camera address is empty")
	}
	switch s.CameraSettings.Protocol {
	case ProtocolMJPEG, ProtocolUDP:
	default:
		return fmt.Errorf("unknown camera protocol %q", s.CameraSettings.Protocol)
	}
	if s.CameraSettings.Port <= 0 {
		return fmt.Errorf("camera port must be positive, got %d", s.CameraSettings.Port)
	}

	switch s.NeuralNetworkSettings.Layout {
	case LayoutYOLOv8, LayoutDarknet:
	default:
		return fmt.Errorf("unknown network output layout %q", s.NeuralNetworkSettings.Layout)
	}
	if t := s.NeuralNetworkSettings.ConfThreshold; t < 0 || t > 1 {
		return fmt.Errorf("conf_threshold must be within [0,1], got %v", t)
	}

	if s.StreamSettings.Port <= 0 || s.MjpegSettings.Port <= 0 {
		return fmt.Errorf("server ports must be positive")
	}
	for _, q := range []int{s.StreamSettings.JPEGQuality, s.MjpegSettings.JPEGQuality} {
		if q < 0 || q > 100 {
			return fmt.Errorf("jpeg_quality must be within [0,100], got %d", q)
		}
	}
	return nil
}

// ResolveResourcePath makes relative paths relative to the running executable
func ResolveResourcePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	exe, err := os.Executable()
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), path)
}
