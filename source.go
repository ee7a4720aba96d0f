package ipcam

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FrameSource pulls frames from a camera. Owned by exactly one relay.
type FrameSource interface {
	// Read fills dst with the next frame or returns ErrEndOfStream
	Read(dst *gocv.Mat) error
	Close() error
}

// OpenSourceFunc opens a fresh, independent source.
// Failures must satisfy errors.Is(err, ErrSourceUnavailable).
type OpenSourceFunc func(ctx context.Context) (FrameSource, error)

// CameraURL builds http://<host>:<port><path>
func CameraURL(host string, port int, path string) string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// SourceOpener picks the source implementation for the configured protocol
func SourceOpener(cs CameraSettings) OpenSourceFunc {
	if cs.Protocol == ProtocolUDP {
		return func(ctx context.Context) (FrameSource, error) {
			src, err := OpenUDPSource(cs)
			if err != nil {
				return nil, err
			}
			return src, nil
		}
	}
	cameraURL := cs.URL()
	return func(ctx context.Context) (FrameSource, error) {
		src, err := OpenMJPEGSource(cameraURL)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
}

// MJPEGSource reads a multipart MJPEG stream through OpenCV's video capture
type MJPEGSource struct {
	url       string
	capture   *gocv.VideoCapture
	closeOnce sync.Once
	closeErr  error
}

// OpenMJPEGSource connects to url
func OpenMJPEGSource(url string) (*MJPEGSource, error) {
	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, &SourceError{URL: url, Err: err}
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, &SourceError{URL: url}
	}
	return &MJPEGSource{url: url, capture: capture}, nil
}

// Read grabs the next frame
func (s *MJPEGSource) Read(dst *gocv.Mat) error {
	if ok := s.capture.Read(dst); !ok {
		return errors.Wrapf(ErrEndOfStream, "can't read next frame from %s", s.url)
	}
	if dst.Empty() {
		return errors.Wrapf(ErrEndOfStream, "empty frame from %s", s.url)
	}
	return nil
}

// Close releases the capture; later calls are no-ops
func (s *MJPEGSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.capture.Close()
	})
	return s.closeErr
}
