package ipcam

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hybridgroup/mjpeg"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

// MJPEGSink republishes annotated frames as an MJPEG stream
type MJPEGSink struct {
	Encoder FrameEncoder
	Stream  *mjpeg.Stream
}

// Deliver encodes and publishes the frame to every MJPEG viewer
func (m *MJPEGSink) Deliver(ctx context.Context, frame *FrameData, detections []Detection) error {
	jpeg, err := m.Encoder.Encode(frame.Scaled)
	if err != nil {
		if !errors.Is(err, ErrEncode) {
			err = errors.Wrap(ErrEncode, err.Error())
		}
		return err
	}
	m.Stream.UpdateJPEG(jpeg)
	return nil
}

// MJPEGHandler serves stream at "/" and metrics at "/metrics"
func MJPEGHandler(stream *mjpeg.Stream, metrics *Metrics) http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/", stream.ServeHTTP)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// StartMJPEGStream binds addr, then serves the MJPEG stream in a separate goroutine until ctx is done.
// A bind failure is returned so no relay runs without a viewer endpoint.
func StartMJPEGStream(ctx context.Context, addr string, metrics *Metrics, logger *log.Entry) (*mjpeg.Stream, error) {
	logger = moduleLogger(logger, "mjpeg")
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't serve MJPEG on %s", addr)
	}

	stream := mjpeg.NewStream()
	srv := &http.Server{
		Handler:           MJPEGHandler(stream, metrics),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting MJPEG on http://%s", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("MJPEG server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return stream, nil
}
